// Package memory is an in-process job store. Safe for concurrent access.
// Intended for unit testing and development runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/domain"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/store"
)

// Ensure Store implements store.JobStore at compile time.
var _ store.JobStore = (*Store)(nil)

// Store keeps job records in a map keyed by id
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// New returns a new empty Store
func New() *Store {
	return &Store{jobs: make(map[string]*domain.Job)}
}

// Upsert creates or replaces a job. createdAt of an existing record is kept
// and records a worker has already claimed are not touched.
func (s *Store) Upsert(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := job.Clone()
	if existing, ok := s.jobs[job.ID]; ok {
		if !existing.Status.Replaceable() {
			return nil
		}
		cp.CreatedAt = existing.CreatedAt
	}
	s.jobs[job.ID] = cp
	return nil
}

// QueryPage returns up to q.Limit jobs after q.Cursor in the requested order
func (s *Store) QueryPage(_ context.Context, q store.Query) (*store.Page, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := make([]*domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !q.Filter.Matches(j) {
			continue
		}
		if q.Cursor != nil && !q.Cursor.After(store.SortValue(j, q.Sort), j.ID) {
			continue
		}
		matched = append(matched, j.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(a, b int) bool {
		cmp := store.SortValue(matched[a], q.Sort).Compare(store.SortValue(matched[b], q.Sort))
		if cmp == 0 {
			cmp = strings.Compare(matched[a].ID, matched[b].ID)
		}
		if q.Order == store.OrderAsc {
			return cmp < 0
		}
		return cmp > 0
	})

	page := &store.Page{Jobs: matched}
	if len(matched) > q.Limit {
		page.Jobs = matched[:q.Limit]
		page.Next = store.CursorAfter(page.Jobs[q.Limit-1], q)
	}
	return page, nil
}

// FindNextEligible returns the eligible job with the earliest createdAt,
// ties broken by id
func (s *Store) FindNextEligible(_ context.Context, now time.Time) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *domain.Job
	for _, j := range s.jobs {
		if !j.Eligible(now) {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) ||
			(j.CreatedAt.Equal(next.CreatedAt) && j.ID < next.ID) {
			next = j
		}
	}

	if next == nil {
		return nil, nil
	}
	return next.Clone(), nil
}

// Get returns a copy of the job with the given id, or nil
func (s *Store) Get(id string) *domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if j, ok := s.jobs[id]; ok {
		return j.Clone()
	}
	return nil
}

// Len returns the number of stored jobs
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// SetStatus moves a job to another status, standing in for the downstream
// worker in tests and development runs. It reports false for an unknown id
// and for StatusScheduled, which needs a schedule time only Upsert carries.
func (s *Store) SetStatus(id string, status domain.Status) bool {
	if status == domain.StatusScheduled || !status.Valid() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	j.Status = status
	j.ScheduledAt = nil
	return true
}

// Ping always succeeds for the memory store
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store
func (s *Store) Close() error { return nil }
