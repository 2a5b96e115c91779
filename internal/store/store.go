// Package store defines the persistence contract for job records and the
// helpers shared by its backends (memory, postgres, mongo).
package store

import (
	"context"
	"time"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/domain"
)

const (
	// MinPageSize is the smallest page a query may request
	MinPageSize = 1
	// MaxPageSize is the largest page a query may request
	MaxPageSize = 1000
)

// SortKey names a field listings may be ordered by
type SortKey string

// Allowed sort keys
const (
	SortCreatedAt   SortKey = "createdAt"
	SortScheduledAt SortKey = "scheduledAt"
)

// Valid reports whether k is on the sort allow-list
func (k SortKey) Valid() bool {
	return k == SortCreatedAt || k == SortScheduledAt
}

// Order is a sort direction
type Order string

// Sort directions
const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Valid reports whether o is a known direction
func (o Order) Valid() bool {
	return o == OrderAsc || o == OrderDesc
}

// NullScheduleSentinel stands in for a missing scheduledAt when ordering by
// schedule, placing unscheduled jobs after every scheduled one in ascending
// order and before them in descending order.
var NullScheduleSentinel = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// JobStore is the persistence seam between the service and the document store.
// Implementations must be safe for concurrent use.
type JobStore interface {
	// Upsert creates the job or replaces it by id. createdAt of an existing
	// record is preserved and records past the scheduled state are left alone.
	Upsert(ctx context.Context, job *domain.Job) error

	// QueryPage returns one page of jobs plus the cursor of the next page
	QueryPage(ctx context.Context, q Query) (*Page, error)

	// FindNextEligible returns the job that should run next, or nil
	FindNextEligible(ctx context.Context, now time.Time) (*domain.Job, error)

	// Ping checks store connectivity
	Ping(ctx context.Context) error

	// Close releases resources owned by the store
	Close() error
}

// Filter restricts which jobs a query returns
type Filter struct {
	Statuses []domain.Status
}

// Matches reports whether job passes the filter
func (f Filter) Matches(job *domain.Job) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if job.Status == s {
			return true
		}
	}
	return false
}

// Query describes one page request
type Query struct {
	Filter Filter
	Sort   SortKey
	Order  Order
	Limit  int
	Cursor *Cursor
}

// Normalize fills defaults and clamps the limit. It rejects a cursor that
// was issued for a different ordering.
func (q Query) Normalize() (Query, error) {
	if q.Sort == "" {
		q.Sort = SortCreatedAt
	}
	if q.Order == "" {
		q.Order = OrderDesc
	}
	q.Limit = ClampLimit(q.Limit)

	if q.Cursor != nil && (q.Cursor.Sort != q.Sort || q.Cursor.Order != q.Order) {
		return q, ErrCursorMismatch
	}
	return q, nil
}

// Page is one slice of a listing
type Page struct {
	Jobs []*domain.Job
	// Next is nil once the listing is exhausted
	Next *Cursor
}

// ClampLimit forces a requested page size into [MinPageSize, MaxPageSize]
func ClampLimit(limit int) int {
	if limit < MinPageSize {
		return MinPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// SortValue returns the timestamp a job is ordered by under key
func SortValue(job *domain.Job, key SortKey) time.Time {
	if key == SortScheduledAt {
		if job.ScheduledAt == nil {
			return NullScheduleSentinel
		}
		return job.ScheduledAt.UTC()
	}
	return job.CreatedAt.UTC()
}

// CursorAfter builds the cursor that resumes a listing after job
func CursorAfter(job *domain.Job, q Query) *Cursor {
	return &Cursor{
		Sort:  q.Sort,
		Order: q.Order,
		Value: SortValue(job, q.Sort),
		ID:    job.ID,
	}
}
