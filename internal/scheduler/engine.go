// Package scheduler answers the two questions the API asks of the job set:
// which jobs exist (ordered, paginated) and which job should run next.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/domain"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/store"
)

// DefaultLimit is the page size used when the caller gives none
const DefaultLimit = 50

// ValidationError reports a listing parameter outside its allow-list
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// ListParams are the raw listing parameters of one request.
// Empty strings select the defaults.
type ListParams struct {
	Limit             int
	Sort              string
	Order             string
	Statuses          []string
	ContinuationToken string
}

// ListResult is one page of jobs. ContinuationToken is nil once the
// listing is exhausted.
type ListResult struct {
	Jobs              []*domain.Job
	ContinuationToken *string
}

// Engine runs listing and eligibility queries against a job store
type Engine struct {
	store  store.JobStore
	clock  func() time.Time
	logger *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the wall clock used for eligibility
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLogger sets the logger for the engine
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine over s
func New(s store.JobStore, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// List returns one page of jobs in the requested order
func (e *Engine) List(ctx context.Context, p ListParams) (*ListResult, error) {
	q, err := buildQuery(p)
	if err != nil {
		return nil, err
	}

	page, err := e.store.QueryPage(ctx, q)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCursor) {
			return nil, &ValidationError{Field: "continuationToken", Value: p.ContinuationToken, Err: err}
		}
		return nil, err
	}

	result := &ListResult{Jobs: page.Jobs}
	if page.Next != nil {
		token := store.EncodeCursor(page.Next)
		result.ContinuationToken = &token
	}

	e.logger.Debug("Listed jobs",
		slog.Int("count", len(result.Jobs)),
		slog.String("sort", string(q.Sort)),
		slog.String("order", string(q.Order)),
		slog.Bool("has_more", page.Next != nil),
	)
	return result, nil
}

// buildQuery validates raw parameters against the allow-lists and fills
// the defaults
func buildQuery(p ListParams) (store.Query, error) {
	q := store.Query{
		Sort:  store.SortCreatedAt,
		Order: store.OrderDesc,
		Limit: store.ClampLimit(p.Limit),
	}

	if p.Sort != "" {
		q.Sort = store.SortKey(p.Sort)
		if !q.Sort.Valid() {
			return q, &ValidationError{Field: "sort", Value: p.Sort}
		}
	}

	if p.Order != "" {
		q.Order = store.Order(strings.ToLower(p.Order))
		if !q.Order.Valid() {
			return q, &ValidationError{Field: "order", Value: p.Order}
		}
	}

	for _, raw := range p.Statuses {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			return q, &ValidationError{Field: "status", Value: raw, Err: err}
		}
		q.Filter.Statuses = append(q.Filter.Statuses, status)
	}

	cursor, err := store.DecodeCursor(p.ContinuationToken)
	if err != nil {
		return q, &ValidationError{Field: "continuationToken", Value: p.ContinuationToken, Err: err}
	}
	if cursor != nil && (cursor.Sort != q.Sort || cursor.Order != q.Order) {
		return q, &ValidationError{Field: "continuationToken", Value: p.ContinuationToken, Err: store.ErrCursorMismatch}
	}
	q.Cursor = cursor

	return q, nil
}

// Next returns the job that should run next, or nil when nothing is eligible
func (e *Engine) Next(ctx context.Context) (*domain.Job, error) {
	now := e.clock().UTC()

	job, err := e.store.FindNextEligible(ctx, now)
	if err != nil {
		return nil, err
	}

	if job == nil {
		e.logger.Debug("No eligible job", slog.Time("now", now))
		return nil, nil
	}

	e.logger.Debug("Next eligible job",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
	)
	return job, nil
}
