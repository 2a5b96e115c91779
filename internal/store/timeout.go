package store

import (
	"context"
	"errors"
	"time"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/domain"
)

// timeoutStore bounds every call of the wrapped store
type timeoutStore struct {
	next    JobStore
	timeout time.Duration
}

// WithTimeout wraps s so that each call runs under its own deadline.
// A call that overruns is reported as an unavailable PersistenceError.
// A non-positive timeout returns s unchanged.
func WithTimeout(s JobStore, timeout time.Duration) JobStore {
	if timeout <= 0 {
		return s
	}
	return &timeoutStore{next: s, timeout: timeout}
}

func (t *timeoutStore) Upsert(ctx context.Context, job *domain.Job) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return classify(ctx, "upsert", t.next.Upsert(ctx, job))
}

func (t *timeoutStore) QueryPage(ctx context.Context, q Query) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	page, err := t.next.QueryPage(ctx, q)
	if err != nil {
		return nil, classify(ctx, "query page", err)
	}
	return page, nil
}

func (t *timeoutStore) FindNextEligible(ctx context.Context, now time.Time) (*domain.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	job, err := t.next.FindNextEligible(ctx, now)
	if err != nil {
		return nil, classify(ctx, "find next eligible", err)
	}
	return job, nil
}

func (t *timeoutStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return classify(ctx, "ping", t.next.Ping(ctx))
}

func (t *timeoutStore) Close() error {
	return t.next.Close()
}

// classify makes sure a deadline overrun surfaces as an unavailable
// PersistenceError no matter how the backend reported it
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		if domain.IsUnavailable(err) {
			return err
		}
		return domain.NewUnavailableError(op, err)
	}
	var pe *domain.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	// validation errors such as a bad cursor pass through untouched
	if errors.Is(err, ErrInvalidCursor) {
		return err
	}
	return domain.NewPersistenceError(op, err)
}
