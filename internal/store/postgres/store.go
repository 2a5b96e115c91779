// Package postgres implements store.JobStore on PostgreSQL using sqlx.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/domain"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/store"
	"github.com/AddiPii/AddiPi-Queue-Service/shared/postgresql"
)

// Ensure Store implements store.JobStore at compile time.
var _ store.JobStore = (*Store)(nil)

// scheduleExpr orders unscheduled jobs as if they were due at the sentinel
var scheduleExpr = fmt.Sprintf("COALESCE(scheduled_at, TIMESTAMPTZ '%s')",
	store.NullScheduleSentinel.Format("2006-01-02 15:04:05-07"))

// Store handles all database operations for job records
type Store struct {
	client *postgresql.Client
	db     *sqlx.DB
	logger *slog.Logger
}

// New creates a new Store on top of a connected client
func New(client *postgresql.Client, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		db:     client.GetDB(),
		logger: logger,
	}
}

// jobRow is the database representation of a job
type jobRow struct {
	ID          string       `db:"id"`
	FileID      string       `db:"file_id"`
	Status      string       `db:"status"`
	ScheduledAt sql.NullTime `db:"scheduled_at"`
	CreatedAt   time.Time    `db:"created_at"`
}

func (r *jobRow) toDomain() *domain.Job {
	job := &domain.Job{
		ID:        r.ID,
		FileID:    r.FileID,
		Status:    domain.Status(r.Status),
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.ScheduledAt.Valid {
		at := r.ScheduledAt.Time.UTC()
		job.ScheduledAt = &at
	}
	return job
}

const selectColumns = `id, file_id, status, scheduled_at, created_at`

// Migrate creates the jobs table and its indexes
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			file_id      TEXT NOT NULL,
			status       TEXT NOT NULL CHECK (status IN ('pending', 'scheduled', 'running', 'done', 'failed')),
			scheduled_at TIMESTAMPTZ,
			created_at   TIMESTAMPTZ NOT NULL,
			CHECK ((status = 'scheduled') = (scheduled_at IS NOT NULL))
		)`,
		`CREATE INDEX IF NOT EXISTS jobs_created_at_idx ON jobs (created_at, id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS jobs_schedule_idx ON jobs ((%s), id)`, scheduleExpr),
		`CREATE INDEX IF NOT EXISTS jobs_status_created_at_idx ON jobs (status, created_at, id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrapError("migrate", err)
		}
	}

	s.logger.Info("Job table migrated")
	return nil
}

// Upsert inserts the job or replaces a record that is still pending or
// scheduled. created_at is never rewritten.
func (s *Store) Upsert(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, file_id, status, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET file_id = EXCLUDED.file_id,
		    status = EXCLUDED.status,
		    scheduled_at = EXCLUDED.scheduled_at
		WHERE jobs.status IN ($6, $7)
	`

	var scheduledAt sql.NullTime
	if job.ScheduledAt != nil {
		scheduledAt = sql.NullTime{Time: job.ScheduledAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.FileID,
		string(job.Status),
		scheduledAt,
		job.CreatedAt.UTC(),
		string(domain.StatusPending),
		string(domain.StatusScheduled),
	)
	if err != nil {
		return wrapError("upsert", err)
	}

	s.logger.Debug("Job upserted",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
	)
	return nil
}

// QueryPage lists jobs with keyset pagination on (sort value, id)
func (s *Store) QueryPage(ctx context.Context, q store.Query) (*store.Page, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	sortExpr := "created_at"
	if q.Sort == store.SortScheduledAt {
		sortExpr = scheduleExpr
	}
	direction, comparison := "DESC", "<"
	if q.Order == store.OrderAsc {
		direction, comparison = "ASC", ">"
	}

	query := `SELECT ` + selectColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	// Filters
	if len(q.Filter.Statuses) > 0 {
		statuses := make([]string, len(q.Filter.Statuses))
		for i, st := range q.Filter.Statuses {
			statuses[i] = string(st)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, pq.Array(statuses))
		argIdx++
	}

	if q.Cursor != nil {
		query += fmt.Sprintf(" AND (%s, id) %s ($%d, $%d)", sortExpr, comparison, argIdx, argIdx+1)
		args = append(args, q.Cursor.Value, q.Cursor.ID)
		argIdx += 2
	}

	query += fmt.Sprintf(" ORDER BY %s %s, id %s", sortExpr, direction, direction)

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, q.Limit+1)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapError("query page", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toDomain())
	}

	page := &store.Page{Jobs: jobs}
	if len(jobs) > q.Limit {
		page.Jobs = jobs[:q.Limit]
		page.Next = store.CursorAfter(page.Jobs[q.Limit-1], q)
	}
	return page, nil
}

// FindNextEligible returns the oldest pending or due scheduled job
func (s *Store) FindNextEligible(ctx context.Context, now time.Time) (*domain.Job, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM jobs
		WHERE status = $1
		   OR (status = $2 AND scheduled_at <= $3)
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	var row jobRow
	err := s.db.GetContext(ctx, &row, query,
		string(domain.StatusPending),
		string(domain.StatusScheduled),
		now.UTC(),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapError("find next eligible", err)
	}

	return row.toDomain(), nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.HealthCheck(ctx); err != nil {
		return wrapError("ping", err)
	}
	return nil
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

// wrapError classifies a database error as a PersistenceError
func wrapError(op string, err error) error {
	if isUnavailable(err) {
		return domain.NewUnavailableError(op, err)
	}
	return domain.NewPersistenceError(op, err)
}

// isUnavailable reports connection level failures
func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// 08xxx connection exceptions, 57P0x operator intervention (shutdown, cannot connect now)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P")
	}

	return false
}
