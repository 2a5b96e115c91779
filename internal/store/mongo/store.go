// Package mongo implements store.JobStore on MongoDB, including the Azure
// Cosmos DB MongoDB API.
package mongo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/domain"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/store"
	"github.com/AddiPii/AddiPi-Queue-Service/shared/mongodb"
)

// Ensure Store implements store.JobStore at compile time.
var _ store.JobStore = (*Store)(nil)

// Store keeps job documents in a single collection
type Store struct {
	client *mongodb.Client
	col    *mongod.Collection
	logger *slog.Logger
}

// New creates a new Store on top of a connected client
func New(client *mongodb.Client, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		col:    client.Collection(),
		logger: logger,
	}
}

// jobModel is the document shape of a job. schedule_key mirrors
// scheduled_at with nulls replaced by the sentinel so that one index can
// serve schedule ordering.
type jobModel struct {
	ID          string     `bson:"_id"`
	FileID      string     `bson:"file_id"`
	Status      string     `bson:"status"`
	ScheduledAt *time.Time `bson:"scheduled_at"`
	ScheduleKey time.Time  `bson:"schedule_key"`
	CreatedAt   time.Time  `bson:"created_at"`
}

func fromJobModel(m *jobModel) *domain.Job {
	job := &domain.Job{
		ID:        m.ID,
		FileID:    m.FileID,
		Status:    domain.Status(m.Status),
		CreatedAt: m.CreatedAt.UTC(),
	}
	if m.ScheduledAt != nil {
		at := m.ScheduledAt.UTC()
		job.ScheduledAt = &at
	}
	return job
}

// Migrate creates the indexes backing listing and eligibility queries
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, migrationIndexes())
	if err != nil {
		return wrapError("migrate", err)
	}
	s.logger.Info("Job indexes created")
	return nil
}

func migrationIndexes() []mongod.IndexModel {
	return []mongod.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("created_at_id"),
		},
		{
			Keys:    bson.D{{Key: "schedule_key", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("schedule_key_id"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("status_created_at_id"),
		},
	}
}

// Upsert inserts the job or replaces a document that is still pending or
// scheduled. created_at is only written on insert.
func (s *Store) Upsert(ctx context.Context, job *domain.Job) error {
	filter, update := upsertDocuments(job)

	_, err := s.col.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		// the status guard excluded an existing document, so the upsert
		// collided with it on _id: the record has moved on and stays as is
		if mongod.IsDuplicateKeyError(err) {
			s.logger.Debug("Job already claimed, upsert skipped",
				slog.String("job_id", job.ID),
			)
			return nil
		}
		return wrapError("upsert", err)
	}

	s.logger.Debug("Job upserted",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
	)
	return nil
}

func upsertDocuments(job *domain.Job) (bson.M, bson.M) {
	filter := bson.M{
		"_id": job.ID,
		"status": bson.M{"$in": bson.A{
			string(domain.StatusPending),
			string(domain.StatusScheduled),
		}},
	}

	var scheduledAt *time.Time
	if job.ScheduledAt != nil {
		at := job.ScheduledAt.UTC()
		scheduledAt = &at
	}

	update := bson.M{
		"$set": bson.M{
			"file_id":      job.FileID,
			"status":       string(job.Status),
			"scheduled_at": scheduledAt,
			"schedule_key": store.SortValue(job, store.SortScheduledAt),
		},
		"$setOnInsert": bson.M{
			"created_at": job.CreatedAt.UTC(),
		},
	}
	return filter, update
}

// QueryPage lists jobs with keyset pagination on (sort value, _id)
func (s *Store) QueryPage(ctx context.Context, q store.Query) (*store.Page, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	findOpts := options.Find().
		SetSort(pageSort(q)).
		SetLimit(int64(q.Limit + 1))

	cursor, err := s.col.Find(ctx, pageFilter(q), findOpts)
	if err != nil {
		return nil, wrapError("query page", err)
	}
	defer cursor.Close(ctx)

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, wrapError("query page", err)
	}

	jobs := make([]*domain.Job, 0, len(models))
	for i := range models {
		jobs = append(jobs, fromJobModel(&models[i]))
	}

	page := &store.Page{Jobs: jobs}
	if len(jobs) > q.Limit {
		page.Jobs = jobs[:q.Limit]
		page.Next = store.CursorAfter(page.Jobs[q.Limit-1], q)
	}
	return page, nil
}

func sortField(key store.SortKey) string {
	if key == store.SortScheduledAt {
		return "schedule_key"
	}
	return "created_at"
}

func pageFilter(q store.Query) bson.M {
	filter := bson.M{}

	if len(q.Filter.Statuses) > 0 {
		statuses := make(bson.A, len(q.Filter.Statuses))
		for i, st := range q.Filter.Statuses {
			statuses[i] = string(st)
		}
		filter["status"] = bson.M{"$in": statuses}
	}

	if q.Cursor != nil {
		field := sortField(q.Sort)
		op := "$lt"
		if q.Order == store.OrderAsc {
			op = "$gt"
		}
		filter["$or"] = bson.A{
			bson.M{field: bson.M{op: q.Cursor.Value}},
			bson.M{field: q.Cursor.Value, "_id": bson.M{op: q.Cursor.ID}},
		}
	}

	return filter
}

func pageSort(q store.Query) bson.D {
	dir := -1
	if q.Order == store.OrderAsc {
		dir = 1
	}
	return bson.D{{Key: sortField(q.Sort), Value: dir}, {Key: "_id", Value: dir}}
}

// FindNextEligible returns the oldest pending or due scheduled job
func (s *Store) FindNextEligible(ctx context.Context, now time.Time) (*domain.Job, error) {
	opts := options.FindOne().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})

	var m jobModel
	err := s.col.FindOne(ctx, eligibleFilter(now), opts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, wrapError("find next eligible", err)
	}
	return fromJobModel(&m), nil
}

func eligibleFilter(now time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"status": string(domain.StatusPending)},
		bson.M{
			"status":       string(domain.StatusScheduled),
			"scheduled_at": bson.M{"$lte": now.UTC()},
		},
	}}
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return wrapError("ping", err)
	}
	return nil
}

// Close disconnects the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

func wrapError(op string, err error) error {
	if isUnavailable(err) {
		return domain.NewUnavailableError(op, err)
	}
	return domain.NewPersistenceError(op, err)
}

// isUnavailable reports network failures, server selection and timeouts
func isUnavailable(err error) bool {
	return mongod.IsNetworkError(err) ||
		mongod.IsTimeout(err) ||
		errors.Is(err, mongod.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded)
}
