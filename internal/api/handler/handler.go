package handler

import (
	"context"
	"log/slog"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/admin"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/domain"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/scheduler"
)

// JobScheduler answers listing and eligibility queries.
// *scheduler.Engine is the production implementation.
type JobScheduler interface {
	List(ctx context.Context, p scheduler.ListParams) (*scheduler.ListResult, error)
	Next(ctx context.Context) (*domain.Job, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Scheduler JobScheduler
	Inspector admin.Inspector
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	scheduler JobScheduler
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		scheduler: deps.Scheduler,
	}
}

// QueueHandler handles broker queue introspection requests
type QueueHandler struct {
	logger    *slog.Logger
	inspector admin.Inspector
}

// NewQueueHandler creates a new QueueHandler instance
func NewQueueHandler(deps *Dependencies) *QueueHandler {
	inspector := deps.Inspector
	if inspector == nil {
		inspector = admin.Unconfigured{}
	}
	return &QueueHandler{
		logger:    deps.Logger,
		inspector: inspector,
	}
}
