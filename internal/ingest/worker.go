// Package ingest turns upload events delivered by the message queue into
// job records.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/store"
)

// ErrDeliveriesClosed is returned by Start when the transport stops
// delivering before the worker was asked to stop
var ErrDeliveriesClosed = errors.New("delivery channel closed by transport")

// DeliverySource is the narrow view of the message transport the worker needs
type DeliverySource interface {
	Consume(ctx context.Context, consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Source        DeliverySource
	Store         store.JobStore
	Deduper       Deduper
	ConsumerTag   string
	Concurrency   int
	PrefetchCount int
	// Clock stamps createdAt on new jobs; defaults to time.Now
	Clock func() time.Time
}

// Worker consumes upload events and upserts one job per event
type Worker struct {
	logger        *slog.Logger
	source        DeliverySource
	store         store.JobStore
	deduper       Deduper
	consumerTag   string
	concurrency   int
	prefetchCount int
	clock         func() time.Time
	jobsChan      chan *message
	wg            sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency * 2
	}
	deduper := cfg.Deduper
	if deduper == nil {
		deduper = NopDeduper{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	tag := cfg.ConsumerTag
	if tag == "" {
		tag = "queue-service"
	}

	return &Worker{
		logger:        cfg.Logger,
		source:        cfg.Source,
		store:         cfg.Store,
		deduper:       deduper,
		consumerTag:   tag,
		concurrency:   concurrency,
		prefetchCount: prefetch,
		clock:         clock,
		jobsChan:      make(chan *message, concurrency),
	}
}

// Start consumes deliveries until ctx is canceled or the transport closes
// the delivery channel. Messages already handed to the pool are finished
// before Start returns.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting ingestion worker",
		slog.Int("concurrency", w.concurrency),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	err = w.startMessageDispatcher(ctx, deliveries)

	close(w.jobsChan)
	w.wg.Wait()

	w.logger.Info("Ingestion worker stopped")
	return err
}
