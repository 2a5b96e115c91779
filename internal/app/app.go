// Package app wires configuration into the long-lived collaborators of the
// queue service: the job store, the scheduling engine, the queue inspector
// and the duplicate delivery cache. The process entrypoints own an App and
// pass it down explicitly.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/admin"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/api/handler"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/api/router"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/config"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/ingest"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/scheduler"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/store"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/store/memory"
	mongostore "github.com/AddiPii/AddiPi-Queue-Service/internal/store/mongo"
	pgstore "github.com/AddiPii/AddiPi-Queue-Service/internal/store/postgres"
	"github.com/AddiPii/AddiPi-Queue-Service/shared/mongodb"
	"github.com/AddiPii/AddiPi-Queue-Service/shared/postgresql"
	"github.com/AddiPii/AddiPi-Queue-Service/shared/rabbitmq"
)

// Migrator is implemented by stores that need schema or index setup
type Migrator interface {
	Migrate(ctx context.Context) error
}

// App holds the shared collaborators of one process
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     store.JobStore
	Engine    *scheduler.Engine
	Inspector admin.Inspector
	Deduper   ingest.Deduper

	closers []func() error
}

// New builds every collaborator the configuration asks for. On error the
// pieces opened so far are closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	raw, closeStore, err := OpenStore(ctx, &cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	a.Store = store.WithTimeout(raw, cfg.Store.Timeout)
	a.Engine = scheduler.New(a.Store, scheduler.WithLogger(logger.With(slog.String("component", "scheduler"))))

	a.Inspector, err = newInspector(&cfg.RabbitMQ.Management, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Deduper = a.newDeduper(ctx)

	return a, nil
}

// OpenStore connects the configured store backend. The returned close
// function releases it.
func OpenStore(ctx context.Context, cfg *config.StoreConfig, logger *slog.Logger) (store.JobStore, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("Using in-memory job store, jobs are lost on restart")
		s := memory.New()
		return s, s.Close, nil

	case config.DriverPostgres:
		client, err := postgresql.NewClient(&postgresql.Config{
			URL:             cfg.Endpoint,
			Password:        cfg.Key,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			ConnectTimeout:  cfg.ConnectTimeout,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize job store: %w", err)
		}
		s := pgstore.New(client, logger)
		return s, func() error {
			logger.Info("Database pool statistics", slog.String("stats", client.Stats()))
			return s.Close()
		}, nil

	case config.DriverMongo:
		client, err := mongodb.NewClient(&mongodb.Config{
			URI:            cfg.Endpoint,
			Password:       cfg.Key,
			Database:       cfg.Database,
			Collection:     cfg.Collection,
			MaxPoolSize:    cfg.MaxPoolSize,
			ConnectTimeout: cfg.ConnectTimeout,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize job store: %w", err)
		}
		s := mongostore.New(client, logger)
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newInspector returns the management API client, or an inspector that
// always reports unavailable when no URL is configured
func newInspector(cfg *config.ManagementConfig, logger *slog.Logger) (admin.Inspector, error) {
	if cfg.URL == "" {
		logger.Info("RabbitMQ management URL not set, /queues will report unavailable")
		return admin.Unconfigured{}, nil
	}

	inspector, err := admin.NewRabbitMQInspector(&admin.Config{
		URL:       cfg.URL,
		VHost:     cfg.VHost,
		Timeout:   cfg.Timeout,
		RetryMax:  cfg.RetryMax,
		RetryWait: cfg.RetryWait,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue inspector: %w", err)
	}
	return inspector, nil
}

// newDeduper connects the redis marker cache when an address is set.
// An unreachable server is logged and tolerated; lookups fail open.
func (a *App) newDeduper(ctx context.Context) ingest.Deduper {
	cfg := &a.Config.Redis
	if cfg.Addr == "" {
		return ingest.NopDeduper{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	a.closers = append(a.closers, client.Close)

	if err := client.Ping(ctx).Err(); err != nil {
		a.Logger.Warn("Redis unreachable, duplicate deliveries fall back to store idempotency",
			slog.String("addr", cfg.Addr),
			slog.Any("error", err),
		)
	} else {
		a.Logger.Info("Connected to Redis", slog.String("addr", cfg.Addr))
	}

	return ingest.NewRedisDeduper(client, cfg.KeyPrefix, cfg.DedupTTL)
}

// Router builds the HTTP API over the app's engine and inspector
func (a *App) Router() *gin.Engine {
	return router.SetupRouter(&handler.Dependencies{
		Logger:    a.Logger,
		Scheduler: a.Engine,
		Inspector: a.Inspector,
	})
}

// NewIngestWorker creates the event consumer reading from source
func (a *App) NewIngestWorker(source ingest.DeliverySource) *ingest.Worker {
	return ingest.NewWorker(&ingest.Config{
		Logger:        a.Logger.With(slog.String("component", "ingest")),
		Source:        source,
		Store:         a.Store,
		Deduper:       a.Deduper,
		ConsumerTag:   a.Config.Ingest.ConsumerTag,
		Concurrency:   a.Config.Ingest.Concurrency,
		PrefetchCount: a.Config.Ingest.PrefetchCount,
	})
}

// Close releases everything New opened, newest first
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// RabbitMQConfig maps the service configuration onto the client settings
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		URL:                cfg.ConnectionString,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		QueueName:          cfg.Queue.Name,
		RoutingKey:         cfg.RoutingKey,
		DeadLetter:         cfg.Queue.DeadLetter,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}
