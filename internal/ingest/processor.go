package ingest

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/domain"
)

// processDelivery handles one delivery. A nil return means the delivery can
// be acknowledged; an InvalidEventError means it can never succeed; any
// other error means it should be retried.
func (w *Worker) processDelivery(ctx context.Context, d amqp.Delivery) error {
	event, err := domain.ParseEvent(d.Body)
	if err != nil {
		return err
	}

	switch ev := event.(type) {
	case domain.FileUploaded:
		return w.processFileUploaded(ctx, d, ev)
	default:
		w.logger.Debug("Ignoring foreign event",
			slog.String("event", event.Kind()),
			slog.String("message_id", d.MessageId),
		)
		return nil
	}
}

func (w *Worker) processFileUploaded(ctx context.Context, d amqp.Delivery, ev domain.FileUploaded) error {
	key := MessageKey(d.MessageId, d.Body)

	seen, err := w.deduper.Seen(ctx, key)
	if err != nil {
		// the marker is an optimization only, fall through to the upsert
		w.logger.Warn("Dedup lookup failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	if seen {
		w.logger.Debug("Duplicate delivery skipped",
			slog.String("key", key),
			slog.String("file_id", ev.FileID),
		)
		return nil
	}

	job, err := domain.NewJob(JobID(key), ev, w.clock())
	if err != nil {
		return err
	}

	if err := w.store.Upsert(ctx, job); err != nil {
		return err
	}

	if err := w.deduper.Remember(ctx, key); err != nil {
		w.logger.Warn("Failed to record delivery",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	w.logger.Info("Job recorded",
		slog.String("job_id", job.ID),
		slog.String("file_id", job.FileID),
		slog.String("status", string(job.Status)),
	)
	return nil
}
