package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	// in-flight messages are finished even after shutdown starts; the
	// store timeout bounds how long that takes
	processCtx := context.WithoutCancel(ctx)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(processCtx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop processes messages until the dispatcher closes jobsChan
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.consumerTag, workerNum)

	for msg := range w.jobsChan {
		err := w.processDelivery(ctx, msg.delivery)
		w.settle(workerName, msg, err)
	}

	w.logger.Debug("Worker goroutine stopping - jobsChan closed",
		slog.String("worker_name", workerName),
	)
}

// settlement is how a processed delivery is handed back to the broker
type settlement int

const (
	settleAck settlement = iota
	settleRequeue
	settleDeadLetter
)

// settle acknowledges or rejects a delivery based on the processing result
func (w *Worker) settle(workerName string, msg *message, err error) {
	d := msg.delivery
	attrs := []any{
		slog.String("worker_name", workerName),
		slog.String("message_id", d.MessageId),
		slog.Uint64("delivery_tag", d.DeliveryTag),
		slog.Bool("redelivered", d.Redelivered),
	}

	switch decideSettlement(err, d.Redelivered) {
	case settleAck:
		if err != nil {
			w.logger.Warn("Dropping invalid event", append(attrs, slog.String("error", err.Error()))...)
		}
		if ackErr := d.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message", append(attrs, slog.String("error", ackErr.Error()))...)
		}

	case settleDeadLetter:
		w.logger.Error("Event rejected by the store twice, dead-lettering", append(attrs, slog.String("error", err.Error()))...)
		if nackErr := d.Nack(false, false); nackErr != nil {
			w.logger.Error("Failed to NACK message", append(attrs, slog.String("error", nackErr.Error()))...)
		}

	default:
		w.logger.Error("Event processing failed, requeueing", append(attrs, slog.String("error", err.Error()))...)
		if nackErr := d.Nack(false, true); nackErr != nil {
			w.logger.Error("Failed to NACK message", append(attrs, slog.String("error", nackErr.Error()))...)
		}
	}
}

// decideSettlement maps a processing result onto a settlement.
// Malformed events are acked and dropped. A store that could not be reached
// is always retried. A store that rejected the write gets one redelivery and
// then goes to the dead-letter queue, since the same write would be rejected
// forever.
func decideSettlement(err error, redelivered bool) settlement {
	if err == nil || domain.IsInvalidEvent(err) {
		return settleAck
	}

	var perr *domain.PersistenceError
	if redelivered && errors.As(err, &perr) && !perr.Unavailable {
		return settleDeadLetter
	}
	return settleRequeue
}
