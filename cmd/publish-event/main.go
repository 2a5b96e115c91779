// Command publish-event sends one file_uploaded event to the work queue.
// It is meant for smoke testing a running queue service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/app"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/config"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/domain"
	"github.com/AddiPii/AddiPi-Queue-Service/shared/logger"
	"github.com/AddiPii/AddiPi-Queue-Service/shared/rabbitmq"
)

// uploadEvent is the payload shape the ingestion worker consumes
type uploadEvent struct {
	Event       string  `json:"event"`
	FileID      string  `json:"fileId"`
	ScheduledAt *string `json:"scheduledAt,omitempty"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	configPath := flag.String("config", os.Getenv("QUEUE_SERVICE_CONFIG_PATH"), "Path to configuration file")
	fileID := flag.String("file-id", "", "Id of the uploaded file (required)")
	scheduledAt := flag.String("scheduled-at", "", "Optional ISO-8601 time the job should run at")
	messageID := flag.String("message-id", uuid.NewString(), "Message id; reuse one to simulate a redelivery")
	timeout := flag.Duration("timeout", 10*time.Second, "Publish timeout")
	flag.Parse()

	msg, err := buildMessage(*fileID, *scheduledAt, *messageID)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.RabbitMQ.ConnectionString == "" {
		return &config.ConfigurationError{Missing: []string{config.EnvQueueConnectionString}}
	}

	appLogger, err := logger.New(&logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	client, err := rabbitmq.NewClient(app.RabbitMQConfig(&cfg.RabbitMQ), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := client.PublishWithRetry(ctx, msg); err != nil {
		return err
	}

	appLogger.Info("Event published",
		slog.String("message_id", msg.MessageID),
		slog.String("file_id", *fileID),
		slog.String("queue", cfg.RabbitMQ.Queue.Name),
	)
	return nil
}

// buildMessage encodes a file_uploaded event
func buildMessage(fileID, scheduledAt, messageID string) (rabbitmq.Message, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return rabbitmq.Message{}, errors.New("-file-id is required")
	}

	event := uploadEvent{Event: domain.EventFileUploaded, FileID: fileID}
	if scheduledAt = strings.TrimSpace(scheduledAt); scheduledAt != "" {
		if _, ok := domain.ParseTimestamp(scheduledAt); !ok {
			return rabbitmq.Message{}, fmt.Errorf("invalid -scheduled-at %q", scheduledAt)
		}
		event.ScheduledAt = &scheduledAt
	}

	body, err := json.Marshal(event)
	if err != nil {
		return rabbitmq.Message{}, fmt.Errorf("failed to encode event: %w", err)
	}

	return rabbitmq.Message{
		Body:        body,
		ContentType: "application/json",
		MessageID:   messageID,
	}, nil
}
