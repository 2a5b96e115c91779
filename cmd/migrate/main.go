// Command migrate creates the table or indexes the configured job store
// needs. It is safe to run repeatedly.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/app"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/config"
	"github.com/AddiPii/AddiPi-Queue-Service/shared/logger"
)

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
	timeout := flag.Duration("timeout", time.Minute, "Migration timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateStore(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	s, closeStore, err := app.OpenStore(ctx, &cfg.Store, appLogger.Logger)
	if err != nil {
		return err
	}
	defer closeStore()

	migrator, ok := s.(app.Migrator)
	if !ok {
		appLogger.Info("Store driver needs no migration", slog.String("driver", cfg.Store.Driver))
		return nil
	}

	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	appLogger.Info("Migration complete", slog.String("driver", cfg.Store.Driver))
	return nil
}
