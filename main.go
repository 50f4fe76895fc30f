package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"explorer/internal/app"
	"explorer/internal/config"
	"explorer/internal/logging"
	"explorer/pkg/rabbitmq"

	"go.uber.org/zap"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.AppMode, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	// --- Initialize storage, services and routes ---
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	application, err := app.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("error closing backends", zap.Error(err))
		}
	}()

	// --- Start RabbitMQ consumer ---
	if events := application.Events(); events != nil {
		eventLog := logger.Named("events")
		err := events.ConsumeEvents(func(ev rabbitmq.Event) error {
			eventLog.Info("event received",
				zap.String("event", ev.Name),
				zap.Time("occurredAt", ev.OccurredAt),
				zap.Any("payload", ev.Payload),
			)
			return nil
		})
		if err != nil {
			logger.Error("failed to start event consumer", zap.Error(err))
		}
	}

	// --- Start HTTP server ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := application.Listen(); err != nil {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	<-quit
	logger.Info("shutting down server")

	if err := application.Shutdown(10 * time.Second); err != nil {
		logger.Error("error during fiber shutdown", zap.Error(err))
	}
	logger.Info("server gracefully stopped")
}
