package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freshcart/grocery-delivery/internal/config"
	"github.com/freshcart/grocery-delivery/internal/messaging"
	"github.com/freshcart/grocery-delivery/internal/telemetry"
	"github.com/freshcart/grocery-delivery/internal/worker"
)

const consumerGroup = "notification-worker"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, logger)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("consumer stopped")
	case err != nil:
		logger.Error("notification worker failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	env, err := config.Require("EMAIL_SERVICE_URL")
	if err != nil {
		return err
	}
	brokers := config.List("KAFKA_BROKERS")
	if len(brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}

	tel, err := telemetry.Setup(ctx, consumerGroup, "0.1.0")
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	consumer := messaging.NewConsumer(brokers, messaging.OrderEventsTopic, consumerGroup,
		messaging.WithRetries(3, time.Second),
		messaging.WithLogger(logger),
	)
	defer func() { _ = consumer.Close() }()

	handler := worker.NewNotificationHandler(env[0], telemetry.HTTPClient(10*time.Second), logger)

	logger.Info("starting notification worker", "brokers", brokers, "topic", messaging.OrderEventsTopic)
	return consumer.Consume(ctx, handler.Handle)
}
