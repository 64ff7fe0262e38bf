package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/freshcart/grocery-delivery/internal/config"
	"github.com/freshcart/grocery-delivery/internal/httpserver"
	"github.com/freshcart/grocery-delivery/internal/identity"
	"github.com/freshcart/grocery-delivery/internal/inventory"
	"github.com/freshcart/grocery-delivery/internal/messaging"
	"github.com/freshcart/grocery-delivery/internal/orders"
	"github.com/freshcart/grocery-delivery/internal/realtime"
	"github.com/freshcart/grocery-delivery/internal/telemetry"
	"github.com/freshcart/grocery-delivery/internal/tracking"
)

const serviceVersion = "0.1.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("orders service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	env, err := config.Require("POSTGRES_URL")
	if err != nil {
		return err
	}

	tel, err := telemetry.Setup(ctx, "orders", serviceVersion, telemetry.WithRuntimeMetrics())
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	db, err := telemetry.OpenDB(ctx, env[0])
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	var events orders.EventPublisher
	if brokers := config.List("KAFKA_BROKERS"); len(brokers) > 0 {
		producer := messaging.NewProducer(brokers, messaging.OrderEventsTopic)
		defer func() { _ = producer.Close() }()
		events = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events will not be published")
	}

	hub, err := realtime.NewHub(logger)
	if err != nil {
		return err
	}

	orderRepo := orders.NewOrderRepository(db)
	service, err := orders.NewService(orders.Deps{
		Orders:   orderRepo,
		Stock:    inventory.NewInventoryRepository(db),
		Partners: identity.NewDirectoryRepository(db),
		Notifier: hub,
		Events:   events,
		Logger:   logger,
	}, cfg.OrderOptions()...)
	if err != nil {
		return fmt.Errorf("order service: %w", err)
	}

	tracker, err := tracking.NewService(orderRepo, tracking.NewRepository(db), hub, logger,
		tracking.WithSettings(cfg.TrackingSettings()),
	)
	if err != nil {
		return fmt.Errorf("tracking service: %w", err)
	}

	wsOpts := []realtime.ServerOption{
		realtime.WithLocationRate(cfg.Tracking.PushesPerSecond, cfg.Tracking.PushBurst),
	}
	if origins := config.List("WS_ORIGIN_PATTERNS"); len(origins) > 0 {
		wsOpts = append(wsOpts, realtime.WithOriginPatterns(origins...))
	}

	mux := http.NewServeMux()
	orders.NewHandler(service, logger).Register(mux)
	tracking.NewHandler(tracker, logger).Register(mux)
	mux.Handle("GET /ws", telemetry.RouteTagged(realtime.NewServer(hub, service, tracker, logger, wsOpts...)))
	mux.Handle("GET /metrics", tel.Metrics)
	mux.HandleFunc("GET /healthz", healthz(db))

	// No read or write timeout: /ws connections are long lived.
	srv := &http.Server{
		Addr:              ":" + config.Getenv("PORT", "8081"),
		Handler:           telemetry.HTTPHandler(mux, "orders"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return httpserver.New(srv, logger, httpserver.OnShutdown(hub.Close)).ListenAndServe(ctx)
}

func healthz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
