package main

import (
	"context"
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
	"github.com/freshcart/grocery-delivery/internal/inventory"
	"github.com/freshcart/grocery-delivery/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("inventory service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	env, err := config.Require("POSTGRES_URL")
	if err != nil {
		return err
	}

	tel, err := telemetry.Setup(ctx, "inventory", "0.1.0", telemetry.WithMetrics())
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	db, err := telemetry.OpenDB(ctx, env[0])
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	mux := http.NewServeMux()
	inventory.NewHandler(inventory.NewInventoryRepository(db), logger).Register(mux)
	mux.Handle("GET /metrics", tel.Metrics)

	srv := &http.Server{
		Addr:         ":" + config.Getenv("PORT", "8082"),
		Handler:      telemetry.HTTPHandler(mux, "inventory"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return httpserver.New(srv, logger).ListenAndServe(ctx)
}
