package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freshcart/grocery-delivery/internal/config"
	"github.com/freshcart/grocery-delivery/internal/gateway"
	"github.com/freshcart/grocery-delivery/internal/httpserver"
	"github.com/freshcart/grocery-delivery/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	upstreams, err := config.Require("ORDERS_SERVICE_URL", "INVENTORY_SERVICE_URL")
	if err != nil {
		return err
	}

	tel, err := telemetry.Setup(ctx, "gateway", "0.1.0")
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	client := telemetry.HTTPClient(10 * time.Second)
	mux := http.NewServeMux()
	gateway.NewHandler(
		gateway.NewServiceProxy(upstreams[0], client),
		gateway.NewServiceProxy(upstreams[1], client),
		logger,
	).Register(mux)

	srv := &http.Server{
		Addr:         ":" + config.Getenv("PORT", "8080"),
		Handler:      telemetry.HTTPHandler(mux, "gateway"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return httpserver.New(srv, logger).ListenAndServe(ctx)
}
