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
	"github.com/freshcart/grocery-delivery/internal/email"
	"github.com/freshcart/grocery-delivery/internal/httpserver"
	"github.com/freshcart/grocery-delivery/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, "email", "0.1.0")
	if err != nil {
		logger.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	mux := http.NewServeMux()
	email.NewHandler(logger).Register(mux)

	srv := &http.Server{
		Addr:         ":" + config.Getenv("PORT", "8084"),
		Handler:      telemetry.HTTPHandler(mux, "email"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	if err := httpserver.New(srv, logger, httpserver.WithShutdownTimeout(5*time.Second)).ListenAndServe(ctx); err != nil {
		logger.Error("email service failed", "error", err)
		os.Exit(1)
	}
}
