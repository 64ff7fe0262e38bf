package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Telemetry struct {
	// Metrics is nil unless WithMetrics was given.
	Metrics http.Handler

	shutdown []func(context.Context) error
}

type setupConfig struct {
	tracing        bool
	metrics        bool
	runtimeMetrics bool
}

type SetupOption func(*setupConfig)

func WithMetrics() SetupOption {
	return func(c *setupConfig) { c.metrics = true }
}

func WithRuntimeMetrics() SetupOption {
	return func(c *setupConfig) {
		c.metrics = true
		c.runtimeMetrics = true
	}
}

func WithoutTracing() SetupOption {
	return func(c *setupConfig) { c.tracing = false }
}

func Setup(ctx context.Context, service, version string, opts ...SetupOption) (*Telemetry, error) {
	cfg := setupConfig{tracing: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	res := newResource(service, version)
	t := &Telemetry{}

	if cfg.tracing {
		tp, err := newTracerProvider(ctx, res)
		if err != nil {
			return nil, fmt.Errorf("tracer provider: %w", err)
		}
		installTracerProvider(tp)
		t.shutdown = append(t.shutdown, tp.Shutdown)
	}

	if cfg.metrics {
		mp, handler, err := newMeterProvider(res, cfg.runtimeMetrics)
		if err != nil {
			_ = t.Shutdown(ctx)
			return nil, fmt.Errorf("meter provider: %w", err)
		}
		installMeterProvider(mp)
		t.Metrics = handler
		t.shutdown = append(t.shutdown, mp.Shutdown)
	}

	return t, nil
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdown) - 1; i >= 0; i-- {
		if err := t.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdown = nil
	return errors.Join(errs...)
}
