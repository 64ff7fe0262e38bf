package orders

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/freshcart/grocery-delivery/internal/orders"

type serviceMetrics struct {
	placed        metric.Int64Counter
	transitions   metric.Int64Counter
	claims        metric.Int64Counter
	notifyFailure metric.Int64Counter
}

func newServiceMetrics() (*serviceMetrics, error) {
	meter := otel.Meter(meterName)

	placed, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders placed, by whether they need manual confirmation."))
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter("orders.transitions",
		metric.WithDescription("Successful order status transitions, by action."))
	if err != nil {
		return nil, err
	}

	claims, err := meter.Int64Counter("orders.claims",
		metric.WithDescription("Delivery partner claim attempts, by result."))
	if err != nil {
		return nil, err
	}

	notifyFailure, err := meter.Int64Counter("orders.notify_failures",
		metric.WithDescription("Best-effort notifications that could not be delivered."))
	if err != nil {
		return nil, err
	}

	return &serviceMetrics{
		placed:        placed,
		transitions:   transitions,
		claims:        claims,
		notifyFailure: notifyFailure,
	}, nil
}

func (m *serviceMetrics) transition(ctx context.Context, action string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (m *serviceMetrics) claim(ctx context.Context, result string) {
	m.claims.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
