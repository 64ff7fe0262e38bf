package realtime

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/freshcart/grocery-delivery/internal/realtime"

type hubMetrics struct {
	connections metric.Int64UpDownCounter
	deliveries  metric.Int64Counter
	drops       metric.Int64Counter
}

func newHubMetrics() (*hubMetrics, error) {
	meter := otel.Meter(meterName)

	connections, err := meter.Int64UpDownCounter("realtime.connections",
		metric.WithDescription("Open realtime client connections."))
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("realtime.deliveries",
		metric.WithDescription("Messages handed to client buffers, by message type."))
	if err != nil {
		return nil, err
	}

	drops, err := meter.Int64Counter("realtime.drops",
		metric.WithDescription("Messages dropped because a client buffer was full."))
	if err != nil {
		return nil, err
	}

	return &hubMetrics{
		connections: connections,
		deliveries:  deliveries,
		drops:       drops,
	}, nil
}

func (m *hubMetrics) published(ctx context.Context, msgType string, n int) {
	m.deliveries.Add(ctx, int64(n), metric.WithAttributes(attribute.String("type", msgType)))
}

func (m *hubMetrics) dropped(ctx context.Context, msgType string) {
	m.drops.Add(ctx, 1, metric.WithAttributes(attribute.String("type", msgType)))
}
