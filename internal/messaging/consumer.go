package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var consumerTracer = otel.Tracer("github.com/freshcart/grocery-delivery/internal/messaging")

type Handler func(ctx context.Context, payload []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	topic   string
	groupID string
	retries int
	backoff time.Duration
	logger  *slog.Logger

	handled metric.Int64Counter
}

type consumerConfig struct {
	reader  kafka.ReaderConfig
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

type ConsumerOption func(*consumerConfig)

func WithStartOffset(offset int64) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.reader.StartOffset = offset
	}
}

func WithMaxWait(d time.Duration) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.reader.MaxWait = d
	}
}

func WithRetries(n int, backoff time.Duration) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.retries = max(n, 0)
		cfg.backoff = backoff
	}
}

func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.logger = logger
	}
}

func NewConsumer(brokers []string, topic, groupID string, opts ...ConsumerOption) *Consumer {
	cfg := consumerConfig{
		reader: kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		},
		retries: 2,
		backoff: 500 * time.Millisecond,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return newConsumer(kafka.NewReader(cfg.reader), topic, groupID, cfg)
}

func newConsumer(reader messageReader, topic, groupID string, cfg consumerConfig) *Consumer {
	c := &Consumer{
		reader:  reader,
		topic:   topic,
		groupID: groupID,
		retries: cfg.retries,
		backoff: cfg.backoff,
		logger:  cfg.logger,
	}

	handled, err := otel.Meter("github.com/freshcart/grocery-delivery/internal/messaging").Int64Counter(
		"messaging.messages_handled",
		metric.WithDescription("Consumed messages, by topic and outcome."),
	)
	if err == nil {
		c.handled = handled
	}
	return c
}

func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return fmt.Errorf("fetch from %s: %w", c.topic, err)
		}

		if err := c.handle(ctx, msg, handler); err != nil {
			c.count(ctx, "failed")
			return fmt.Errorf("message %s/%d@%d: %w", c.topic, msg.Partition, msg.Offset, err)
		}
		c.count(ctx, "ok")

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit %s: %w", c.topic, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler Handler) error {
	carrier := headerCarrier{msg: &msg}
	parent := otel.GetTextMapPropagator().Extract(ctx, carrier)

	attrs := []attribute.KeyValue{
		semconv.MessagingSystemKafka,
		semconv.MessagingOperationName("process"),
		semconv.MessagingOperationTypeDeliver,
		semconv.MessagingDestinationName(c.topic),
		semconv.MessagingKafkaConsumerGroup(c.groupID),
		semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
		semconv.MessagingDestinationPartitionID(strconv.Itoa(msg.Partition)),
		semconv.MessagingKafkaMessageKey(string(msg.Key)),
	}
	if eventType := carrier.Get(headerEventType); eventType != "" {
		attrs = append(attrs, attribute.String("messaging.event_type", eventType))
	}

	spanCtx, span := consumerTracer.Start(parent, "process "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	wait := c.backoff
	for attempt := 0; ; attempt++ {
		err := handler(spanCtx, msg.Value)
		if err == nil {
			return nil
		}
		span.RecordError(err, trace.WithAttributes(attribute.Int("attempt", attempt+1)))

		if attempt >= c.retries || errors.Is(err, context.Canceled) {
			span.SetStatus(codes.Error, "handler failed")
			return err
		}

		c.logger.WarnContext(spanCtx, "retrying message",
			"topic", c.topic, "offset", msg.Offset, "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, "cancelled during retry")
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func (c *Consumer) count(ctx context.Context, outcome string) {
	if c.handled == nil {
		return
	}
	c.handled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", c.topic),
		attribute.String("outcome", outcome),
	))
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
