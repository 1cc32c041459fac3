// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/kafka-gateway/events"
	"github.com/absmach/kafka-gateway/server/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type requestIDKey struct{}

// WithRequestID returns a context carrying the request ID used in logs
// and failure events.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Coordinator owns the shared publisher. It performs no retries: the
// publisher is expected to exhaust its own retry policy before reporting
// a failure.
type Coordinator struct {
	publisher Publisher
	escalator Escalator
	notifier  Notifier
	metrics   *otel.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewCoordinator creates a coordinator. notifier, metrics and tracer may be nil.
func NewCoordinator(pub Publisher, esc Escalator, notifier Notifier, metrics *otel.Metrics, tracer trace.Tracer, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		publisher: pub,
		escalator: esc,
		notifier:  notifier,
		metrics:   metrics,
		tracer:    tracer,
		logger:    logger,
	}
}

// Deliver submits the intent with an empty partition key and waits for
// the outcome. Cancellation of ctx does not abort the submission.
func (c *Coordinator) Deliver(ctx context.Context, in Intent) error {
	ctx = context.WithoutCancel(ctx)

	var span trace.Span
	if c.tracer != nil {
		ctx, span = c.tracer.Start(ctx, "kafka.publish",
			trace.WithSpanKind(trace.SpanKindProducer),
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", in.Topic),
				attribute.Int("messaging.message_payload_size_bytes", len(in.Message)),
			))
		defer span.End()
	}

	size := int64(len(in.Message))
	if c.metrics != nil {
		c.metrics.RecordSubmitted(size)
	}

	start := time.Now()
	err := c.publisher.Publish(ctx, in.Topic, []byte{}, in.Message)
	elapsed := time.Since(start)

	if err == nil {
		if c.metrics != nil {
			c.metrics.RecordAcknowledged(size, float64(elapsed.Microseconds())/1000)
		}
		c.logger.Debug("publish_acknowledged",
			slog.String("request_id", RequestID(ctx)),
			slog.String("topic", in.Topic),
			slog.Int("payload_size", len(in.Message)),
			slog.Duration("duration", elapsed))
		return nil
	}

	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
	}
	if c.metrics != nil {
		c.metrics.RecordFailed(float64(elapsed.Microseconds()) / 1000)
	}

	c.logger.Error("publish_failed",
		slog.String("request_id", RequestID(ctx)),
		slog.String("topic", in.Topic),
		slog.Duration("duration", elapsed),
		slog.String("error", err.Error()))

	if c.notifier != nil {
		ev := events.DeliveryFailed{
			Topic:       in.Topic,
			PayloadSize: len(in.Message),
			Error:       err.Error(),
			RequestID:   RequestID(ctx),
		}
		if nerr := c.notifier.Notify(ctx, ev); nerr != nil {
			c.logger.Warn("delivery_failure_notify_failed", slog.String("error", nerr.Error()))
		}
	}

	if c.escalator != nil {
		c.escalator.Escalate(err)
	}

	return fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
}
