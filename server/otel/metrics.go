// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Request outcomes recorded by RecordRequest.
const (
	OutcomeOK             = "ok"
	OutcomeUnauthorized   = "unauthorized"
	OutcomeMalformed      = "malformed"
	OutcomeRateLimited    = "rate_limited"
	OutcomeDeliveryFailed = "delivery_failed"
)

// Metrics holds OpenTelemetry metric instruments for the gateway.
type Metrics struct {
	meter metric.Meter

	requestsTotal    metric.Int64Counter
	bytesPublished   metric.Int64Counter
	escalationsTotal metric.Int64Counter

	inflight metric.Int64UpDownCounter

	messageSize     metric.Int64Histogram
	publishDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance using the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter("kafka-gateway"))
}

// NewMetricsWithMeter creates a new Metrics instance on the given meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}

	var err error

	m.requestsTotal, err = m.meter.Int64Counter(
		"gateway.publish.requests.total",
		metric.WithDescription("Publish requests by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requestsTotal counter: %w", err)
	}

	m.bytesPublished, err = m.meter.Int64Counter(
		"gateway.publish.bytes.total",
		metric.WithDescription("Total message bytes acknowledged by the broker"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bytesPublished counter: %w", err)
	}

	m.escalationsTotal, err = m.meter.Int64Counter(
		"gateway.restart.scheduled.total",
		metric.WithDescription("Deferred process exits scheduled after delivery failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create escalationsTotal counter: %w", err)
	}

	m.inflight, err = m.meter.Int64UpDownCounter(
		"gateway.publish.inflight",
		metric.WithDescription("Publish requests awaiting broker acknowledgement"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inflight gauge: %w", err)
	}

	m.messageSize, err = m.meter.Int64Histogram(
		"gateway.message.size.bytes",
		metric.WithDescription("Message payload size distribution"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messageSize histogram: %w", err)
	}

	m.publishDuration, err = m.meter.Float64Histogram(
		"gateway.publish.duration.ms",
		metric.WithDescription("Time from submission to broker acknowledgement or failure in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publishDuration histogram: %w", err)
	}

	return m, nil
}

// RecordRequest records a finished publish request.
func (m *Metrics) RecordRequest(outcome string) {
	m.requestsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordSubmitted records a message handed to the broker client.
func (m *Metrics) RecordSubmitted(sizeBytes int64) {
	ctx := context.Background()
	m.inflight.Add(ctx, 1)
	m.messageSize.Record(ctx, sizeBytes)
}

// RecordAcknowledged records a broker acknowledgement.
func (m *Metrics) RecordAcknowledged(sizeBytes int64, durationMs float64) {
	ctx := context.Background()
	m.inflight.Add(ctx, -1)
	m.bytesPublished.Add(ctx, sizeBytes)
	m.publishDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.Bool("success", true),
	))
}

// RecordFailed records a terminal delivery failure.
func (m *Metrics) RecordFailed(durationMs float64) {
	ctx := context.Background()
	m.inflight.Add(ctx, -1)
	m.publishDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.Bool("success", false),
	))
}

// RecordEscalation records a scheduled process exit.
func (m *Metrics) RecordEscalation() {
	m.escalationsTotal.Add(context.Background(), 1)
}
