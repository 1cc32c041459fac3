// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewMetricsWithMeter(provider.Meter("test"))
	require.NoError(t, err)

	m.RecordRequest(OutcomeOK)
	m.RecordRequest(OutcomeUnauthorized)
	m.RecordSubmitted(5)
	m.RecordAcknowledged(5, 1.5)
	m.RecordSubmitted(3)
	m.RecordFailed(2)
	m.RecordEscalation()

	got := collect(t, reader)

	assert.Equal(t, int64(2), sumOf(t, got["gateway.publish.requests.total"]))
	assert.Equal(t, int64(5), sumOf(t, got["gateway.publish.bytes.total"]))
	assert.Equal(t, int64(1), sumOf(t, got["gateway.restart.scheduled.total"]))
	assert.Equal(t, int64(0), sumOf(t, got["gateway.publish.inflight"]))
	assert.Contains(t, got, "gateway.publish.duration.ms")
	assert.Contains(t, got, "gateway.message.size.bytes")
}
