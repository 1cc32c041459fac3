// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/absmach/kafka-gateway/events"
	"github.com/absmach/kafka-gateway/server/otel"
)

var _ Escalator = (*DeferredExit)(nil)

// DeferredExit terminates the process a fixed delay after a delivery
// failure so an external supervisor restarts it with a fresh broker
// connection. Every Escalate call schedules its own exit; the first one
// to fire ends the process.
type DeferredExit struct {
	delay    time.Duration
	exit     func(code int)
	notifier Notifier
	metrics  *otel.Metrics
	logger   *slog.Logger
	pending  atomic.Int32
}

// NewDeferredExit creates an escalator that calls exit(0) after delay.
// A nil exit defaults to os.Exit.
func NewDeferredExit(delay time.Duration, exit func(int), notifier Notifier, metrics *otel.Metrics, logger *slog.Logger) *DeferredExit {
	if exit == nil {
		exit = os.Exit
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &DeferredExit{
		delay:    delay,
		exit:     exit,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// Escalate schedules the exit in a detached goroutine and returns immediately.
func (d *DeferredExit) Escalate(cause error) {
	d.pending.Add(1)
	if d.metrics != nil {
		d.metrics.RecordEscalation()
	}

	reason := "delivery failure"
	if cause != nil {
		reason = cause.Error()
	}
	d.logger.Warn("gateway_restart_scheduled",
		slog.Duration("delay", d.delay),
		slog.String("reason", reason))

	if d.notifier != nil {
		ev := events.RestartScheduled{Reason: reason, DelayMS: d.delay.Milliseconds()}
		if err := d.notifier.Notify(context.Background(), ev); err != nil {
			d.logger.Warn("restart_notify_failed", slog.String("error", err.Error()))
		}
	}

	go func() {
		time.Sleep(d.delay)
		d.logger.Warn("gateway_exiting", slog.String("reason", reason))
		d.exit(0)
	}()
}

// Pending reports how many exits have been scheduled.
func (d *DeferredExit) Pending() int {
	return int(d.pending.Load())
}
