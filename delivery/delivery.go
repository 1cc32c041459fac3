// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package delivery submits publish intents to the broker and escalates
// terminal delivery failures to a process-level restart.
package delivery

import (
	"context"
	"errors"
)

// ErrDeliveryFailure is returned when the broker client reports a
// terminal delivery error.
var ErrDeliveryFailure = errors.New("delivery failure")

// Intent is a decoded publish request.
type Intent struct {
	Topic   string
	Message []byte
}

// Publisher delivers a message to a topic and blocks until the broker
// acknowledges it or reports a terminal error. Implementations must be
// safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Escalator is invoked when a delivery failure means the shared broker
// connection can no longer be trusted.
type Escalator interface {
	Escalate(cause error)
}

// Notifier receives asynchronous failure events.
type Notifier interface {
	Notify(ctx context.Context, event any) error
}
