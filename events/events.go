// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants.
const (
	TypeDeliveryFailed   = "delivery.failed"
	TypeRestartScheduled = "gateway.restart_scheduled"
)

// Event is the common interface for all webhook events.
type Event interface {
	// Type returns the event type identifier (e.g., "delivery.failed")
	Type() string

	// Wrap wraps the event in a common envelope with metadata
	Wrap(gatewayID string) *Envelope
}

// Envelope is the common wrapper for all webhook events.
type Envelope struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
	GatewayID string `json:"gateway_id"`
	Data      any    `json:"data"`
}

// MarshalJSON serializes the envelope to JSON.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	return json.Marshal((*plain)(e))
}

func wrap(ev Event, gatewayID string) *Envelope {
	return &Envelope{
		EventType: ev.Type(),
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		GatewayID: gatewayID,
		Data:      ev,
	}
}

// DeliveryFailed is emitted when the broker client reports a terminal
// delivery failure for a publish request.
type DeliveryFailed struct {
	Topic       string `json:"topic"`
	PayloadSize int    `json:"payload_size"`
	Error       string `json:"error"`
	RequestID   string `json:"request_id,omitempty"`
}

func (e DeliveryFailed) Type() string { return TypeDeliveryFailed }
func (e DeliveryFailed) Wrap(gatewayID string) *Envelope {
	return wrap(e, gatewayID)
}

// RestartScheduled is emitted when the gateway arms its deferred exit.
type RestartScheduled struct {
	Reason  string `json:"reason"`
	DelayMS int64  `json:"delay_ms"`
}

func (e RestartScheduled) Type() string { return TypeRestartScheduled }
func (e RestartScheduled) Wrap(gatewayID string) *Envelope {
	return wrap(e, gatewayID)
}
