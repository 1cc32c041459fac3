// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/absmach/kafka-gateway/delivery"
)

// DefaultMaxBodySize bounds publish request bodies.
const DefaultMaxBodySize = 16 * 1024

var (
	// ErrMalformedPayload is returned for publish bodies that cannot be
	// turned into a delivery intent.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrPayloadTooLarge is the oversized-body variant of ErrMalformedPayload.
	ErrPayloadTooLarge = fmt.Errorf("%w: body too large", ErrMalformedPayload)
)

type publishRequest struct {
	Topic   *string `json:"topic"`
	Message *string `json:"message"`
}

// decodeIntent reads at most limit bytes from body and parses a single
// JSON object with a non-empty topic and a string message, which may be empty.
// contentLength is the declared length, or -1 when unknown.
func decodeIntent(body io.Reader, contentLength, limit int64) (delivery.Intent, error) {
	if contentLength > limit {
		return delivery.Intent{}, ErrPayloadTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return delivery.Intent{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if int64(len(data)) > limit {
		return delivery.Intent{}, ErrPayloadTooLarge
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var req publishRequest
	if err := dec.Decode(&req); err != nil {
		return delivery.Intent{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return delivery.Intent{}, fmt.Errorf("%w: unexpected data after JSON object", ErrMalformedPayload)
	}

	if req.Topic == nil || *req.Topic == "" {
		return delivery.Intent{}, fmt.Errorf("%w: topic is required", ErrMalformedPayload)
	}

	if req.Message == nil {
		return delivery.Intent{}, fmt.Errorf("%w: message is required", ErrMalformedPayload)
	}

	return delivery.Intent{Topic: *req.Topic, Message: []byte(*req.Message)}, nil
}
