// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeIntent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		topic   string
		message string
		wantErr error
	}{
		{name: "topic and message", body: `{"topic":"orders","message":"hello"}`, topic: "orders", message: "hello"},
		{name: "empty message", body: `{"topic":"orders","message":""}`, topic: "orders"},
		{name: "absent message", body: `{"topic":"orders"}`, wantErr: ErrMalformedPayload},
		{name: "null message", body: `{"topic":"orders","message":null}`, wantErr: ErrMalformedPayload},
		{name: "unknown fields ignored", body: `{"topic":"orders","message":"x","extra":1}`, topic: "orders", message: "x"},
		{name: "missing topic", body: `{"message":"hello"}`, wantErr: ErrMalformedPayload},
		{name: "empty topic", body: `{"topic":"","message":"hello"}`, wantErr: ErrMalformedPayload},
		{name: "null topic", body: `{"topic":null,"message":"x"}`, wantErr: ErrMalformedPayload},
		{name: "numeric topic", body: `{"topic":42,"message":"x"}`, wantErr: ErrMalformedPayload},
		{name: "numeric message", body: `{"topic":"orders","message":7}`, wantErr: ErrMalformedPayload},
		{name: "not json", body: `topic=orders`, wantErr: ErrMalformedPayload},
		{name: "array", body: `[{"topic":"orders","message":""}]`, wantErr: ErrMalformedPayload},
		{name: "null", body: `null`, wantErr: ErrMalformedPayload},
		{name: "empty body", body: ``, wantErr: ErrMalformedPayload},
		{name: "trailing object", body: `{"topic":"a","message":""}{"topic":"b","message":""}`, wantErr: ErrMalformedPayload},
		{name: "trailing garbage", body: `{"topic":"a","message":""} x`, wantErr: ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := decodeIntent(strings.NewReader(tt.body), int64(len(tt.body)), DefaultMaxBodySize)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.False(t, errors.Is(err, ErrPayloadTooLarge))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.topic, in.Topic)
			assert.Equal(t, tt.message, string(in.Message))
		})
	}
}

func TestDecodeIntent_SizeLimit(t *testing.T) {
	prefix := `{"topic":"orders","message":"`
	suffix := `"}`
	fill := func(total int) string {
		return prefix + strings.Repeat("a", total-len(prefix)-len(suffix)) + suffix
	}

	t.Run("exactly at limit", func(t *testing.T) {
		body := fill(DefaultMaxBodySize)
		in, err := decodeIntent(strings.NewReader(body), int64(len(body)), DefaultMaxBodySize)
		require.NoError(t, err)
		assert.Equal(t, "orders", in.Topic)
	})

	t.Run("one byte over declared", func(t *testing.T) {
		body := fill(DefaultMaxBodySize + 1)
		_, err := decodeIntent(strings.NewReader(body), int64(len(body)), DefaultMaxBodySize)
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("over limit with unknown length", func(t *testing.T) {
		body := fill(DefaultMaxBodySize + 100)
		_, err := decodeIntent(strings.NewReader(body), -1, DefaultMaxBodySize)
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
	})

	t.Run("declared length rejected before read", func(t *testing.T) {
		r := &countingReader{r: strings.NewReader(`{"topic":"orders"}`)}
		_, err := decodeIntent(r, DefaultMaxBodySize+1, DefaultMaxBodySize)
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
		assert.Zero(t, r.n)
	})
}

type countingReader struct {
	r *strings.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
