// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package auth gates publish requests on a caller-supplied credential.
package auth

import (
	"crypto/subtle"
	"errors"
)

// ErrUnauthorized is returned when a request carries no credential or
// a credential that does not match the configured one.
var ErrUnauthorized = errors.New("unauthorized")

// Verifier decides whether a supplied credential admits a request.
type Verifier interface {
	Verify(supplied string) bool
}

var _ Verifier = (*StaticToken)(nil)

// StaticToken admits requests whose credential equals a single token
// configured at startup.
type StaticToken struct {
	expected []byte
}

// NewStaticToken creates a verifier for the expected token. An empty
// token rejects every request.
func NewStaticToken(expected string) *StaticToken {
	return &StaticToken{expected: []byte(expected)}
}

// Verify compares supplied against the expected token byte for byte.
func (s *StaticToken) Verify(supplied string) bool {
	if len(s.expected) == 0 || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), s.expected) == 1
}

// Check returns ErrUnauthorized unless v admits supplied.
func Check(v Verifier, supplied string) error {
	if v == nil || !v.Verify(supplied) {
		return ErrUnauthorized
	}
	return nil
}
