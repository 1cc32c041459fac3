// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// errBackoff is returned when a broker is still inside its reconnect
// backoff window. It does not count as a dial failure.
var errBackoff = errors.New("broker reconnect backoff in effect")

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// backoffDialer spaces out reconnect attempts to a broker after
// consecutive dial failures, doubling from base up to max. A successful
// dial resets the broker's backoff.
//
// The wait never consumes the caller's dial budget: when the next allowed
// attempt falls after ctx's deadline the dial fails fast with errBackoff,
// so the client retries later with a fresh deadline.
type backoffDialer struct {
	base time.Duration
	max  time.Duration
	dial dialFunc
	now  func() time.Time

	mu      sync.Mutex
	brokers map[string]*brokerBackoff
}

type brokerBackoff struct {
	policy    *backoff.ExponentialBackOff
	notBefore time.Time
}

func newBackoffDialer(base, max time.Duration, dial dialFunc) *backoffDialer {
	return &backoffDialer{
		base:    base,
		max:     max,
		dial:    dial,
		now:     time.Now,
		brokers: make(map[string]*brokerBackoff),
	}
}

func (d *backoffDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.wait(ctx, address); err != nil {
		return nil, err
	}

	conn, err := d.dial(ctx, network, address)
	d.record(address, err)
	return conn, err
}

func (d *backoffDialer) wait(ctx context.Context, address string) error {
	notBefore := d.notBefore(address)
	wait := notBefore.Sub(d.now())
	if wait <= 0 {
		return nil
	}

	if deadline, ok := ctx.Deadline(); ok && notBefore.After(deadline) {
		return fmt.Errorf("%w: %s retry in %s", errBackoff, address, wait.Round(time.Millisecond))
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *backoffDialer) notBefore(address string) time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.brokers[address]; ok {
		return b.notBefore
	}
	return time.Time{}
}

// record updates the broker's backoff after a dial and returns the delay
// before the next attempt is allowed.
func (d *backoffDialer) record(address string, err error) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err == nil {
		delete(d.brokers, address)
		return 0
	}
	if d.base <= 0 {
		return 0
	}

	b, ok := d.brokers[address]
	if !ok {
		b = &brokerBackoff{policy: d.newPolicy()}
		d.brokers[address] = b
	}

	next := b.policy.NextBackOff()
	b.notBefore = d.now().Add(next)
	return next
}

func (d *backoffDialer) newPolicy() *backoff.ExponentialBackOff {
	maxInterval := d.max
	if maxInterval <= 0 {
		maxInterval = d.base
	}

	p := &backoff.ExponentialBackOff{
		InitialInterval:     d.base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
	}
	p.Reset()
	return p
}
