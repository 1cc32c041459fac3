// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPRateLimiter_Allow(t *testing.T) {
	// Create limiter with 5 requests per second, burst of 2
	limiter := NewIPRateLimiter(5, 2, time.Minute)
	defer limiter.Stop()

	addr := "192.168.1.1:1234"

	// First 2 requests should succeed (burst)
	if !limiter.Allow(addr) {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow(addr) {
		t.Error("Second request (within burst) should be allowed")
	}

	// Third request should be rate limited (burst exhausted, no tokens yet)
	if limiter.Allow(addr) {
		t.Error("Third request should be rate limited (burst exhausted)")
	}

	// Wait for token refill
	time.Sleep(250 * time.Millisecond)

	if !limiter.Allow(addr) {
		t.Error("Request after token refill should be allowed")
	}
}

func TestIPRateLimiter_DifferentIPs(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1, time.Minute)
	defer limiter.Stop()

	if !limiter.Allow("192.168.1.1:1234") {
		t.Error("First request from IP1 should be allowed")
	}
	if !limiter.Allow("192.168.1.2:1234") {
		t.Error("First request from IP2 should be allowed")
	}

	if limiter.Allow("192.168.1.1:1234") {
		t.Error("Second request from IP1 should be rate limited")
	}
	// Different port, same IP
	if limiter.Allow("192.168.1.2:9999") {
		t.Error("Second request from IP2 should be rate limited")
	}
}

func TestIPRateLimiter_UnparsableAddr(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1, time.Minute)
	defer limiter.Stop()

	if !limiter.Allow("") {
		t.Error("Empty address should be allowed")
	}
	if !limiter.Allow("") {
		t.Error("Empty address should never be limited")
	}

	// Bare host without port is keyed as-is.
	if !limiter.Allow("10.0.0.1") {
		t.Error("First request from bare host should be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("Second request from bare host should be rate limited")
	}
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	limiter := NewIPRateLimiter(10, 10, 10*time.Millisecond)
	defer limiter.Stop()

	limiter.Allow("192.168.1.1:1234")
	if limiter.Len() != 1 {
		t.Fatalf("expected 1 tracked address, got %d", limiter.Len())
	}

	time.Sleep(100 * time.Millisecond)

	if limiter.Len() != 0 {
		t.Errorf("expected stale entry to be cleaned up, got %d", limiter.Len())
	}
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1, time.Minute)
	defer limiter.Stop()

	calls := 0
	rejected := 0
	h := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}), func(*http.Request) { rejected++ })

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/publish", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != want {
			t.Errorf("request %d: expected status %d, got %d", i, want, rec.Code)
		}
	}

	if calls != 1 {
		t.Errorf("expected next handler to run once, ran %d times", calls)
	}
	if rejected != 1 {
		t.Errorf("expected one rejection callback, got %d", rejected)
	}
}

func TestIPRateLimiter_StopTwice(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1, time.Minute)
	limiter.Stop()
	limiter.Stop()
}
