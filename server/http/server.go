// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/absmach/kafka-gateway/auth"
	"github.com/absmach/kafka-gateway/delivery"
	"github.com/absmach/kafka-gateway/ratelimit"
	"github.com/absmach/kafka-gateway/server/health"
	"github.com/absmach/kafka-gateway/server/otel"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// Deliverer submits decoded publish intents to the broker.
type Deliverer interface {
	Deliver(ctx context.Context, in delivery.Intent) error
}

type Config struct {
	Address         string
	ShutdownTimeout time.Duration
	MaxBodySize     int64
}

// Server is the gateway HTTP surface: POST /publish and GET /health.
type Server struct {
	config    Config
	verifier  auth.Verifier
	deliverer Deliverer
	limiter   *ratelimit.IPRateLimiter
	metrics   *otel.Metrics
	logger    *slog.Logger
	server    *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates the HTTP server. limiter and metrics may be nil.
func New(cfg Config, v auth.Verifier, d Deliverer, limiter *ratelimit.IPRateLimiter, metrics *otel.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}

	s := &Server{
		config:    cfg,
		verifier:  v,
		deliverer: d,
		limiter:   limiter,
		metrics:   metrics,
		logger:    logger,
	}

	var publish http.Handler = http.HandlerFunc(s.handlePublish)
	if limiter != nil {
		publish = limiter.Middleware(publish, s.onRateLimited)
	}

	mux := http.NewServeMux()
	mux.Handle("/publish", publish)
	mux.Handle("/health", health.Handler())

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           withRequestID(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the routed handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listener's network address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("http_gateway_starting", slog.String("addr", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("http_gateway_shutdown_initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http_gateway_shutdown_error", slog.String("error", err.Error()))
			return err
		}

		s.logger.Info("http_gateway_stopped")
		return nil
	}
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reqID := delivery.RequestID(r.Context())

	if err := auth.Check(s.verifier, r.Header.Get("Authorization")); err != nil {
		s.record(otel.OutcomeUnauthorized)
		s.logger.Warn("http_publish_unauthorized",
			slog.String("request_id", reqID),
			slog.String("remote_addr", r.RemoteAddr))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	in, err := decodeIntent(r.Body, r.ContentLength, s.config.MaxBodySize)
	if err != nil {
		s.record(otel.OutcomeMalformed)
		s.logger.Warn("http_publish_invalid_request",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))

		status := http.StatusBadRequest
		if errors.Is(err, ErrPayloadTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, "invalid request", status)
		return
	}

	s.logger.Debug("http_publish",
		slog.String("request_id", reqID),
		slog.String("topic", in.Topic),
		slog.Int("payload_size", len(in.Message)))

	if err := s.deliverer.Deliver(r.Context(), in); err != nil {
		s.record(otel.OutcomeDeliveryFailed)
		http.Error(w, "delivery failed", http.StatusBadGateway)
		return
	}

	s.record(otel.OutcomeOK)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) onRateLimited(r *http.Request) {
	s.record(otel.OutcomeRateLimited)
	s.logger.Warn("http_publish_rate_limited",
		slog.String("request_id", delivery.RequestID(r.Context())),
		slog.String("remote_addr", r.RemoteAddr))
}

func (s *Server) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordRequest(outcome)
	}
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(delivery.WithRequestID(r.Context(), id)))
	})
}
