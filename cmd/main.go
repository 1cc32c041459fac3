// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/absmach/kafka-gateway/auth"
	"github.com/absmach/kafka-gateway/config"
	"github.com/absmach/kafka-gateway/delivery"
	"github.com/absmach/kafka-gateway/producer"
	"github.com/absmach/kafka-gateway/ratelimit"
	httpserver "github.com/absmach/kafka-gateway/server/http"
	"github.com/absmach/kafka-gateway/server/otel"
	"github.com/absmach/kafka-gateway/webhook"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	oteltrace "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	if err := loadDotEnv(); err != nil {
		slog.Error("Failed to load .env file", "error", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	gatewayID, err := os.Hostname()
	if err != nil || gatewayID == "" {
		gatewayID = uuid.New().String()
	}

	slog.Info("Starting Kafka gateway", "version", "1.0.0", "gateway_id", gatewayID)
	slog.Info("Configuration loaded",
		"http_listener", cfg.Server.HTTPAddr,
		"kafka_brokers", cfg.Kafka.Brokers(),
		"kafka_protocol", cfg.Kafka.Protocol,
		"kafka_mechanism", cfg.Kafka.Mechanism,
		"rate_limit_enabled", cfg.RateLimit.Enabled,
		"webhook_enabled", cfg.Webhook.Enabled,
		"log_level", cfg.Log.Level)

	var notifier delivery.Notifier
	var wh *webhook.Notifier
	if cfg.Webhook.Enabled {
		sender := webhook.NewHTTPSender()

		wh, err = webhook.NewNotifier(cfg.Webhook, gatewayID, sender, logger)
		if err != nil {
			slog.Error("Failed to initialize webhooks", "error", err)
			os.Exit(1)
		}
		notifier = wh
		slog.Info("Webhooks enabled",
			"type", "http",
			"endpoints", len(cfg.Webhook.Endpoints),
			"workers", cfg.Webhook.Workers,
			"queue_size", cfg.Webhook.QueueSize)
	} else {
		slog.Info("Webhooks disabled")
	}

	var otelShutdown func(context.Context) error
	var metrics *otel.Metrics
	var tracer trace.Tracer

	if cfg.Server.MetricsEnabled {
		shutdown, err := otel.InitProvider(cfg.Server, gatewayID)
		if err != nil {
			slog.Error("Failed to initialize OpenTelemetry", "error", err)
			os.Exit(1)
		}
		otelShutdown = shutdown
		slog.Info("OpenTelemetry initialized", "endpoint", cfg.Server.MetricsAddr)

		if cfg.Server.OtelMetricsEnabled {
			m, err := otel.NewMetrics()
			if err != nil {
				slog.Error("Failed to create metrics", "error", err)
				os.Exit(1)
			}
			metrics = m
			slog.Info("OTel metrics enabled")
		}

		if cfg.Server.OtelTracesEnabled {
			tracer = oteltrace.Tracer("kafka-gateway")
			slog.Info("Distributed tracing enabled", "sample_rate", cfg.Server.OtelTraceSampleRate)
		} else {
			slog.Info("Distributed tracing disabled")
		}
	} else {
		slog.Info("OpenTelemetry disabled")
	}

	prod, err := producer.New(cfg.Kafka, logger)
	if err != nil {
		slog.Error("Failed to create Kafka producer", "error", err)
		os.Exit(1)
	}

	exit := delivery.NewDeferredExit(cfg.Server.RestartDelay, os.Exit, notifier, metrics, logger)
	coordinator := delivery.NewCoordinator(prod, exit, notifier, metrics, tracer, logger)

	var limiter *ratelimit.IPRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewIPRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, cfg.RateLimit.CleanupInterval)
		defer limiter.Stop()
		slog.Info("Rate limiting enabled", "rate", cfg.RateLimit.Rate, "burst", cfg.RateLimit.Burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	serverErr := make(chan error, 1)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodySize:     cfg.Server.MaxBodySize,
	}
	httpSrv := httpserver.New(httpCfg, auth.NewStaticToken(cfg.Auth.Token), coordinator, limiter, metrics, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("Starting HTTP gateway", "address", cfg.Server.HTTPAddr)
		if err := httpSrv.Listen(ctx); err != nil {
			serverErr <- err
		}
	}()

	slog.Info("Kafka gateway started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server error", "error", err)
		exitCode = 1
	}

	cancel()
	wg.Wait()

	if err := prod.Close(); err != nil {
		slog.Error("Failed to close Kafka producer", "error", err)
	}

	if wh != nil {
		if err := wh.Close(); err != nil {
			slog.Error("Failed to close webhooks", "error", err)
		}
	}

	if otelShutdown != nil {
		otelShutdownCtx, otelCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer otelCancel()
		if err := otelShutdown(otelShutdownCtx); err != nil {
			slog.Error("Failed to shutdown OpenTelemetry", "error", err)
		} else {
			slog.Info("OpenTelemetry shutdown complete")
		}
	}

	slog.Info("Kafka gateway stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// loadDotEnv loads variables from .env files without overriding the
// process environment. Missing files are not an error.
func loadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
