// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables the gateway requires at startup.
const (
	EnvKafkaHost      = "KAFKA_HOST"
	EnvKafkaProtocol  = "KAFKA_PROTOCOL"
	EnvKafkaMechanism = "KAFKA_MECHANISM"
	EnvKafkaUsername  = "KAFKA_USERNAME"
	EnvKafkaPassword  = "KAFKA_PASSWORD"
	EnvAuthToken      = "AUTH_TOKEN"

	// Optional overrides.
	EnvHTTPAddr  = "HTTP_ADDR"
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"
)

// ErrMissingEnv is returned when a required environment variable is not set.
var ErrMissingEnv = errors.New("required environment variable not set")

// Security protocols understood by the Kafka producer.
const (
	ProtocolPlaintext     = "PLAINTEXT"
	ProtocolSSL           = "SSL"
	ProtocolSASLPlaintext = "SASL_PLAINTEXT"
	ProtocolSASLSSL       = "SASL_SSL"
)

// SASL mechanisms understood by the Kafka producer.
const (
	MechanismPlain       = "PLAIN"
	MechanismScramSHA256 = "SCRAM-SHA-256"
	MechanismScramSHA512 = "SCRAM-SHA-512"
)

// Config holds all configuration for the gateway.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Auth      AuthConfig      `yaml:"-"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Webhook   WebhookConfig   `yaml:"webhook"`
}

// ServerConfig holds HTTP surface and telemetry configuration.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodySize     int64         `yaml:"-"`
	RestartDelay    time.Duration `yaml:"-"` // delay between a terminal delivery failure and process exit

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"` // OTLP gRPC endpoint

	// OpenTelemetry configuration
	OtelServiceName     string  `yaml:"otel_service_name"`
	OtelServiceVersion  string  `yaml:"otel_service_version"`
	OtelTracesEnabled   bool    `yaml:"otel_traces_enabled"`
	OtelMetricsEnabled  bool    `yaml:"otel_metrics_enabled"`
	OtelTraceSampleRate float64 `yaml:"otel_trace_sample_rate"` // 0.0 to 1.0
}

// KafkaConfig holds the broker connection settings.
// Connection and credential fields come from the environment only;
// the delivery tuning is fixed and not read from any external source.
type KafkaConfig struct {
	Host      string `yaml:"-"` // comma separated bootstrap servers
	Protocol  string `yaml:"-"`
	Mechanism string `yaml:"-"`
	Username  string `yaml:"-"`
	Password  string `yaml:"-"`

	ClientID string    `yaml:"client_id"`
	TLS      TLSConfig `yaml:"tls"`

	BufferingWindow     time.Duration `yaml:"-"`
	MessageTimeout      time.Duration `yaml:"-"`
	Retries             int           `yaml:"-"`
	RetryBackoff        time.Duration `yaml:"-"`
	RetryBackoffMax     time.Duration `yaml:"-"`
	ReconnectBackoff    time.Duration `yaml:"-"`
	ReconnectBackoffMax time.Duration `yaml:"-"`
}

// TLSConfig holds client TLS material for SSL and SASL_SSL connections.
type TLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// AuthConfig holds the expected publish credential.
type AuthConfig struct {
	Token string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// RateLimitConfig holds per-client publish rate limiting.
type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Rate            float64       `yaml:"rate"` // requests per second per client IP
	Burst           int           `yaml:"burst"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// WebhookConfig holds delivery failure notification configuration.
type WebhookConfig struct {
	Enabled         bool              `yaml:"enabled"`
	QueueSize       int               `yaml:"queue_size"`
	DropPolicy      string            `yaml:"drop_policy"`      // "oldest" or "newest"
	Workers         int               `yaml:"workers"`          // Number of worker goroutines
	ShutdownTimeout time.Duration     `yaml:"shutdown_timeout"` // Graceful shutdown timeout
	Defaults        WebhookDefaults   `yaml:"defaults"`
	Endpoints       []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookDefaults holds default settings for webhook endpoints.
type WebhookDefaults struct {
	Timeout        time.Duration        `yaml:"timeout"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig holds retry configuration for webhook delivery.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// WebhookEndpoint defines a single webhook endpoint configuration.
type WebhookEndpoint struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Events  []string          `yaml:"events"` // Event type filter (empty = all)
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout,omitempty"` // Override default
	Retry   *RetryConfig      `yaml:"retry,omitempty"`   // Override default
}

// Default returns a configuration with sensible defaults.
// Kafka connection settings and the auth token are left empty; they must
// be supplied through the environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":80",
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     16 * 1024,
			RestartDelay:    60 * time.Second,
			MetricsAddr:     "localhost:4317",
			MetricsEnabled:  false,

			OtelServiceName:     "kafka-gateway",
			OtelServiceVersion:  "1.0.0",
			OtelMetricsEnabled:  true,
			OtelTracesEnabled:   false,
			OtelTraceSampleRate: 0.1,
		},
		Kafka: KafkaConfig{
			ClientID:            "kafka-gateway",
			BufferingWindow:     5 * time.Second,
			MessageTimeout:      120 * time.Second,
			Retries:             5,
			RetryBackoff:        3 * time.Second,
			RetryBackoffMax:     5 * time.Second,
			ReconnectBackoff:    1 * time.Second,
			ReconnectBackoffMax: 120 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		RateLimit: RateLimitConfig{
			Enabled:         false,
			Rate:            100,
			Burst:           200,
			CleanupInterval: 5 * time.Minute,
		},
		Webhook: WebhookConfig{
			Enabled:         false,
			QueueSize:       1000,
			DropPolicy:      "oldest",
			Workers:         2,
			ShutdownTimeout: 10 * time.Second,
			Defaults: WebhookDefaults{
				Timeout: 5 * time.Second,
				Retry: RetryConfig{
					MaxAttempts:     3,
					InitialInterval: 1 * time.Second,
					MaxInterval:     30 * time.Second,
					Multiplier:      2.0,
				},
				CircuitBreaker: CircuitBreakerConfig{
					FailureThreshold: 5,
					ResetTimeout:     60 * time.Second,
				},
			},
			Endpoints: []WebhookEndpoint{},
		},
	}
}

// Load loads configuration from an optional YAML file and the process
// environment. If the file doesn't exist, defaults are used. Every
// required environment variable must be set.
func Load(filename string) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	required := []struct {
		name string
		dst  *string
	}{
		{EnvKafkaHost, &c.Kafka.Host},
		{EnvKafkaProtocol, &c.Kafka.Protocol},
		{EnvKafkaMechanism, &c.Kafka.Mechanism},
		{EnvKafkaUsername, &c.Kafka.Username},
		{EnvKafkaPassword, &c.Kafka.Password},
		{EnvAuthToken, &c.Auth.Token},
	}
	for _, r := range required {
		v, ok := lookup(r.name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingEnv, r.name)
		}
		*r.dst = v
	}

	optional := []struct {
		name string
		dst  *string
	}{
		{EnvHTTPAddr, &c.Server.HTTPAddr},
		{EnvLogLevel, &c.Log.Level},
		{EnvLogFormat, &c.Log.Format},
	}
	for _, o := range optional {
		if v, ok := lookup(o.name); ok && v != "" {
			*o.dst = v
		}
	}

	c.Kafka.Protocol = strings.ToUpper(c.Kafka.Protocol)
	c.Kafka.Mechanism = strings.ToUpper(c.Kafka.Mechanism)
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr cannot be empty")
	}
	if c.Server.MaxBodySize <= 0 {
		return fmt.Errorf("server.max_body_size must be positive")
	}

	if strings.TrimSpace(c.Kafka.Host) == "" {
		return fmt.Errorf("%s cannot be empty", EnvKafkaHost)
	}
	validProtocols := map[string]bool{
		ProtocolPlaintext:     true,
		ProtocolSSL:           true,
		ProtocolSASLPlaintext: true,
		ProtocolSASLSSL:       true,
	}
	if !validProtocols[c.Kafka.Protocol] {
		return fmt.Errorf("%s must be one of: PLAINTEXT, SSL, SASL_PLAINTEXT, SASL_SSL", EnvKafkaProtocol)
	}
	if c.Kafka.UsesSASL() {
		validMechanisms := map[string]bool{
			MechanismPlain:       true,
			MechanismScramSHA256: true,
			MechanismScramSHA512: true,
		}
		if !validMechanisms[c.Kafka.Mechanism] {
			return fmt.Errorf("%s must be one of: PLAIN, SCRAM-SHA-256, SCRAM-SHA-512", EnvKafkaMechanism)
		}
	}
	if c.Kafka.Retries < 0 {
		return fmt.Errorf("kafka retries cannot be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	// OpenTelemetry validation (only if metrics enabled)
	if c.Server.MetricsEnabled {
		if c.Server.OtelServiceName == "" {
			return fmt.Errorf("server.otel_service_name cannot be empty when metrics enabled")
		}
		if c.Server.OtelTraceSampleRate < 0.0 || c.Server.OtelTraceSampleRate > 1.0 {
			return fmt.Errorf("server.otel_trace_sample_rate must be between 0.0 and 1.0")
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate_limit.rate must be positive")
		}
		if c.RateLimit.Burst < 1 {
			return fmt.Errorf("rate_limit.burst must be at least 1")
		}
		if c.RateLimit.CleanupInterval < time.Second {
			return fmt.Errorf("rate_limit.cleanup_interval must be at least 1 second")
		}
	}

	// Webhook validation (only if enabled)
	if c.Webhook.Enabled {
		if c.Webhook.QueueSize < 1 {
			return fmt.Errorf("webhook.queue_size must be at least 1")
		}
		if c.Webhook.DropPolicy != "oldest" && c.Webhook.DropPolicy != "newest" {
			return fmt.Errorf("webhook.drop_policy must be 'oldest' or 'newest'")
		}
		if c.Webhook.Workers < 1 {
			return fmt.Errorf("webhook.workers must be at least 1")
		}
		if c.Webhook.Defaults.Timeout < time.Second {
			return fmt.Errorf("webhook.defaults.timeout must be at least 1 second")
		}
		if c.Webhook.Defaults.Retry.MaxAttempts < 1 {
			return fmt.Errorf("webhook.defaults.retry.max_attempts must be at least 1")
		}
		if c.Webhook.Defaults.Retry.Multiplier < 1.0 {
			return fmt.Errorf("webhook.defaults.retry.multiplier must be at least 1.0")
		}
		if c.Webhook.Defaults.CircuitBreaker.FailureThreshold < 1 {
			return fmt.Errorf("webhook.defaults.circuit_breaker.failure_threshold must be at least 1")
		}

		for i, endpoint := range c.Webhook.Endpoints {
			if endpoint.Name == "" {
				return fmt.Errorf("webhook.endpoints[%d].name cannot be empty", i)
			}
			if endpoint.URL == "" {
				return fmt.Errorf("webhook.endpoints[%d].url cannot be empty", i)
			}
		}
	}

	return nil
}

// UsesSASL reports whether the security protocol authenticates with SASL.
func (k KafkaConfig) UsesSASL() bool {
	return k.Protocol == ProtocolSASLPlaintext || k.Protocol == ProtocolSASLSSL
}

// UsesTLS reports whether the security protocol encrypts the connection.
func (k KafkaConfig) UsesTLS() bool {
	return k.Protocol == ProtocolSSL || k.Protocol == ProtocolSASLSSL
}

// Brokers returns the bootstrap servers as a list.
func (k KafkaConfig) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(k.Host, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
