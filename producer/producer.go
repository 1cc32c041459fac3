// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package producer holds the gateway's single long-lived Kafka producer.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/absmach/kafka-gateway/config"
	"github.com/absmach/kafka-gateway/delivery"
	gwtls "github.com/absmach/kafka-gateway/pkg/tls"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

var _ delivery.Publisher = (*Producer)(nil)

var (
	errNoBrokers           = errors.New("no bootstrap brokers configured")
	errUnsupportedSASL     = errors.New("unsupported SASL mechanism")
	errUnsupportedProtocol = errors.New("unsupported security protocol")
)

const dialTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes messages to Kafka topics. It is safe for concurrent use.
type Producer struct {
	writer         messageWriter
	messageTimeout time.Duration
	logger         *slog.Logger
}

// New creates the producer from cfg. The connection is established lazily
// on the first write.
func New(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.CRC32Balancer{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           cfg.BufferingWindow,
		MaxAttempts:            cfg.Retries + 1,
		WriteBackoffMin:        cfg.RetryBackoff,
		WriteBackoffMax:        cfg.RetryBackoffMax,
		AllowAutoTopicCreation: true,
		Transport:              transport,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn("kafka_client", slog.String("detail", fmt.Sprintf(msg, args...)))
		}),
	}

	logger.Info("kafka_producer_created",
		slog.Any("brokers", brokers),
		slog.String("protocol", cfg.Protocol),
		slog.String("mechanism", cfg.Mechanism),
		slog.Duration("buffering_window", cfg.BufferingWindow),
		slog.Duration("message_timeout", cfg.MessageTimeout),
		slog.Int("retries", cfg.Retries))

	return newWithWriter(w, cfg.MessageTimeout, logger), nil
}

func newWithWriter(w messageWriter, messageTimeout time.Duration, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		writer:         w,
		messageTimeout: messageTimeout,
		logger:         logger,
	}
}

// Publish writes one message and blocks until the broker acknowledges it,
// the retry policy is exhausted, or the message timeout elapses.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if p.messageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.messageTimeout)
		defer cancel()
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to %q: %w", topic, err)
	}
	return nil
}

// Close flushes pending messages and releases the connection.
func (p *Producer) Close() error {
	p.logger.Info("kafka_producer_closing")
	return p.writer.Close()
}

func newTransport(cfg config.KafkaConfig) (*kafka.Transport, error) {
	dialer := newBackoffDialer(cfg.ReconnectBackoff, cfg.ReconnectBackoffMax,
		(&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext)

	t := &kafka.Transport{
		Dial:        dialer.DialContext,
		DialTimeout: dialTimeout,
		ClientID:    cfg.ClientID,
	}

	switch cfg.Protocol {
	case config.ProtocolPlaintext, config.ProtocolSASLPlaintext, config.ProtocolSSL, config.ProtocolSASLSSL:
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedProtocol, cfg.Protocol)
	}

	if cfg.UsesSASL() {
		mech, err := saslMechanism(cfg.Mechanism, cfg.Username, cfg.Password)
		if err != nil {
			return nil, err
		}
		t.SASL = mech
	}

	if cfg.UsesTLS() {
		tlsCfg, err := gwtls.LoadClientConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load kafka TLS config: %w", err)
		}
		t.TLS = tlsCfg
	}

	return t, nil
}

func saslMechanism(name, username, password string) (sasl.Mechanism, error) {
	switch name {
	case config.MechanismPlain:
		return plain.Mechanism{Username: username, Password: password}, nil
	case config.MechanismScramSHA256:
		return scram.Mechanism(scram.SHA256, username, password)
	case config.MechanismScramSHA512:
		return scram.Mechanism(scram.SHA512, username, password)
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedSASL, name)
	}
}
