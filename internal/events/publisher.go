// Package events publishes completed conversation turns to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/domain/entities"
	"github.com/satriahrh/kuber/server/domain/repositories"
	"github.com/satriahrh/kuber/server/internal/metrics"
)

const defaultTopic = "voice.turns"

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// messageWriter is the subset of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes turn events to a Kafka topic, or only logs them when Kafka
// is disabled.
type Publisher struct {
	writer  messageWriter
	topic   string
	enabled bool
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Ensure Publisher implements the TurnPublisher interface
var _ repositories.TurnPublisher = (*Publisher)(nil)

// New creates a turn event publisher
func New(cfg Config, m *metrics.Metrics, logger *zap.Logger) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = defaultTopic
		logger.Info("Using default event topic", zap.String("topic", topic))
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info("Kafka disabled, using log-only mode")
		return &Publisher{
			topic:   topic,
			metrics: m,
			logger:  logger,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport: &kafka.Transport{
			Dial: dialer.DialFunc,
		},
	}

	logger.Info("Kafka publisher initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", topic))

	return &Publisher{
		writer:  writer,
		topic:   topic,
		enabled: true,
		metrics: m,
		logger:  logger,
	}
}

// PublishTurn writes one turn event keyed by session id
func (p *Publisher) PublishTurn(ctx context.Context, event entities.TurnEvent) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal turn event", zap.Error(err), zap.String("topic", p.topic))
		return err
	}

	p.logger.Debug("Publishing turn event",
		zap.String("topic", p.topic),
		zap.String("sessionID", event.SessionID),
		zap.ByteString("payload", payload))

	if !p.enabled || p.writer == nil {
		p.metrics.RecordEventPublish(p.topic, nil, time.Since(start))
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("turn.completed")},
			{Key: "source", Value: []byte(event.Source)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to write to Kafka",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.String("sessionID", event.SessionID))
		p.metrics.RecordEventPublish(p.topic, err, time.Since(start))
		return err
	}

	p.metrics.RecordEventPublish(p.topic, nil, time.Since(start))
	return nil
}

// Enabled reports whether events reach Kafka
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// Close flushes and closes the Kafka writer
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Error closing Kafka writer", zap.Error(err))
		return err
	}
	return nil
}
