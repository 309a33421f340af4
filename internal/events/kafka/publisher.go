// Package kafka publishes livebet domain events to a Kafka topic with
// segmentio/kafka-go. Messages are keyed by market id so each market's
// events stay ordered within one partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/livebet/internal/domain"
)

// Config selects the brokers and topic.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// envelope is the message value.
type envelope struct {
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	Payload   any       `json:"payload"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Publisher implements domain.EventPublisher.
type Publisher struct {
	w      messageWriter
	topic  string
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher builds a hash-balanced writer for cfg.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	batch := cfg.BatchTimeout
	if batch <= 0 {
		batch = 100 * time.Millisecond
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batch,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, cfg.Topic, logger), nil
}

func newPublisher(w messageWriter, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		w:      w,
		topic:  topic,
		logger: logger.With(slog.String("component", "kafka_publisher")),
		now:    time.Now,
	}
}

// Publish writes evt and blocks until the brokers acknowledge it.
func (p *Publisher) Publish(ctx context.Context, evt domain.Event) error {
	value, err := json.Marshal(envelope{
		Type:      evt.Type,
		Key:       evt.Key,
		Payload:   evt.Payload,
		EmittedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("kafka: marshal %s: %w", evt.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish %s to %s: %w", evt.Type, p.topic, err)
	}

	p.logger.DebugContext(ctx, "kafka: event published",
		slog.String("type", evt.Type),
		slog.String("key", evt.Key),
	)
	return nil
}

// Close flushes pending writes.
func (p *Publisher) Close() error {
	return p.w.Close()
}

var _ domain.EventPublisher = (*Publisher)(nil)
