package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/marketplace-settlement/internal/config"
)

// EventProducer publishes outbox messages to their destination topics.
// Writes are synchronous with full acks; the dispatcher only marks a message
// processed after the broker has confirmed delivery.
type EventProducer struct {
	logger *slog.Logger
	writer KafkaWriter
}

// NewEventProducer creates a producer and ensures the settlement event and
// payout topics exist before the dispatcher starts draining.
func NewEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*EventProducer, error) {
	if cfg.EventsTopic == "" {
		return nil, fmt.Errorf("kafka events topic is not configured")
	}
	if cfg.PayoutsTopic == "" {
		return nil, fmt.Errorf("kafka payouts topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for event producer: %w", err)
	}
	defer conn.Close()

	for _, topic := range []string{cfg.EventsTopic, cfg.PayoutsTopic} {
		if err := createKafkaTopicIfNotExists(conn, topic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
			return nil, fmt.Errorf("failed to ensure topic %s exists for event producer: %w", topic, err)
		}
	}

	writer := &kafka.Writer{
		Addr: kafka.TCP(cfg.Brokers),
		// Hash balancer keeps all messages for one aggregate on one
		// partition, preserving per-escrow delivery order.
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &EventProducer{
		logger: logger,
		writer: writer,
	}, nil
}

// Publish sends a single message to the given topic keyed by aggregate ID.
func (p *EventProducer) Publish(ctx context.Context, topic string, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for event producer: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message via event producer",
			"topic", topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s via event producer: %w", topic, err)
	}

	p.logger.Debug("Published message via event producer",
		"topic", topic,
		"key", key,
	)
	return nil
}

func (p *EventProducer) Close() error {
	p.logger.Info("Closing event producer")
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close event producer kafka writer: %w", err)
	}
	return nil
}
