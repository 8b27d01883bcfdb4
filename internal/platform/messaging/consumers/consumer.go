// Package consumers reads payout request messages off Kafka and feeds them
// to the payout processor. Offsets commit only after the handler returns
// nil, so a payout request is never lost between the debit and the gateway
// call; at-least-once delivery is the contract and the processor is
// idempotent to match.
package consumers

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/marketplace-settlement/internal/config"
)

// MessageHandler processes one payout request. Returning an error keeps the
// offset uncommitted so the request is redelivered.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, topic string, groupID string, handler MessageHandler) error
	Close() error
}

// KafkaConsumer implements Consumer using Kafka
type KafkaConsumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewKafkaConsumer builds a consumer for the given topic. The payout worker
// subscribes to cfg.PayoutsTopic; the topic is passed in so one constructor
// serves any future subscriber.
func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig, topic string) *KafkaConsumer {
	return &KafkaConsumer{
		logger: logger,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{cfg.Brokers},
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: kafka.FirstOffset,
		}),
	}
}

// Subscribe starts the fetch loop in its own goroutine and returns
// immediately. The loop stops when ctx is canceled; Close then releases
// the group membership.
func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string, groupID string, handler MessageHandler) error {
	c.logger.Info("Subscribed to payout request topic",
		"topic", topic,
		"group_id", groupID,
	)

	go c.fetchLoop(ctx, topic, groupID, handler)
	return nil
}

func (c *KafkaConsumer) fetchLoop(ctx context.Context, topic, groupID string, handler MessageHandler) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping payout consumer",
					"topic", topic,
					"group_id", groupID,
				)
				return
			}
			c.logger.Error("Failed to fetch payout request",
				"topic", topic,
				"group_id", groupID,
				"error", err,
			)
			// Broker hiccup. Back off briefly before fetching again.
			time.Sleep(time.Second)
			continue
		}

		c.logger.Debug("Fetched payout request",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)

		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			// Leaving the offset uncommitted redelivers the request; the
			// handler decides when to stop retrying and dead-letter instead.
			c.logger.Error("Payout request failed, offset not committed",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			// The request was handled; redelivery after a commit failure is
			// absorbed by the processor's idempotency key.
			c.logger.Error("Failed to commit offset for handled payout request",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
