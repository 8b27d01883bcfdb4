package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes settlement events and payout jobs. The topic is
// chosen per call because the outbox dispatcher routes messages to different
// topics depending on the event type.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, value interface{}) error
	Close() error
}

// DeadLetterPublisher handles publishing messages to a Dead Letter Queue
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
