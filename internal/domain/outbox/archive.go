package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/marketplace-settlement/internal/domain/shared"
)

// SettlementEvent is the archived copy of a delivered outbox message, kept
// in a separate read model for history queries. It is written best-effort
// after confirmed handoff and is never a correctness dependency.
type SettlementEvent struct {
	EventID       int64            `json:"event_id" bson:"event_id"`
	EventType     shared.EventType `json:"event_type" bson:"event_type"`
	AggregateType string           `json:"aggregate_type" bson:"aggregate_type"`
	AggregateID   uuid.UUID        `json:"aggregate_id" bson:"aggregate_id"`
	CorrelationID string           `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	Payload       json.RawMessage  `json:"payload" bson:"payload"`
	DeliveredAt   time.Time        `json:"delivered_at" bson:"delivered_at"`
}

// NewSettlementEvent builds the archive record for a delivered message.
func NewSettlementEvent(m *Message, deliveredAt time.Time) *SettlementEvent {
	return &SettlementEvent{
		EventID:       m.ID,
		EventType:     m.EventType,
		AggregateType: m.AggregateType,
		AggregateID:   m.AggregateID,
		CorrelationID: m.CorrelationID,
		Payload:       m.Payload,
		DeliveredAt:   deliveredAt,
	}
}

// ArchiveRepository stores delivered settlement events for history queries.
type ArchiveRepository interface {
	Insert(ctx context.Context, event *SettlementEvent) error

	// List returns archived events, newest first. aggregateID narrows the
	// query when non-nil.
	List(ctx context.Context, aggregateID *uuid.UUID, limit, offset int) ([]*SettlementEvent, error)
}
