// Package outbox implements the message side of the transactional-outbox
// pattern: the durable intent to deliver one settlement event, created in
// the same database transaction as the domain change that caused it.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/marketplace-settlement/internal/domain/shared"
)

// Status defines message delivery states
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessed  Status = "PROCESSED"
	StatusDeadLetter Status = "DEAD_LETTER"
)

// Message stores one settlement event for reliable handoff to the job queue
type Message struct {
	ID            int64            `json:"id"`
	EventType     shared.EventType `json:"event_type"`
	AggregateType string           `json:"aggregate_type"`
	AggregateID   uuid.UUID        `json:"aggregate_id"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	Payload       json.RawMessage  `json:"payload"`
	Status        Status           `json:"status"`
	RetryCount    int              `json:"retry_count"`
	NextRetryAt   time.Time        `json:"next_retry_at"`
	LastError     string           `json:"last_error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	ProcessedAt   *time.Time       `json:"processed_at,omitempty"`
}

// NewMessage marshals the event payload into a pending outbox message.
func NewMessage(eventType shared.EventType, aggregateType string, aggregateID uuid.UUID, correlationID string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Message{
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		CorrelationID: correlationID,
		Payload:       raw,
		Status:        StatusPending,
		RetryCount:    0,
		NextRetryAt:   now,
		CreatedAt:     now,
	}, nil
}

// MarkProcessed records confirmed handoff to the job queue. Terminal; a
// processed message never re-enters the pending state.
func (m *Message) MarkProcessed(at time.Time) {
	m.Status = StatusProcessed
	m.ProcessedAt = &at
}

// ScheduleRetry records a failed delivery attempt and when to try next.
func (m *Message) ScheduleRetry(nextRetryAt time.Time, cause error) {
	m.RetryCount++
	m.NextRetryAt = nextRetryAt
	if cause != nil {
		m.LastError = cause.Error()
	}
}

// MarkDeadLetter parks the message after the retry budget is exhausted.
// Dead-lettered messages are surfaced for inspection, never retried.
func (m *Message) MarkDeadLetter(cause error) {
	m.RetryCount++
	m.Status = StatusDeadLetter
	if cause != nil {
		m.LastError = cause.Error()
	}
}
