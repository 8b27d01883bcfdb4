package outbox

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository manages transactional outbox message persistence
type Repository interface {
	// Create stores a pending message. Called with a transaction-scoped
	// repository so the message commits atomically with the domain change.
	Create(ctx context.Context, message *Message) error

	// LeasePending selects due pending messages for one partition in FIFO
	// order using FOR UPDATE SKIP LOCKED, so concurrent poller instances
	// never pick the same message. Aggregates hash onto partitions, keeping
	// one aggregate's messages on a single drain loop.
	LeasePending(ctx context.Context, partition, partitions int, now time.Time, limit int) ([]*Message, error)

	MarkProcessed(ctx context.Context, id int64, at time.Time) error
	ScheduleRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string) error
	MarkDeadLetter(ctx context.Context, id int64, lastError string) error

	// ListDeadLetters surfaces parked messages for inspection.
	ListDeadLetters(ctx context.Context, limit, offset int) ([]*Message, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrMessageNotFound indicates missing outbox message
type ErrMessageNotFound struct {
	ID int64
}

func (e ErrMessageNotFound) Error() string {
	return "outbox message not found: " + strconv.FormatInt(e.ID, 10)
}
