package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marketplace-settlement/internal/domain/outbox"
	"github.com/marketplace-settlement/internal/platform/persistence"
)

// OutboxRepository implements the outbox.Repository interface for PostgreSQL
type OutboxRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewOutboxRepository creates a new PostgreSQL outbox repository
func NewOutboxRepository(logger *slog.Logger, db *persistence.PostgresDB) outbox.Repository {
	return &OutboxRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations.
// This ensures message creation is atomic with the domain change it records.
func (r *OutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return &OutboxRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const outboxColumns = `id, event_type, aggregate_type, aggregate_id, correlation_id, payload,
		status, retry_count, next_retry_at, last_error, created_at, processed_at`

// Create stores a new outbox message in pending status.
// The message will be picked up by the outbox dispatcher for delivery.
func (r *OutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	query := `
		INSERT INTO settlement_outbox (event_type, aggregate_type, aggregate_id, correlation_id,
			payload, status, retry_count, next_retry_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		message.EventType,
		message.AggregateType,
		message.AggregateID,
		message.CorrelationID,
		message.Payload,
		message.Status,
		message.RetryCount,
		message.NextRetryAt,
		message.CreatedAt,
	).Scan(&message.ID)

	if err != nil {
		r.logger.Error("Failed to create outbox message",
			"event_type", string(message.EventType),
			"aggregate_id", message.AggregateID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message: %w", err)
	}

	return nil
}

// LeasePending selects due pending messages for one partition in FIFO order.
// FOR UPDATE SKIP LOCKED keeps concurrent dispatcher instances from leasing
// the same rows; the row locks are held until the surrounding transaction
// commits, so this must run through WithTx. Aggregates hash onto partitions
// so one aggregate's messages always drain through a single loop.
func (r *OutboxRepository) LeasePending(ctx context.Context, partition, partitions int, now time.Time, limit int) ([]*outbox.Message, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM settlement_outbox
		WHERE status = $1
			AND next_retry_at <= $2
			AND mod(abs(hashtext(aggregate_id::text)), $3) = $4
		ORDER BY created_at ASC, id ASC
		LIMIT $5
		FOR UPDATE SKIP LOCKED
	`

	rows, err := r.querier.Query(ctx, query, outbox.StatusPending, now, partitions, partition, limit)
	if err != nil {
		r.logger.Error("Failed to lease pending outbox messages", "partition", partition, "error", err)
		return nil, fmt.Errorf("failed to lease pending outbox messages: %w", err)
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		r.logger.Error("Failed to scan outbox messages", "error", err)
		return nil, err
	}

	return messages, nil
}

// collectMessages scans the leased rows into domain messages. A NULL
// last_error scans as the empty string so a row inserted without one never
// fails the drain.
func collectMessages(rows pgx.Rows) ([]*outbox.Message, error) {
	var messages []*outbox.Message
	for rows.Next() {
		var (
			message   outbox.Message
			lastError *string
		)
		err := rows.Scan(
			&message.ID,
			&message.EventType,
			&message.AggregateType,
			&message.AggregateID,
			&message.CorrelationID,
			&message.Payload,
			&message.Status,
			&message.RetryCount,
			&message.NextRetryAt,
			&lastError,
			&message.CreatedAt,
			&message.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		if lastError != nil {
			message.LastError = *lastError
		}
		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over outbox messages: %w", err)
	}

	return messages, nil
}

// MarkProcessed transitions a delivered message to its terminal processed state
func (r *OutboxRepository) MarkProcessed(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE settlement_outbox
		SET status = $1, processed_at = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, outbox.StatusProcessed, at, id)
	if err != nil {
		r.logger.Error("Failed to mark outbox message processed", "id", id, "error", err)
		return fmt.Errorf("failed to mark outbox message processed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return outbox.ErrMessageNotFound{ID: id}
	}

	return nil
}

// ScheduleRetry records a delivery failure and defers the message until nextRetryAt
func (r *OutboxRepository) ScheduleRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string) error {
	query := `
		UPDATE settlement_outbox
		SET retry_count = $1, next_retry_at = $2, last_error = $3
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query, retryCount, nextRetryAt, lastError, id)
	if err != nil {
		r.logger.Error("Failed to schedule outbox message retry", "id", id, "error", err)
		return fmt.Errorf("failed to schedule outbox message retry: %w", err)
	}

	if result.RowsAffected() == 0 {
		return outbox.ErrMessageNotFound{ID: id}
	}

	return nil
}

// MarkDeadLetter parks a message that exhausted its retry budget.
// Dead-lettered messages are never picked up again without manual intervention.
func (r *OutboxRepository) MarkDeadLetter(ctx context.Context, id int64, lastError string) error {
	query := `
		UPDATE settlement_outbox
		SET status = $1, retry_count = retry_count + 1, last_error = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, outbox.StatusDeadLetter, lastError, id)
	if err != nil {
		r.logger.Error("Failed to mark outbox message dead-lettered", "id", id, "error", err)
		return fmt.Errorf("failed to mark outbox message dead-lettered: %w", err)
	}

	if result.RowsAffected() == 0 {
		return outbox.ErrMessageNotFound{ID: id}
	}

	return nil
}

// ListDeadLetters surfaces parked messages for inspection, newest first
func (r *OutboxRepository) ListDeadLetters(ctx context.Context, limit, offset int) ([]*outbox.Message, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM settlement_outbox
		WHERE status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, outbox.StatusDeadLetter, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list dead-lettered outbox messages", "error", err)
		return nil, fmt.Errorf("failed to list dead-lettered outbox messages: %w", err)
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		r.logger.Error("Failed to scan dead-lettered outbox messages", "error", err)
		return nil, err
	}

	return messages, nil
}
