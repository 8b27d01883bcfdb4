package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/marketplace-settlement/internal/domain/payout"
	"github.com/marketplace-settlement/internal/platform/persistence"
)

// PayoutRepository implements the payout.Repository interface for PostgreSQL
type PayoutRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewPayoutRepository creates a new PostgreSQL payout repository
func NewPayoutRepository(logger *slog.Logger, db *persistence.PostgresDB) payout.Repository {
	return &PayoutRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *PayoutRepository) WithTx(tx pgx.Tx) payout.Repository {
	return &PayoutRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const payoutColumns = `id, wallet_id, escrow_id, amount, currency, destination, status,
		external_ref, idempotency_key, failure_reason, created_at, updated_at`

func scanPayout(row pgx.Row) (*payout.Payout, error) {
	var p payout.Payout
	err := row.Scan(
		&p.ID,
		&p.WalletID,
		&p.EscrowID,
		&p.Amount,
		&p.Currency,
		&p.Destination,
		&p.Status,
		&p.ExternalRef,
		&p.IdempotencyKey,
		&p.FailureReason,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create stores a new payout record
func (r *PayoutRepository) Create(ctx context.Context, p *payout.Payout) error {
	query := `
		INSERT INTO payouts (id, wallet_id, escrow_id, amount, currency, destination, status,
			external_ref, idempotency_key, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.querier.Exec(ctx, query,
		p.ID,
		p.WalletID,
		p.EscrowID,
		p.Amount,
		p.Currency,
		p.Destination,
		p.Status,
		p.ExternalRef,
		p.IdempotencyKey,
		p.FailureReason,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create payout", "error", err)
		return fmt.Errorf("failed to create payout: %w", err)
	}

	return nil
}

// GetByID retrieves a payout by its ID
func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payouts
		WHERE id = $1
	`

	p, err := scanPayout(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payout.ErrPayoutNotFound{PayoutID: id}
		}
		r.logger.Error("Failed to get payout", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}

	return p, nil
}

// GetByIdempotencyKey looks up an existing payout for a job key.
// Returns nil, nil when no payout carries the key; redelivered payout
// requests are detected through this lookup.
func (r *PayoutRepository) GetByIdempotencyKey(ctx context.Context, key string) (*payout.Payout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payouts
		WHERE idempotency_key = $1
	`

	p, err := scanPayout(r.querier.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get payout by idempotency key", "idempotency_key", key, "error", err)
		return nil, fmt.Errorf("failed to get payout by idempotency key: %w", err)
	}

	return p, nil
}

// Update persists payout state transitions
func (r *PayoutRepository) Update(ctx context.Context, p *payout.Payout) error {
	query := `
		UPDATE payouts
		SET status = $1, external_ref = $2, failure_reason = $3, updated_at = $4
		WHERE id = $5
	`

	result, err := r.querier.Exec(ctx, query,
		p.Status,
		p.ExternalRef,
		p.FailureReason,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update payout", "id", p.ID.String(), "error", err)
		return fmt.Errorf("failed to update payout: %w", err)
	}

	if result.RowsAffected() == 0 {
		return payout.ErrPayoutNotFound{PayoutID: p.ID}
	}

	return nil
}
