// Package postgres provides PostgreSQL implementations of the domain repositories.
// It handles all database operations while maintaining transaction safety and
// proper error handling for the settlement core.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/marketplace-settlement/internal/domain/escrow"
	"github.com/marketplace-settlement/internal/platform/persistence"
)

// EscrowRepository implements the escrow.Repository interface for PostgreSQL
type EscrowRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewEscrowRepository creates a new PostgreSQL escrow repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewEscrowRepository(logger *slog.Logger, db *persistence.PostgresDB) escrow.Repository {
	return &EscrowRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing for atomic operations
// across multiple repository calls. The returned repository will use the provided
// transaction for all database operations.
func (r *EscrowRepository) WithTx(tx pgx.Tx) escrow.Repository {
	return &EscrowRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const escrowColumns = `id, buyer_id, seller_id, amount, held_amount, released_amount, refunded_amount,
		currency, status, payment_reference, release_conditions, disputed_by, dispute_reason,
		disputed_at, auto_release_at, version, created_at, updated_at`

func scanEscrow(row pgx.Row) (*escrow.Escrow, error) {
	var e escrow.Escrow
	err := row.Scan(
		&e.ID,
		&e.BuyerID,
		&e.SellerID,
		&e.Amount,
		&e.HeldAmount,
		&e.ReleasedAmount,
		&e.RefundedAmount,
		&e.Currency,
		&e.Status,
		&e.PaymentReference,
		&e.ReleaseConditions,
		&e.DisputedBy,
		&e.DisputeReason,
		&e.DisputedAt,
		&e.AutoReleaseAt,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create stores a new escrow in the database
func (r *EscrowRepository) Create(ctx context.Context, e *escrow.Escrow) error {
	query := `
		INSERT INTO escrows (id, buyer_id, seller_id, amount, held_amount, released_amount, refunded_amount,
			currency, status, payment_reference, release_conditions, disputed_by, dispute_reason,
			disputed_at, auto_release_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := r.querier.Exec(ctx, query,
		e.ID,
		e.BuyerID,
		e.SellerID,
		e.Amount,
		e.HeldAmount,
		e.ReleasedAmount,
		e.RefundedAmount,
		e.Currency,
		e.Status,
		e.PaymentReference,
		e.ReleaseConditions,
		e.DisputedBy,
		e.DisputeReason,
		e.DisputedAt,
		e.AutoReleaseAt,
		e.Version,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create escrow", "error", err)
		return fmt.Errorf("failed to create escrow: %w", err)
	}

	return nil
}

// GetByID retrieves an escrow by its ID
func (r *EscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Escrow, error) {
	query := `
		SELECT ` + escrowColumns + `
		FROM escrows
		WHERE id = $1
	`

	e, err := scanEscrow(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escrow.ErrEscrowNotFound{EscrowID: id}
		}
		r.logger.Error("Failed to get escrow", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get escrow: %w", err)
	}

	return e, nil
}

// Update persists the escrow using optimistic locking on the version column.
// Returns ErrConcurrentModification if the row was modified between read and update.
func (r *EscrowRepository) Update(ctx context.Context, e *escrow.Escrow) error {
	query := `
		UPDATE escrows
		SET held_amount = $1, released_amount = $2, refunded_amount = $3, status = $4,
			payment_reference = $5, disputed_by = $6, dispute_reason = $7, disputed_at = $8,
			auto_release_at = $9, version = $10, updated_at = $11
		WHERE id = $12 AND version = $13
	`

	result, err := r.querier.Exec(ctx, query,
		e.HeldAmount,
		e.ReleasedAmount,
		e.RefundedAmount,
		e.Status,
		e.PaymentReference,
		e.DisputedBy,
		e.DisputeReason,
		e.DisputedAt,
		e.AutoReleaseAt,
		e.Version,
		e.UpdatedAt,
		e.ID,
		e.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update escrow", "id", e.ID.String(), "error", err)
		return fmt.Errorf("failed to update escrow: %w", err)
	}

	if result.RowsAffected() == 0 {
		return escrow.ErrConcurrentModification{EscrowID: e.ID}
	}

	return nil
}

// LockForUpdate obtains a pessimistic lock on the escrow and returns its current state.
// This should be used within a transaction when strong consistency is required.
func (r *EscrowRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*escrow.Escrow, error) {
	query := `
		SELECT ` + escrowColumns + `
		FROM escrows
		WHERE id = $1
		FOR UPDATE
	`

	e, err := scanEscrow(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escrow.ErrEscrowNotFound{EscrowID: id}
		}
		r.logger.Error("Failed to lock escrow for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock escrow for update: %w", err)
	}

	return e, nil
}

// ListAutoReleasable returns funded escrows whose auto-release deadline has passed.
// Disputed escrows never match because the dispute transition clears the deadline check by status.
func (r *EscrowRepository) ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]*escrow.Escrow, error) {
	query := `
		SELECT ` + escrowColumns + `
		FROM escrows
		WHERE status IN ($1, $2)
			AND auto_release_at IS NOT NULL
			AND auto_release_at <= $3
		ORDER BY auto_release_at ASC
		LIMIT $4
	`

	rows, err := r.querier.Query(ctx, query, escrow.StatusFunded, escrow.StatusPartiallyReleased, now, limit)
	if err != nil {
		r.logger.Error("Failed to list auto-releasable escrows", "error", err)
		return nil, fmt.Errorf("failed to list auto-releasable escrows: %w", err)
	}
	defer rows.Close()

	var escrows []*escrow.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			r.logger.Error("Failed to scan escrow", "error", err)
			return nil, fmt.Errorf("failed to scan escrow: %w", err)
		}
		escrows = append(escrows, e)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over escrows", "error", err)
		return nil, fmt.Errorf("error iterating over escrows: %w", err)
	}

	return escrows, nil
}
