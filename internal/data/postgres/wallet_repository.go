package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/marketplace-settlement/internal/domain/wallet"
	"github.com/marketplace-settlement/internal/platform/persistence"
)

// WalletRepository implements the wallet.Repository interface for PostgreSQL
type WalletRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewWalletRepository creates a new PostgreSQL wallet repository
func NewWalletRepository(logger *slog.Logger, db *persistence.PostgresDB) wallet.Repository {
	return &WalletRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *WalletRepository) WithTx(tx pgx.Tx) wallet.Repository {
	return &WalletRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const walletColumns = `id, user_id, balance, pending_balance, held_balance, total_earned,
		total_withdrawn, total_spent, currency, is_locked, version, created_at, updated_at`

func scanWallet(row pgx.Row) (*wallet.Wallet, error) {
	var w wallet.Wallet
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Balance,
		&w.PendingBalance,
		&w.HeldBalance,
		&w.TotalEarned,
		&w.TotalWithdrawn,
		&w.TotalSpent,
		&w.Currency,
		&w.IsLocked,
		&w.Version,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Create stores a new wallet. The unique index on user_id rejects a second
// wallet for the same user.
func (r *WalletRepository) Create(ctx context.Context, w *wallet.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, balance, pending_balance, held_balance, total_earned,
			total_withdrawn, total_spent, currency, is_locked, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.querier.Exec(ctx, query,
		w.ID,
		w.UserID,
		w.Balance,
		w.PendingBalance,
		w.HeldBalance,
		w.TotalEarned,
		w.TotalWithdrawn,
		w.TotalSpent,
		w.Currency,
		w.IsLocked,
		w.Version,
		w.CreatedAt,
		w.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create wallet", "error", err)
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	return nil
}

// GetByID retrieves a wallet by its ID
func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE id = $1
	`

	w, err := scanWallet(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrWalletNotFound{WalletID: id}
		}
		r.logger.Error("Failed to get wallet", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return w, nil
}

// GetByUserID retrieves a wallet by its owning user.
// Returns nil, nil when the user has no wallet yet.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = $1
	`

	w, err := scanWallet(r.querier.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get wallet by user ID", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to get wallet by user ID: %w", err)
	}

	return w, nil
}

// Update persists the wallet using optimistic locking on the version column.
// Returns ErrConcurrentModification if the row was modified between read and update.
func (r *WalletRepository) Update(ctx context.Context, w *wallet.Wallet) error {
	query := `
		UPDATE wallets
		SET balance = $1, pending_balance = $2, held_balance = $3, total_earned = $4,
			total_withdrawn = $5, total_spent = $6, is_locked = $7, version = $8, updated_at = $9
		WHERE id = $10 AND version = $11
	`

	result, err := r.querier.Exec(ctx, query,
		w.Balance,
		w.PendingBalance,
		w.HeldBalance,
		w.TotalEarned,
		w.TotalWithdrawn,
		w.TotalSpent,
		w.IsLocked,
		w.Version,
		w.UpdatedAt,
		w.ID,
		w.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update wallet", "id", w.ID.String(), "error", err)
		return fmt.Errorf("failed to update wallet: %w", err)
	}

	if result.RowsAffected() == 0 {
		return wallet.ErrConcurrentModification{WalletID: w.ID}
	}

	return nil
}

// LockForUpdate obtains a pessimistic lock on the wallet and returns its current state.
// The ledger engine serializes all posts for a wallet through this lock.
func (r *WalletRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`

	w, err := scanWallet(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrWalletNotFound{WalletID: id}
		}
		r.logger.Error("Failed to lock wallet for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock wallet for update: %w", err)
	}

	return w, nil
}

// ListIDs pages through wallet ids in creation order for reconciliation sweeps
func (r *WalletRepository) ListIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM wallets
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.querier.Query(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list wallet ids", "error", err)
		return nil, fmt.Errorf("failed to list wallet ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			r.logger.Error("Failed to scan wallet id", "error", err)
			return nil, fmt.Errorf("failed to scan wallet id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over wallet ids", "error", err)
		return nil, fmt.Errorf("error iterating over wallet ids: %w", err)
	}

	return ids, nil
}
