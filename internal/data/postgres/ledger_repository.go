package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marketplace-settlement/internal/domain/ledger"
	"github.com/marketplace-settlement/internal/platform/persistence"
)

// uniqueViolation is the PostgreSQL error code raised when the
// (wallet_id, idempotency_key) index rejects a duplicate insert.
const uniqueViolation = "23505"

// LedgerRepository implements the ledger.Repository interface for PostgreSQL.
// Ledger entries are append-only; the repository exposes no update or delete.
type LedgerRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *LedgerRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &LedgerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const transactionColumns = `id, wallet_id, amount, balance_before, balance_after, type,
		reference_type, reference_id, idempotency_key, correlation_id, status, created_at`

func scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	var txn ledger.Transaction
	err := row.Scan(
		&txn.ID,
		&txn.WalletID,
		&txn.Amount,
		&txn.BalanceBefore,
		&txn.BalanceAfter,
		&txn.Type,
		&txn.ReferenceType,
		&txn.ReferenceID,
		&txn.IdempotencyKey,
		&txn.CorrelationID,
		&txn.Status,
		&txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// Create appends a ledger transaction. A unique constraint violation on
// (wallet_id, idempotency_key) is mapped to ErrDuplicateIdempotencyKey.
func (r *LedgerRepository) Create(ctx context.Context, txn *ledger.Transaction) error {
	query := `
		INSERT INTO ledger_transactions (id, wallet_id, amount, balance_before, balance_after, type,
			reference_type, reference_id, idempotency_key, correlation_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.querier.Exec(ctx, query,
		txn.ID,
		txn.WalletID,
		txn.Amount,
		txn.BalanceBefore,
		txn.BalanceAfter,
		txn.Type,
		txn.ReferenceType,
		txn.ReferenceID,
		txn.IdempotencyKey,
		txn.CorrelationID,
		txn.Status,
		txn.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ledger.ErrDuplicateIdempotencyKey{WalletID: txn.WalletID, Key: txn.IdempotencyKey}
		}
		r.logger.Error("Failed to create ledger transaction", "wallet_id", txn.WalletID.String(), "error", err)
		return fmt.Errorf("failed to create ledger transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a ledger transaction by its ID
func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE id = $1
	`

	txn, err := scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrTransactionNotFound{TransactionID: id}
		}
		r.logger.Error("Failed to get ledger transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger transaction: %w", err)
	}

	return txn, nil
}

// GetByIdempotencyKey looks up an existing entry for a wallet and key.
// Returns nil, nil when no entry carries the key.
func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, walletID uuid.UUID, key string) (*ledger.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE wallet_id = $1 AND idempotency_key = $2
	`

	txn, err := scanTransaction(r.querier.QueryRow(ctx, query, walletID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get ledger transaction by idempotency key",
			"wallet_id", walletID.String(),
			"idempotency_key", key,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get ledger transaction by idempotency key: %w", err)
	}

	return txn, nil
}

// ListByWallet returns ledger entries for a wallet in creation order (oldest first)
func (r *LedgerRepository) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*ledger.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE wallet_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, walletID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list ledger transactions", "wallet_id", walletID.String(), "error", err)
		return nil, fmt.Errorf("failed to list ledger transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*ledger.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			r.logger.Error("Failed to scan ledger transaction", "error", err)
			return nil, fmt.Errorf("failed to scan ledger transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over ledger transactions", "error", err)
		return nil, fmt.Errorf("error iterating over ledger transactions: %w", err)
	}

	return transactions, nil
}

// CountByWallet returns the total number of ledger entries for a wallet
func (r *LedgerRepository) CountByWallet(ctx context.Context, walletID uuid.UUID) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM ledger_transactions
		WHERE wallet_id = $1
	`

	var count int64
	if err := r.querier.QueryRow(ctx, query, walletID).Scan(&count); err != nil {
		r.logger.Error("Failed to count ledger transactions", "wallet_id", walletID.String(), "error", err)
		return 0, fmt.Errorf("failed to count ledger transactions: %w", err)
	}

	return count, nil
}
