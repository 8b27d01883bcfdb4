package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages ledger transaction persistence. Entries are immutable;
// there is no update path.
type Repository interface {
	Create(ctx context.Context, txn *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// GetByIdempotencyKey returns nil, nil when no entry carries the key for
	// the wallet. The unique index on (wallet_id, idempotency_key) makes
	// retried posts safe no-ops.
	GetByIdempotencyKey(ctx context.Context, walletID uuid.UUID, key string) (*Transaction, error)

	// ListByWallet returns entries in creation order (oldest first).
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*Transaction, error)
	CountByWallet(ctx context.Context, walletID uuid.UUID) (int64, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrTransactionNotFound indicates missing ledger transaction
type ErrTransactionNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "ledger transaction not found: " + e.TransactionID.String()
}

// ErrDuplicateIdempotencyKey indicates the (wallet, key) uniqueness
// constraint fired on insert.
type ErrDuplicateIdempotencyKey struct {
	WalletID uuid.UUID
	Key      string
}

func (e ErrDuplicateIdempotencyKey) Error() string {
	return "duplicate idempotency key for wallet " + e.WalletID.String() + ": " + e.Key
}
