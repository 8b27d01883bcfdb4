package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines wallet persistence operations
type Repository interface {
	Create(ctx context.Context, w *Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)

	// GetByUserID returns nil, nil when the user has no wallet yet.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Wallet, error)

	// Update persists the entity using optimistic locking on Version.
	Update(ctx context.Context, w *Wallet) error

	// LockForUpdate acquires a pessimistic row lock for the duration of the
	// surrounding transaction. The ledger engine serializes all posts for a
	// wallet through this lock.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Wallet, error)

	// ListIDs pages through all wallet ids for reconciliation sweeps.
	ListIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrWalletNotFound indicates missing wallet
type ErrWalletNotFound struct {
	WalletID uuid.UUID
}

func (e ErrWalletNotFound) Error() string {
	return "wallet not found: " + e.WalletID.String()
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	WalletID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for wallet: " + e.WalletID.String()
}
