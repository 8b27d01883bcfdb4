package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines escrow persistence operations
type Repository interface {
	Create(ctx context.Context, e *Escrow) error
	GetByID(ctx context.Context, id uuid.UUID) (*Escrow, error)

	// Update persists the entity using optimistic locking on Version.
	Update(ctx context.Context, e *Escrow) error

	// LockForUpdate acquires a pessimistic row lock for the duration of the
	// surrounding transaction.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Escrow, error)

	// ListAutoReleasable returns funded escrows whose auto-release deadline
	// has passed.
	ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]*Escrow, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrEscrowNotFound indicates missing escrow
type ErrEscrowNotFound struct {
	EscrowID uuid.UUID
}

func (e ErrEscrowNotFound) Error() string {
	return "escrow not found: " + e.EscrowID.String()
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	EscrowID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for escrow: " + e.EscrowID.String()
}
