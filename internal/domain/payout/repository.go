package payout

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines payout persistence operations
type Repository interface {
	Create(ctx context.Context, p *Payout) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payout, error)

	// GetByIdempotencyKey returns nil, nil when no payout carries the key.
	// Redelivered payout requests are detected through this lookup.
	GetByIdempotencyKey(ctx context.Context, key string) (*Payout, error)

	Update(ctx context.Context, p *Payout) error

	WithTx(tx pgx.Tx) Repository
}

// ErrPayoutNotFound indicates missing payout
type ErrPayoutNotFound struct {
	PayoutID uuid.UUID
}

func (e ErrPayoutNotFound) Error() string {
	return "payout not found: " + e.PayoutID.String()
}
