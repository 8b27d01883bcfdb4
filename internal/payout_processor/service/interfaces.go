package service

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/marketplace-settlement/internal/domain/shared"
)

// PayoutService processes payout requests taken off the job queue.
type PayoutService interface {
	ProcessPayout(ctx context.Context, req *shared.PayoutRequestedEvent) error
}

// TxRunner runs a function inside a database transaction.
// persistence.PostgresDB satisfies this.
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}
