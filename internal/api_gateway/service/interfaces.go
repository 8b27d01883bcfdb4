package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/marketplace-settlement/internal/domain/escrow"
	"github.com/marketplace-settlement/internal/domain/ledger"
	"github.com/marketplace-settlement/internal/domain/outbox"
	"github.com/marketplace-settlement/internal/domain/payout"
	"github.com/marketplace-settlement/internal/domain/shared"
	"github.com/marketplace-settlement/internal/domain/wallet"
	"github.com/marketplace-settlement/internal/settlement/saga"
)

// CreateEscrowParams carries the inputs for opening a new escrow.
type CreateEscrowParams struct {
	BuyerID           uuid.UUID
	SellerID          uuid.UUID
	Amount            int64
	Currency          string
	ReleaseConditions string
	AutoReleaseAt     *time.Time
}

// SettlementService defines the interface for escrow lifecycle operations
type SettlementService interface {
	// CreateEscrow opens a pending escrow between a buyer and a seller
	CreateEscrow(ctx context.Context, params CreateEscrowParams) (*escrow.Escrow, error)

	// GetEscrow retrieves an escrow by its ID
	// Returns ErrEscrowNotFound if the escrow doesn't exist
	GetEscrow(ctx context.Context, id uuid.UUID) (*escrow.Escrow, error)

	// ExecuteIntent runs one settlement intent through the saga
	// orchestrator. A replayed idempotency key returns the recorded result.
	ExecuteIntent(ctx context.Context, intent shared.Intent, payload json.RawMessage) (*saga.Result, error)
}

// QueryService defines the read side: wallets, ledger history, payouts and
// the settlement event archive.
type QueryService interface {
	// GetWallet retrieves a wallet by its ID
	// Returns ErrWalletNotFound if the wallet doesn't exist
	GetWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error)

	// GetWalletTransactions retrieves a paginated ledger history for a
	// wallet, oldest first, plus the total entry count
	GetWalletTransactions(ctx context.Context, walletID uuid.UUID, page, perPage int) ([]*ledger.Transaction, int64, error)

	// GetPayout retrieves a payout by its ID
	// Returns ErrPayoutNotFound if the payout doesn't exist
	GetPayout(ctx context.Context, id uuid.UUID) (*payout.Payout, error)

	// ListEscrowEvents returns archived settlement events for an escrow,
	// newest first
	ListEscrowEvents(ctx context.Context, escrowID uuid.UUID, page, perPage int) ([]*outbox.SettlementEvent, error)

	// ListEvents returns archived settlement events across all aggregates,
	// newest first
	ListEvents(ctx context.Context, page, perPage int) ([]*outbox.SettlementEvent, error)
}

// IntentExecutor runs settlement intents. The saga orchestrator satisfies
// this.
type IntentExecutor interface {
	Execute(ctx context.Context, intent shared.Intent, payload json.RawMessage) (*saga.Result, error)
}
