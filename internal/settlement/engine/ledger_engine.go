// Package engine implements the wallet ledger posting engine. Post is the
// only code path that mutates a wallet balance; every money movement leaves
// an immutable ledger transaction carrying the balance before and after.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/marketplace-settlement/internal/domain/ledger"
	"github.com/marketplace-settlement/internal/domain/shared"
	"github.com/marketplace-settlement/internal/domain/wallet"
)

// PostRequest describes a single ledger posting against one wallet.
// Amount is signed: positive for credit types, negative for debit types.
type PostRequest struct {
	WalletID       uuid.UUID
	Amount         int64
	Type           shared.TransactionType
	ReferenceType  shared.ReferenceType
	ReferenceID    uuid.UUID
	IdempotencyKey string
	CorrelationID  string
}

// LedgerEngine posts balance-affecting transactions to wallets
type LedgerEngine struct {
	walletRepo wallet.Repository
	ledgerRepo ledger.Repository
	logger     *slog.Logger
}

// NewLedgerEngine creates a ledger engine over the given repositories
func NewLedgerEngine(logger *slog.Logger, walletRepo wallet.Repository, ledgerRepo ledger.Repository) *LedgerEngine {
	return &LedgerEngine{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		logger:     logger,
	}
}

// Post applies one ledger posting inside the caller's transaction.
//
// The sequence is: idempotency lookup, pessimistic wallet lock, domain
// checks (frozen wallet, overdraft, amount sign), append the ledger row,
// persist the wallet with its version bump. Re-posts with a key already
// recorded for the wallet return the existing row without touching the
// balance. The wallet row lock serializes concurrent posts; everything here
// is pure computation and SQL, never external I/O.
func (e *LedgerEngine) Post(ctx context.Context, tx pgx.Tx, req PostRequest) (*ledger.Transaction, error) {
	if req.IdempotencyKey == "" {
		return nil, fmt.Errorf("ledger post requires an idempotency key")
	}

	walletRepo := e.walletRepo.WithTx(tx)
	ledgerRepo := e.ledgerRepo.WithTx(tx)

	existing, err := ledgerRepo.GetByIdempotencyKey(ctx, req.WalletID, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check posting idempotency: %w", err)
	}
	if existing != nil {
		e.logger.Info("Ledger post replayed, returning recorded transaction",
			"wallet_id", req.WalletID.String(),
			"idempotency_key", req.IdempotencyKey,
			"transaction_id", existing.ID.String(),
		)
		return existing, nil
	}

	w, err := walletRepo.LockForUpdate(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}

	balanceBefore := w.Balance
	if err := w.Apply(req.Amount, req.Type); err != nil {
		return nil, err
	}

	txn := &ledger.Transaction{
		ID:             uuid.New(),
		WalletID:       w.ID,
		Amount:         req.Amount,
		BalanceBefore:  balanceBefore,
		BalanceAfter:   w.Balance,
		Type:           req.Type,
		ReferenceType:  req.ReferenceType,
		ReferenceID:    req.ReferenceID,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  req.CorrelationID,
		Status:         shared.TransactionStatusCompleted,
		CreatedAt:      time.Now(),
	}

	if err := ledgerRepo.Create(ctx, txn); err != nil {
		return nil, err
	}

	if err := walletRepo.Update(ctx, w); err != nil {
		return nil, err
	}

	e.logger.Debug("Posted ledger transaction",
		"wallet_id", w.ID.String(),
		"type", string(req.Type),
		"amount", req.Amount,
		"balance_after", w.Balance,
	)

	return txn, nil
}

// EnsureWallet returns the user's wallet, creating an empty one inside the
// caller's transaction when the user has none yet.
func (e *LedgerEngine) EnsureWallet(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) (*wallet.Wallet, error) {
	walletRepo := e.walletRepo.WithTx(tx)

	w, err := walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if w != nil {
		return w, nil
	}

	w, err = wallet.NewWallet(userID, currency)
	if err != nil {
		return nil, err
	}
	if err := walletRepo.Create(ctx, w); err != nil {
		return nil, err
	}

	e.logger.Info("Created wallet", "wallet_id", w.ID.String(), "user_id", userID.String())
	return w, nil
}
