// Package reconciler audits wallet balances against the ledger. A wallet's
// stored balance must equal the fold of its ledger entries; any divergence
// means money was created or destroyed outside the engine and the wallet is
// frozen until an operator investigates.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/marketplace-settlement/internal/config"
	"github.com/marketplace-settlement/internal/domain/ledger"
	"github.com/marketplace-settlement/internal/domain/wallet"
)

const pageSize = 500

// TxRunner runs a function inside a database transaction.
// persistence.PostgresDB satisfies this.
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// MismatchError reports a wallet whose ledger does not reproduce its
// stored balance.
type MismatchError struct {
	WalletID uuid.UUID
	Reason   string
}

func (e MismatchError) Error() string {
	return fmt.Sprintf("reconciliation mismatch for wallet %s: %s", e.WalletID, e.Reason)
}

// Reconciler periodically replays each wallet's ledger and freezes wallets
// that fail the audit.
type Reconciler struct {
	logger     *slog.Logger
	db         TxRunner
	walletRepo wallet.Repository
	ledgerRepo ledger.Repository
	interval   time.Duration
	batchSize  int
}

func NewReconciler(
	logger *slog.Logger,
	cfg *config.ReconcilerConfig,
	db TxRunner,
	walletRepo wallet.Repository,
	ledgerRepo ledger.Repository,
) *Reconciler {
	return &Reconciler{
		logger:     logger,
		db:         db,
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
	}
}

// Start sweeps all wallets on a fixed interval until the context is
// canceled.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("Starting Reconciler", "interval", r.interval.String(), "batch_size", r.batchSize)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler stopping due to context cancellation")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("Reconciliation sweep failed", "error", err)
			}
		}
	}
}

// Sweep reconciles every wallet, paging through ids. Mismatched wallets are
// frozen and logged; the sweep continues so one bad wallet cannot hide
// others.
func (r *Reconciler) Sweep(ctx context.Context) error {
	offset := 0
	for {
		ids, err := r.walletRepo.ListIDs(ctx, r.batchSize, offset)
		if err != nil {
			return fmt.Errorf("failed to list wallets for reconciliation: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		for _, id := range ids {
			if err := r.Reconcile(ctx, id); err != nil {
				var mismatch MismatchError
				if errors.As(err, &mismatch) {
					r.logger.Error("Wallet failed reconciliation and was frozen",
						"wallet_id", mismatch.WalletID, "reason", mismatch.Reason,
					)
					continue
				}
				return err
			}
		}

		offset += len(ids)
	}
}

// Reconcile audits one wallet inside a transaction. The wallet's row lock
// keeps the engine from posting to it mid-audit.
func (r *Reconciler) Reconcile(ctx context.Context, walletID uuid.UUID) error {
	var mismatch *MismatchError

	err := r.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		walletRepo := r.walletRepo.WithTx(tx)
		ledgerRepo := r.ledgerRepo.WithTx(tx)

		w, err := walletRepo.LockForUpdate(ctx, walletID)
		if err != nil {
			return err
		}

		reason, err := r.auditChain(ctx, ledgerRepo, w)
		if err != nil {
			return err
		}
		if reason == "" {
			return nil
		}

		w.Freeze()
		if err := walletRepo.Update(ctx, w); err != nil {
			return fmt.Errorf("failed to freeze wallet %s: %w", walletID, err)
		}
		mismatch = &MismatchError{WalletID: walletID, Reason: reason}
		return nil
	})
	if err != nil {
		return err
	}
	if mismatch != nil {
		return *mismatch
	}
	return nil
}

// auditChain folds the wallet's ledger oldest-first and returns a non-empty
// reason on the first broken link.
func (r *Reconciler) auditChain(ctx context.Context, ledgerRepo ledger.Repository, w *wallet.Wallet) (string, error) {
	var (
		running int64
		first   = true
		offset  = 0
	)

	for {
		entries, err := ledgerRepo.ListByWallet(ctx, w.ID, pageSize, offset)
		if err != nil {
			return "", fmt.Errorf("failed to list ledger entries for wallet %s: %w", w.ID, err)
		}
		if len(entries) == 0 {
			break
		}

		for _, entry := range entries {
			if first {
				if entry.BalanceBefore != 0 {
					return fmt.Sprintf("first entry %s starts at %d, expected 0", entry.ID, entry.BalanceBefore), nil
				}
				first = false
			} else if entry.BalanceBefore != running {
				return fmt.Sprintf("entry %s starts at %d, previous entry ended at %d", entry.ID, entry.BalanceBefore, running), nil
			}

			if !entry.ChainValid() {
				return fmt.Sprintf("entry %s records %d + %d != %d", entry.ID, entry.BalanceBefore, entry.Amount, entry.BalanceAfter), nil
			}
			running = entry.BalanceAfter
		}

		offset += len(entries)
	}

	if running != w.Balance {
		return fmt.Sprintf("ledger folds to %d but stored balance is %d", running, w.Balance), nil
	}
	return "", nil
}
