package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marketplace-settlement/internal/domain/outbox"
	"github.com/marketplace-settlement/internal/domain/payout"
	"github.com/marketplace-settlement/internal/domain/shared"
	"github.com/marketplace-settlement/internal/domain/wallet"
	"github.com/marketplace-settlement/internal/platform/gateway"
	"github.com/marketplace-settlement/internal/settlement/engine"
)

// GatewayPayoutService moves wallet funds to an external destination. The
// wallet is debited before the gateway call; a declined payout credits the
// funds back and marks the payout failed. Transient gateway errors leave
// the payout in PROCESSING so a redelivery can resume it. A debit that can
// never succeed, such as insufficient funds, records the payout as failed
// immediately instead of being retried.
type GatewayPayoutService struct {
	logger         *slog.Logger
	db             TxRunner
	payoutRepo     payout.Repository
	engine         *engine.LedgerEngine
	outboxRepo     outbox.Repository
	gateway        gateway.PaymentGateway
	gatewayTimeout time.Duration
}

func NewGatewayPayoutService(
	logger *slog.Logger,
	db TxRunner,
	payoutRepo payout.Repository,
	eng *engine.LedgerEngine,
	outboxRepo outbox.Repository,
	gw gateway.PaymentGateway,
	gatewayTimeout time.Duration,
) *GatewayPayoutService {
	return &GatewayPayoutService{
		logger:         logger,
		db:             db,
		payoutRepo:     payoutRepo,
		engine:         eng,
		outboxRepo:     outboxRepo,
		gateway:        gw,
		gatewayTimeout: gatewayTimeout,
	}
}

// ProcessPayout handles one payout request. Safe under redelivery: the
// idempotency key identifies the payout across attempts and the ledger
// engine deduplicates the wallet postings.
func (s *GatewayPayoutService) ProcessPayout(ctx context.Context, req *shared.PayoutRequestedEvent) error {
	logger := s.logger.With("wallet_id", req.WalletID, "escrow_id", req.EscrowID, "idempotency_key", req.IdempotencyKey)
	if req.CorrelationID != "" {
		logger = logger.With("correlation_id", req.CorrelationID)
	}

	existing, err := s.payoutRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("failed to look up payout by idempotency key: %w", err)
	}

	var p *payout.Payout
	switch {
	case existing == nil:
		p, err = s.begin(ctx, req)
		if err != nil {
			if isTerminalDebitError(err) {
				// Redelivering cannot conjure up the missing funds. Record
				// the payout as failed so the offset commits and downstream
				// consumers learn about the rejection.
				logger.Warn("Payout rejected before debit, recording failure", "error", err)
				return s.reject(ctx, req, err.Error())
			}
			return err
		}
		logger.Info("Payout started, wallet debited", "payout_id", p.ID, "amount", p.Amount)
	case existing.IsTerminal():
		logger.Info("Payout already settled, skipping redelivered request",
			"payout_id", existing.ID, "status", existing.Status,
		)
		return nil
	default:
		// A previous attempt debited the wallet but never heard back from
		// the gateway. The gateway's own idempotency makes retrying safe.
		p = existing
		logger.Info("Resuming in-flight payout", "payout_id", p.ID, "status", p.Status)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	result, err := s.gateway.Payout(callCtx, gateway.PayoutRequest{
		Destination:    p.Destination,
		Amount:         p.Amount,
		Currency:       p.Currency,
		IdempotencyKey: p.IdempotencyKey,
	})
	cancel()

	if err != nil {
		if errors.Is(err, gateway.ErrDeclined) {
			logger.Warn("Gateway declined payout, compensating", "payout_id", p.ID, "error", err)
			return s.fail(ctx, p, err.Error())
		}
		// Transient failure: keep the payout in flight and let the message
		// be redelivered.
		return fmt.Errorf("gateway payout for %s failed: %w", p.ID, err)
	}

	if err := s.complete(ctx, p, result.Reference); err != nil {
		return err
	}
	logger.Info("Payout completed", "payout_id", p.ID, "external_ref", result.Reference)
	return nil
}

// isTerminalDebitError reports whether the wallet debit can never succeed,
// no matter how often the request is redelivered.
func isTerminalDebitError(err error) bool {
	var notFound wallet.ErrWalletNotFound
	return errors.Is(err, wallet.ErrInsufficientFunds) || errors.As(err, &notFound)
}

// reject records a payout that failed validation before any funds moved.
// No wallet posting happened, so there is nothing to compensate.
func (s *GatewayPayoutService) reject(ctx context.Context, req *shared.PayoutRequestedEvent, reason string) error {
	p, err := payout.NewPayout(req.WalletID, req.EscrowID, req.Amount, req.Currency, req.Destination, req.IdempotencyKey)
	if err != nil {
		return err
	}

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.payoutRepo.WithTx(tx).Create(ctx, p); err != nil {
			return err
		}
		if err := p.MarkFailed(reason); err != nil {
			return err
		}
		if err := s.payoutRepo.WithTx(tx).Update(ctx, p); err != nil {
			return err
		}
		return s.addOutbox(ctx, tx, shared.EventPayoutFailed, p, shared.PayoutFailedEvent{
			PayoutID: p.ID,
			WalletID: p.WalletID,
			Amount:   p.Amount,
			Reason:   reason,
			FailedAt: p.UpdatedAt,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to record rejected payout %s: %w", req.IdempotencyKey, err)
	}
	return nil
}

// begin creates the payout record and debits the wallet in one transaction.
func (s *GatewayPayoutService) begin(ctx context.Context, req *shared.PayoutRequestedEvent) (*payout.Payout, error) {
	p, err := payout.NewPayout(req.WalletID, req.EscrowID, req.Amount, req.Currency, req.Destination, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	err = s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.payoutRepo.WithTx(tx).Create(ctx, p); err != nil {
			return err
		}

		if _, err := s.engine.Post(ctx, tx, engine.PostRequest{
			WalletID:       req.WalletID,
			Amount:         -req.Amount,
			Type:           shared.TransactionTypePayout,
			ReferenceType:  shared.ReferenceTypePayout,
			ReferenceID:    p.ID,
			IdempotencyKey: "debit:" + req.IdempotencyKey,
			CorrelationID:  req.CorrelationID,
		}); err != nil {
			return err
		}

		if err := p.MarkProcessing(); err != nil {
			return err
		}
		return s.payoutRepo.WithTx(tx).Update(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start payout: %w", err)
	}
	return p, nil
}

// complete finalizes a successful payout and publishes the completion event
// through the outbox.
func (s *GatewayPayoutService) complete(ctx context.Context, p *payout.Payout, externalRef string) error {
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := p.MarkCompleted(externalRef); err != nil {
			return err
		}
		if err := s.payoutRepo.WithTx(tx).Update(ctx, p); err != nil {
			return err
		}
		return s.addOutbox(ctx, tx, shared.EventPayoutCompleted, p, shared.PayoutCompletedEvent{
			PayoutID:    p.ID,
			WalletID:    p.WalletID,
			Amount:      p.Amount,
			ExternalRef: externalRef,
			CompletedAt: p.UpdatedAt,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to complete payout %s: %w", p.ID, err)
	}
	return nil
}

// fail credits the debited amount back and marks the payout failed.
func (s *GatewayPayoutService) fail(ctx context.Context, p *payout.Payout, reason string) error {
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.engine.Post(ctx, tx, engine.PostRequest{
			WalletID:       p.WalletID,
			Amount:         p.Amount,
			Type:           shared.TransactionTypeCredit,
			ReferenceType:  shared.ReferenceTypePayout,
			ReferenceID:    p.ID,
			IdempotencyKey: "reversal:" + p.IdempotencyKey,
		}); err != nil {
			return err
		}

		if err := p.MarkFailed(reason); err != nil {
			return err
		}
		if err := s.payoutRepo.WithTx(tx).Update(ctx, p); err != nil {
			return err
		}
		return s.addOutbox(ctx, tx, shared.EventPayoutFailed, p, shared.PayoutFailedEvent{
			PayoutID: p.ID,
			WalletID: p.WalletID,
			Amount:   p.Amount,
			Reason:   reason,
			FailedAt: p.UpdatedAt,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to compensate payout %s: %w", p.ID, err)
	}
	return nil
}

func (s *GatewayPayoutService) addOutbox(ctx context.Context, tx pgx.Tx, eventType shared.EventType, p *payout.Payout, payload any) error {
	msg, err := outbox.NewMessage(eventType, shared.AggregateTypePayout, p.ID, p.IdempotencyKey, payload)
	if err != nil {
		return err
	}
	return s.outboxRepo.WithTx(tx).Create(ctx, msg)
}
