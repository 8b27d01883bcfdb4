package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/marketplace-settlement/internal/domain/escrow"
	"github.com/marketplace-settlement/internal/domain/outbox"
	"github.com/marketplace-settlement/internal/domain/shared"
	"github.com/marketplace-settlement/internal/domain/wallet"
	"github.com/marketplace-settlement/internal/platform/gateway"
	"github.com/marketplace-settlement/internal/settlement/engine"
)

// TxRunner runs a function inside a database transaction.
// persistence.PostgresDB satisfies this.
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// IdempotencyCache short-circuits replayed intents with the recorded result.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config carries the settlement policy knobs the orchestrator needs
type Config struct {
	PlatformWalletID   uuid.UUID
	DefaultFeeBps      int64
	MaxConflictRetries int
	GatewayTimeout     time.Duration
	CacheTTL           time.Duration
}

// Result is the outcome of a settlement intent. It is what the caller sees
// and what the idempotency cache replays.
type Result struct {
	Intent         shared.Intent `json:"intent"`
	EscrowID       uuid.UUID     `json:"escrow_id"`
	EscrowStatus   escrow.Status `json:"escrow_status"`
	HeldAmount     int64         `json:"held_amount"`
	ReleasedAmount int64         `json:"released_amount"`
	RefundedAmount int64         `json:"refunded_amount"`
	SellerAmount   int64         `json:"seller_amount,omitempty"`
	PlatformFee    int64         `json:"platform_fee,omitempty"`
	Replayed       bool          `json:"replayed,omitempty"`
}

// Orchestrator executes settlement intents as sagas. Escrow and wallet
// mutations happen inside one database transaction per intent; gateway
// calls run as separate steps with their own compensations.
type Orchestrator struct {
	logger     *slog.Logger
	db         TxRunner
	escrowRepo escrow.Repository
	engine     *engine.LedgerEngine
	outboxRepo outbox.Repository
	gateway    gateway.PaymentGateway
	cache      IdempotencyCache
	cfg        Config
}

// NewOrchestrator wires the orchestrator
func NewOrchestrator(
	logger *slog.Logger,
	db TxRunner,
	escrowRepo escrow.Repository,
	eng *engine.LedgerEngine,
	outboxRepo outbox.Repository,
	gw gateway.PaymentGateway,
	cache IdempotencyCache,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		logger:     logger,
		db:         db,
		escrowRepo: escrowRepo,
		engine:     eng,
		outboxRepo: outboxRepo,
		gateway:    gw,
		cache:      cache,
		cfg:        cfg,
	}
}

// Execute runs one settlement intent. A replayed idempotency key returns
// the cached result of the first execution without re-running the saga.
func (o *Orchestrator) Execute(ctx context.Context, intent shared.Intent, payload json.RawMessage) (*Result, error) {
	idemKey, err := extractIdempotencyKey(payload)
	if err != nil {
		return nil, err
	}

	cacheKey := string(intent) + ":" + idemKey
	if cached := o.cachedResult(ctx, cacheKey); cached != nil {
		cached.Replayed = true
		return cached, nil
	}

	var result *Result
	switch intent {
	case shared.IntentFund:
		result, err = o.executeFund(ctx, payload)
	case shared.IntentReleaseMilestone:
		result, err = o.executeRelease(ctx, payload, false)
	case shared.IntentReleaseAll:
		result, err = o.executeRelease(ctx, payload, true)
	case shared.IntentRefund:
		result, err = o.executeRefund(ctx, payload)
	case shared.IntentDispute:
		result, err = o.executeDispute(ctx, payload)
	case shared.IntentResolve:
		result, err = o.executeResolve(ctx, payload)
	default:
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownIntent, intent)
	}
	if err != nil {
		return nil, err
	}

	o.storeResult(ctx, cacheKey, result)
	return result, nil
}

func (o *Orchestrator) executeFund(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var p FundPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid fund payload: %w", err)
	}

	var (
		esc          *escrow.Escrow
		chargeResult *gateway.Result
		final        *escrow.Escrow
	)

	// One charge key per escrow; the gateway deduplicates retried charges.
	chargeKey := "fund:" + p.EscrowID.String()

	steps := []Step{
		{
			Name: "validate escrow",
			Run: func(ctx context.Context) error {
				e, err := o.escrowRepo.GetByID(ctx, p.EscrowID)
				if err != nil {
					return err
				}
				if e.Status != escrow.StatusPending && e.Status != escrow.StatusFunded {
					return fmt.Errorf("%w: cannot fund escrow in status %s", escrow.ErrInvalidTransition, e.Status)
				}
				esc = e
				return nil
			},
		},
		{
			Name: "charge buyer",
			Run: func(ctx context.Context) error {
				callCtx, cancel := context.WithTimeout(ctx, o.cfg.GatewayTimeout)
				defer cancel()

				result, err := o.gateway.Charge(callCtx, gateway.ChargeRequest{
					BuyerID:        esc.BuyerID.String(),
					Amount:         esc.Amount,
					Currency:       esc.Currency,
					IdempotencyKey: chargeKey,
				})
				if err != nil {
					return err
				}
				chargeResult = result
				return nil
			},
			Compensate: func(ctx context.Context) error {
				callCtx, cancel := context.WithTimeout(ctx, o.cfg.GatewayTimeout)
				defer cancel()

				_, err := o.gateway.Refund(callCtx, gateway.RefundRequest{
					PaymentReference: chargeResult.Reference,
					Amount:           esc.Amount,
					Currency:         esc.Currency,
					IdempotencyKey:   "fund-reversal:" + p.EscrowID.String(),
				})
				return err
			},
		},
		{
			Name: "apply fund",
			Run: func(ctx context.Context) error {
				return o.runTx(ctx, func(tx pgx.Tx) error {
					escrowRepo := o.escrowRepo.WithTx(tx)

					e, err := escrowRepo.LockForUpdate(ctx, p.EscrowID)
					if err != nil {
						return err
					}

					alreadyFunded, err := e.Fund(chargeResult.Reference)
					if err != nil {
						return err
					}
					final = e
					if alreadyFunded {
						return nil
					}

					if err := escrowRepo.Update(ctx, e); err != nil {
						return err
					}

					return o.addOutbox(ctx, tx, shared.EventEscrowFunded, e.ID, p.IdempotencyKey, shared.EscrowFundedEvent{
						EscrowID:         e.ID,
						BuyerID:          e.BuyerID,
						SellerID:         e.SellerID,
						Amount:           e.Amount,
						Currency:         e.Currency,
						PaymentReference: e.PaymentReference,
						FundedAt:         e.UpdatedAt,
					})
				})
			},
		},
	}

	if _, err := Execute(ctx, o.logger, shared.IntentFund, steps); err != nil {
		return nil, err
	}

	return newResult(shared.IntentFund, final), nil
}

func (o *Orchestrator) executeRelease(ctx context.Context, payload json.RawMessage, all bool) (*Result, error) {
	var p ReleasePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid release payload: %w", err)
	}

	intent := shared.IntentReleaseMilestone
	if all {
		intent = shared.IntentReleaseAll
	}

	var (
		final        *escrow.Escrow
		sellerAmount int64
		platformFee  int64
	)

	steps := []Step{
		{
			Name: "apply release",
			Run: func(ctx context.Context) error {
				return o.runTx(ctx, func(tx pgx.Tx) error {
					escrowRepo := o.escrowRepo.WithTx(tx)

					e, err := escrowRepo.LockForUpdate(ctx, p.EscrowID)
					if err != nil {
						return err
					}

					amount := p.Amount
					if all {
						amount = e.HeldAmount
					}

					sellerAmount, platformFee, err = shared.SplitFee(amount, o.feeBps(p.FeeBps))
					if err != nil {
						return err
					}

					if err := e.Release(amount); err != nil {
						return err
					}

					sellerWallet, err := o.engine.EnsureWallet(ctx, tx, e.SellerID, e.Currency)
					if err != nil {
						return err
					}

					sellerTxn, err := o.engine.Post(ctx, tx, engine.PostRequest{
						WalletID:       sellerWallet.ID,
						Amount:         sellerAmount,
						Type:           shared.TransactionTypeRelease,
						ReferenceType:  shared.ReferenceTypeEscrow,
						ReferenceID:    e.ID,
						IdempotencyKey: "release:" + p.IdempotencyKey,
						CorrelationID:  p.IdempotencyKey,
					})
					if err != nil {
						return err
					}

					if platformFee > 0 {
						if _, err := o.engine.Post(ctx, tx, engine.PostRequest{
							WalletID:       o.cfg.PlatformWalletID,
							Amount:         platformFee,
							Type:           shared.TransactionTypeFee,
							ReferenceType:  shared.ReferenceTypeEscrow,
							ReferenceID:    e.ID,
							IdempotencyKey: "fee:" + p.IdempotencyKey,
							CorrelationID:  p.IdempotencyKey,
						}); err != nil {
							return err
						}
					}

					if err := escrowRepo.Update(ctx, e); err != nil {
						return err
					}
					final = e

					if err := o.addOutbox(ctx, tx, shared.EventMilestoneReleased, e.ID, p.IdempotencyKey, shared.MilestoneReleasedEvent{
						EscrowID:      e.ID,
						BuyerID:       e.BuyerID,
						SellerID:      e.SellerID,
						Amount:        amount,
						SellerAmount:  sellerAmount,
						PlatformFee:   platformFee,
						Currency:      e.Currency,
						HeldRemaining: e.HeldAmount,
						ReleasedAt:    e.UpdatedAt,
					}); err != nil {
						return err
					}

					// An emptied escrow with auto-payout sweeps the seller
					// wallet to their external destination.
					if e.HeldAmount == 0 && p.AutoPayout {
						return o.addOutbox(ctx, tx, shared.EventPayoutRequested, e.ID, p.IdempotencyKey, shared.PayoutRequestedEvent{
							WalletID:       sellerWallet.ID,
							EscrowID:       e.ID,
							Amount:         sellerTxn.BalanceAfter,
							Currency:       e.Currency,
							Destination:    p.PayoutDestination,
							IdempotencyKey: "payout:" + e.ID.String(),
							CorrelationID:  p.IdempotencyKey,
						})
					}
					return nil
				})
			},
		},
	}

	if _, err := Execute(ctx, o.logger, intent, steps); err != nil {
		return nil, err
	}

	result := newResult(intent, final)
	result.SellerAmount = sellerAmount
	result.PlatformFee = platformFee
	return result, nil
}

func (o *Orchestrator) executeRefund(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var p RefundPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid refund payload: %w", err)
	}

	var final *escrow.Escrow

	steps := []Step{
		{
			Name: "apply refund",
			Run: func(ctx context.Context) error {
				return o.runTx(ctx, func(tx pgx.Tx) error {
					escrowRepo := o.escrowRepo.WithTx(tx)

					e, err := escrowRepo.LockForUpdate(ctx, p.EscrowID)
					if err != nil {
						return err
					}

					if err := e.Refund(p.Amount); err != nil {
						return err
					}

					buyerWallet, err := o.engine.EnsureWallet(ctx, tx, e.BuyerID, e.Currency)
					if err != nil {
						return err
					}

					if _, err := o.engine.Post(ctx, tx, engine.PostRequest{
						WalletID:       buyerWallet.ID,
						Amount:         p.Amount,
						Type:           shared.TransactionTypeCredit,
						ReferenceType:  shared.ReferenceTypeEscrow,
						ReferenceID:    e.ID,
						IdempotencyKey: "refund:" + p.IdempotencyKey,
						CorrelationID:  p.IdempotencyKey,
					}); err != nil {
						return err
					}

					if err := escrowRepo.Update(ctx, e); err != nil {
						return err
					}
					final = e

					return o.addOutbox(ctx, tx, shared.EventEscrowRefunded, e.ID, p.IdempotencyKey, shared.EscrowRefundedEvent{
						EscrowID:   e.ID,
						BuyerID:    e.BuyerID,
						Amount:     p.Amount,
						Currency:   e.Currency,
						Reason:     p.Reason,
						RefundedAt: e.UpdatedAt,
					})
				})
			},
		},
	}

	if _, err := Execute(ctx, o.logger, shared.IntentRefund, steps); err != nil {
		return nil, err
	}

	return newResult(shared.IntentRefund, final), nil
}

func (o *Orchestrator) executeDispute(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var p DisputePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid dispute payload: %w", err)
	}

	var final *escrow.Escrow

	steps := []Step{
		{
			Name: "apply dispute",
			Run: func(ctx context.Context) error {
				return o.runTx(ctx, func(tx pgx.Tx) error {
					escrowRepo := o.escrowRepo.WithTx(tx)

					e, err := escrowRepo.LockForUpdate(ctx, p.EscrowID)
					if err != nil {
						return err
					}

					if err := e.Dispute(p.InitiatorID, p.Reason); err != nil {
						return err
					}

					if err := escrowRepo.Update(ctx, e); err != nil {
						return err
					}
					final = e

					return o.addOutbox(ctx, tx, shared.EventDisputeOpened, e.ID, p.IdempotencyKey, shared.DisputeOpenedEvent{
						EscrowID:   e.ID,
						Initiator:  p.InitiatorID,
						Reason:     p.Reason,
						HeldAmount: e.HeldAmount,
						OpenedAt:   e.UpdatedAt,
					})
				})
			},
		},
	}

	if _, err := Execute(ctx, o.logger, shared.IntentDispute, steps); err != nil {
		return nil, err
	}

	return newResult(shared.IntentDispute, final), nil
}

func (o *Orchestrator) executeResolve(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var p ResolvePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid resolve payload: %w", err)
	}

	var (
		final        *escrow.Escrow
		sellerAmount int64
		platformFee  int64
	)

	steps := []Step{
		{
			Name: "apply resolution",
			Run: func(ctx context.Context) error {
				return o.runTx(ctx, func(tx pgx.Tx) error {
					escrowRepo := o.escrowRepo.WithTx(tx)

					e, err := escrowRepo.LockForUpdate(ctx, p.EscrowID)
					if err != nil {
						return err
					}

					if err := e.Resolve(p.ReleaseAmount, p.RefundAmount); err != nil {
						return err
					}

					if p.ReleaseAmount > 0 {
						sellerAmount, platformFee, err = shared.SplitFee(p.ReleaseAmount, o.feeBps(p.FeeBps))
						if err != nil {
							return err
						}

						sellerWallet, err := o.engine.EnsureWallet(ctx, tx, e.SellerID, e.Currency)
						if err != nil {
							return err
						}

						if _, err := o.engine.Post(ctx, tx, engine.PostRequest{
							WalletID:       sellerWallet.ID,
							Amount:         sellerAmount,
							Type:           shared.TransactionTypeRelease,
							ReferenceType:  shared.ReferenceTypeDispute,
							ReferenceID:    e.ID,
							IdempotencyKey: "resolve-release:" + p.IdempotencyKey,
							CorrelationID:  p.IdempotencyKey,
						}); err != nil {
							return err
						}

						if platformFee > 0 {
							if _, err := o.engine.Post(ctx, tx, engine.PostRequest{
								WalletID:       o.cfg.PlatformWalletID,
								Amount:         platformFee,
								Type:           shared.TransactionTypeFee,
								ReferenceType:  shared.ReferenceTypeDispute,
								ReferenceID:    e.ID,
								IdempotencyKey: "resolve-fee:" + p.IdempotencyKey,
								CorrelationID:  p.IdempotencyKey,
							}); err != nil {
								return err
							}
						}
					}

					if p.RefundAmount > 0 {
						buyerWallet, err := o.engine.EnsureWallet(ctx, tx, e.BuyerID, e.Currency)
						if err != nil {
							return err
						}

						if _, err := o.engine.Post(ctx, tx, engine.PostRequest{
							WalletID:       buyerWallet.ID,
							Amount:         p.RefundAmount,
							Type:           shared.TransactionTypeCredit,
							ReferenceType:  shared.ReferenceTypeDispute,
							ReferenceID:    e.ID,
							IdempotencyKey: "resolve-refund:" + p.IdempotencyKey,
							CorrelationID:  p.IdempotencyKey,
						}); err != nil {
							return err
						}
					}

					if err := escrowRepo.Update(ctx, e); err != nil {
						return err
					}
					final = e

					return o.addOutbox(ctx, tx, shared.EventDisputeResolved, e.ID, p.IdempotencyKey, shared.DisputeResolvedEvent{
						EscrowID:      e.ID,
						Resolver:      p.ResolverID,
						ReleaseAmount: p.ReleaseAmount,
						RefundAmount:  p.RefundAmount,
						ResolvedAt:    e.UpdatedAt,
					})
				})
			},
		},
	}

	if _, err := Execute(ctx, o.logger, shared.IntentResolve, steps); err != nil {
		return nil, err
	}

	result := newResult(shared.IntentResolve, final)
	result.SellerAmount = sellerAmount
	result.PlatformFee = platformFee
	return result, nil
}

// runTx executes fn in a transaction, retrying a bounded number of times on
// optimistic lock conflicts. The row locks make conflicts rare; the retry
// keeps the occasional loser invisible to callers.
func (o *Orchestrator) runTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt <= o.cfg.MaxConflictRetries; attempt++ {
		err = o.db.ExecuteTx(ctx, fn)
		if err == nil || !isConflict(err) {
			return err
		}
		o.logger.Warn("Settlement transaction hit a concurrent modification, retrying",
			"attempt", attempt+1,
			"error", err,
		)
	}
	return err
}

func isConflict(err error) bool {
	var escrowConflict escrow.ErrConcurrentModification
	var walletConflict wallet.ErrConcurrentModification
	return errors.As(err, &escrowConflict) || errors.As(err, &walletConflict)
}

func (o *Orchestrator) addOutbox(ctx context.Context, tx pgx.Tx, eventType shared.EventType, escrowID uuid.UUID, correlationID string, payload any) error {
	msg, err := outbox.NewMessage(eventType, shared.AggregateTypeEscrow, escrowID, correlationID, payload)
	if err != nil {
		return err
	}
	return o.outboxRepo.WithTx(tx).Create(ctx, msg)
}

func (o *Orchestrator) feeBps(override *int64) int64 {
	if override != nil {
		return *override
	}
	return o.cfg.DefaultFeeBps
}

func (o *Orchestrator) cachedResult(ctx context.Context, key string) *Result {
	if o.cache == nil {
		return nil
	}
	data, err := o.cache.Get(ctx, key)
	if err != nil {
		o.logger.Warn("Idempotency cache lookup failed", "key", key, "error", err)
		return nil
	}
	if data == nil {
		return nil
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		o.logger.Warn("Idempotency cache entry is corrupt, ignoring", "key", key, "error", err)
		return nil
	}
	return &result
}

func (o *Orchestrator) storeResult(ctx context.Context, key string, result *Result) {
	if o.cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := o.cache.Set(ctx, key, data, o.cfg.CacheTTL); err != nil {
		o.logger.Warn("Idempotency cache store failed", "key", key, "error", err)
	}
}

func newResult(intent shared.Intent, e *escrow.Escrow) *Result {
	return &Result{
		Intent:         intent,
		EscrowID:       e.ID,
		EscrowStatus:   e.Status,
		HeldAmount:     e.HeldAmount,
		ReleasedAmount: e.ReleasedAmount,
		RefundedAmount: e.RefundedAmount,
	}
}

func extractIdempotencyKey(payload json.RawMessage) (string, error) {
	var probe struct {
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return "", fmt.Errorf("invalid intent payload: %w", err)
	}
	if probe.IdempotencyKey == "" {
		return "", fmt.Errorf("intent payload requires an idempotency key")
	}
	return probe.IdempotencyKey, nil
}
