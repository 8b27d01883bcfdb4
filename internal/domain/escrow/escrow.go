// Package escrow owns the lifecycle of one hold of buyer funds: fund,
// partial release, refund, dispute and resolution. All transitions are
// validated in memory on the entity and persisted under a row lock, so a
// transition can never race past the held-amount check.
package escrow

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidAmount     = errors.New("escrow amount must be positive")
	ErrInvalidTransition = errors.New("invalid escrow state transition")
	ErrAlreadyFunded     = errors.New("escrow already funded with a different payment reference")
	ErrInsufficientHeld  = errors.New("amount exceeds held escrow funds")
	ErrDisputed          = errors.New("escrow is frozen by an open dispute")
	ErrNotDisputed       = errors.New("escrow has no open dispute")
	ErrInvalidResolution = errors.New("resolution amounts must sum to the held amount")
	ErrInvariantBroken   = errors.New("escrow amount conservation violated")
)

// Status defines the escrow lifecycle states.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusFunded            Status = "FUNDED"
	StatusPartiallyReleased Status = "PARTIALLY_RELEASED"
	StatusReleased          Status = "RELEASED"
	StatusRefunded          Status = "REFUNDED"
	StatusDisputed          Status = "DISPUTED"
)

// Escrow holds buyer funds for one order or project milestone.
// Invariant: Amount == HeldAmount + ReleasedAmount + RefundedAmount at
// every observable point, all four non-negative.
type Escrow struct {
	ID                uuid.UUID  `json:"id"`
	BuyerID           uuid.UUID  `json:"buyer_id"`
	SellerID          uuid.UUID  `json:"seller_id"`
	Amount            int64      `json:"amount"` // Stored in minor units
	HeldAmount        int64      `json:"held_amount"`
	ReleasedAmount    int64      `json:"released_amount"`
	RefundedAmount    int64      `json:"refunded_amount"`
	Currency          string     `json:"currency"`
	Status            Status     `json:"status"`
	PaymentReference  string     `json:"payment_reference,omitempty"`
	ReleaseConditions string     `json:"release_conditions,omitempty"`
	DisputedBy        *uuid.UUID `json:"disputed_by,omitempty"`
	DisputeReason     string     `json:"dispute_reason,omitempty"`
	DisputedAt        *time.Time `json:"disputed_at,omitempty"`
	AutoReleaseAt     *time.Time `json:"auto_release_at,omitempty"`
	Version           int        `json:"version"` // For optimistic locking
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewEscrow creates a pending, unfunded escrow.
func NewEscrow(buyerID, sellerID uuid.UUID, amount int64, currency, releaseConditions string, autoReleaseAt *time.Time) (*Escrow, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(currency) != 3 {
		return nil, errors.New("currency must be a 3-letter code")
	}

	now := time.Now().UTC()
	return &Escrow{
		ID:                uuid.New(),
		BuyerID:           buyerID,
		SellerID:          sellerID,
		Amount:            amount,
		HeldAmount:        0,
		Currency:          currency,
		Status:            StatusPending,
		ReleaseConditions: releaseConditions,
		AutoReleaseAt:     autoReleaseAt,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Fund moves a pending escrow to Funded once the buyer's payment captured.
// A retry carrying the payment reference already recorded is a no-op and
// reports alreadyFunded=true; any other reference on a funded escrow is an
// error.
func (e *Escrow) Fund(paymentReference string) (alreadyFunded bool, err error) {
	if e.Status != StatusPending {
		if e.PaymentReference != "" && e.PaymentReference == paymentReference {
			return true, nil
		}
		if e.Status == StatusFunded {
			return false, ErrAlreadyFunded
		}
		return false, ErrInvalidTransition
	}

	e.HeldAmount = e.Amount
	e.PaymentReference = paymentReference
	e.Status = StatusFunded
	e.touch()
	return false, e.checkInvariant()
}

// Release moves amount from held to released. Terminal when the hold is
// emptied: Released if nothing was ever refunded, Refunded otherwise.
func (e *Escrow) Release(amount int64) error {
	if err := e.disbursable(amount); err != nil {
		return err
	}

	e.HeldAmount -= amount
	e.ReleasedAmount += amount
	e.settleStatus(false)
	e.touch()
	return e.checkInvariant()
}

// Refund moves amount from held back toward the buyer. Terminal Refunded
// once the hold is emptied, regardless of prior partial releases.
func (e *Escrow) Refund(amount int64) error {
	if err := e.disbursable(amount); err != nil {
		return err
	}

	e.HeldAmount -= amount
	e.RefundedAmount += amount
	e.settleStatus(true)
	e.touch()
	return e.checkInvariant()
}

// Dispute freezes the remaining hold. Allowed only while funds are still
// disbursable.
func (e *Escrow) Dispute(initiator uuid.UUID, reason string) error {
	if e.Status == StatusDisputed {
		return ErrDisputed
	}
	if (e.Status != StatusFunded && e.Status != StatusPartiallyReleased) || e.HeldAmount <= 0 {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	e.Status = StatusDisputed
	e.DisputedBy = &initiator
	e.DisputeReason = reason
	e.DisputedAt = &now
	e.touch()
	return e.checkInvariant()
}

// Resolve exits a dispute by splitting the entire frozen hold between a
// release to the seller and a refund to the buyer. Both effects apply
// atomically; the escrow lands on the terminal status implied by the split.
func (e *Escrow) Resolve(releaseAmount, refundAmount int64) error {
	if e.Status != StatusDisputed {
		return ErrNotDisputed
	}
	if releaseAmount < 0 || refundAmount < 0 || releaseAmount+refundAmount != e.HeldAmount {
		return ErrInvalidResolution
	}

	e.HeldAmount = 0
	e.ReleasedAmount += releaseAmount
	e.RefundedAmount += refundAmount
	if refundAmount > 0 {
		e.Status = StatusRefunded
	} else {
		e.Status = StatusReleased
	}
	e.touch()
	return e.checkInvariant()
}

// IsTerminal reports whether no further disbursement is possible.
func (e *Escrow) IsTerminal() bool {
	return e.Status == StatusReleased || e.Status == StatusRefunded
}

func (e *Escrow) disbursable(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if e.Status == StatusDisputed {
		return ErrDisputed
	}
	if e.Status != StatusFunded && e.Status != StatusPartiallyReleased {
		return ErrInvalidTransition
	}
	if amount > e.HeldAmount {
		return ErrInsufficientHeld
	}
	return nil
}

func (e *Escrow) settleStatus(refundPath bool) {
	if e.HeldAmount > 0 {
		e.Status = StatusPartiallyReleased
		return
	}
	if refundPath || e.RefundedAmount > 0 {
		e.Status = StatusRefunded
	} else {
		e.Status = StatusReleased
	}
}

func (e *Escrow) touch() {
	e.UpdatedAt = time.Now().UTC()
	e.Version++
}

// checkInvariant verifies amount conservation after a mutation. A failure
// here is fatal for the escrow and must halt further mutation.
func (e *Escrow) checkInvariant() error {
	if e.HeldAmount < 0 || e.ReleasedAmount < 0 || e.RefundedAmount < 0 {
		return ErrInvariantBroken
	}
	if e.Amount != e.HeldAmount+e.ReleasedAmount+e.RefundedAmount && e.Status != StatusPending {
		return ErrInvariantBroken
	}
	return nil
}
