// Package payout records the release of wallet funds to an external
// destination through the payment gateway.
package payout

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidAmount     = errors.New("payout amount must be positive")
	ErrInvalidTransition = errors.New("invalid payout state transition")
)

// Status defines payout lifecycle states
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Payout tracks one transfer of wallet funds to an external destination.
type Payout struct {
	ID             uuid.UUID `json:"id"`
	WalletID       uuid.UUID `json:"wallet_id"`
	EscrowID       uuid.UUID `json:"escrow_id"`
	Amount         int64     `json:"amount"` // Stored in minor units
	Currency       string    `json:"currency"`
	Destination    string    `json:"destination,omitempty"`
	Status         Status    `json:"status"`
	ExternalRef    string    `json:"external_ref,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewPayout creates a pending payout request.
func NewPayout(walletID, escrowID uuid.UUID, amount int64, currency, destination, idempotencyKey string) (*Payout, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	return &Payout{
		ID:             uuid.New(),
		WalletID:       walletID,
		EscrowID:       escrowID,
		Amount:         amount,
		Currency:       currency,
		Destination:    destination,
		Status:         StatusPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// MarkProcessing records that the gateway call is in flight.
func (p *Payout) MarkProcessing() error {
	if p.Status != StatusPending {
		return ErrInvalidTransition
	}
	p.Status = StatusProcessing
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCompleted records the gateway's external reference. Terminal.
func (p *Payout) MarkCompleted(externalRef string) error {
	if p.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	p.Status = StatusCompleted
	p.ExternalRef = externalRef
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed records a terminal failure after compensation.
func (p *Payout) MarkFailed(reason string) error {
	if p.Status == StatusCompleted {
		return ErrInvalidTransition
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// IsTerminal reports whether the payout reached a final state.
func (p *Payout) IsTerminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}
