package saga

import (
	"github.com/google/uuid"
)

// Intent payloads. FeeBps is a pointer so callers can distinguish "use the
// platform default" (nil) from an explicit zero-fee release.

// FundPayload charges the buyer and moves the escrow to Funded.
type FundPayload struct {
	EscrowID       uuid.UUID `json:"escrow_id"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// ReleasePayload releases part or all of the held amount to the seller.
// Amount is ignored for the ReleaseAll intent, which always drains the
// escrow. AutoPayout requests an external payout of the seller balance when
// the release empties the escrow.
type ReleasePayload struct {
	EscrowID          uuid.UUID `json:"escrow_id"`
	Amount            int64     `json:"amount,omitempty"`
	FeeBps            *int64    `json:"fee_bps,omitempty"`
	MilestoneID       string    `json:"milestone_id,omitempty"`
	AutoPayout        bool      `json:"auto_payout,omitempty"`
	PayoutDestination string    `json:"payout_destination,omitempty"`
	IdempotencyKey    string    `json:"idempotency_key"`
}

// RefundPayload returns part or all of the held amount to the buyer.
type RefundPayload struct {
	EscrowID       uuid.UUID `json:"escrow_id"`
	Amount         int64     `json:"amount"`
	Reason         string    `json:"reason,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// DisputePayload freezes the escrow pending resolution.
type DisputePayload struct {
	EscrowID       uuid.UUID `json:"escrow_id"`
	InitiatorID    uuid.UUID `json:"initiator_id"`
	Reason         string    `json:"reason"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// ResolvePayload splits the full held amount between seller and buyer.
type ResolvePayload struct {
	EscrowID       uuid.UUID `json:"escrow_id"`
	ReleaseAmount  int64     `json:"release_amount"`
	RefundAmount   int64     `json:"refund_amount"`
	FeeBps         *int64    `json:"fee_bps,omitempty"`
	ResolverID     uuid.UUID `json:"resolver_id"`
	IdempotencyKey string    `json:"idempotency_key"`
}
