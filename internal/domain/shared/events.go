package shared

import (
	"time"

	"github.com/google/uuid"
)

// Outbox event payloads. These are the wire contracts persisted in the
// outbox table and handed to the job queue; consumers deduplicate on
// (aggregate id, event type) because delivery is at-least-once.

// EscrowFundedEvent is published when buyer funds land in escrow.
type EscrowFundedEvent struct {
	EscrowID         uuid.UUID `json:"escrow_id"`
	BuyerID          uuid.UUID `json:"buyer_id"`
	SellerID         uuid.UUID `json:"seller_id"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	PaymentReference string    `json:"payment_reference"`
	FundedAt         time.Time `json:"funded_at"`
}

// MilestoneReleasedEvent is published when held funds are released to the
// seller, including the fee split applied.
type MilestoneReleasedEvent struct {
	EscrowID      uuid.UUID `json:"escrow_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	Amount        int64     `json:"amount"`
	SellerAmount  int64     `json:"seller_amount"`
	PlatformFee   int64     `json:"platform_fee"`
	Currency      string    `json:"currency"`
	HeldRemaining int64     `json:"held_remaining"`
	ReleasedAt    time.Time `json:"released_at"`
}

// EscrowRefundedEvent is published when held funds are returned to the buyer.
type EscrowRefundedEvent struct {
	EscrowID   uuid.UUID `json:"escrow_id"`
	BuyerID    uuid.UUID `json:"buyer_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Reason     string    `json:"reason"`
	RefundedAt time.Time `json:"refunded_at"`
}

// DisputeOpenedEvent is published when an escrow is frozen by a dispute.
type DisputeOpenedEvent struct {
	EscrowID   uuid.UUID `json:"escrow_id"`
	Initiator  uuid.UUID `json:"initiator"`
	Reason     string    `json:"reason"`
	HeldAmount int64     `json:"held_amount"`
	OpenedAt   time.Time `json:"opened_at"`
}

// DisputeResolvedEvent is published when a resolution splits the frozen
// held amount between seller and buyer.
type DisputeResolvedEvent struct {
	EscrowID      uuid.UUID `json:"escrow_id"`
	Resolver      uuid.UUID `json:"resolver"`
	ReleaseAmount int64     `json:"release_amount"`
	RefundAmount  int64     `json:"refund_amount"`
	ResolvedAt    time.Time `json:"resolved_at"`
}

// PayoutRequestedEvent asks the payout processor to move wallet funds to an
// external destination. IdempotencyKey makes redelivered requests safe.
type PayoutRequestedEvent struct {
	WalletID       uuid.UUID `json:"wallet_id"`
	EscrowID       uuid.UUID `json:"escrow_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Destination    string    `json:"destination,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
}

// PayoutCompletedEvent reports a finished payout with the gateway reference.
type PayoutCompletedEvent struct {
	PayoutID    uuid.UUID `json:"payout_id"`
	WalletID    uuid.UUID `json:"wallet_id"`
	Amount      int64     `json:"amount"`
	ExternalRef string    `json:"external_ref"`
	CompletedAt time.Time `json:"completed_at"`
}

// PayoutFailedEvent reports a payout that failed and was compensated.
type PayoutFailedEvent struct {
	PayoutID uuid.UUID `json:"payout_id"`
	WalletID uuid.UUID `json:"wallet_id"`
	Amount   int64     `json:"amount"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}
