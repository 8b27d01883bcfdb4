// Package shared holds the enums, event payloads and money arithmetic that
// cross component boundaries in the settlement core.
package shared

import "errors"

var (
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidFeeRate  = errors.New("fee rate must be between 0 and 10000 basis points")
	ErrInvalidCurrency = errors.New("currency must be a 3-letter code")
	ErrUnknownIntent   = errors.New("unknown settlement intent")
)

// Intent identifies a settlement operation executed by the saga orchestrator.
type Intent string

const (
	IntentFund             Intent = "FUND"
	IntentReleaseMilestone Intent = "RELEASE_MILESTONE"
	IntentReleaseAll       Intent = "RELEASE_ALL"
	IntentRefund           Intent = "REFUND"
	IntentDispute          Intent = "DISPUTE"
	IntentResolve          Intent = "RESOLVE"
)

// TransactionType classifies a wallet balance mutation. The sign of the
// mutation is implied by the type: credit types carry positive amounts,
// debit types negative ones.
type TransactionType string

const (
	TransactionTypeCredit  TransactionType = "CREDIT"
	TransactionTypeDebit   TransactionType = "DEBIT"
	TransactionTypeHold    TransactionType = "HOLD"
	TransactionTypeRelease TransactionType = "RELEASE"
	TransactionTypeFee     TransactionType = "FEE"
	TransactionTypePayout  TransactionType = "PAYOUT"
)

// IsCredit reports whether the type moves money into the wallet.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionTypeCredit, TransactionTypeRelease, TransactionTypeFee:
		return true
	}
	return false
}

// IsDebit reports whether the type moves money out of the wallet.
func (t TransactionType) IsDebit() bool {
	switch t {
	case TransactionTypeDebit, TransactionTypeHold, TransactionTypePayout:
		return true
	}
	return false
}

// TransactionStatus defines ledger entry states.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// ReferenceType names the aggregate a ledger entry points back to.
// Entries reference aggregates by id only, never by owning pointer.
type ReferenceType string

const (
	ReferenceTypeEscrow  ReferenceType = "ESCROW"
	ReferenceTypePayment ReferenceType = "PAYMENT"
	ReferenceTypePayout  ReferenceType = "PAYOUT"
	ReferenceTypeDispute ReferenceType = "DISPUTE"
)

// EventType identifies an outbox event published to the job queue.
type EventType string

const (
	EventEscrowFunded      EventType = "escrow_funded"
	EventMilestoneReleased EventType = "milestone_released"
	EventEscrowRefunded    EventType = "escrow_refunded"
	EventDisputeOpened     EventType = "dispute_opened"
	EventDisputeResolved   EventType = "dispute_resolved"
	EventPayoutRequested   EventType = "payout_requested"
	EventPayoutCompleted   EventType = "payout_completed"
	EventPayoutFailed      EventType = "payout_failed"
)

// AggregateTypeEscrow and friends name outbox aggregate kinds.
const (
	AggregateTypeEscrow = "ESCROW"
	AggregateTypeWallet = "WALLET"
	AggregateTypePayout = "PAYOUT"
)
