package handler

import "time"

// CreateEscrowRequest represents a request to open a new escrow
type CreateEscrowRequest struct {
	BuyerID           string     `json:"buyer_id" binding:"required,uuid"`
	SellerID          string     `json:"seller_id" binding:"required,uuid"`
	Amount            int64      `json:"amount" binding:"required,gt=0"`
	Currency          string     `json:"currency" binding:"required,len=3"`
	ReleaseConditions string     `json:"release_conditions,omitempty"`
	AutoReleaseAt     *time.Time `json:"auto_release_at,omitempty"`
}

// EscrowResponse represents an escrow in API responses
type EscrowResponse struct {
	ID                string     `json:"id"`
	BuyerID           string     `json:"buyer_id"`
	SellerID          string     `json:"seller_id"`
	Amount            int64      `json:"amount"`
	HeldAmount        int64      `json:"held_amount"`
	ReleasedAmount    int64      `json:"released_amount"`
	RefundedAmount    int64      `json:"refunded_amount"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	ReleaseConditions string     `json:"release_conditions,omitempty"`
	DisputeReason     string     `json:"dispute_reason,omitempty"`
	AutoReleaseAt     *time.Time `json:"auto_release_at,omitempty"`
	CreatedAt         string     `json:"created_at"`
	UpdatedAt         string     `json:"updated_at"`
}

// FundEscrowRequest collects the buyer's payment into the escrow
type FundEscrowRequest struct {
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ReleaseEscrowRequest releases held funds to the seller. Amount is ignored
// when ReleaseAll is set.
type ReleaseEscrowRequest struct {
	Amount            int64  `json:"amount,omitempty" binding:"omitempty,gt=0"`
	ReleaseAll        bool   `json:"release_all,omitempty"`
	FeeBps            *int64 `json:"fee_bps,omitempty" binding:"omitempty,min=0,max=10000"`
	MilestoneID       string `json:"milestone_id,omitempty"`
	AutoPayout        bool   `json:"auto_payout,omitempty"`
	PayoutDestination string `json:"payout_destination,omitempty"`
	IdempotencyKey    string `json:"idempotency_key,omitempty"`
}

// RefundEscrowRequest returns held funds to the buyer
type RefundEscrowRequest struct {
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Reason         string `json:"reason,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// DisputeEscrowRequest freezes the escrow pending resolution
type DisputeEscrowRequest struct {
	InitiatorID    string `json:"initiator_id" binding:"required,uuid"`
	Reason         string `json:"reason" binding:"required"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ResolveEscrowRequest settles a disputed escrow by splitting the held
// amount between seller and buyer
type ResolveEscrowRequest struct {
	ReleaseAmount  int64  `json:"release_amount" binding:"min=0"`
	RefundAmount   int64  `json:"refund_amount" binding:"min=0"`
	FeeBps         *int64 `json:"fee_bps,omitempty" binding:"omitempty,min=0,max=10000"`
	ResolverID     string `json:"resolver_id" binding:"required,uuid"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// SettlementResultResponse reports the outcome of a settlement operation
type SettlementResultResponse struct {
	Intent         string `json:"intent"`
	EscrowID       string `json:"escrow_id"`
	EscrowStatus   string `json:"escrow_status"`
	HeldAmount     int64  `json:"held_amount"`
	ReleasedAmount int64  `json:"released_amount"`
	RefundedAmount int64  `json:"refunded_amount"`
	SellerAmount   int64  `json:"seller_amount,omitempty"`
	PlatformFee    int64  `json:"platform_fee,omitempty"`
	Replayed       bool   `json:"replayed,omitempty"`
}

// WalletResponse represents a wallet in API responses
type WalletResponse struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	Balance        int64  `json:"balance"`
	Currency       string `json:"currency"`
	IsLocked       bool   `json:"is_locked"`
	TotalEarned    int64  `json:"total_earned"`
	TotalSpent     int64  `json:"total_spent"`
	TotalWithdrawn int64  `json:"total_withdrawn"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// TransactionResponse represents a ledger entry in API responses
type TransactionResponse struct {
	ID             string `json:"id"`
	WalletID       string `json:"wallet_id"`
	Amount         int64  `json:"amount"`
	BalanceBefore  int64  `json:"balance_before"`
	BalanceAfter   int64  `json:"balance_after"`
	Type           string `json:"type"`
	ReferenceType  string `json:"reference_type"`
	ReferenceID    string `json:"reference_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

// TransactionListResponse represents a ledger history page
type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

// PayoutResponse represents a payout in API responses
type PayoutResponse struct {
	ID             string `json:"id"`
	WalletID       string `json:"wallet_id"`
	EscrowID       string `json:"escrow_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Destination    string `json:"destination,omitempty"`
	Status         string `json:"status"`
	ExternalRef    string `json:"external_ref,omitempty"`
	FailureReason  string `json:"failure_reason,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// EventResponse represents an archived settlement event in API responses
type EventResponse struct {
	EventID       int64       `json:"event_id"`
	EventType     string      `json:"event_type"`
	AggregateType string      `json:"aggregate_type"`
	AggregateID   string      `json:"aggregate_id"`
	Payload       interface{} `json:"payload"`
	DeliveredAt   string      `json:"delivered_at"`
}

// EventListResponse represents a page of archived settlement events
type EventListResponse struct {
	Events []EventResponse `json:"events"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}
