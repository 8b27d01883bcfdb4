// Package ledger defines the append-only record of wallet balance
// mutations. For a given wallet, folding entries in creation order through
// their balance_before -> balance_after chain reproduces the stored balance.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketplace-settlement/internal/domain/shared"
)

// Transaction is an immutable record of one balance mutation.
type Transaction struct {
	ID             uuid.UUID                `json:"id"`
	WalletID       uuid.UUID                `json:"wallet_id"`
	Amount         int64                    `json:"amount"` // Signed, in minor units
	BalanceBefore  int64                    `json:"balance_before"`
	BalanceAfter   int64                    `json:"balance_after"`
	Type           shared.TransactionType   `json:"type"`
	ReferenceType  shared.ReferenceType     `json:"reference_type"`
	ReferenceID    uuid.UUID                `json:"reference_id"`
	IdempotencyKey string                   `json:"idempotency_key,omitempty"`
	CorrelationID  string                   `json:"correlation_id,omitempty"`
	Status         shared.TransactionStatus `json:"status"`
	CreatedAt      time.Time                `json:"created_at"`
}

// ChainValid reports whether the entry's own balance arithmetic holds.
func (t *Transaction) ChainValid() bool {
	return t.BalanceAfter == t.BalanceBefore+t.Amount
}
