// Package wallet models a user's spendable funds. Balances are mutated only
// through the ledger engine's post path; nothing else assigns balance fields.
package wallet

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/marketplace-settlement/internal/domain/shared"
)

// Common errors
var (
	ErrInsufficientFunds      = errors.New("insufficient funds in wallet")
	ErrWalletLocked           = errors.New("wallet is locked pending reconciliation")
	ErrInvalidCurrencyFormat  = errors.New("currency must be a 3-letter code")
	ErrAmountSignMismatch     = errors.New("amount sign does not match transaction type")
	ErrReconciliationMismatch = errors.New("wallet balance does not match ledger fold")
)

// Wallet tracks one user's funds in a single currency.
type Wallet struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Balance        int64     `json:"balance"` // Stored in minor units
	PendingBalance int64     `json:"pending_balance"`
	HeldBalance    int64     `json:"held_balance"`
	TotalEarned    int64     `json:"total_earned"`
	TotalWithdrawn int64     `json:"total_withdrawn"`
	TotalSpent     int64     `json:"total_spent"`
	Currency       string    `json:"currency"`
	IsLocked       bool      `json:"is_locked"`
	Version        int       `json:"version"` // For optimistic locking
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewWallet creates an empty wallet for a user.
func NewWallet(userID uuid.UUID, currency string) (*Wallet, error) {
	if len(currency) != 3 {
		return nil, ErrInvalidCurrencyFormat
	}

	now := time.Now().UTC()
	return &Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Currency:  currency,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Apply posts a signed amount of the given type against the balance and
// lifetime totals. Callers (the ledger engine) hold the wallet's row lock.
// Overdraft is never permitted; payout debits in particular must fail
// rather than drive the balance negative.
func (w *Wallet) Apply(amount int64, txType shared.TransactionType) error {
	if w.IsLocked {
		return ErrWalletLocked
	}
	if txType.IsCredit() && amount <= 0 {
		return ErrAmountSignMismatch
	}
	if txType.IsDebit() && amount >= 0 {
		return ErrAmountSignMismatch
	}
	if w.Balance+amount < 0 {
		return ErrInsufficientFunds
	}

	w.Balance += amount
	switch txType {
	case shared.TransactionTypeCredit, shared.TransactionTypeRelease, shared.TransactionTypeFee:
		w.TotalEarned += amount
	case shared.TransactionTypeDebit:
		w.TotalSpent += -amount
	case shared.TransactionTypePayout:
		w.TotalWithdrawn += -amount
	case shared.TransactionTypeHold:
		w.HeldBalance += -amount
	}

	w.UpdatedAt = time.Now().UTC()
	w.Version++
	return nil
}

// Freeze marks the wallet locked; further posts fail until an operator
// investigates the recorded mismatch.
func (w *Wallet) Freeze() {
	w.IsLocked = true
	w.UpdatedAt = time.Now().UTC()
	w.Version++
}
