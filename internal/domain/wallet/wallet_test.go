package wallet

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketplace-settlement/internal/domain/shared"
)

func TestNewWallet(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		w, err := NewWallet(uuid.New(), "USD")
		require.NoError(t, err)
		assert.Equal(t, int64(0), w.Balance)
		assert.False(t, w.IsLocked)
		assert.Equal(t, 1, w.Version)
	})

	t.Run("bad currency", func(t *testing.T) {
		_, err := NewWallet(uuid.New(), "US")
		assert.ErrorIs(t, err, ErrInvalidCurrencyFormat)
	})
}

func TestWallet_Apply(t *testing.T) {
	t.Run("credit updates balance and total earned", func(t *testing.T) {
		w, _ := NewWallet(uuid.New(), "USD")

		require.NoError(t, w.Apply(380, shared.TransactionTypeRelease))
		assert.Equal(t, int64(380), w.Balance)
		assert.Equal(t, int64(380), w.TotalEarned)
	})

	t.Run("payout debit updates total withdrawn", func(t *testing.T) {
		w, _ := NewWallet(uuid.New(), "USD")
		require.NoError(t, w.Apply(500, shared.TransactionTypeCredit))

		require.NoError(t, w.Apply(-200, shared.TransactionTypePayout))
		assert.Equal(t, int64(300), w.Balance)
		assert.Equal(t, int64(200), w.TotalWithdrawn)
	})

	t.Run("debit updates total spent", func(t *testing.T) {
		w, _ := NewWallet(uuid.New(), "USD")
		require.NoError(t, w.Apply(500, shared.TransactionTypeCredit))

		require.NoError(t, w.Apply(-100, shared.TransactionTypeDebit))
		assert.Equal(t, int64(400), w.Balance)
		assert.Equal(t, int64(100), w.TotalSpent)
	})

	t.Run("overdraft rejected", func(t *testing.T) {
		w, _ := NewWallet(uuid.New(), "USD")
		require.NoError(t, w.Apply(100, shared.TransactionTypeCredit))

		err := w.Apply(-200, shared.TransactionTypePayout)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, int64(100), w.Balance)
	})

	t.Run("sign mismatch rejected", func(t *testing.T) {
		w, _ := NewWallet(uuid.New(), "USD")

		assert.ErrorIs(t, w.Apply(-100, shared.TransactionTypeCredit), ErrAmountSignMismatch)
		assert.ErrorIs(t, w.Apply(100, shared.TransactionTypePayout), ErrAmountSignMismatch)
		assert.ErrorIs(t, w.Apply(0, shared.TransactionTypeCredit), ErrAmountSignMismatch)
	})

	t.Run("locked wallet rejects posts", func(t *testing.T) {
		w, _ := NewWallet(uuid.New(), "USD")
		w.Freeze()

		assert.True(t, w.IsLocked)
		assert.ErrorIs(t, w.Apply(100, shared.TransactionTypeCredit), ErrWalletLocked)
	})

	t.Run("version bumps on every apply", func(t *testing.T) {
		w, _ := NewWallet(uuid.New(), "USD")
		require.NoError(t, w.Apply(100, shared.TransactionTypeCredit))
		require.NoError(t, w.Apply(-50, shared.TransactionTypeDebit))
		assert.Equal(t, 3, w.Version)
	})
}
