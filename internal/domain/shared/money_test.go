package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitFee(t *testing.T) {
	tests := []struct {
		name         string
		amount       int64
		feeBps       int64
		wantSeller   int64
		wantFee      int64
		wantErr      error
	}{
		{name: "five percent of 400", amount: 400, feeBps: 500, wantSeller: 380, wantFee: 20},
		{name: "five percent of 1000", amount: 1000, feeBps: 500, wantSeller: 950, wantFee: 50},
		{name: "zero fee rate", amount: 1000, feeBps: 0, wantSeller: 1000, wantFee: 0},
		{name: "full fee rate", amount: 1000, feeBps: 10000, wantSeller: 0, wantFee: 1000},
		{name: "sub-unit fee rounds down", amount: 1, feeBps: 500, wantSeller: 1, wantFee: 0},
		// 250 * 500 / 10000 = 12.5 -> half to even -> 12
		{name: "half rounds to even down", amount: 250, feeBps: 500, wantSeller: 238, wantFee: 12},
		// 350 * 500 / 10000 = 17.5 -> half to even -> 18
		{name: "half rounds to even up", amount: 350, feeBps: 500, wantSeller: 332, wantFee: 18},
		{name: "zero amount", amount: 0, feeBps: 500, wantErr: ErrInvalidAmount},
		{name: "negative amount", amount: -5, feeBps: 500, wantErr: ErrInvalidAmount},
		{name: "negative fee rate", amount: 100, feeBps: -1, wantErr: ErrInvalidFeeRate},
		{name: "fee rate above 100 percent", amount: 100, feeBps: 10001, wantErr: ErrInvalidFeeRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seller, fee, err := SplitFee(tt.amount, tt.feeBps)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantSeller, seller)
			assert.Equal(t, tt.wantFee, fee)
			// The split must conserve the requested amount exactly.
			assert.Equal(t, tt.amount, seller+fee)
		})
	}
}

func TestTransactionTypeSigns(t *testing.T) {
	credits := []TransactionType{TransactionTypeCredit, TransactionTypeRelease, TransactionTypeFee}
	debits := []TransactionType{TransactionTypeDebit, TransactionTypeHold, TransactionTypePayout}

	for _, typ := range credits {
		assert.True(t, typ.IsCredit(), "%s should be a credit", typ)
		assert.False(t, typ.IsDebit(), "%s should not be a debit", typ)
	}
	for _, typ := range debits {
		assert.True(t, typ.IsDebit(), "%s should be a debit", typ)
		assert.False(t, typ.IsCredit(), "%s should not be a credit", typ)
	}
}
