package escrow

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFundedEscrow(t *testing.T, amount int64) *Escrow {
	t.Helper()
	e, err := NewEscrow(uuid.New(), uuid.New(), amount, "USD", "on delivery", nil)
	require.NoError(t, err)
	already, err := e.Fund("pay-ref-1")
	require.NoError(t, err)
	require.False(t, already)
	return e
}

func assertConservation(t *testing.T, e *Escrow) {
	t.Helper()
	assert.Equal(t, e.Amount, e.HeldAmount+e.ReleasedAmount+e.RefundedAmount)
	assert.GreaterOrEqual(t, e.HeldAmount, int64(0))
	assert.GreaterOrEqual(t, e.ReleasedAmount, int64(0))
	assert.GreaterOrEqual(t, e.RefundedAmount, int64(0))
}

func TestNewEscrow(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		deadline := time.Now().Add(72 * time.Hour)
		e, err := NewEscrow(uuid.New(), uuid.New(), 1000, "USD", "milestone 1", &deadline)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, e.Status)
		assert.Equal(t, int64(1000), e.Amount)
		assert.Equal(t, int64(0), e.HeldAmount)
		assert.Equal(t, 1, e.Version)
		assert.NotNil(t, e.AutoReleaseAt)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		_, err := NewEscrow(uuid.New(), uuid.New(), 0, "USD", "", nil)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = NewEscrow(uuid.New(), uuid.New(), -100, "USD", "", nil)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestEscrow_Fund(t *testing.T) {
	t.Run("pending to funded", func(t *testing.T) {
		e, err := NewEscrow(uuid.New(), uuid.New(), 1000, "USD", "", nil)
		require.NoError(t, err)

		already, err := e.Fund("pay-1")
		require.NoError(t, err)
		assert.False(t, already)
		assert.Equal(t, StatusFunded, e.Status)
		assert.Equal(t, int64(1000), e.HeldAmount)
		assertConservation(t, e)
	})

	t.Run("retry with same payment reference is a no-op", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)
		versionBefore := e.Version

		already, err := e.Fund("pay-ref-1")
		require.NoError(t, err)
		assert.True(t, already)
		assert.Equal(t, versionBefore, e.Version)
		assert.Equal(t, int64(1000), e.HeldAmount)
	})

	t.Run("different payment reference on funded escrow fails", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)
		_, err := e.Fund("pay-ref-2")
		assert.ErrorIs(t, err, ErrAlreadyFunded)
	})

	t.Run("fund after release fails", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)
		require.NoError(t, e.Release(1000))

		_, err := e.Fund("pay-ref-3")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestEscrow_Release(t *testing.T) {
	t.Run("partial release", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)

		require.NoError(t, e.Release(400))
		assert.Equal(t, StatusPartiallyReleased, e.Status)
		assert.Equal(t, int64(600), e.HeldAmount)
		assert.Equal(t, int64(400), e.ReleasedAmount)
		assertConservation(t, e)
	})

	t.Run("full release is terminal", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)

		require.NoError(t, e.Release(400))
		require.NoError(t, e.Release(600))
		assert.Equal(t, StatusReleased, e.Status)
		assert.Equal(t, int64(0), e.HeldAmount)
		assert.True(t, e.IsTerminal())
		assertConservation(t, e)
	})

	t.Run("release beyond held fails", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)
		require.NoError(t, e.Release(600))

		err := e.Release(600)
		assert.ErrorIs(t, err, ErrInsufficientHeld)
		assert.Equal(t, int64(400), e.HeldAmount)
		assertConservation(t, e)
	})

	t.Run("release on pending escrow fails", func(t *testing.T) {
		e, err := NewEscrow(uuid.New(), uuid.New(), 1000, "USD", "", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, e.Release(100), ErrInvalidTransition)
	})

	t.Run("non-positive amount fails", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)
		assert.ErrorIs(t, e.Release(0), ErrInvalidAmount)
		assert.ErrorIs(t, e.Release(-50), ErrInvalidAmount)
	})
}

func TestEscrow_Refund(t *testing.T) {
	t.Run("full refund is terminal", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)

		require.NoError(t, e.Refund(1000))
		assert.Equal(t, StatusRefunded, e.Status)
		assert.Equal(t, int64(0), e.HeldAmount)
		assertConservation(t, e)
	})

	t.Run("refund after partial release keeps released amount", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)

		require.NoError(t, e.Release(300))
		require.NoError(t, e.Refund(700))
		assert.Equal(t, StatusRefunded, e.Status)
		assert.Equal(t, int64(300), e.ReleasedAmount)
		assert.Equal(t, int64(700), e.RefundedAmount)
		assertConservation(t, e)
	})

	t.Run("release emptying hold after a partial refund ends refunded", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)

		require.NoError(t, e.Refund(200))
		require.NoError(t, e.Release(800))
		assert.Equal(t, StatusRefunded, e.Status)
		assertConservation(t, e)
	})
}

func TestEscrow_Dispute(t *testing.T) {
	t.Run("freezes funded escrow", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)
		initiator := e.BuyerID

		require.NoError(t, e.Dispute(initiator, "not delivered"))
		assert.Equal(t, StatusDisputed, e.Status)
		require.NotNil(t, e.DisputedBy)
		assert.Equal(t, initiator, *e.DisputedBy)

		assert.ErrorIs(t, e.Release(100), ErrDisputed)
		assert.ErrorIs(t, e.Refund(100), ErrDisputed)
	})

	t.Run("allowed from partially released state", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)
		require.NoError(t, e.Release(400))

		assert.NoError(t, e.Dispute(e.SellerID, "quality"))
	})

	t.Run("rejected on pending or terminal escrow", func(t *testing.T) {
		pending, err := NewEscrow(uuid.New(), uuid.New(), 500, "USD", "", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, pending.Dispute(pending.BuyerID, "x"), ErrInvalidTransition)

		released := newFundedEscrow(t, 500)
		require.NoError(t, released.Release(500))
		assert.ErrorIs(t, released.Dispute(released.BuyerID, "x"), ErrInvalidTransition)
	})

	t.Run("double dispute rejected", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)
		require.NoError(t, e.Dispute(e.BuyerID, "first"))
		assert.ErrorIs(t, e.Dispute(e.SellerID, "second"), ErrDisputed)
	})
}

func TestEscrow_Resolve(t *testing.T) {
	t.Run("split resolution empties hold", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)
		require.NoError(t, e.Release(400))
		require.NoError(t, e.Dispute(e.BuyerID, "late"))

		require.NoError(t, e.Resolve(200, 400))
		assert.Equal(t, int64(0), e.HeldAmount)
		assert.Equal(t, int64(600), e.ReleasedAmount)
		assert.Equal(t, int64(400), e.RefundedAmount)
		assert.Equal(t, StatusRefunded, e.Status)
		assertConservation(t, e)
	})

	t.Run("all to seller ends released", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)
		require.NoError(t, e.Dispute(e.BuyerID, "late"))

		require.NoError(t, e.Resolve(1000, 0))
		assert.Equal(t, StatusReleased, e.Status)
		assertConservation(t, e)
	})

	t.Run("amounts must sum to held", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)
		require.NoError(t, e.Dispute(e.BuyerID, "late"))

		assert.ErrorIs(t, e.Resolve(600, 500), ErrInvalidResolution)
		assert.ErrorIs(t, e.Resolve(-100, 1100), ErrInvalidResolution)
	})

	t.Run("resolve without dispute rejected", func(t *testing.T) {
		e := newFundedEscrow(t, 1000)
		assert.ErrorIs(t, e.Resolve(1000, 0), ErrNotDisputed)
	})
}
