package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketplace-settlement/internal/domain/escrow"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func escrowRows(e *escrow.Escrow) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "buyer_id", "seller_id", "amount", "held_amount", "released_amount", "refunded_amount",
		"currency", "status", "payment_reference", "release_conditions", "disputed_by", "dispute_reason",
		"disputed_at", "auto_release_at", "version", "created_at", "updated_at",
	}).AddRow(
		e.ID, e.BuyerID, e.SellerID, e.Amount, e.HeldAmount, e.ReleasedAmount, e.RefundedAmount,
		e.Currency, e.Status, e.PaymentReference, e.ReleaseConditions, e.DisputedBy, e.DisputeReason,
		e.DisputedAt, e.AutoReleaseAt, e.Version, e.CreatedAt, e.UpdatedAt,
	)
}

func TestEscrowRepository_Create(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &EscrowRepository{querier: mock, logger: logger}

	e, err := escrow.NewEscrow(uuid.New(), uuid.New(), 10000, "USD", "delivery confirmed", nil)
	require.NoError(t, err)

	query := `INSERT INTO escrows`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(e.ID, e.BuyerID, e.SellerID, e.Amount, e.HeldAmount, e.ReleasedAmount, e.RefundedAmount,
				e.Currency, e.Status, e.PaymentReference, e.ReleaseConditions, e.DisputedBy, e.DisputeReason,
				e.DisputedAt, e.AutoReleaseAt, e.Version, e.CreatedAt, e.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := repo.Create(ctx, e)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectExec(query).
			WithArgs(e.ID, e.BuyerID, e.SellerID, e.Amount, e.HeldAmount, e.ReleasedAmount, e.RefundedAmount,
				e.Currency, e.Status, e.PaymentReference, e.ReleaseConditions, e.DisputedBy, e.DisputeReason,
				e.DisputedAt, e.AutoReleaseAt, e.Version, e.CreatedAt, e.UpdatedAt).
			WillReturnError(expectedErr)

		err := repo.Create(ctx, e)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create escrow")
		assert.ErrorIs(t, err, expectedErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEscrowRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &EscrowRepository{querier: mock, logger: logger}

	e, err := escrow.NewEscrow(uuid.New(), uuid.New(), 10000, "USD", "", nil)
	require.NoError(t, err)

	query := `SELECT (.+) FROM escrows WHERE id = \$1`

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(e.ID).
			WillReturnRows(escrowRows(e))

		got, err := repo.GetByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, e.Amount, got.Amount)
		assert.Equal(t, escrow.StatusPending, got.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		missingID := uuid.New()
		mock.ExpectQuery(query).
			WithArgs(missingID).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByID(ctx, missingID)
		require.Error(t, err)
		var notFoundErr escrow.ErrEscrowNotFound
		assert.ErrorAs(t, err, &notFoundErr)
		assert.Equal(t, missingID, notFoundErr.EscrowID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEscrowRepository_Update(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &EscrowRepository{querier: mock, logger: logger}

	e, err := escrow.NewEscrow(uuid.New(), uuid.New(), 10000, "USD", "", nil)
	require.NoError(t, err)
	alreadyFunded, err := e.Fund("pay_abc")
	require.NoError(t, err)
	require.False(t, alreadyFunded)

	query := `UPDATE escrows`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(e.HeldAmount, e.ReleasedAmount, e.RefundedAmount, e.Status,
				e.PaymentReference, e.DisputedBy, e.DisputeReason, e.DisputedAt,
				e.AutoReleaseAt, e.Version, e.UpdatedAt, e.ID, e.Version-1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.Update(ctx, e)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent modification", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(e.HeldAmount, e.ReleasedAmount, e.RefundedAmount, e.Status,
				e.PaymentReference, e.DisputedBy, e.DisputeReason, e.DisputedAt,
				e.AutoReleaseAt, e.Version, e.UpdatedAt, e.ID, e.Version-1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Update(ctx, e)
		require.Error(t, err)
		var concurrentErr escrow.ErrConcurrentModification
		assert.ErrorAs(t, err, &concurrentErr)
		assert.Equal(t, e.ID, concurrentErr.EscrowID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEscrowRepository_ListAutoReleasable(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &EscrowRepository{querier: mock, logger: logger}

	deadline := time.Now().Add(-time.Hour)
	e, err := escrow.NewEscrow(uuid.New(), uuid.New(), 10000, "USD", "", &deadline)
	require.NoError(t, err)
	_, err = e.Fund("pay_xyz")
	require.NoError(t, err)

	now := time.Now()
	query := `SELECT (.+) FROM escrows WHERE status IN`

	mock.ExpectQuery(query).
		WithArgs(escrow.StatusFunded, escrow.StatusPartiallyReleased, now, 50).
		WillReturnRows(escrowRows(e))

	escrows, err := repo.ListAutoReleasable(ctx, now, 50)
	require.NoError(t, err)
	require.Len(t, escrows, 1)
	assert.Equal(t, e.ID, escrows[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
