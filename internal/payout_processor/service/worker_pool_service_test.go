package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marketplace-settlement/internal/domain/shared"
)

// MockPayoutService mocks the PayoutService interface
type MockPayoutService struct {
	mock.Mock
}

func (m *MockPayoutService) ProcessPayout(ctx context.Context, req *shared.PayoutRequestedEvent) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func poolRequest() *shared.PayoutRequestedEvent {
	return &shared.PayoutRequestedEvent{
		WalletID:       uuid.New(),
		EscrowID:       uuid.New(),
		Amount:         10000,
		Currency:       "USD",
		Destination:    "acct_1",
		IdempotencyKey: "payout:" + uuid.NewString(),
		CorrelationID:  "corr-1",
	}
}

func TestWorkerPoolPayoutService_ProcessPayout(t *testing.T) {
	mockBaseService := &MockPayoutService{}
	logger := slog.Default()

	workerPoolService, err := NewWorkerPoolPayoutService(
		mockBaseService,
		WorkerPoolConfig{Size: 2},
		logger,
	)
	require.NoError(t, err)
	defer workerPoolService.Shutdown()

	t.Run("successful processing", func(t *testing.T) {
		req := poolRequest()
		mockBaseService.On("ProcessPayout", mock.Anything, mock.MatchedBy(func(r *shared.PayoutRequestedEvent) bool {
			return r.IdempotencyKey == req.IdempotencyKey
		})).Return(nil).Once()

		err := workerPoolService.ProcessPayout(context.Background(), req)
		assert.NoError(t, err)
	})

	t.Run("processing error propagates to caller", func(t *testing.T) {
		req := poolRequest()
		processingErr := errors.New("gateway timeout")
		mockBaseService.On("ProcessPayout", mock.Anything, mock.MatchedBy(func(r *shared.PayoutRequestedEvent) bool {
			return r.IdempotencyKey == req.IdempotencyKey
		})).Return(processingErr).Once()

		err := workerPoolService.ProcessPayout(context.Background(), req)
		assert.ErrorIs(t, err, processingErr)
	})

	mockBaseService.AssertExpectations(t)
}

func TestWorkerPoolPayoutService_ConcurrentPayouts(t *testing.T) {
	mockBaseService := &MockPayoutService{}

	workerPoolService, err := NewWorkerPoolPayoutService(
		mockBaseService,
		WorkerPoolConfig{Size: 4},
		slog.Default(),
	)
	require.NoError(t, err)
	defer workerPoolService.Shutdown()

	const payouts = 12
	mockBaseService.On("ProcessPayout", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			time.Sleep(10 * time.Millisecond)
		}).
		Return(nil).Times(payouts)

	var wg sync.WaitGroup
	errs := make(chan error, payouts)
	for i := 0; i < payouts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- workerPoolService.ProcessPayout(context.Background(), poolRequest())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	mockBaseService.AssertExpectations(t)
}

func TestWorkerPoolPayoutService_Capacity(t *testing.T) {
	workerPoolService, err := NewWorkerPoolPayoutService(
		&MockPayoutService{},
		WorkerPoolConfig{Size: 3},
		slog.Default(),
	)
	require.NoError(t, err)
	defer workerPoolService.Shutdown()

	assert.Equal(t, 3, workerPoolService.Capacity())
	assert.Zero(t, workerPoolService.Running())
}
