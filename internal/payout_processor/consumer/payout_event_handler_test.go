package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marketplace-settlement/internal/domain/shared"
)

// MockPayoutService for testing
type MockPayoutService struct {
	mock.Mock
}

func (m *MockPayoutService) ProcessPayout(ctx context.Context, req *shared.PayoutRequestedEvent) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// MockDLQProducer for testing
type MockDLQProducer struct {
	mock.Mock
}

func (m *MockDLQProducer) PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error {
	args := m.Called(ctx, key, originalMessageValue, reason)
	return args.Error(0)
}

func (m *MockDLQProducer) Close() error {
	args := m.Called()
	return args.Error(0)
}

func validRequest(t *testing.T) (*shared.PayoutRequestedEvent, []byte) {
	t.Helper()
	req := &shared.PayoutRequestedEvent{
		WalletID:       uuid.New(),
		EscrowID:       uuid.New(),
		Amount:         95000,
		Currency:       "USD",
		Destination:    "acct_1",
		IdempotencyKey: "payout:" + uuid.NewString(),
	}
	value, err := json.Marshal(req)
	require.NoError(t, err)
	return req, value
}

func TestHandleMessage_Success(t *testing.T) {
	svc := &MockPayoutService{}
	dlq := &MockDLQProducer{}
	handler := NewPayoutEventHandler(slog.Default(), svc, dlq, 5)

	req, value := validRequest(t)

	svc.On("ProcessPayout", mock.Anything, mock.MatchedBy(func(r *shared.PayoutRequestedEvent) bool {
		return r.IdempotencyKey == req.IdempotencyKey && r.Amount == req.Amount
	})).Return(nil).Once()

	err := handler.HandleMessage(context.Background(), []byte("key-1"), value)
	require.NoError(t, err)

	svc.AssertExpectations(t)
	dlq.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMessage_ProcessingFailureAllowsRedelivery(t *testing.T) {
	svc := &MockPayoutService{}
	handler := NewPayoutEventHandler(slog.Default(), svc, &MockDLQProducer{}, 5)

	_, value := validRequest(t)

	svc.On("ProcessPayout", mock.Anything, mock.Anything).
		Return(errors.New("gateway timeout")).Once()

	err := handler.HandleMessage(context.Background(), []byte("key-1"), value)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway timeout")
}

func TestHandleMessage_ExhaustedRetriesGoToDLQ(t *testing.T) {
	svc := &MockPayoutService{}
	dlq := &MockDLQProducer{}
	handler := NewPayoutEventHandler(slog.Default(), svc, dlq, 3)

	_, value := validRequest(t)

	svc.On("ProcessPayout", mock.Anything, mock.Anything).
		Return(errors.New("gateway timeout")).Times(3)
	dlq.On("PublishToDLQ", mock.Anything, "key-9", value, mock.MatchedBy(func(reason string) bool {
		return reason != ""
	})).Return(nil).Once()

	// The first redeliveries surface the error so the offset stays put.
	require.Error(t, handler.HandleMessage(context.Background(), []byte("key-9"), value))
	require.Error(t, handler.HandleMessage(context.Background(), []byte("key-9"), value))

	// The final attempt parks the message instead of blocking the partition.
	require.NoError(t, handler.HandleMessage(context.Background(), []byte("key-9"), value))

	svc.AssertExpectations(t)
	dlq.AssertExpectations(t)

	// A later request under the same key starts with a clean attempt count.
	svc.On("ProcessPayout", mock.Anything, mock.Anything).
		Return(errors.New("gateway timeout")).Once()
	require.Error(t, handler.HandleMessage(context.Background(), []byte("key-9"), value))
}

func TestHandleMessage_SuccessResetsAttemptCount(t *testing.T) {
	svc := &MockPayoutService{}
	dlq := &MockDLQProducer{}
	handler := NewPayoutEventHandler(slog.Default(), svc, dlq, 2)

	_, value := validRequest(t)

	svc.On("ProcessPayout", mock.Anything, mock.Anything).
		Return(errors.New("gateway timeout")).Once()
	svc.On("ProcessPayout", mock.Anything, mock.Anything).
		Return(nil).Once()

	require.Error(t, handler.HandleMessage(context.Background(), []byte("key-10"), value))
	require.NoError(t, handler.HandleMessage(context.Background(), []byte("key-10"), value))

	// The resumed payout settled, so nothing was dead-lettered.
	dlq.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMessage_UnparseableGoesToDLQ(t *testing.T) {
	svc := &MockPayoutService{}
	dlq := &MockDLQProducer{}
	handler := NewPayoutEventHandler(slog.Default(), svc, dlq, 5)

	value := []byte("{not json")

	dlq.On("PublishToDLQ", mock.Anything, "key-2", value, mock.MatchedBy(func(reason string) bool {
		return reason != ""
	})).Return(nil).Once()

	// DLQ accepted the message, so the offset commits.
	err := handler.HandleMessage(context.Background(), []byte("key-2"), value)
	require.NoError(t, err)

	dlq.AssertExpectations(t)
	svc.AssertNotCalled(t, "ProcessPayout", mock.Anything, mock.Anything)
}

func TestHandleMessage_InvalidAmountGoesToDLQ(t *testing.T) {
	svc := &MockPayoutService{}
	dlq := &MockDLQProducer{}
	handler := NewPayoutEventHandler(slog.Default(), svc, dlq, 5)

	req, _ := validRequest(t)
	req.Amount = 0
	value, err := json.Marshal(req)
	require.NoError(t, err)

	dlq.On("PublishToDLQ", mock.Anything, "key-3", value, mock.Anything).Return(nil).Once()

	require.NoError(t, handler.HandleMessage(context.Background(), []byte("key-3"), value))

	svc.AssertNotCalled(t, "ProcessPayout", mock.Anything, mock.Anything)
}

func TestHandleMessage_DLQFailureAllowsRedelivery(t *testing.T) {
	svc := &MockPayoutService{}
	dlq := &MockDLQProducer{}
	handler := NewPayoutEventHandler(slog.Default(), svc, dlq, 5)

	value := []byte("{not json")

	dlq.On("PublishToDLQ", mock.Anything, "key-4", value, mock.Anything).
		Return(errors.New("dlq unavailable")).Once()

	err := handler.HandleMessage(context.Background(), []byte("key-4"), value)
	require.Error(t, err)
}
