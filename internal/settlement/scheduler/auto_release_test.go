package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marketplace-settlement/internal/config"
	"github.com/marketplace-settlement/internal/domain/escrow"
	"github.com/marketplace-settlement/internal/domain/shared"
	"github.com/marketplace-settlement/internal/settlement/saga"
)

type MockEscrowRepository struct {
	mock.Mock
}

func (m *MockEscrowRepository) Create(ctx context.Context, e *escrow.Escrow) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockEscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Escrow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Escrow), args.Error(1)
}

func (m *MockEscrowRepository) Update(ctx context.Context, e *escrow.Escrow) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockEscrowRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*escrow.Escrow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Escrow), args.Error(1)
}

func (m *MockEscrowRepository) ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]*escrow.Escrow, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*escrow.Escrow), args.Error(1)
}

func (m *MockEscrowRepository) WithTx(tx pgx.Tx) escrow.Repository {
	return m
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, intent shared.Intent, payload json.RawMessage) (*saga.Result, error) {
	args := m.Called(ctx, intent, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*saga.Result), args.Error(1)
}

func dueEscrow(t *testing.T) *escrow.Escrow {
	t.Helper()
	at := time.Now().UTC().Add(-time.Hour)
	e, err := escrow.NewEscrow(uuid.New(), uuid.New(), 50000, "USD", "auto", &at)
	require.NoError(t, err)
	return e
}

func newScheduler(repo *MockEscrowRepository, executor *MockExecutor) *AutoReleaseScheduler {
	cfg := &config.SchedulerConfig{Interval: time.Minute, BatchSize: 50}
	return NewAutoReleaseScheduler(slog.Default(), cfg, repo, executor)
}

func TestSweep_ReleasesDueEscrows(t *testing.T) {
	repo := &MockEscrowRepository{}
	executor := &MockExecutor{}

	first := dueEscrow(t)
	second := dueEscrow(t)

	repo.On("ListAutoReleasable", mock.Anything, mock.Anything, 50).
		Return([]*escrow.Escrow{first, second}, nil).Once()

	matchPayload := func(e *escrow.Escrow) interface{} {
		return mock.MatchedBy(func(raw json.RawMessage) bool {
			var p saga.ReleasePayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return false
			}
			return p.EscrowID == e.ID && p.IdempotencyKey == "autorelease:"+e.ID.String()
		})
	}

	executor.On("Execute", mock.Anything, shared.IntentReleaseAll, matchPayload(first)).
		Return(&saga.Result{Intent: shared.IntentReleaseAll, EscrowID: first.ID}, nil).Once()
	executor.On("Execute", mock.Anything, shared.IntentReleaseAll, matchPayload(second)).
		Return(&saga.Result{Intent: shared.IntentReleaseAll, EscrowID: second.ID}, nil).Once()

	s := newScheduler(repo, executor)
	require.NoError(t, s.Sweep(context.Background()))

	executor.AssertExpectations(t)
}

func TestSweep_NothingDue(t *testing.T) {
	repo := &MockEscrowRepository{}
	executor := &MockExecutor{}

	repo.On("ListAutoReleasable", mock.Anything, mock.Anything, 50).
		Return([]*escrow.Escrow{}, nil).Once()

	s := newScheduler(repo, executor)
	require.NoError(t, s.Sweep(context.Background()))

	executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_ContinuesPastFailedEscrow(t *testing.T) {
	repo := &MockEscrowRepository{}
	executor := &MockExecutor{}

	failing := dueEscrow(t)
	healthy := dueEscrow(t)

	repo.On("ListAutoReleasable", mock.Anything, mock.Anything, 50).
		Return([]*escrow.Escrow{failing, healthy}, nil).Once()

	executor.On("Execute", mock.Anything, shared.IntentReleaseAll, mock.Anything).
		Return(nil, errors.New("database unavailable")).Once()
	executor.On("Execute", mock.Anything, shared.IntentReleaseAll, mock.Anything).
		Return(&saga.Result{Intent: shared.IntentReleaseAll, EscrowID: healthy.ID}, nil).Once()

	s := newScheduler(repo, executor)
	require.NoError(t, s.Sweep(context.Background()))

	executor.AssertNumberOfCalls(t, "Execute", 2)
}

func TestSweep_ListFailureSurfaces(t *testing.T) {
	repo := &MockEscrowRepository{}
	executor := &MockExecutor{}

	repo.On("ListAutoReleasable", mock.Anything, mock.Anything, 50).
		Return(nil, errors.New("connection refused")).Once()

	s := newScheduler(repo, executor)
	err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
