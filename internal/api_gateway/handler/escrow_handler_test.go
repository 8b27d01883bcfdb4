package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marketplace-settlement/internal/api_gateway/service"
	"github.com/marketplace-settlement/internal/domain/escrow"
	"github.com/marketplace-settlement/internal/domain/shared"
	"github.com/marketplace-settlement/internal/platform/gateway"
	"github.com/marketplace-settlement/internal/settlement/saga"
)

// MockSettlementService for testing
type MockSettlementService struct {
	mock.Mock
}

func (m *MockSettlementService) CreateEscrow(ctx context.Context, params service.CreateEscrowParams) (*escrow.Escrow, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Escrow), args.Error(1)
}

func (m *MockSettlementService) GetEscrow(ctx context.Context, id uuid.UUID) (*escrow.Escrow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrow.Escrow), args.Error(1)
}

func (m *MockSettlementService) ExecuteIntent(ctx context.Context, intent shared.Intent, payload json.RawMessage) (*saga.Result, error) {
	args := m.Called(ctx, intent, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*saga.Result), args.Error(1)
}

func setupEscrowRouter(svc service.SettlementService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewEscrowHandler(slog.Default(), svc)
	r.POST("/escrows", h.Create)
	r.GET("/escrows/:id", h.GetByID)
	r.POST("/escrows/:id/fund", h.Fund)
	r.POST("/escrows/:id/release", h.Release)
	r.POST("/escrows/:id/refund", h.Refund)
	r.POST("/escrows/:id/dispute", h.Dispute)
	r.POST("/escrows/:id/resolve", h.Resolve)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sampleEscrow(t *testing.T) *escrow.Escrow {
	t.Helper()
	e, err := escrow.NewEscrow(uuid.New(), uuid.New(), 100000, "USD", "on delivery", nil)
	require.NoError(t, err)
	return e
}

func TestEscrowHandler_Create(t *testing.T) {
	svc := &MockSettlementService{}
	r := setupEscrowRouter(svc)

	e := sampleEscrow(t)
	svc.On("CreateEscrow", mock.Anything, mock.MatchedBy(func(p service.CreateEscrowParams) bool {
		return p.Amount == 100000 && p.Currency == "USD"
	})).Return(e, nil).Once()

	w := doJSON(t, r, http.MethodPost, "/escrows", CreateEscrowRequest{
		BuyerID:  e.BuyerID.String(),
		SellerID: e.SellerID.String(),
		Amount:   100000,
		Currency: "USD",
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
	svc.AssertExpectations(t)
}

func TestEscrowHandler_Create_Validation(t *testing.T) {
	svc := &MockSettlementService{}
	r := setupEscrowRouter(svc)

	sameParty := uuid.NewString()

	tests := []struct {
		name string
		body CreateEscrowRequest
	}{
		{
			name: "missing buyer",
			body: CreateEscrowRequest{SellerID: uuid.NewString(), Amount: 100, Currency: "USD"},
		},
		{
			name: "non-positive amount",
			body: CreateEscrowRequest{BuyerID: uuid.NewString(), SellerID: uuid.NewString(), Amount: 0, Currency: "USD"},
		},
		{
			name: "bad currency",
			body: CreateEscrowRequest{BuyerID: uuid.NewString(), SellerID: uuid.NewString(), Amount: 100, Currency: "US"},
		},
		{
			name: "buyer equals seller",
			body: CreateEscrowRequest{BuyerID: sameParty, SellerID: sameParty, Amount: 100, Currency: "USD"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/escrows", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	svc.AssertNotCalled(t, "CreateEscrow", mock.Anything, mock.Anything)
}

func TestEscrowHandler_GetByID_NotFound(t *testing.T) {
	svc := &MockSettlementService{}
	r := setupEscrowRouter(svc)

	id := uuid.New()
	svc.On("GetEscrow", mock.Anything, id).
		Return(nil, escrow.ErrEscrowNotFound{EscrowID: id}).Once()

	w := doJSON(t, r, http.MethodGet, "/escrows/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEscrowHandler_Fund(t *testing.T) {
	svc := &MockSettlementService{}
	r := setupEscrowRouter(svc)

	id := uuid.New()
	svc.On("ExecuteIntent", mock.Anything, shared.IntentFund, mock.MatchedBy(func(raw json.RawMessage) bool {
		var p saga.FundPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return false
		}
		return p.EscrowID == id && p.IdempotencyKey == "fund-key-1"
	})).Return(&saga.Result{
		Intent:       shared.IntentFund,
		EscrowID:     id,
		EscrowStatus: escrow.StatusFunded,
		HeldAmount:   100000,
	}, nil).Once()

	w := doJSON(t, r, http.MethodPost, "/escrows/"+id.String()+"/fund", FundEscrowRequest{
		IdempotencyKey: "fund-key-1",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result SettlementResultResponse
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, string(escrow.StatusFunded), result.EscrowStatus)
	svc.AssertExpectations(t)
}

func TestEscrowHandler_Fund_Declined(t *testing.T) {
	svc := &MockSettlementService{}
	r := setupEscrowRouter(svc)

	id := uuid.New()
	svc.On("ExecuteIntent", mock.Anything, shared.IntentFund, mock.Anything).
		Return(nil, fmt.Errorf("card declined: %w", gateway.ErrDeclined)).Once()

	w := doJSON(t, r, http.MethodPost, "/escrows/"+id.String()+"/fund", FundEscrowRequest{})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestEscrowHandler_Release(t *testing.T) {
	svc := &MockSettlementService{}
	r := setupEscrowRouter(svc)

	id := uuid.New()

	t.Run("milestone release", func(t *testing.T) {
		svc.On("ExecuteIntent", mock.Anything, shared.IntentReleaseMilestone, mock.Anything).
			Return(&saga.Result{Intent: shared.IntentReleaseMilestone, EscrowID: id, SellerAmount: 38000, PlatformFee: 2000}, nil).Once()

		w := doJSON(t, r, http.MethodPost, "/escrows/"+id.String()+"/release", ReleaseEscrowRequest{
			Amount:         40000,
			IdempotencyKey: "m-1",
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("release all", func(t *testing.T) {
		svc.On("ExecuteIntent", mock.Anything, shared.IntentReleaseAll, mock.Anything).
			Return(&saga.Result{Intent: shared.IntentReleaseAll, EscrowID: id}, nil).Once()

		w := doJSON(t, r, http.MethodPost, "/escrows/"+id.String()+"/release", ReleaseEscrowRequest{
			ReleaseAll:     true,
			IdempotencyKey: "all-1",
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("neither amount nor release_all", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/escrows/"+id.String()+"/release", ReleaseEscrowRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	svc.AssertExpectations(t)
}

func TestEscrowHandler_Refund_InvalidTransition(t *testing.T) {
	svc := &MockSettlementService{}
	r := setupEscrowRouter(svc)

	id := uuid.New()
	svc.On("ExecuteIntent", mock.Anything, shared.IntentRefund, mock.Anything).
		Return(nil, fmt.Errorf("refund rejected: %w", escrow.ErrInvalidTransition)).Once()

	w := doJSON(t, r, http.MethodPost, "/escrows/"+id.String()+"/refund", RefundEscrowRequest{
		Amount: 1000,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEscrowHandler_Dispute(t *testing.T) {
	svc := &MockSettlementService{}
	r := setupEscrowRouter(svc)

	id := uuid.New()
	initiator := uuid.New()

	svc.On("ExecuteIntent", mock.Anything, shared.IntentDispute, mock.MatchedBy(func(raw json.RawMessage) bool {
		var p saga.DisputePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return false
		}
		return p.InitiatorID == initiator && p.Reason == "not delivered"
	})).Return(&saga.Result{Intent: shared.IntentDispute, EscrowID: id, EscrowStatus: escrow.StatusDisputed}, nil).Once()

	w := doJSON(t, r, http.MethodPost, "/escrows/"+id.String()+"/dispute", DisputeEscrowRequest{
		InitiatorID: initiator.String(),
		Reason:      "not delivered",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestEscrowHandler_Resolve_InvalidSplit(t *testing.T) {
	svc := &MockSettlementService{}
	r := setupEscrowRouter(svc)

	id := uuid.New()
	svc.On("ExecuteIntent", mock.Anything, shared.IntentResolve, mock.Anything).
		Return(nil, fmt.Errorf("resolve rejected: %w", escrow.ErrInvalidResolution)).Once()

	w := doJSON(t, r, http.MethodPost, "/escrows/"+id.String()+"/resolve", ResolveEscrowRequest{
		ReleaseAmount: 10,
		RefundAmount:  10,
		ResolverID:    uuid.NewString(),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestEscrowHandler_InvalidEscrowID(t *testing.T) {
	svc := &MockSettlementService{}
	r := setupEscrowRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/escrows/not-a-uuid/fund", FundEscrowRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertNotCalled(t, "ExecuteIntent", mock.Anything, mock.Anything, mock.Anything)
}
