package handler

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketplace-settlement/internal/api_gateway/service"
	"github.com/marketplace-settlement/internal/domain/escrow"
	"github.com/marketplace-settlement/internal/domain/shared"
	"github.com/marketplace-settlement/internal/settlement/saga"
)

// EscrowHandler handles HTTP requests for escrow lifecycle operations
type EscrowHandler struct {
	settlementService service.SettlementService
	logger            *slog.Logger
}

// NewEscrowHandler creates a new escrow handler
func NewEscrowHandler(logger *slog.Logger, settlementService service.SettlementService) *EscrowHandler {
	return &EscrowHandler{
		settlementService: settlementService,
		logger:            logger,
	}
}

// Create opens a new pending escrow between a buyer and a seller
func (h *EscrowHandler) Create(c *gin.Context) {
	var req CreateEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	buyerID, err := uuid.Parse(req.BuyerID)
	if err != nil {
		RespondBadRequest(c, "Invalid buyer ID")
		return
	}
	sellerID, err := uuid.Parse(req.SellerID)
	if err != nil {
		RespondBadRequest(c, "Invalid seller ID")
		return
	}
	if buyerID == sellerID {
		RespondBadRequest(c, "Buyer and seller must differ")
		return
	}
	if req.AutoReleaseAt != nil && req.AutoReleaseAt.Before(time.Now()) {
		RespondBadRequest(c, "Auto-release time must be in the future")
		return
	}

	e, err := h.settlementService.CreateEscrow(c.Request.Context(), service.CreateEscrowParams{
		BuyerID:           buyerID,
		SellerID:          sellerID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		ReleaseConditions: req.ReleaseConditions,
		AutoReleaseAt:     req.AutoReleaseAt,
	})
	if err != nil {
		respondSettlementError(c, h.logger, err)
		return
	}

	RespondCreated(c, mapEscrowToResponse(e))
}

// GetByID retrieves escrow details, returns 404 if not found
func (h *EscrowHandler) GetByID(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}

	e, err := h.settlementService.GetEscrow(c.Request.Context(), id)
	if err != nil {
		respondSettlementError(c, h.logger, err)
		return
	}

	RespondOK(c, mapEscrowToResponse(e))
}

// Fund collects the buyer's payment into the escrow
func (h *EscrowHandler) Fund(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}

	var req FundEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	h.execute(c, shared.IntentFund, saga.FundPayload{
		EscrowID:       id,
		IdempotencyKey: orDefaultKey(req.IdempotencyKey),
	})
}

// Release pays held funds out to the seller, minus the platform fee
func (h *EscrowHandler) Release(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}

	var req ReleaseEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if !req.ReleaseAll && req.Amount <= 0 {
		RespondBadRequest(c, "Either a positive amount or release_all is required")
		return
	}

	intent := shared.IntentReleaseMilestone
	if req.ReleaseAll {
		intent = shared.IntentReleaseAll
	}

	h.execute(c, intent, saga.ReleasePayload{
		EscrowID:          id,
		Amount:            req.Amount,
		FeeBps:            req.FeeBps,
		MilestoneID:       req.MilestoneID,
		AutoPayout:        req.AutoPayout,
		PayoutDestination: req.PayoutDestination,
		IdempotencyKey:    orDefaultKey(req.IdempotencyKey),
	})
}

// Refund returns held funds to the buyer
func (h *EscrowHandler) Refund(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}

	var req RefundEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	h.execute(c, shared.IntentRefund, saga.RefundPayload{
		EscrowID:       id,
		Amount:         req.Amount,
		Reason:         req.Reason,
		IdempotencyKey: orDefaultKey(req.IdempotencyKey),
	})
}

// Dispute freezes the escrow pending resolution
func (h *EscrowHandler) Dispute(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}

	var req DisputeEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	initiatorID, err := uuid.Parse(req.InitiatorID)
	if err != nil {
		RespondBadRequest(c, "Invalid initiator ID")
		return
	}

	h.execute(c, shared.IntentDispute, saga.DisputePayload{
		EscrowID:       id,
		InitiatorID:    initiatorID,
		Reason:         req.Reason,
		IdempotencyKey: orDefaultKey(req.IdempotencyKey),
	})
}

// Resolve settles a disputed escrow by splitting the held amount
func (h *EscrowHandler) Resolve(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}

	var req ResolveEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	resolverID, err := uuid.Parse(req.ResolverID)
	if err != nil {
		RespondBadRequest(c, "Invalid resolver ID")
		return
	}

	h.execute(c, shared.IntentResolve, saga.ResolvePayload{
		EscrowID:       id,
		ReleaseAmount:  req.ReleaseAmount,
		RefundAmount:   req.RefundAmount,
		FeeBps:         req.FeeBps,
		ResolverID:     resolverID,
		IdempotencyKey: orDefaultKey(req.IdempotencyKey),
	})
}

func (h *EscrowHandler) execute(c *gin.Context, intent shared.Intent, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal intent payload", "intent", intent, "error", err)
		RespondInternalError(c)
		return
	}

	result, err := h.settlementService.ExecuteIntent(c.Request.Context(), intent, raw)
	if err != nil {
		respondSettlementError(c, h.logger, err)
		return
	}

	RespondOK(c, mapResultToResponse(result))
}

func (h *EscrowHandler) escrowID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid escrow ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid escrow ID")
		return uuid.Nil, false
	}
	return id, true
}

func orDefaultKey(key string) string {
	if key == "" {
		return uuid.New().String()
	}
	return key
}

func mapEscrowToResponse(e *escrow.Escrow) EscrowResponse {
	return EscrowResponse{
		ID:                e.ID.String(),
		BuyerID:           e.BuyerID.String(),
		SellerID:          e.SellerID.String(),
		Amount:            e.Amount,
		HeldAmount:        e.HeldAmount,
		ReleasedAmount:    e.ReleasedAmount,
		RefundedAmount:    e.RefundedAmount,
		Currency:          e.Currency,
		Status:            string(e.Status),
		ReleaseConditions: e.ReleaseConditions,
		DisputeReason:     e.DisputeReason,
		AutoReleaseAt:     e.AutoReleaseAt,
		CreatedAt:         e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         e.UpdatedAt.Format(time.RFC3339),
	}
}

func mapResultToResponse(r *saga.Result) SettlementResultResponse {
	return SettlementResultResponse{
		Intent:         string(r.Intent),
		EscrowID:       r.EscrowID.String(),
		EscrowStatus:   string(r.EscrowStatus),
		HeldAmount:     r.HeldAmount,
		ReleasedAmount: r.ReleasedAmount,
		RefundedAmount: r.RefundedAmount,
		SellerAmount:   r.SellerAmount,
		PlatformFee:    r.PlatformFee,
		Replayed:       r.Replayed,
	}
}
