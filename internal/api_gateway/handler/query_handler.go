package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketplace-settlement/internal/api_gateway/service"
	"github.com/marketplace-settlement/internal/domain/ledger"
	"github.com/marketplace-settlement/internal/domain/outbox"
	"github.com/marketplace-settlement/internal/domain/payout"
	"github.com/marketplace-settlement/internal/domain/wallet"
)

// QueryHandler handles the read-side HTTP endpoints: wallets, ledger
// history, payouts and the settlement event archive.
type QueryHandler struct {
	queryService service.QueryService
	logger       *slog.Logger
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(logger *slog.Logger, queryService service.QueryService) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
		logger:       logger,
	}
}

// GetWallet retrieves wallet details, returns 404 if not found
func (h *QueryHandler) GetWallet(c *gin.Context) {
	id, ok := h.pathID(c, "Invalid wallet ID")
	if !ok {
		return
	}

	w, err := h.queryService.GetWallet(c.Request.Context(), id)
	if err != nil {
		respondSettlementError(c, h.logger, err)
		return
	}

	RespondOK(c, mapWalletToResponse(w))
}

// GetWalletTransactions retrieves paginated ledger history for a wallet
func (h *QueryHandler) GetWalletTransactions(c *gin.Context) {
	id, ok := h.pathID(c, "Invalid wallet ID")
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	entries, total, err := h.queryService.GetWalletTransactions(c.Request.Context(), id, pagination.Page, pagination.PerPage)
	if err != nil {
		respondSettlementError(c, h.logger, err)
		return
	}

	response := TransactionListResponse{
		Transactions: make([]TransactionResponse, 0, len(entries)),
	}
	for _, entry := range entries {
		response.Transactions = append(response.Transactions, mapTransactionToResponse(entry))
	}

	RespondWithPaginatedData(c, http.StatusOK, response, pagination.Page, pagination.PerPage, int(total))
}

// GetPayout retrieves payout details, returns 404 if not found
func (h *QueryHandler) GetPayout(c *gin.Context) {
	id, ok := h.pathID(c, "Invalid payout ID")
	if !ok {
		return
	}

	p, err := h.queryService.GetPayout(c.Request.Context(), id)
	if err != nil {
		respondSettlementError(c, h.logger, err)
		return
	}

	RespondOK(c, mapPayoutToResponse(p))
}

// GetEscrowEvents retrieves archived settlement events for an escrow
func (h *QueryHandler) GetEscrowEvents(c *gin.Context) {
	id, ok := h.pathID(c, "Invalid escrow ID")
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	events, err := h.queryService.ListEscrowEvents(c.Request.Context(), id, pagination.Page, pagination.PerPage)
	if err != nil {
		respondSettlementError(c, h.logger, err)
		return
	}

	response := EventListResponse{Events: make([]EventResponse, 0, len(events))}
	for _, event := range events {
		response.Events = append(response.Events, mapEventToResponse(event))
	}

	RespondOK(c, response)
}

// GetEvents retrieves archived settlement events across all escrows
func (h *QueryHandler) GetEvents(c *gin.Context) {
	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	events, err := h.queryService.ListEvents(c.Request.Context(), pagination.Page, pagination.PerPage)
	if err != nil {
		respondSettlementError(c, h.logger, err)
		return
	}

	response := EventListResponse{Events: make([]EventResponse, 0, len(events))}
	for _, event := range events {
		response.Events = append(response.Events, mapEventToResponse(event))
	}

	RespondOK(c, response)
}

func (h *QueryHandler) pathID(c *gin.Context, message string) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid path ID", "id", idParam, "error", err)
		RespondBadRequest(c, message)
		return uuid.Nil, false
	}
	return id, true
}

func mapWalletToResponse(w *wallet.Wallet) WalletResponse {
	return WalletResponse{
		ID:             w.ID.String(),
		UserID:         w.UserID.String(),
		Balance:        w.Balance,
		Currency:       w.Currency,
		IsLocked:       w.IsLocked,
		TotalEarned:    w.TotalEarned,
		TotalSpent:     w.TotalSpent,
		TotalWithdrawn: w.TotalWithdrawn,
		CreatedAt:      w.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      w.UpdatedAt.Format(time.RFC3339),
	}
}

func mapTransactionToResponse(t *ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:             t.ID.String(),
		WalletID:       t.WalletID.String(),
		Amount:         t.Amount,
		BalanceBefore:  t.BalanceBefore,
		BalanceAfter:   t.BalanceAfter,
		Type:           string(t.Type),
		ReferenceType:  string(t.ReferenceType),
		ReferenceID:    t.ReferenceID.String(),
		IdempotencyKey: t.IdempotencyKey,
		Status:         string(t.Status),
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
	}
}

func mapPayoutToResponse(p *payout.Payout) PayoutResponse {
	return PayoutResponse{
		ID:             p.ID.String(),
		WalletID:       p.WalletID.String(),
		EscrowID:       p.EscrowID.String(),
		Amount:         p.Amount,
		Currency:       p.Currency,
		Destination:    p.Destination,
		Status:         string(p.Status),
		ExternalRef:    p.ExternalRef,
		FailureReason:  p.FailureReason,
		IdempotencyKey: p.IdempotencyKey,
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      p.UpdatedAt.Format(time.RFC3339),
	}
}

func mapEventToResponse(e *outbox.SettlementEvent) EventResponse {
	return EventResponse{
		EventID:       e.EventID,
		EventType:     string(e.EventType),
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID.String(),
		Payload:       e.Payload,
		DeliveredAt:   e.DeliveredAt.Format(time.RFC3339),
	}
}
