package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/marketplace-settlement/internal/domain/escrow"
	"github.com/marketplace-settlement/internal/domain/shared"
	"github.com/marketplace-settlement/internal/settlement/saga"
)

// DefaultSettlementService implements SettlementService over the escrow
// repository and the saga orchestrator.
type DefaultSettlementService struct {
	logger     *slog.Logger
	escrowRepo escrow.Repository
	executor   IntentExecutor
}

func NewSettlementService(
	logger *slog.Logger,
	escrowRepo escrow.Repository,
	executor IntentExecutor,
) *DefaultSettlementService {
	return &DefaultSettlementService{
		logger:     logger,
		escrowRepo: escrowRepo,
		executor:   executor,
	}
}

// CreateEscrow opens a pending escrow. Funding is a separate operation so
// the caller can collect the payment asynchronously.
func (s *DefaultSettlementService) CreateEscrow(ctx context.Context, params CreateEscrowParams) (*escrow.Escrow, error) {
	e, err := escrow.NewEscrow(
		params.BuyerID,
		params.SellerID,
		params.Amount,
		params.Currency,
		params.ReleaseConditions,
		params.AutoReleaseAt,
	)
	if err != nil {
		return nil, err
	}

	if err := s.escrowRepo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to create escrow: %w", err)
	}

	s.logger.Info("Escrow created",
		"escrow_id", e.ID,
		"buyer_id", e.BuyerID,
		"seller_id", e.SellerID,
		"amount", e.Amount,
		"currency", e.Currency,
	)
	return e, nil
}

func (s *DefaultSettlementService) GetEscrow(ctx context.Context, id uuid.UUID) (*escrow.Escrow, error) {
	return s.escrowRepo.GetByID(ctx, id)
}

func (s *DefaultSettlementService) ExecuteIntent(ctx context.Context, intent shared.Intent, payload json.RawMessage) (*saga.Result, error) {
	return s.executor.Execute(ctx, intent, payload)
}
