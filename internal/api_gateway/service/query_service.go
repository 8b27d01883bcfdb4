package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/marketplace-settlement/internal/domain/ledger"
	"github.com/marketplace-settlement/internal/domain/outbox"
	"github.com/marketplace-settlement/internal/domain/payout"
	"github.com/marketplace-settlement/internal/domain/wallet"
)

// DefaultQueryService implements QueryService over the read repositories.
// Ledger history comes from Postgres; the event archive comes from MongoDB.
type DefaultQueryService struct {
	logger     *slog.Logger
	walletRepo wallet.Repository
	ledgerRepo ledger.Repository
	payoutRepo payout.Repository
	archive    outbox.ArchiveRepository
}

func NewQueryService(
	logger *slog.Logger,
	walletRepo wallet.Repository,
	ledgerRepo ledger.Repository,
	payoutRepo payout.Repository,
	archive outbox.ArchiveRepository,
) *DefaultQueryService {
	return &DefaultQueryService{
		logger:     logger,
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		payoutRepo: payoutRepo,
		archive:    archive,
	}
}

func (s *DefaultQueryService) GetWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	return s.walletRepo.GetByID(ctx, id)
}

func (s *DefaultQueryService) GetWalletTransactions(ctx context.Context, walletID uuid.UUID, page, perPage int) ([]*ledger.Transaction, int64, error) {
	// Confirm the wallet exists so a typo'd id reads as 404, not an empty
	// history.
	if _, err := s.walletRepo.GetByID(ctx, walletID); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	entries, err := s.ledgerRepo.ListByWallet(ctx, walletID, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list wallet transactions: %w", err)
	}

	total, err := s.ledgerRepo.CountByWallet(ctx, walletID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count wallet transactions: %w", err)
	}

	return entries, total, nil
}

func (s *DefaultQueryService) GetPayout(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	return s.payoutRepo.GetByID(ctx, id)
}

func (s *DefaultQueryService) ListEscrowEvents(ctx context.Context, escrowID uuid.UUID, page, perPage int) ([]*outbox.SettlementEvent, error) {
	offset := (page - 1) * perPage
	events, err := s.archive.List(ctx, &escrowID, perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement events: %w", err)
	}
	return events, nil
}

func (s *DefaultQueryService) ListEvents(ctx context.Context, page, perPage int) ([]*outbox.SettlementEvent, error) {
	offset := (page - 1) * perPage
	events, err := s.archive.List(ctx, nil, perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement events: %w", err)
	}
	return events, nil
}
