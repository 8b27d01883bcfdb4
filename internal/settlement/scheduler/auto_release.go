// Package scheduler releases escrows whose auto-release deadline has
// passed without a dispute.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/marketplace-settlement/internal/config"
	"github.com/marketplace-settlement/internal/domain/escrow"
	"github.com/marketplace-settlement/internal/domain/shared"
	"github.com/marketplace-settlement/internal/settlement/saga"
)

// Executor runs settlement intents. The saga orchestrator satisfies this.
type Executor interface {
	Execute(ctx context.Context, intent shared.Intent, payload json.RawMessage) (*saga.Result, error)
}

// AutoReleaseScheduler sweeps due escrows and releases their remaining held
// funds to the seller. The derived idempotency key makes a crashed sweep
// safe to repeat.
type AutoReleaseScheduler struct {
	logger     *slog.Logger
	escrowRepo escrow.Repository
	executor   Executor
	interval   time.Duration
	batchSize  int
}

func NewAutoReleaseScheduler(
	logger *slog.Logger,
	cfg *config.SchedulerConfig,
	escrowRepo escrow.Repository,
	executor Executor,
) *AutoReleaseScheduler {
	return &AutoReleaseScheduler{
		logger:     logger,
		escrowRepo: escrowRepo,
		executor:   executor,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
	}
}

// Start sweeps on a fixed interval until the context is canceled.
func (s *AutoReleaseScheduler) Start(ctx context.Context) {
	s.logger.Info("Starting Auto-Release Scheduler", "interval", s.interval.String(), "batch_size", s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Auto-Release Scheduler stopping due to context cancellation")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("Auto-release sweep failed", "error", err)
			}
		}
	}
}

// Sweep releases every due escrow in the batch. Individual failures are
// logged and skipped; the escrow stays listed and the next sweep retries it.
func (s *AutoReleaseScheduler) Sweep(ctx context.Context) error {
	due, err := s.escrowRepo.ListAutoReleasable(ctx, time.Now().UTC(), s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list auto-releasable escrows: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Info("Auto-releasing due escrows", "count", len(due))

	for _, e := range due {
		if err := s.release(ctx, e); err != nil {
			s.logger.Error("Failed to auto-release escrow", "escrow_id", e.ID, "error", err)
		}
	}
	return nil
}

func (s *AutoReleaseScheduler) release(ctx context.Context, e *escrow.Escrow) error {
	payload, err := json.Marshal(saga.ReleasePayload{
		EscrowID:       e.ID,
		IdempotencyKey: "autorelease:" + e.ID.String(),
	})
	if err != nil {
		return err
	}

	result, err := s.executor.Execute(ctx, shared.IntentReleaseAll, payload)
	if err != nil {
		return err
	}

	s.logger.Info("Auto-released escrow",
		"escrow_id", e.ID,
		"seller_amount", result.SellerAmount,
		"platform_fee", result.PlatformFee,
	)
	return nil
}
