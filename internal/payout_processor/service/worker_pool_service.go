package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/marketplace-settlement/internal/domain/shared"
)

// WorkerPoolPayoutService fans payout processing out to a bounded worker
// pool while keeping the consumer's per-message semantics: the caller
// blocks until its payout finishes, so the Kafka offset commits only after
// the outcome is durable.
type WorkerPoolPayoutService struct {
	baseService PayoutService
	pool        *ants.Pool
	logger      *slog.Logger

	mu      sync.Mutex
	results map[string]chan error
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolPayoutService(
	baseService PayoutService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolPayoutService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolPayoutService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
		results:     make(map[string]chan error),
	}, nil
}

// ProcessPayout submits the payout to the pool and waits for its result.
func (s *WorkerPoolPayoutService) ProcessPayout(ctx context.Context, req *shared.PayoutRequestedEvent) error {
	logger := s.logger
	if req.CorrelationID != "" {
		logger = s.logger.With("correlation_id", req.CorrelationID)
	}

	logger.Info("Submitting payout to worker pool",
		"wallet_id", req.WalletID.String(),
		"idempotency_key", req.IdempotencyKey,
	)

	resultChan := make(chan error, 1)

	s.mu.Lock()
	s.results[req.IdempotencyKey] = resultChan
	s.mu.Unlock()

	requestCopy := *req

	err := s.pool.Submit(func() {
		err := s.baseService.ProcessPayout(ctx, &requestCopy)

		resultChan <- err

		s.mu.Lock()
		delete(s.results, requestCopy.IdempotencyKey)
		close(resultChan)
		s.mu.Unlock()
	})

	if err != nil {
		s.mu.Lock()
		delete(s.results, req.IdempotencyKey)
		close(resultChan)
		s.mu.Unlock()

		logger.Error("Failed to submit payout to worker pool",
			"idempotency_key", req.IdempotencyKey,
			"error", err,
		)
		return err
	}

	return <-resultChan
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolPayoutService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolPayoutService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolPayoutService) Capacity() int {
	return s.pool.Cap()
}
