// Package consumer handles payout request messages from the job queue.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marketplace-settlement/internal/domain/shared"
	"github.com/marketplace-settlement/internal/payout_processor/service"
	"github.com/marketplace-settlement/internal/platform/messaging/producers"
)

// PayoutEventHandler handles incoming payout request messages from Kafka.
// Transient processing failures are redelivered at most maxAttempts times
// per idempotency key; after that the request is dead-lettered so one
// broken payout cannot stall its partition forever.
type PayoutEventHandler struct {
	payoutService service.PayoutService
	producer      producers.DeadLetterPublisher
	logger        *slog.Logger
	maxAttempts   int

	mu       sync.Mutex
	attempts map[string]int
}

// NewPayoutEventHandler creates a new handler
func NewPayoutEventHandler(
	logger *slog.Logger,
	payoutService service.PayoutService,
	producer producers.DeadLetterPublisher,
	maxAttempts int,
) *PayoutEventHandler {
	return &PayoutEventHandler{
		payoutService: payoutService,
		producer:      producer,
		logger:        logger,
		maxAttempts:   maxAttempts,
		attempts:      make(map[string]int),
	}
}

// HandleMessage processes Kafka messages
func (h *PayoutEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var req shared.PayoutRequestedEvent
	if err := json.Unmarshal(value, &req); err != nil {
		return h.deadLetter(ctx, key, value, fmt.Sprintf("failed to unmarshal payout request: %s", err), err)
	}

	if req.Amount <= 0 || req.IdempotencyKey == "" {
		reason := fmt.Sprintf("payout request is unprocessable: amount=%d idempotency_key=%q", req.Amount, req.IdempotencyKey)
		return h.deadLetter(ctx, key, value, reason, fmt.Errorf("%s", reason))
	}

	logger := h.logger
	if req.CorrelationID != "" {
		logger = h.logger.With("correlation_id", req.CorrelationID)
	}

	logger.Info("Received payout request for processing",
		"wallet_id", req.WalletID.String(),
		"escrow_id", req.EscrowID.String(),
		"amount", req.Amount,
		"idempotency_key", req.IdempotencyKey,
	)

	if err := h.payoutService.ProcessPayout(ctx, &req); err != nil {
		attempt := h.recordAttempt(req.IdempotencyKey)
		logger.Error("Failed to process payout request",
			"wallet_id", req.WalletID.String(),
			"idempotency_key", req.IdempotencyKey,
			"attempt", attempt,
			"error", err,
		)

		if attempt >= h.maxAttempts {
			reason := fmt.Sprintf("payout %s failed %d times: %s", req.IdempotencyKey, attempt, err)
			if dlqErr := h.deadLetter(ctx, key, value, reason, err); dlqErr != nil {
				return dlqErr
			}
			h.clearAttempts(req.IdempotencyKey)
			return nil
		}
		return fmt.Errorf("processing payout %s failed: %w", req.IdempotencyKey, err)
	}

	h.clearAttempts(req.IdempotencyKey)
	logger.Info("Payout request processed", "idempotency_key", req.IdempotencyKey)
	return nil
}

func (h *PayoutEventHandler) recordAttempt(idempotencyKey string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts[idempotencyKey]++
	return h.attempts[idempotencyKey]
}

func (h *PayoutEventHandler) clearAttempts(idempotencyKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attempts, idempotencyKey)
}

// deadLetter parks an unprocessable message. Returning nil commits the
// offset; redelivering a message that can never parse only clogs the topic.
func (h *PayoutEventHandler) deadLetter(ctx context.Context, key, value []byte, reason string, cause error) error {
	h.logger.Error("Unprocessable payout message", "message_key", string(key), "reason", reason)

	if h.producer == nil {
		return fmt.Errorf("unprocessable payout message with no DLQ configured: %w", cause)
	}

	if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, reason); dlqErr != nil {
		h.logger.Error("Failed to publish message to DLQ",
			"dlq_error", dlqErr,
			"original_error", cause,
			"message_key", string(key),
		)
		return fmt.Errorf("failed to dead-letter payout message: %w", cause)
	}

	h.logger.Info("Published unprocessable payout message to DLQ", "message_key", string(key), "reason", reason)
	return nil
}
