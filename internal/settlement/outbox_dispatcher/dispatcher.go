// Package outbox_dispatcher drains the settlement outbox to the job queue.
// Each partition has its own drain loop so one aggregate's messages leave
// in order while partitions progress independently.
package outbox_dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marketplace-settlement/internal/config"
	"github.com/marketplace-settlement/internal/domain/outbox"
	"github.com/marketplace-settlement/internal/domain/shared"
	"github.com/marketplace-settlement/internal/platform/messaging/producers"
)

// TxRunner runs a function inside a database transaction.
// persistence.PostgresDB satisfies this.
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Dispatcher leases pending outbox messages and hands them to Kafka. A
// message is marked processed only after the broker confirms the write, so
// delivery is at-least-once and consumers must deduplicate.
type Dispatcher struct {
	logger     *slog.Logger
	db         TxRunner
	outboxRepo outbox.Repository
	publisher  producers.EventPublisher
	dlq        producers.DeadLetterPublisher
	archive    outbox.ArchiveRepository

	eventsTopic  string
	payoutsTopic string

	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
	partitions       int
	backoff          outbox.Backoff
}

func NewDispatcher(
	logger *slog.Logger,
	outboxCfg *config.OutboxConfig,
	kafkaCfg *config.KafkaConfig,
	db TxRunner,
	outboxRepo outbox.Repository,
	publisher producers.EventPublisher,
	dlq producers.DeadLetterPublisher,
	archive outbox.ArchiveRepository,
) *Dispatcher {
	return &Dispatcher{
		logger:           logger,
		db:               db,
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		dlq:              dlq,
		archive:          archive,
		eventsTopic:      kafkaCfg.EventsTopic,
		payoutsTopic:     kafkaCfg.PayoutsTopic,
		pollInterval:     outboxCfg.PollingInterval,
		batchSize:        outboxCfg.BatchSize,
		maxRetryAttempts: outboxCfg.MaxRetryAttempts,
		partitions:       outboxCfg.Partitions,
		backoff:          outbox.Backoff{Base: outboxCfg.BackoffBase, Max: outboxCfg.BackoffMax},
	}
}

// Start runs one drain loop per partition and blocks until the context is
// canceled and every loop has stopped.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		"partitions", d.partitions,
		"poll_interval", d.pollInterval.String(),
		"batch_size", d.batchSize,
		"max_retry_attempts", d.maxRetryAttempts,
	)

	var wg sync.WaitGroup
	for p := 0; p < d.partitions; p++ {
		wg.Add(1)
		go func(partition int) {
			defer wg.Done()
			d.drainLoop(ctx, partition)
		}(p)
	}
	wg.Wait()
	d.logger.Info("Outbox Dispatcher stopped")
}

func (d *Dispatcher) drainLoop(ctx context.Context, partition int) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox drain loop stopping", "partition", partition)
			return
		case <-ticker.C:
			if err := d.DrainPartition(ctx, partition); err != nil {
				d.logger.Error("Outbox drain pass failed", "partition", partition, "error", err)
			}
		}
	}
}

// DrainPartition processes one batch of due messages for a partition. The
// lease and every status transition happen in a single transaction; the row
// locks from the lease keep concurrent dispatcher instances off the batch.
func (d *Dispatcher) DrainPartition(ctx context.Context, partition int) error {
	var delivered []*outbox.Message

	err := d.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repo := d.outboxRepo.WithTx(tx)
		delivered = delivered[:0]

		messages, err := repo.LeasePending(ctx, partition, d.partitions, time.Now().UTC(), d.batchSize)
		if err != nil {
			return fmt.Errorf("failed to lease pending outbox messages: %w", err)
		}
		if len(messages) == 0 {
			return nil
		}

		d.logger.Debug("Leased pending outbox messages", "partition", partition, "count", len(messages))

		for _, msg := range messages {
			ok, err := d.dispatch(ctx, repo, msg)
			if err != nil {
				return err
			}
			if !ok {
				// The failed message keeps its place in line. Stop the
				// batch so later messages of the same aggregate cannot
				// overtake it.
				break
			}
			delivered = append(delivered, msg)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Archive only after the transaction committed; an archived copy of a
	// rolled-back delivery would be a lie.
	d.archiveDelivered(ctx, delivered)
	return nil
}

// dispatch publishes one message and records the outcome. It returns false
// when the message failed and remains pending; errors are reserved for
// status transitions that could not be written.
func (d *Dispatcher) dispatch(ctx context.Context, repo outbox.Repository, msg *outbox.Message) (bool, error) {
	logger := d.logger.With("outbox_id", msg.ID, "event_type", msg.EventType, "aggregate_id", msg.AggregateID)
	if msg.CorrelationID != "" {
		logger = logger.With("correlation_id", msg.CorrelationID)
	}

	topic := d.topicFor(msg.EventType)
	key := msg.AggregateID.String()

	if err := d.publisher.Publish(ctx, topic, key, msg.Payload); err != nil {
		return d.recordFailure(ctx, repo, logger, msg, err)
	}

	if err := repo.MarkProcessed(ctx, msg.ID, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("failed to mark outbox message %d processed: %w", msg.ID, err)
	}
	logger.Info("Delivered outbox message", "topic", topic)
	return true, nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, repo outbox.Repository, logger *slog.Logger, msg *outbox.Message, cause error) (bool, error) {
	newCount := msg.RetryCount + 1

	if newCount > d.maxRetryAttempts {
		logger.Warn("Retry budget exhausted for outbox message, parking in dead letter",
			"attempts_made", newCount, "error", cause,
		)
		if err := repo.MarkDeadLetter(ctx, msg.ID, cause.Error()); err != nil {
			return false, fmt.Errorf("failed to dead-letter outbox message %d: %w", msg.ID, err)
		}
		if d.dlq != nil {
			if err := d.dlq.PublishToDLQ(ctx, msg.AggregateID.String(), msg.Payload, cause.Error()); err != nil {
				logger.Error("Failed to publish dead-lettered message to DLQ topic", "error", err)
			}
		}
		return false, nil
	}

	nextRetryAt := time.Now().UTC().Add(d.backoff.Next(newCount))
	logger.Error("Failed to publish outbox message, scheduling retry",
		"attempt", newCount, "next_retry_at", nextRetryAt, "error", cause,
	)
	if err := repo.ScheduleRetry(ctx, msg.ID, newCount, nextRetryAt, cause.Error()); err != nil {
		return false, fmt.Errorf("failed to schedule retry for outbox message %d: %w", msg.ID, err)
	}
	return false, nil
}

func (d *Dispatcher) archiveDelivered(ctx context.Context, delivered []*outbox.Message) {
	if d.archive == nil || len(delivered) == 0 {
		return
	}
	now := time.Now().UTC()
	for _, msg := range delivered {
		if err := d.archive.Insert(ctx, outbox.NewSettlementEvent(msg, now)); err != nil {
			d.logger.Warn("Failed to archive delivered settlement event", "outbox_id", msg.ID, "error", err)
		}
	}
}

func (d *Dispatcher) topicFor(eventType shared.EventType) string {
	if eventType == shared.EventPayoutRequested {
		return d.payoutsTopic
	}
	return d.eventsTopic
}
