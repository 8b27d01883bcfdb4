// Package saga implements the settlement saga orchestrator. Each intent is
// an ordered list of steps with explicit compensations; a failed step
// unwinds only the steps that actually completed, in reverse order.
package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marketplace-settlement/internal/domain/shared"
)

// State tracks a saga instance through its lifecycle
type State string

const (
	StateRunning      State = "RUNNING"
	StateCompleted    State = "COMPLETED"
	StateCompensating State = "COMPENSATING"
	StateCompensated  State = "COMPENSATED"
	StateFailed       State = "FAILED"
)

// Step is one unit of saga work. Compensate is nil when the step has
// nothing to undo (reads, or the final step of a saga).
type Step struct {
	Name       string
	Run        func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Instance records one saga execution. Instances are in-memory only; the
// durable effects live in the database rows and outbox messages the steps
// write.
type Instance struct {
	ID         uuid.UUID
	Intent     shared.Intent
	State      State
	FailedStep string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Execute runs the steps in order. On failure it compensates completed
// steps in reverse and returns the original step error. A compensation
// failure is fatal: the instance lands in StateFailed and the combined
// error is surfaced, never dropped.
func Execute(ctx context.Context, logger *slog.Logger, intent shared.Intent, steps []Step) (*Instance, error) {
	instance := &Instance{
		ID:        uuid.New(),
		Intent:    intent,
		State:     StateRunning,
		StartedAt: time.Now(),
	}

	var completed []Step
	for _, step := range steps {
		logger.Debug("Running saga step", "saga_id", instance.ID.String(), "intent", string(intent), "step", step.Name)

		if err := step.Run(ctx); err != nil {
			instance.FailedStep = step.Name
			logger.Warn("Saga step failed, compensating",
				"saga_id", instance.ID.String(),
				"intent", string(intent),
				"step", step.Name,
				"completed_steps", len(completed),
				"error", err,
			)

			if compErr := compensate(ctx, logger, instance, completed); compErr != nil {
				instance.State = StateFailed
				instance.FinishedAt = time.Now()
				return instance, fmt.Errorf("saga %s failed at step %s: %v; compensation failed: %w",
					intent, step.Name, err, compErr)
			}

			instance.State = StateCompensated
			instance.FinishedAt = time.Now()
			return instance, fmt.Errorf("saga %s failed at step %s: %w", intent, step.Name, err)
		}

		completed = append(completed, step)
	}

	instance.State = StateCompleted
	instance.FinishedAt = time.Now()
	return instance, nil
}

// compensate unwinds completed steps in reverse order, skipping steps
// without a compensation.
func compensate(ctx context.Context, logger *slog.Logger, instance *Instance, completed []Step) error {
	instance.State = StateCompensating

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}

		logger.Info("Compensating saga step",
			"saga_id", instance.ID.String(),
			"intent", string(instance.Intent),
			"step", step.Name,
		)

		if err := step.Compensate(ctx); err != nil {
			logger.Error("Saga compensation failed, manual intervention required",
				"saga_id", instance.ID.String(),
				"intent", string(instance.Intent),
				"step", step.Name,
				"error", err,
			)
			return fmt.Errorf("compensation of step %s: %w", step.Name, err)
		}
	}

	return nil
}
