package saga

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketplace-settlement/internal/domain/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestExecute_AllStepsSucceed(t *testing.T) {
	var order []string

	steps := []Step{
		{Name: "first", Run: func(ctx context.Context) error { order = append(order, "first"); return nil }},
		{Name: "second", Run: func(ctx context.Context) error { order = append(order, "second"); return nil }},
	}

	instance, err := Execute(context.Background(), testLogger(), shared.IntentFund, steps)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, instance.State)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Empty(t, instance.FailedStep)
}

func TestExecute_FailureCompensatesInReverse(t *testing.T) {
	var order []string
	stepErr := errors.New("charge declined")

	steps := []Step{
		{
			Name:       "first",
			Run:        func(ctx context.Context) error { order = append(order, "run:first"); return nil },
			Compensate: func(ctx context.Context) error { order = append(order, "undo:first"); return nil },
		},
		{
			Name:       "second",
			Run:        func(ctx context.Context) error { order = append(order, "run:second"); return nil },
			Compensate: func(ctx context.Context) error { order = append(order, "undo:second"); return nil },
		},
		{
			Name: "third",
			Run:  func(ctx context.Context) error { return stepErr },
		},
	}

	instance, err := Execute(context.Background(), testLogger(), shared.IntentFund, steps)
	require.Error(t, err)
	assert.ErrorIs(t, err, stepErr)
	assert.Equal(t, StateCompensated, instance.State)
	assert.Equal(t, "third", instance.FailedStep)
	assert.Equal(t, []string{"run:first", "run:second", "undo:second", "undo:first"}, order)
}

func TestExecute_OnlyCompletedStepsCompensated(t *testing.T) {
	var compensations []string

	steps := []Step{
		{
			Name:       "first",
			Run:        func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { compensations = append(compensations, "first"); return nil },
		},
		{
			Name: "second",
			Run:  func(ctx context.Context) error { return errors.New("boom") },
			Compensate: func(ctx context.Context) error {
				compensations = append(compensations, "second")
				return nil
			},
		},
	}

	_, err := Execute(context.Background(), testLogger(), shared.IntentRefund, steps)
	require.Error(t, err)

	// The failed step itself never ran to completion and must not be undone.
	assert.Equal(t, []string{"first"}, compensations)
}

func TestExecute_NilCompensationSkipped(t *testing.T) {
	steps := []Step{
		{Name: "read only", Run: func(ctx context.Context) error { return nil }},
		{Name: "fails", Run: func(ctx context.Context) error { return errors.New("boom") }},
	}

	instance, err := Execute(context.Background(), testLogger(), shared.IntentDispute, steps)
	require.Error(t, err)
	assert.Equal(t, StateCompensated, instance.State)
}

func TestExecute_CompensationFailureIsFatal(t *testing.T) {
	stepErr := errors.New("apply failed")
	compErr := errors.New("refund gateway down")

	steps := []Step{
		{
			Name:       "charge",
			Run:        func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { return compErr },
		},
		{
			Name: "apply",
			Run:  func(ctx context.Context) error { return stepErr },
		},
	}

	instance, err := Execute(context.Background(), testLogger(), shared.IntentFund, steps)
	require.Error(t, err)
	assert.Equal(t, StateFailed, instance.State)
	assert.ErrorIs(t, err, compErr)
	assert.Contains(t, err.Error(), stepErr.Error())
}
