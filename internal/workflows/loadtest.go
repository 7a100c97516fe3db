package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/loadgen/internal/core/domain"
)

// TaskQueue is the default queue the worker listens on.
const TaskQueue = "loadtest-queue"

// executeSlack is added to the script duration to bound ExecuteRun.
const executeSlack = 5 * time.Minute

// LoadTestInput is the input for the load test workflow.
type LoadTestInput struct {
	Name   string
	Script string // YAML
}

// LoadTestWorkflow records a run, executes it and stores its summary. If the
// execute or finish step fails, the run is marked failed.
func LoadTestWorkflow(ctx workflow.Context, input LoadTestInput) (*domain.RunSummary, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting load test workflow", "name", input.Name)

	bookkeeping := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})

	// Step 1: record the run
	var plan RunPlan
	if err := workflow.ExecuteActivity(bookkeeping, "StartRun", input.Name, input.Script).Get(ctx, &plan); err != nil {
		return nil, err
	}

	// Step 2: generate load. Never retried: a second attempt would double the load.
	execute := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: plan.Duration + executeSlack,
		HeartbeatTimeout:    3 * HeartbeatInterval,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
	var summary domain.RunSummary
	err := workflow.ExecuteActivity(execute, "ExecuteRun", plan.RunID, input.Script).Get(ctx, &summary)

	// Step 3: store the summary
	if err == nil {
		err = workflow.ExecuteActivity(bookkeeping, "FinishRun", &summary).Get(ctx, nil)
	}
	if err != nil {
		logger.Warn("load test failed, compensating", "run_id", plan.RunID, "error", err)
		// Compensate: mark the run failed
		_ = workflow.ExecuteActivity(bookkeeping, "FailRun", plan.RunID, err.Error()).Get(ctx, nil)
		return nil, err
	}

	logger.Info("Load test finished", "run_id", plan.RunID, "requests", summary.Requests)
	return &summary, nil
}
