package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/core/usecases"
	"github.com/samirrijal/loadgen/internal/pkg/config"
)

// HeartbeatInterval is how often ExecuteRun reports liveness to Temporal.
const HeartbeatInterval = 10 * time.Second

// RunPlan is returned by StartRun and sizes the execute step.
type RunPlan struct {
	RunID    string
	Duration time.Duration
}

// LoadTestActivities holds the activity implementations for the load test workflow.
type LoadTestActivities struct {
	Runs *usecases.RunService
}

// StartRun parses the script and records a new run.
func (a *LoadTestActivities) StartRun(ctx context.Context, name, script string) (*RunPlan, error) {
	s, err := config.ParseScript([]byte(script))
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("parse script: "+err.Error(), "InvalidScript", err)
	}
	run, err := a.Runs.Start(ctx, name, s)
	if err != nil {
		return nil, err
	}
	activity.GetLogger(ctx).Info("run started", "run_id", run.ID, "target", run.Target)
	return &RunPlan{RunID: run.ID, Duration: s.TotalDuration()}, nil
}

// ExecuteRun drives the script against the target and returns the summary.
// It heartbeats the number of elapsed seconds while the runner works.
func (a *LoadTestActivities) ExecuteRun(ctx context.Context, runID, script string) (*domain.RunSummary, error) {
	s, err := config.ParseScript([]byte(script))
	if err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		start := time.Now()
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, int(time.Since(start).Seconds()))
			case <-done:
				return
			}
		}
	}()

	return a.Runs.Execute(ctx, runID, s)
}

// FinishRun stores the summary and announces it.
func (a *LoadTestActivities) FinishRun(ctx context.Context, summary *domain.RunSummary) error {
	return a.Runs.Finish(ctx, summary)
}

// FailRun marks the run failed (saga compensation).
func (a *LoadTestActivities) FailRun(ctx context.Context, runID, reason string) error {
	if err := a.Runs.Fail(ctx, runID, errors.New(reason)); err != nil {
		return err
	}
	activity.GetLogger(ctx).Warn("run marked failed", "run_id", runID, "reason", reason)
	return nil
}
