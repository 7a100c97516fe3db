package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/core/ports"
)

// SummaryCacheTTL is how long finished summaries stay in the run coordinator.
const SummaryCacheTTL = 24 * time.Hour

// RunService handles run lifecycle: persisting runs, executing scripts and
// distributing their summaries.
type RunService struct {
	runs   ports.RunRepository
	runner RunnerConfig
}

// NewRunService creates a new RunService. runs may be nil when no database is
// configured, in which case runs are executed but not stored.
func NewRunService(runs ports.RunRepository, runner RunnerConfig) *RunService {
	return &RunService{runs: runs, runner: runner}
}

// Start records a new run in the running state and returns it.
func (s *RunService) Start(ctx context.Context, name string, script *domain.Script) (*domain.Run, error) {
	run := &domain.Run{
		ID:        uuid.NewString(),
		Name:      name,
		Target:    script.Config.Target,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now(),
	}
	if s.runs != nil {
		if err := s.runs.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
	}
	return run, nil
}

// Execute runs the script for an already started run and returns its summary.
func (s *RunService) Execute(ctx context.Context, runID string, script *domain.Script) (*domain.RunSummary, error) {
	if err := script.Validate(); err != nil {
		return nil, err
	}
	if err := s.runner.Hooks.Check(script); err != nil {
		return nil, err
	}
	return NewRunner(script, s.runner).Run(ctx, runID)
}

// Finish stores a summary everywhere it is consumed. Only the repository write
// is fatal; cache and broker are best-effort.
func (s *RunService) Finish(ctx context.Context, summary *domain.RunSummary) error {
	if s.runs != nil {
		if err := s.runs.Finish(ctx, summary.RunID, summary); err != nil {
			return fmt.Errorf("finish run %s: %w", summary.RunID, err)
		}
	}
	if s.runner.Coordinator != nil {
		if err := s.runner.Coordinator.CacheSummary(ctx, summary, SummaryCacheTTL); err != nil {
			s.logger().Warn("cache summary failed", "run_id", summary.RunID, "error", err)
		}
	}
	if s.runner.Publisher != nil {
		if err := s.runner.Publisher.PublishSummary(ctx, summary); err != nil {
			s.logger().Warn("publish summary failed", "run_id", summary.RunID, "error", err)
		}
	}
	return nil
}

// Fail marks a run as failed.
func (s *RunService) Fail(ctx context.Context, runID string, reason error) error {
	if s.runs == nil {
		return nil
	}
	if err := s.runs.Fail(ctx, runID, reason.Error()); err != nil {
		return fmt.Errorf("fail run %s: %w", runID, err)
	}
	return nil
}

// Run starts, executes and finishes a run in one call.
func (s *RunService) Run(ctx context.Context, name string, script *domain.Script) (*domain.Run, error) {
	run, err := s.Start(ctx, name, script)
	if err != nil {
		return nil, err
	}

	summary, err := s.Execute(ctx, run.ID, script)
	if err != nil {
		// Use a fresh context: ctx may be the reason we failed.
		failCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ferr := s.Fail(failCtx, run.ID, err); ferr != nil {
			s.logger().Error("mark run failed", "run_id", run.ID, "error", ferr)
		}
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
		run.Summary = summary
		return run, err
	}

	if err := s.Finish(ctx, summary); err != nil {
		return run, err
	}
	finished := summary.FinishedAt
	run.Status = domain.RunStatusFinished
	run.FinishedAt = &finished
	run.Summary = summary
	return run, nil
}

// Record stores a summary received from another generator. Runs unknown to
// the repository are created first; already finished runs are left alone.
func (s *RunService) Record(ctx context.Context, summary *domain.RunSummary) error {
	if s.runs == nil {
		return nil
	}
	run, err := s.runs.GetByID(ctx, summary.RunID)
	switch {
	case IsNotFound(err):
		run = &domain.Run{
			ID:        summary.RunID,
			Status:    domain.RunStatusRunning,
			StartedAt: summary.StartedAt,
		}
		if err := s.runs.Create(ctx, run); err != nil {
			return fmt.Errorf("create run %s: %w", summary.RunID, err)
		}
	case err != nil:
		return err
	case run.Status == domain.RunStatusFinished:
		return nil
	}
	if err := s.runs.Finish(ctx, summary.RunID, summary); err != nil {
		return fmt.Errorf("finish run %s: %w", summary.RunID, err)
	}
	return nil
}

// Get returns a run by ID, preferring the cached summary for finished runs.
func (s *RunService) Get(ctx context.Context, id string) (*domain.Run, error) {
	if s.runs == nil {
		return nil, domain.ErrRunNotFound
	}
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Summary == nil && s.runner.Coordinator != nil {
		if cached, err := s.runner.Coordinator.CachedSummary(ctx, id); err == nil && cached != nil {
			run.Summary = cached
		}
	}
	return run, nil
}

// List returns runs newest first with the total count.
func (s *RunService) List(ctx context.Context, offset, limit int) ([]domain.Run, int, error) {
	if s.runs == nil {
		return nil, 0, nil
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.runs.List(ctx, offset, limit)
}

// IsNotFound reports whether err means the run does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrRunNotFound)
}

func (s *RunService) logger() *slog.Logger {
	if s.runner.Logger != nil {
		return s.runner.Logger
	}
	return slog.Default()
}
