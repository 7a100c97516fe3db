package workflows_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.temporal.io/sdk/testsuite"

	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/core/usecases"
	"github.com/samirrijal/loadgen/internal/pkg/randutil"
	"github.com/samirrijal/loadgen/internal/workflows"
)

// ---- In-memory RunRepository ----

type memRunRepo struct {
	mu   sync.Mutex
	runs map[string]*domain.Run
}

func newMemRunRepo() *memRunRepo { return &memRunRepo{runs: map[string]*domain.Run{}} }

func (m *memRunRepo) Create(ctx context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memRunRepo) Finish(ctx context.Context, id string, s *domain.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return domain.ErrRunNotFound
	}
	run.Status = domain.RunStatusFinished
	run.Summary = s
	return nil
}

func (m *memRunRepo) Fail(ctx context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return domain.ErrRunNotFound
	}
	run.Status = domain.RunStatusFailed
	run.Error = reason
	return nil
}

func (m *memRunRepo) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (m *memRunRepo) List(ctx context.Context, offset, limit int) ([]domain.Run, int, error) {
	return nil, len(m.runs), nil
}

func (m *memRunRepo) only(t *testing.T) *domain.Run {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) != 1 {
		t.Fatalf("expected exactly one run, got %d", len(m.runs))
	}
	for _, r := range m.runs {
		return r
	}
	return nil
}

// ---- Requester that always answers 200 ----

type okRequester struct{}

func (okRequester) Do(ctx context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error) {
	return &domain.HTTPResponse{StatusCode: 200, Latency: time.Millisecond}, nil
}

const smokeScript = `
config:
  target: http://sut.local
  phases:
    - duration: 100ms
      arrival_count: 3
scenarios:
  - before_scenario: [%HOOK%]
    flow:
      - request:
          url: /orders/{{ order_num }}
`

func newEnv(t *testing.T, repo *memRunRepo) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	rng := randutil.New(7)
	svc := usecases.NewRunService(repo, usecases.RunnerConfig{
		Hooks:     usecases.DefaultHooks(rng),
		Requester: okRequester{},
		Random:    rng,
	})
	env.RegisterWorkflow(workflows.LoadTestWorkflow)
	env.RegisterActivity(&workflows.LoadTestActivities{Runs: svc})
	return env
}

func TestLoadTestWorkflow_Success(t *testing.T) {
	repo := newMemRunRepo()
	env := newEnv(t, repo)

	script := strings.Replace(smokeScript, "%HOOK%", "generateRandomData", 1)
	env.ExecuteWorkflow(workflows.LoadTestWorkflow, workflows.LoadTestInput{Name: "smoke", Script: script})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("unexpected workflow error: %v", err)
	}

	var summary domain.RunSummary
	if err := env.GetWorkflowResult(&summary); err != nil {
		t.Fatalf("get result: %v", err)
	}
	if summary.Requests != 3 || summary.Codes[200] != 3 {
		t.Errorf("expected 3 successful requests, got %+v", summary)
	}

	run := repo.only(t)
	if run.Name != "smoke" || run.Status != domain.RunStatusFinished || run.Summary == nil {
		t.Errorf("expected finished run with summary, got %+v", run)
	}
}

func TestLoadTestWorkflow_CompensatesOnExecuteFailure(t *testing.T) {
	repo := newMemRunRepo()
	env := newEnv(t, repo)

	script := strings.Replace(smokeScript, "%HOOK%", "chargeCard", 1)
	env.ExecuteWorkflow(workflows.LoadTestWorkflow, workflows.LoadTestInput{Name: "broken", Script: script})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err == nil {
		t.Fatal("expected workflow error")
	}

	run := repo.only(t)
	if run.Status != domain.RunStatusFailed {
		t.Errorf("expected failed run, got %s", run.Status)
	}
	if !strings.Contains(run.Error, "chargeCard") {
		t.Errorf("expected failure reason to name the hook, got %q", run.Error)
	}
}

func TestLoadTestWorkflow_InvalidScript(t *testing.T) {
	repo := newMemRunRepo()
	env := newEnv(t, repo)

	env.ExecuteWorkflow(workflows.LoadTestWorkflow, workflows.LoadTestInput{Name: "bad", Script: "config: {}\n"})

	if err := env.GetWorkflowError(); err == nil {
		t.Fatal("expected workflow error")
	}
	if len(repo.runs) != 0 {
		t.Errorf("expected no run recorded, got %d", len(repo.runs))
	}
}
