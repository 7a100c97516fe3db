package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/core/ports"
	"github.com/samirrijal/loadgen/internal/core/usecases"
)

// --- Mock Requester ---

type mockRequester struct {
	mu   sync.Mutex
	reqs []*domain.HTTPRequest
	doFn func(ctx context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error)
}

func (m *mockRequester) Do(ctx context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	if m.doFn != nil {
		return m.doFn(ctx, req)
	}
	return &domain.HTTPResponse{StatusCode: 200, Body: []byte(`{"ok":true}`), Latency: 5 * time.Millisecond}, nil
}

func (m *mockRequester) requests() []*domain.HTTPRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.HTTPRequest(nil), m.reqs...)
}

// --- Concurrency-safe RandomSource ---

type lockedRandom struct {
	mu  sync.Mutex
	rng fixedRandom
}

func (l *lockedRandom) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

func newLockedRandom(values ...float64) *lockedRandom {
	return &lockedRandom{rng: fixedRandom{values: values}}
}

// --- Mock RunObserver ---

type mockObserver struct {
	mu          sync.Mutex
	started     int
	finished    int
	failed      int
	requests    int
	hookFailure []string
}

func (o *mockObserver) VUStarted(string) {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *mockObserver) VUFinished(_ string, failed bool) {
	o.mu.Lock()
	o.finished++
	if failed {
		o.failed++
	}
	o.mu.Unlock()
}

func (o *mockObserver) RequestDone(*domain.RequestResult) {
	o.mu.Lock()
	o.requests++
	o.mu.Unlock()
}

func (o *mockObserver) HookFailed(hook string) {
	o.mu.Lock()
	o.hookFailure = append(o.hookFailure, hook)
	o.mu.Unlock()
}

// --- Mock RunCoordinator ---

type mockCoordinator struct {
	mu       sync.Mutex
	counters map[string]int64
	cached   map[string]*domain.RunSummary
}

func newMockCoordinator() *mockCoordinator {
	return &mockCoordinator{counters: map[string]int64{}, cached: map[string]*domain.RunSummary{}}
}

func (c *mockCoordinator) IncrCounter(ctx context.Context, runID, name string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[runID+":"+name] += delta
	return c.counters[runID+":"+name], nil
}

func (c *mockCoordinator) CacheSummary(ctx context.Context, s *domain.RunSummary, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached[s.RunID] = s
	return nil
}

func (c *mockCoordinator) CachedSummary(ctx context.Context, runID string) (*domain.RunSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached[runID], nil
}

func orderScript(count int, duration time.Duration) *domain.Script {
	s := &domain.Script{
		Config: domain.ScriptConfig{
			Target: "http://sut.local",
			Phases: []domain.Phase{{Name: "burst", Duration: duration, ArrivalCount: count}},
			Defaults: domain.Defaults{Headers: map[string]string{
				"X-Load-Test": "true",
			}},
		},
		Scenarios: []domain.Scenario{{
			Name: "inference",
			Flow: []domain.Step{{Request: &domain.Request{
				Method:        "post",
				URL:           "/example",
				JSON:          map[string]any{"text": "I'm so happy!", "order": "{{ order_num }}"},
				BeforeRequest: []string{"generateRandomData"},
				ExpectStatus:  200,
			}}},
		}},
	}
	s.Normalize()
	return s
}

func TestRunner_ExecutesScenario(t *testing.T) {
	requester := &mockRequester{}
	observer := &mockObserver{}
	coord := newMockCoordinator()
	rng := newLockedRandom(0.1, 0.2, 0.3, 0.4)

	runner := usecases.NewRunner(orderScript(4, 40*time.Millisecond), usecases.RunnerConfig{
		Hooks:       usecases.DefaultHooks(rng),
		Requester:   requester,
		Random:      rng,
		Observer:    observer,
		Coordinator: coord,
	})

	sum, err := runner.Run(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sum.VUsersCreated != 4 || sum.VUsersCompleted != 4 || sum.VUsersFailed != 0 {
		t.Errorf("unexpected VU counts: %+v", sum)
	}
	if sum.Requests != 4 || sum.Codes[200] != 4 {
		t.Errorf("expected 4 successful requests, got %d (%v)", sum.Requests, sum.Codes)
	}
	if observer.started != 4 || observer.finished != 4 || observer.requests != 4 {
		t.Errorf("unexpected observer state %+v", observer)
	}
	if coord.counters["run-1:vusers.created"] != 4 || coord.counters["run-1:requests"] != 4 {
		t.Errorf("unexpected coordinator counters %v", coord.counters)
	}

	reqs := requester.requests()
	if len(reqs) != 4 {
		t.Fatalf("expected 4 requests, got %d", len(reqs))
	}
	for _, req := range reqs {
		if req.Method != "POST" || req.URL != "http://sut.local/example" {
			t.Errorf("unexpected request line %s %s", req.Method, req.URL)
		}
		if req.Headers["content-type"] != "application/json" || req.Headers["x-load-test"] != "true" {
			t.Errorf("unexpected headers %v", req.Headers)
		}
		var body struct {
			Text  string  `json:"text"`
			Order float64 `json:"order"`
		}
		if err := json.Unmarshal(req.Body, &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Order < 0 || body.Order >= 1 || body.Order == 0 {
			t.Errorf("expected order_num in (0,1) from the hook, got %v", body.Order)
		}
	}
}

func TestRunner_SetsResponseVars(t *testing.T) {
	rng := newLockedRandom(0.3)
	hooks := usecases.DefaultHooks(rng)

	var mu sync.Mutex
	var seen map[string]any
	_ = hooks.Register("captureResponse", func(vu *domain.SessionContext, _ ports.EventEmitter, done ports.Done) {
		mu.Lock()
		seen = make(map[string]any, len(vu.Vars))
		for k, v := range vu.Vars {
			seen[k] = v
		}
		mu.Unlock()
		done(nil)
	})

	script := orderScript(1, 10*time.Millisecond)
	script.Scenarios[0].Flow[0].Request.AfterResponse = []string{"captureResponse"}
	script.Scenarios[0].Flow = append(script.Scenarios[0].Flow, domain.Step{Request: &domain.Request{
		Method: "GET",
		URL:    "/orders/{{ status }}/{{ latency_ms }}",
	}})

	requester := &mockRequester{}
	runner := usecases.NewRunner(script, usecases.RunnerConfig{
		Hooks:     hooks,
		Requester: requester,
		Random:    rng,
	})

	if _, err := runner.Run(context.Background(), "run-vars"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if seen[usecases.StatusVar] != 200 {
		t.Errorf("expected status 200 in vars, got %v", seen)
	}
	if seen[usecases.LatencyMsVar] != 5.0 {
		t.Errorf("expected latency_ms 5 in vars, got %v", seen)
	}
	if seen["order_num"] != 0.3 {
		t.Errorf("expected order_num 0.3 in vars, got %v", seen)
	}

	reqs := requester.requests()
	if len(reqs) != 2 || reqs[1].URL != "http://sut.local/orders/200/5" {
		t.Errorf("expected follow-up request rendered from response vars, got %v", reqs)
	}
}

func TestRunner_RequestErrorFailsVU(t *testing.T) {
	requester := &mockRequester{doFn: func(ctx context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error) {
		return nil, errors.New("connection refused")
	}}
	rng := newLockedRandom(0.5)

	runner := usecases.NewRunner(orderScript(2, 20*time.Millisecond), usecases.RunnerConfig{
		Hooks:     usecases.DefaultHooks(rng),
		Requester: requester,
		Random:    rng,
	})

	sum, err := runner.Run(context.Background(), "run-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.VUsersFailed != 2 || sum.Errors != 2 {
		t.Errorf("expected 2 failed VUs and 2 errors, got %+v", sum)
	}
	if sum.ErrorKinds["connection refused"] != 2 {
		t.Errorf("unexpected error kinds %v", sum.ErrorKinds)
	}
}

func TestRunner_ExpectStatusMismatch(t *testing.T) {
	requester := &mockRequester{doFn: func(ctx context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error) {
		return &domain.HTTPResponse{StatusCode: 503}, nil
	}}
	rng := newLockedRandom(0.5)

	runner := usecases.NewRunner(orderScript(1, 10*time.Millisecond), usecases.RunnerConfig{
		Hooks:     usecases.DefaultHooks(rng),
		Requester: requester,
		Random:    rng,
	})

	sum, err := runner.Run(context.Background(), "run-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Codes[503] != 1 || sum.Errors != 1 || sum.VUsersFailed != 1 {
		t.Errorf("expected one 503 counted as error, got %+v", sum)
	}
}

func TestRunner_HookFailure(t *testing.T) {
	hooks := usecases.NewHookRegistry()
	_ = hooks.Register("generateRandomData", func(vu *domain.SessionContext, _ ports.EventEmitter, done ports.Done) {
		done(errors.New("no entropy"))
	})
	requester := &mockRequester{}
	observer := &mockObserver{}
	rng := newLockedRandom(0.5)

	runner := usecases.NewRunner(orderScript(1, 10*time.Millisecond), usecases.RunnerConfig{
		Hooks:     hooks,
		Requester: requester,
		Random:    rng,
		Observer:  observer,
	})

	sum, err := runner.Run(context.Background(), "run-4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.VUsersFailed != 1 || sum.Requests != 0 {
		t.Errorf("expected the VU to fail before sending, got %+v", sum)
	}
	if len(observer.hookFailure) != 1 || observer.hookFailure[0] != "generateRandomData" {
		t.Errorf("expected hook failure to be observed, got %v", observer.hookFailure)
	}
	if len(requester.requests()) != 0 {
		t.Error("no request should be sent after a failed hook")
	}
}

func TestRunner_UnknownHook(t *testing.T) {
	rng := newLockedRandom(0.5)
	runner := usecases.NewRunner(orderScript(1, 10*time.Millisecond), usecases.RunnerConfig{
		Hooks:     usecases.NewHookRegistry(),
		Requester: &mockRequester{},
		Random:    rng,
	})

	if _, err := runner.Run(context.Background(), "run-5"); !errors.Is(err, domain.ErrUnknownHook) {
		t.Fatalf("expected ErrUnknownHook, got %v", err)
	}
}

func TestRunner_MaxVUsers(t *testing.T) {
	requester := &mockRequester{doFn: func(ctx context.Context, req *domain.HTTPRequest) (*domain.HTTPResponse, error) {
		time.Sleep(100 * time.Millisecond)
		return &domain.HTTPResponse{StatusCode: 200}, nil
	}}
	rng := newLockedRandom(0.5)

	runner := usecases.NewRunner(orderScript(3, 15*time.Millisecond), usecases.RunnerConfig{
		Hooks:     usecases.DefaultHooks(rng),
		Requester: requester,
		Random:    rng,
		MaxVUsers: 1,
	})

	sum, err := runner.Run(context.Background(), "run-6")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.VUsersCreated != 1 {
		t.Errorf("expected 1 VU, got %d", sum.VUsersCreated)
	}
	if sum.Counters[usecases.CounterVUsersSkipped] != 2 {
		t.Errorf("expected 2 skipped VUs, got %v", sum.Counters)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	rng := newLockedRandom(0.5)
	script := orderScript(1, time.Hour)

	runner := usecases.NewRunner(script, usecases.RunnerConfig{
		Hooks:     usecases.DefaultHooks(rng),
		Requester: &mockRequester{},
		Random:    rng,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	sum, err := runner.Run(ctx, "run-7")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if sum == nil || sum.VUsersCreated != 1 {
		t.Errorf("expected partial summary with 1 VU, got %+v", sum)
	}
}

func TestRunner_WeightedScenarios(t *testing.T) {
	script := orderScript(4, 20*time.Millisecond)
	script.Scenarios[0].Weight = 1
	script.Scenarios = append(script.Scenarios, domain.Scenario{
		Name:   "browse",
		Weight: 3,
		Flow:   []domain.Step{{Request: &domain.Request{Method: "GET", URL: "/browse"}}},
	})
	// 0.1 -> inference, 0.9 -> browse; the hook consumes values too.
	rng := newLockedRandom(0.1)

	requester := &mockRequester{}
	runner := usecases.NewRunner(script, usecases.RunnerConfig{
		Hooks:     usecases.DefaultHooks(rng),
		Requester: requester,
		Random:    rng,
	})
	if _, err := runner.Run(context.Background(), "run-8"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, req := range requester.requests() {
		if req.URL != "http://sut.local/example" {
			t.Errorf("expected weight draw 0.1 to pick inference, got %s", req.URL)
		}
	}
}

func TestArrivalSchedule(t *testing.T) {
	near := func(got, want time.Duration) bool {
		return math.Abs(float64(got-want)) < float64(time.Millisecond)
	}

	t.Run("count", func(t *testing.T) {
		got := usecases.ArrivalSchedule(domain.Phase{Duration: 40 * time.Millisecond, ArrivalCount: 4})
		want := []time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
		if len(got) != len(want) {
			t.Fatalf("expected %d arrivals, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("arrival %d: got %v want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("constant rate", func(t *testing.T) {
		got := usecases.ArrivalSchedule(domain.Phase{Duration: 2 * time.Second, ArrivalRate: 5})
		if len(got) != 10 {
			t.Fatalf("expected 10 arrivals, got %d", len(got))
		}
		if !near(got[1], 200*time.Millisecond) || !near(got[9], 1800*time.Millisecond) {
			t.Errorf("unexpected spacing %v", got)
		}
	})

	t.Run("ramp", func(t *testing.T) {
		got := usecases.ArrivalSchedule(domain.Phase{Duration: 2 * time.Second, ArrivalRate: 0, RampTo: 10})
		if len(got) != 10 {
			t.Fatalf("expected 10 arrivals, got %d", len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i] <= got[i-1] {
				t.Fatalf("arrivals must increase: %v", got)
			}
		}
		// Gaps shrink as the rate increases.
		if got[1]-got[0] <= got[9]-got[8] {
			t.Errorf("expected shrinking gaps, got %v", got)
		}
	})

	t.Run("pause", func(t *testing.T) {
		if got := usecases.ArrivalSchedule(domain.Phase{Duration: time.Second, ArrivalRate: 5, Pause: true}); got != nil {
			t.Errorf("expected no arrivals, got %v", got)
		}
	})
}
