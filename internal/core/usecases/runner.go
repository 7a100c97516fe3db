package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/core/ports"
)

// Session variables set for after_response hooks.
const (
	StatusVar    = "status"
	LatencyMsVar = "latency_ms"
)

// Counter names kept in the run coordinator.
const (
	CounterVUsersCreated = "vusers.created"
	CounterVUsersSkipped = "vusers.skipped"
	CounterRequests      = "requests"
)

// RunnerConfig wires a Runner. Publisher, Coordinator, Observer and Events are optional.
type RunnerConfig struct {
	Hooks       *HookRegistry
	Requester   ports.Requester
	Random      ports.RandomSource
	Publisher   ports.ResultPublisher
	Coordinator ports.RunCoordinator
	Observer    ports.RunObserver
	Events      ports.EventEmitter
	MaxVUsers   int // 0 means unlimited
	Logger      *slog.Logger
}

// Runner executes a script: it launches virtual users phase by phase, runs
// their scenarios and aggregates the results.
type Runner struct {
	script *domain.Script
	cfg    RunnerConfig
	stats  *Stats
	tracer trace.Tracer
	logger *slog.Logger
	slots  chan struct{}
	wg     sync.WaitGroup
}

// NewRunner creates a Runner for a single run of script.
func NewRunner(script *domain.Script, cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		script: script,
		cfg:    cfg,
		stats:  NewStats(cfg.Events),
		tracer: otel.Tracer("github.com/samirrijal/loadgen/runner"),
		logger: logger,
	}
	if cfg.MaxVUsers > 0 {
		r.slots = make(chan struct{}, cfg.MaxVUsers)
	}
	return r
}

// Run executes every phase in order and waits for all VUs to finish.
// On cancellation no new VUs start and the partial summary is returned with
// the context error.
func (r *Runner) Run(ctx context.Context, runID string) (*domain.RunSummary, error) {
	if err := r.cfg.Hooks.Check(r.script); err != nil {
		return nil, err
	}

	startedAt := time.Now()
	r.logger.Info("run started", "run_id", runID, "target", r.script.Config.Target,
		"phases", len(r.script.Config.Phases), "duration", r.script.TotalDuration().String())

	for i, phase := range r.script.Config.Phases {
		if ctx.Err() != nil {
			break
		}
		r.logger.Info("phase started", "run_id", runID, "phase", i, "name", phase.Name)
		r.runPhase(ctx, runID, phase)
	}

	r.wg.Wait()
	summary := r.stats.Summary(runID, startedAt, time.Now())

	r.logger.Info("run finished", "run_id", runID,
		"vusers_created", summary.VUsersCreated,
		"vusers_failed", summary.VUsersFailed,
		"requests", summary.Requests,
		"errors", summary.Errors,
	)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

func (r *Runner) runPhase(ctx context.Context, runID string, phase domain.Phase) {
	start := time.Now()
	if !phase.Pause {
		for _, offset := range ArrivalSchedule(phase) {
			if !sleepUntil(ctx, start.Add(offset)) {
				return
			}
			r.launch(ctx, runID)
		}
	}
	sleepUntil(ctx, start.Add(phase.Duration))
}

// launch starts one VU unless the concurrency cap is reached.
func (r *Runner) launch(ctx context.Context, runID string) {
	if r.slots != nil {
		select {
		case r.slots <- struct{}{}:
		default:
			r.stats.Counter(CounterVUsersSkipped, 1)
			r.incr(ctx, runID, CounterVUsersSkipped)
			return
		}
	}

	sc := r.pickScenario()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.slots != nil {
			defer func() { <-r.slots }()
		}
		r.runVU(ctx, runID, sc)
	}()
}

func (r *Runner) pickScenario() *domain.Scenario {
	scenarios := r.script.Scenarios
	if len(scenarios) == 1 {
		return &scenarios[0]
	}
	total := 0
	for _, sc := range scenarios {
		total += sc.Weight
	}
	x := r.cfg.Random.Float64() * float64(total)
	for i := range scenarios {
		x -= float64(scenarios[i].Weight)
		if x < 0 {
			return &scenarios[i]
		}
	}
	return &scenarios[len(scenarios)-1]
}

func (r *Runner) runVU(ctx context.Context, runID string, sc *domain.Scenario) {
	vu := domain.NewSessionContext(runID, uuid.NewString(), sc.Name, r.script.Config.Variables)
	log := r.logger.With("run_id", runID, "vu_id", vu.VUID, "scenario", sc.Name)

	r.stats.VUCreated()
	r.incr(ctx, runID, CounterVUsersCreated)
	if r.cfg.Observer != nil {
		r.cfg.Observer.VUStarted(sc.Name)
	}

	ctx, span := r.tracer.Start(ctx, "vu "+sc.Name, trace.WithAttributes(
		attribute.String("loadgen.run_id", runID),
		attribute.String("loadgen.vu_id", vu.VUID),
	))
	defer span.End()

	err := r.runScenario(ctx, vu, sc, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.stats.VUFailed()
		var hookErr *HookError
		if errors.As(err, &hookErr) && r.cfg.Observer != nil {
			r.cfg.Observer.HookFailed(hookErr.Hook)
		}
		log.Debug("vu failed", "error", err)
	} else {
		r.stats.VUCompleted()
	}
	if r.cfg.Observer != nil {
		r.cfg.Observer.VUFinished(sc.Name, err != nil)
	}
}

func (r *Runner) runScenario(ctx context.Context, vu *domain.SessionContext, sc *domain.Scenario, log *slog.Logger) error {
	if err := r.cfg.Hooks.Run(ctx, sc.BeforeScenario, vu, r.stats); err != nil {
		return err
	}

	for i := range sc.Flow {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := &sc.Flow[i]
		switch {
		case step.Request != nil:
			if err := r.doRequest(ctx, vu, step.Request); err != nil {
				return err
			}
		case step.Think > 0:
			if !sleepUntil(ctx, time.Now().Add(step.Think)) {
				return ctx.Err()
			}
		case step.Log != "":
			log.Info(Render(step.Log, vu.Vars))
		}
	}

	return r.cfg.Hooks.Run(ctx, sc.AfterScenario, vu, r.stats)
}

func (r *Runner) doRequest(ctx context.Context, vu *domain.SessionContext, tmpl *domain.Request) error {
	if err := r.cfg.Hooks.Run(ctx, tmpl.BeforeRequest, vu, r.stats); err != nil {
		return err
	}

	req, err := r.buildRequest(vu, tmpl)
	if err != nil {
		return err
	}

	ctx, span := r.tracer.Start(ctx, req.Method+" "+tmpl.URL, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	result := &domain.RequestResult{
		RunID:    vu.RunID,
		VUID:     vu.VUID,
		Scenario: vu.Scenario,
		Method:   req.Method,
		URL:      req.URL,
		Time:     time.Now(),
	}

	resp, err := r.cfg.Requester.Do(ctx, req)
	switch {
	case err != nil:
		result.Error = err.Error()
	default:
		result.Status = resp.StatusCode
		result.Latency = resp.Latency
		result.Bytes = len(resp.Body)
		if tmpl.ExpectStatus != 0 && resp.StatusCode != tmpl.ExpectStatus {
			result.Error = fmt.Sprintf("expected status %d, got %d", tmpl.ExpectStatus, resp.StatusCode)
		}
	}
	span.SetAttributes(attribute.Int("http.status_code", result.Status))

	r.record(ctx, result)

	if result.Failed() {
		span.SetStatus(codes.Error, result.Error)
		return errors.New(result.Error)
	}

	vu.Vars[StatusVar] = result.Status
	vu.Vars[LatencyMsVar] = float64(result.Latency) / float64(time.Millisecond)
	return r.cfg.Hooks.Run(ctx, tmpl.AfterResponse, vu, r.stats)
}

func (r *Runner) record(ctx context.Context, result *domain.RequestResult) {
	r.stats.Record(result)
	r.incr(ctx, result.RunID, CounterRequests)
	if r.cfg.Observer != nil {
		r.cfg.Observer.RequestDone(result)
	}
	if r.cfg.Publisher != nil {
		if err := r.cfg.Publisher.PublishResult(ctx, result); err != nil {
			r.logger.Warn("publish result failed", "run_id", result.RunID, "error", err)
		}
	}
}

func (r *Runner) incr(ctx context.Context, runID, name string) {
	if r.cfg.Coordinator == nil {
		return
	}
	if _, err := r.cfg.Coordinator.IncrCounter(ctx, runID, name, 1); err != nil {
		r.logger.Warn("coordinator counter failed", "run_id", runID, "counter", name, "error", err)
	}
}

// buildRequest renders a request template against the VU's variables.
func (r *Runner) buildRequest(vu *domain.SessionContext, tmpl *domain.Request) (*domain.HTTPRequest, error) {
	req := &domain.HTTPRequest{
		Method:  tmpl.Method,
		URL:     ResolveURL(r.script.Config.Target, Render(tmpl.URL, vu.Vars)),
		Headers: make(map[string]string, len(r.script.Config.Defaults.Headers)+len(tmpl.Headers)),
	}
	for k, v := range r.script.Config.Defaults.Headers {
		req.Headers[strings.ToLower(k)] = Render(v, vu.Vars)
	}
	for k, v := range tmpl.Headers {
		req.Headers[strings.ToLower(k)] = Render(v, vu.Vars)
	}

	switch {
	case tmpl.JSON != nil:
		body, err := json.Marshal(RenderValue(tmpl.JSON, vu.Vars))
		if err != nil {
			return nil, fmt.Errorf("encode json body: %w", err)
		}
		req.Body = body
		if _, ok := req.Headers["content-type"]; !ok {
			req.Headers["content-type"] = "application/json"
		}
	case tmpl.Body != "":
		req.Body = []byte(Render(tmpl.Body, vu.Vars))
	}
	return req, nil
}

// ResolveURL joins a relative path onto target. Absolute URLs are returned as is.
func ResolveURL(target, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path == "" {
		return target
	}
	return strings.TrimRight(target, "/") + "/" + strings.TrimLeft(path, "/")
}

// ArrivalSchedule returns the offsets from phase start at which VUs arrive.
// With ArrivalCount the VUs are spread evenly; otherwise the rate ramps
// linearly from ArrivalRate to RampTo (constant when RampTo is zero).
func ArrivalSchedule(phase domain.Phase) []time.Duration {
	if phase.Pause || phase.Duration <= 0 {
		return nil
	}

	if phase.ArrivalCount > 0 {
		step := phase.Duration / time.Duration(phase.ArrivalCount)
		out := make([]time.Duration, phase.ArrivalCount)
		for i := range out {
			out[i] = time.Duration(i) * step
		}
		return out
	}

	r0 := phase.ArrivalRate
	r1 := phase.RampTo
	if r1 == 0 {
		r1 = r0
	}
	d := phase.Duration.Seconds()
	total := (r0 + r1) / 2 * d
	if total <= 0 {
		return nil
	}

	// Arrivals so far at time t: N(t) = r0*t + a*t^2, with a = (r1-r0)/(2d).
	// The k-th VU arrives when N(t) = k.
	a := (r1 - r0) / (2 * d)
	n := int(math.Ceil(total - 1e-9))
	out := make([]time.Duration, 0, n)
	for k := 0; k < n; k++ {
		var t float64
		if a == 0 {
			t = float64(k) / r0
		} else {
			t = (-r0 + math.Sqrt(r0*r0+4*a*float64(k))) / (2 * a)
		}
		if t >= d || math.IsNaN(t) {
			break
		}
		out = append(out, time.Duration(t*float64(time.Second)))
	}
	return out
}

// sleepUntil blocks until deadline or ctx is done. It reports false on cancellation.
func sleepUntil(ctx context.Context, deadline time.Time) bool {
	wait := time.Until(deadline)
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
