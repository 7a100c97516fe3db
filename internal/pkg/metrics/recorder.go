package metrics

import (
	"strconv"

	"github.com/samirrijal/loadgen/internal/core/domain"
)

// Recorder exports runner lifecycle events as Prometheus metrics.
// It satisfies ports.RunObserver.
type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (Recorder) VUStarted(scenario string) {
	VUsersActive.WithLabelValues(scenario).Inc()
}

func (Recorder) VUFinished(scenario string, failed bool) {
	VUsersActive.WithLabelValues(scenario).Dec()
	outcome := "completed"
	if failed {
		outcome = "failed"
	}
	VUsersTotal.WithLabelValues(scenario, outcome).Inc()
}

func (Recorder) RequestDone(r *domain.RequestResult) {
	status := "error"
	if r.Status > 0 {
		status = strconv.Itoa(r.Status)
	}
	TargetRequestsTotal.WithLabelValues(r.Method, status).Inc()
	if r.Status > 0 {
		TargetRequestDuration.WithLabelValues(r.Method).Observe(r.Latency.Seconds())
	}
}

func (Recorder) HookFailed(hook string) {
	HookFailures.WithLabelValues(hook).Inc()
}

// Emitter forwards hook-emitted metrics to Prometheus.
// It satisfies ports.EventEmitter.
type Emitter struct{}

func NewEmitter() *Emitter { return &Emitter{} }

func (Emitter) Counter(name string, value float64) {
	if value < 0 {
		return // counters only go up
	}
	CustomCounters.WithLabelValues(name).Add(value)
}

func (Emitter) Histogram(name string, value float64) {
	CustomHistograms.WithLabelValues(name).Observe(value)
}

func (Emitter) Rate(name string) {
	CustomCounters.WithLabelValues(name).Inc()
}
