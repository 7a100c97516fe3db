package usecases

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/core/ports"
)

// Stats aggregates the outcome of a run. It is safe for concurrent use and
// doubles as the EventEmitter handed to hooks, forwarding to an optional sink.
type Stats struct {
	mu         sync.Mutex
	sink       ports.EventEmitter
	created    int64
	completed  int64
	failed     int64
	requests   int64
	errors     int64
	codes      map[int]int64
	errorKinds map[string]int64
	latencies  []float64
	counters   map[string]float64
	histograms map[string][]float64
}

// NewStats creates a Stats forwarding hook events to sink (may be nil).
func NewStats(sink ports.EventEmitter) *Stats {
	return &Stats{
		sink:       sink,
		codes:      make(map[int]int64),
		errorKinds: make(map[string]int64),
		counters:   make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

var _ ports.EventEmitter = (*Stats)(nil)

// VUCreated counts a started VU.
func (s *Stats) VUCreated() {
	s.mu.Lock()
	s.created++
	s.mu.Unlock()
}

// VUCompleted counts a VU that finished its flow.
func (s *Stats) VUCompleted() {
	s.mu.Lock()
	s.completed++
	s.mu.Unlock()
}

// VUFailed counts a VU stopped by a hook or request failure.
func (s *Stats) VUFailed() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

// Record adds one request result.
func (s *Stats) Record(r *domain.RequestResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if r.Status > 0 {
		s.codes[r.Status]++
		s.latencies = append(s.latencies, float64(r.Latency)/float64(time.Millisecond))
	}
	if r.Failed() {
		s.errors++
		s.errorKinds[r.Error]++
	}
}

// Counter adds value to a named custom counter.
func (s *Stats) Counter(name string, value float64) {
	s.mu.Lock()
	s.counters[name] += value
	s.mu.Unlock()
	if s.sink != nil {
		s.sink.Counter(name, value)
	}
}

// Histogram records one observation of a named custom histogram.
func (s *Stats) Histogram(name string, value float64) {
	s.mu.Lock()
	s.histograms[name] = append(s.histograms[name], value)
	s.mu.Unlock()
	if s.sink != nil {
		s.sink.Histogram(name, value)
	}
}

// Rate counts one event under name.
func (s *Stats) Rate(name string) {
	s.mu.Lock()
	s.counters[name]++
	s.mu.Unlock()
	if s.sink != nil {
		s.sink.Rate(name)
	}
}

// Summary builds the run report from everything recorded so far.
func (s *Stats) Summary(runID string, startedAt, finishedAt time.Time) *domain.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := &domain.RunSummary{
		RunID:           runID,
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
		VUsersCreated:   s.created,
		VUsersCompleted: s.completed,
		VUsersFailed:    s.failed,
		Requests:        s.requests,
		Errors:          s.errors,
		Codes:           make(map[int]int64, len(s.codes)),
		Latency:         summarize(s.latencies),
	}
	for k, v := range s.codes {
		sum.Codes[k] = v
	}
	if len(s.errorKinds) > 0 {
		sum.ErrorKinds = make(map[string]int64, len(s.errorKinds))
		for k, v := range s.errorKinds {
			sum.ErrorKinds[k] = v
		}
	}
	if len(s.counters) > 0 {
		sum.Counters = make(map[string]float64, len(s.counters))
		for k, v := range s.counters {
			sum.Counters[k] = v
		}
	}
	if len(s.histograms) > 0 {
		sum.Histograms = make(map[string]domain.LatencySummary, len(s.histograms))
		for k, v := range s.histograms {
			sum.Histograms[k] = summarize(v)
		}
	}
	if elapsed := finishedAt.Sub(startedAt).Seconds(); elapsed > 0 {
		sum.RPS = math.Round(float64(s.requests)/elapsed*100) / 100
	}
	return sum
}

func summarize(values []float64) domain.LatencySummary {
	if len(values) == 0 {
		return domain.LatencySummary{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var total float64
	for _, v := range sorted {
		total += v
	}
	return domain.LatencySummary{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   total / float64(len(sorted)),
		Median: percentile(sorted, 50),
		P95:    percentile(sorted, 95),
		P99:    percentile(sorted, 99),
	}
}

// percentile uses the nearest-rank method on an already sorted slice.
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
