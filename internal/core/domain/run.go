package domain

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one execution of a script.
type Run struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Target     string      `json:"target"`
	Status     RunStatus   `json:"status"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Summary    *RunSummary `json:"summary,omitempty"`
}

// HTTPRequest is a fully rendered request ready to be sent.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse is what the requester hands back to the runner.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Latency    time.Duration
}

// RequestResult is the outcome of one request sent by a VU.
type RequestResult struct {
	RunID    string        `json:"run_id"`
	VUID     string        `json:"vu_id"`
	Scenario string        `json:"scenario"`
	Method   string        `json:"method"`
	URL      string        `json:"url"`
	Status   int           `json:"status"`
	Latency  time.Duration `json:"latency_ns"`
	Bytes    int           `json:"bytes"`
	Error    string        `json:"error,omitempty"`
	Time     time.Time     `json:"time"`
}

// Failed reports whether the request counts as an error.
func (r *RequestResult) Failed() bool {
	return r.Error != ""
}

// LatencySummary holds latency statistics in milliseconds.
type LatencySummary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// RunSummary is the aggregate report of a run.
type RunSummary struct {
	RunID           string                    `json:"run_id"`
	StartedAt       time.Time                 `json:"started_at"`
	FinishedAt      time.Time                 `json:"finished_at"`
	VUsersCreated   int64                     `json:"vusers_created"`
	VUsersCompleted int64                     `json:"vusers_completed"`
	VUsersFailed    int64                     `json:"vusers_failed"`
	Requests        int64                     `json:"requests"`
	Errors          int64                     `json:"errors"`
	Codes           map[int]int64             `json:"codes"`
	ErrorKinds      map[string]int64          `json:"error_kinds,omitempty"`
	Latency         LatencySummary            `json:"latency_ms"`
	Counters        map[string]float64        `json:"counters,omitempty"`
	Histograms      map[string]LatencySummary `json:"histograms,omitempty"`
	RPS             float64                   `json:"rps"`
}
