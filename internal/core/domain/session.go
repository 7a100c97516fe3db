package domain

import "time"

// SessionContext is the per-virtual-user state bag. It is created by the runner
// when a VU starts and owned by that VU's goroutine until it finishes.
type SessionContext struct {
	VUID      string         `json:"vu_id"`
	RunID     string         `json:"run_id"`
	Scenario  string         `json:"scenario"`
	Vars      map[string]any `json:"vars"`
	StartedAt time.Time      `json:"started_at"`
}

// NewSessionContext returns a context seeded with a copy of vars.
func NewSessionContext(runID, vuID, scenario string, vars map[string]any) *SessionContext {
	copied := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		copied[k] = v
	}
	return &SessionContext{
		VUID:      vuID,
		RunID:     runID,
		Scenario:  scenario,
		Vars:      copied,
		StartedAt: time.Now(),
	}
}
