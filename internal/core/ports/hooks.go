package ports

import "github.com/samirrijal/loadgen/internal/core/domain"

// Done signals that a hook has finished. A nil error means the VU may proceed.
type Done func(err error)

// Hook is the plugin calling convention used at every scripted hook point
// (before_scenario, before_request, after_response, after_scenario).
// A hook must call done exactly once; the runner waits for it before moving on.
type Hook func(vu *domain.SessionContext, events EventEmitter, done Done)

// EventEmitter records custom metrics from inside hooks.
type EventEmitter interface {
	Counter(name string, value float64)
	Histogram(name string, value float64)
	Rate(name string)
}

// RandomSource yields pseudo-random numbers uniformly distributed in [0, 1).
// Implementations are shared by every VU and must be safe for concurrent use.
type RandomSource interface {
	Float64() float64
}
