package usecases

import (
	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/core/ports"
)

// OrderNumVar is the session variable written by GenerateRandomData.
const OrderNumVar = "order_num"

// RandomDataHook populates session variables with random values.
type RandomDataHook struct {
	rng ports.RandomSource
}

// NewRandomDataHook creates a new RandomDataHook.
func NewRandomDataHook(rng ports.RandomSource) *RandomDataHook {
	return &RandomDataHook{rng: rng}
}

// GenerateRandomData stores a number in [0, 1) under order_num, replacing any
// previous value, and completes immediately. The event emitter is not used.
func (h *RandomDataHook) GenerateRandomData(vu *domain.SessionContext, _ ports.EventEmitter, done ports.Done) {
	if vu.Vars == nil {
		vu.Vars = make(map[string]any, 1)
	}
	vu.Vars[OrderNumVar] = h.rng.Float64()
	done(nil)
}
