// Package randutil provides random sources for virtual users.
//
// Every VU draws from the same source, so the default source hands out pooled
// generators instead of sharing one behind a mutex.
package randutil

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

var pool = sync.Pool{
	New: func() any {
		return rand.New(rand.NewPCG(seed(), seed()))
	},
}

func seed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return rand.Uint64()
	}
	return binary.LittleEndian.Uint64(b[:])
}

// Pooled is a RandomSource backed by a pool of independently seeded generators.
// The zero value is ready to use and safe for concurrent use.
type Pooled struct{}

// Float64 returns a number in [0.0, 1.0).
func (Pooled) Float64() float64 {
	r := pool.Get().(*rand.Rand)
	defer pool.Put(r)
	return r.Float64()
}

// Seeded is a deterministic RandomSource. The sequence it yields depends only
// on the seed, but concurrent VUs draw from it in scheduling order, so
// per-VU values are only reproducible when draws happen in a fixed order.
type Seeded struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeeded returns a source whose sequence depends only on seed.
func NewSeeded(seed uint64) *Seeded {
	return &Seeded{rng: rand.New(rand.NewPCG(seed, seed^0x5EED))}
}

// Float64 returns a number in [0.0, 1.0).
func (s *Seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Source yields numbers uniformly distributed in [0.0, 1.0).
type Source interface {
	Float64() float64
}

// New returns a Seeded source when seed is non-zero and a Pooled one otherwise.
func New(seed uint64) Source {
	if seed != 0 {
		return NewSeeded(seed)
	}
	return Pooled{}
}
