package core

import (
	"math/rand/v2"
	"sync"
)

// Random draws integers from an inclusive range
type Random interface {
	Int(lo, hi int) int
}

type globalRandom struct{}

// NewRandom returns a Random backed by the process-wide generator.
func NewRandom() Random {
	return globalRandom{}
}

func (globalRandom) Int(lo, hi int) int {
	return lo + rand.IntN(hi-lo+1)
}

type seededRandom struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSeededRandom returns a reproducible Random. Safe for concurrent use.
func NewSeededRandom(seed uint64) Random {
	return &seededRandom{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *seededRandom) Int(lo, hi int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.rnd.IntN(hi-lo+1)
}
