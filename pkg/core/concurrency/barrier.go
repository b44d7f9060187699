package concurrency

import (
	"sync"

	"github.com/fluxorio/roundpool/pkg/core/failfast"
)

// Barrier is a cyclic barrier for a fixed party of goroutines.
//
// It lets the workers of one round split their callback into phases: every
// worker calls Await at the end of a phase and none proceeds until all have
// arrived. The barrier resets itself for the next phase.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	arrived    int
	generation uint64
}

// NewBarrier creates a barrier for parties goroutines. Panics if parties < 1.
func NewBarrier(parties int) *Barrier {
	failfast.If(parties >= 1, "barrier parties must be >= 1, got %d", parties)
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Await blocks until Parties goroutines have called Await for the current
// generation. It returns the arrival index; the last goroutine to arrive gets
// Parties()-1 and is the one that releases the others.
func (b *Barrier) Await() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	index := b.arrived
	b.arrived++
	if b.arrived == b.parties {
		b.arrived = 0
		b.generation++
		b.cond.Broadcast()
		return index
	}

	gen := b.generation
	// Wait may return spuriously; only a new generation releases us.
	for gen == b.generation {
		b.cond.Wait()
	}
	return index
}

// Parties returns the number of goroutines required to trip the barrier.
func (b *Barrier) Parties() int {
	return b.parties
}

// Generation returns how many times the barrier has tripped.
func (b *Barrier) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}
