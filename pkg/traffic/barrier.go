package traffic

import "sync"

// Barrier is a reusable N-party rendezvous. Each generation releases all
// parties at once and resets for the next round. Used by the race-trigger
// strategy to fire the whole hive inside the same scheduling quantum.
type Barrier struct {
	mu      sync.Mutex
	parties int
	arrived int
	gen     chan struct{}
}

// NewBarrier creates a barrier for the given number of parties. A barrier
// of one or fewer parties never blocks.
func NewBarrier(parties int) *Barrier {
	return &Barrier{
		parties: parties,
		gen:     make(chan struct{}),
	}
}

// Wait blocks until all parties have arrived, then releases the whole
// generation.
func (b *Barrier) Wait() {
	if b.parties <= 1 {
		return
	}

	b.mu.Lock()
	gen := b.gen
	b.arrived++
	if b.arrived == b.parties {
		b.arrived = 0
		b.gen = make(chan struct{})
		close(gen)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	<-gen
}
