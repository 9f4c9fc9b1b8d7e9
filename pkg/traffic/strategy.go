// Package traffic implements the inter-request cadence strategies for the
// worker swarm. A strategy is chosen at worker construction and stays
// immutable for the worker's lifetime; one instance may be shared by the
// whole hive.
package traffic

import "time"

// Metrics is the view of current conditions a strategy may consult when
// computing the next delay. The worker fills the error count and the
// tunables from shared state before each call.
type Metrics struct {
	LatencyUs    uint64
	ErrorCount   uint64
	TargetRPS    uint64
	JitterFactor uint64
}

// Strategy computes inter-request delays and optional synchronization
// points. NextDelay is pure compute apart from reading the wall clock; a
// strategy must never block longer than its stated window.
type Strategy interface {
	// NextDelay returns how long the worker sleeps before its next shot.
	NextDelay(m Metrics) time.Duration

	// Wait is an optional cooperative synchronization point. Most
	// strategies return immediately.
	Wait()

	// Name returns the semantic identifier of the strategy.
	Name() string
}

// waitless provides the no-op Wait shared by strategies that never
// synchronize.
type waitless struct{}

func (waitless) Wait() {}
