package telemetry

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/jihwankim/surge-utils/pkg/reporting"
)

// Aggregator merges per-worker histogram snapshots into one global
// latency histogram on a dedicated OS thread. The merge is synchronous
// and CPU-bound, so it stays off the cooperative runtime entirely; the
// bounded channel plus non-blocking producers keep it from ever stalling
// a worker.
type Aggregator struct {
	ch     <-chan Payload
	logger *reporting.Logger

	mu     sync.Mutex
	global *hdrhistogram.Histogram

	p99     atomic.Int64
	merged  atomic.Uint64
	dropped atomic.Uint64

	started atomic.Bool
	done    chan struct{}
}

// NewAggregator builds an aggregator consuming the given channel.
func NewAggregator(ch <-chan Payload, logger *reporting.Logger) *Aggregator {
	return &Aggregator{
		ch:     ch,
		logger: logger,
		global: NewHistogram(),
		done:   make(chan struct{}),
	}
}

// Start spawns the aggregation thread. Calling it twice is an error.
func (a *Aggregator) Start() error {
	if !a.started.CompareAndSwap(false, true) {
		return fmt.Errorf("aggregator already started")
	}
	go a.run()
	return nil
}

// Wait blocks until the channel has been closed and drained.
func (a *Aggregator) Wait() {
	<-a.done
}

func (a *Aggregator) run() {
	// The merge loop wants a thread of its own rather than a slot on
	// the cooperative runtime shared with the workers.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(a.done)

	for payload := range a.ch {
		switch {
		case payload.Histogram != nil:
			a.mergeSnapshot(payload.Histogram)
		case payload.Attack != nil:
			a.traceAttack(payload.Attack)
		default:
			a.logger.Warn("Discarding empty telemetry payload")
		}
	}
}

// mergeSnapshot folds one worker histogram into the global one. Every
// merge is independent; a snapshot that fails to import is logged and
// skipped.
func (a *Aggregator) mergeSnapshot(snap *hdrhistogram.Snapshot) {
	imported := hdrhistogram.Import(snap)
	if imported == nil {
		a.logger.Warn("Discarding malformed histogram snapshot")
		a.dropped.Add(1)
		return
	}

	a.mu.Lock()
	a.global.Merge(imported)
	p99 := a.global.ValueAtQuantile(99)
	a.mu.Unlock()

	a.p99.Store(p99)
	a.merged.Add(1)
}

// traceAttack emits one log line for a single sample. The logger
// sanitizes every string field at the sink boundary, so even fields
// derived from hostile responses come out escaped.
func (a *Aggregator) traceAttack(res *AttackResult) {
	line := fmt.Sprintf("code=%d latency_us=%d size=%d", res.StatusCode, res.LatencyUs, res.SizeBytes)
	a.logger.Debug("Attack sample", "trace", line)
}

// P99LatencyUs returns the latest derived P99 without touching the merge
// lock.
func (a *Aggregator) P99LatencyUs() int64 {
	return a.p99.Load()
}

// MergedSnapshots returns how many worker snapshots have been folded in.
func (a *Aggregator) MergedSnapshots() uint64 {
	return a.merged.Load()
}

// TotalSamples returns the global sample count.
func (a *Aggregator) TotalSamples() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.global.TotalCount()
}

// LatencyQuantile reads an arbitrary quantile from the global histogram.
func (a *Aggregator) LatencyQuantile(q float64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.global.ValueAtQuantile(q)
}
