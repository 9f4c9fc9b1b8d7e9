// Package telemetry carries per-request samples from the worker swarm to
// the aggregation thread without ever back-pressuring the hot path.
package telemetry

import "github.com/HdrHistogram/hdrhistogram-go"

// Latency histograms span 1 µs to 10 s at 3 significant digits.
const (
	HistogramMinUs  = 1
	HistogramMaxUs  = 10_000_000
	HistogramDigits = 3
)

// NewHistogram allocates a worker-local latency histogram.
func NewHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(HistogramMinUs, HistogramMaxUs, HistogramDigits)
}

// AttackResult is the telemetry for one completed request.
type AttackResult struct {
	StatusCode uint16
	LatencyUs  uint64
	SizeBytes  int
}

// Payload is the tagged union flowing over the telemetry channel: exactly
// one of the fields is set.
type Payload struct {
	// Histogram is a per-worker snapshot shipped on sync.
	Histogram *hdrhistogram.Snapshot
	// Attack is a single sample for log tracing.
	Attack *AttackResult
}

// TrySend offers a payload to the bounded channel without blocking. A
// full channel drops the sample; the hot path never waits on telemetry.
func TrySend(ch chan<- Payload, p Payload) bool {
	select {
	case ch <- p:
		return true
	default:
		return false
	}
}
