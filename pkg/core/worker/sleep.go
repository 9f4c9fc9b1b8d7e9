package worker

import (
	"runtime"
	"time"
)

// spinThreshold splits the hybrid sleep: below it the timer wheel's
// granularity dominates the requested duration, so we spin instead.
const spinThreshold = time.Millisecond

// PreciseSleep sleeps with microsecond accuracy. Durations under one
// millisecond spin on the wall clock with a cooperative yield per
// iteration so the reactor never starves; anything longer goes through
// the runtime timer.
func PreciseSleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if d >= spinThreshold {
		time.Sleep(d)
		return
	}

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		runtime.Gosched()
	}
}
