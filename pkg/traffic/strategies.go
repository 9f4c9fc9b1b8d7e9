package traffic

import (
	"math"
	"math/rand/v2"
	"time"
)

// SmoothFlow keeps a consistent, low-jitter cadence for baseline load.
type SmoothFlow struct{ waitless }

func (SmoothFlow) NextDelay(_ Metrics) time.Duration {
	jitter := time.Duration(rand.Int64N(int64(50 * time.Millisecond)))
	return 300*time.Millisecond + jitter
}

func (SmoothFlow) Name() string { return "SmoothFlow" }

// StealthJitter mimics erratic human-paced traffic: long, high-variance
// delays, backing off further once errors show up.
type StealthJitter struct{ waitless }

func (StealthJitter) NextDelay(m Metrics) time.Duration {
	delay := 2*time.Second + time.Duration(rand.Int64N(int64(5*time.Second)))
	if m.ErrorCount > 0 {
		delay += 5 * time.Second
	}
	return delay
}

func (StealthJitter) Name() string { return "StealthJitter" }

// Poisson models independent arrivals at a constant average rate using
// exponentially distributed inter-arrival gaps.
type Poisson struct {
	waitless
	TargetRPS float64
}

func (p Poisson) NextDelay(_ Metrics) time.Duration {
	u := rand.Float64()
	if u < 0.0001 {
		u = 0.0001
	}
	return time.Duration(-math.Log(u) / p.TargetRPS * float64(time.Second))
}

func (Poisson) Name() string { return "Poisson" }

// MicroBurst toggles between an extreme-rate burst window and silence,
// phase-locked to the wall clock so all workers burst together.
type MicroBurst struct {
	waitless
	BurstRPS    float64
	BurstWindow time.Duration
	IdleWindow  time.Duration
}

func (s MicroBurst) NextDelay(_ Metrics) time.Duration {
	cycle := s.BurstWindow + s.IdleWindow
	phase := time.Duration(time.Now().UnixMilli()%cycle.Milliseconds()) * time.Millisecond

	if phase < s.BurstWindow {
		return time.Duration(float64(time.Second) / s.BurstRPS)
	}
	// Sleep out the rest of the idle window.
	return cycle - phase
}

func (MicroBurst) Name() string { return "MicroBurst" }

// Slowloris keeps connections alive by firing just before the target's
// idle timeout expires.
type Slowloris struct {
	waitless
	Timeout time.Duration
}

func (s Slowloris) NextDelay(_ Metrics) time.Duration {
	lo := time.Duration(float64(s.Timeout) * 0.90)
	hi := time.Duration(float64(s.Timeout) * 0.95)
	return lo + time.Duration(rand.Int64N(int64(hi-lo)))
}

func (Slowloris) Name() string { return "Slowloris" }

// Heartbeat fires with absolute periodicity.
type Heartbeat struct {
	waitless
	Interval time.Duration
}

func (h Heartbeat) NextDelay(_ Metrics) time.Duration { return h.Interval }

func (Heartbeat) Name() string { return "Heartbeat" }

// JitteredConstant holds a baseline rate with Gaussian-approximate variance:
// an Irwin-Hall sum of six uniforms mapped onto the [0.8, 1.2] band around
// the nominal period.
type JitteredConstant struct {
	waitless
	TargetRPS float64
}

func (j JitteredConstant) NextDelay(_ Metrics) time.Duration {
	var sum float64
	for i := 0; i < 6; i++ {
		sum += rand.Float64()
	}
	factor := (sum/6.0)*0.4 + 0.8

	period := 1.0 / j.TargetRPS
	return time.Duration(period * factor * float64(time.Second))
}

func (JitteredConstant) Name() string { return "JitteredConstant" }

// WorkingHours ramps the rate down (or to a once-a-minute probe) outside
// the configured local-time window.
type WorkingHours struct {
	waitless
	StartHour  int
	EndHour    int
	OnHourRPS  float64
	OffHourRPS float64

	clock func() time.Time
}

func (w WorkingHours) NextDelay(_ Metrics) time.Duration {
	now := time.Now
	if w.clock != nil {
		now = w.clock
	}
	hour := now().Hour()

	var active bool
	if w.StartHour < w.EndHour {
		active = hour >= w.StartHour && hour < w.EndHour
	} else {
		// Window wraps midnight.
		active = hour >= w.StartHour || hour < w.EndHour
	}

	rps := w.OffHourRPS
	if active {
		rps = w.OnHourRPS
	}

	if rps <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Second) / rps)
}

func (WorkingHours) Name() string { return "WorkingHours" }

// GeoLatency layers a synthetic regional propagation delay on top of the
// baseline period.
type GeoLatency struct {
	waitless
	RegionLatency time.Duration
	BaselineRPS   float64
}

func (g GeoLatency) NextDelay(_ Metrics) time.Duration {
	jitter := time.Duration(rand.Int64N(int64(20 * time.Millisecond)))
	period := time.Duration(1000.0 / g.BaselineRPS * float64(time.Millisecond))
	return g.RegionLatency + jitter + period
}

func (GeoLatency) Name() string { return "GeoLatency" }

// RaceConditionTrigger holds a constant cadence and synchronizes the whole
// hive on a shared barrier so every worker fires in the same instant.
type RaceConditionTrigger struct {
	BaseDelay time.Duration
	Barrier   *Barrier
}

func (r RaceConditionTrigger) NextDelay(_ Metrics) time.Duration { return r.BaseDelay }

func (r RaceConditionTrigger) Wait() {
	if r.Barrier != nil {
		r.Barrier.Wait()
	}
}

func (RaceConditionTrigger) Name() string { return "RaceConditionTrigger" }

// DecoySniper camouflages sniper bursts inside low-volume decoy noise,
// picking per shot with a Bernoulli trial.
type DecoySniper struct {
	Decoy       Strategy
	Sniper      Strategy
	SniperRatio float64
}

func (d DecoySniper) NextDelay(m Metrics) time.Duration {
	if rand.Float64() < d.SniperRatio {
		return d.Sniper.NextDelay(m)
	}
	return d.Decoy.NextDelay(m)
}

// Wait delegates to both legs; either may synchronize.
func (d DecoySniper) Wait() {
	d.Decoy.Wait()
	d.Sniper.Wait()
}

func (DecoySniper) Name() string { return "DecoySniper" }
