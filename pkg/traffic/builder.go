package traffic

import (
	"fmt"
	"time"

	"github.com/jihwankim/surge-utils/pkg/config"
)

// Build constructs the strategy named by the traffic config. parties sizes
// the shared barrier for the race trigger; the same strategy instance is
// handed to every worker in the hive.
func Build(cfg config.TrafficConfig, parties int) (Strategy, error) {
	rps := cfg.TargetRPS
	if rps <= 0 {
		rps = 100
	}

	switch cfg.Strategy {
	case "", "smooth":
		return SmoothFlow{}, nil
	case "stealth":
		return StealthJitter{}, nil
	case "poisson":
		return Poisson{TargetRPS: rps}, nil
	case "microburst":
		burst := cfg.BurstDuration
		if burst <= 0 {
			burst = 100 * time.Millisecond
		}
		idle := cfg.IdleDuration
		if idle <= 0 {
			idle = 900 * time.Millisecond
		}
		brps := cfg.BurstRPS
		if brps <= 0 {
			brps = 1000
		}
		return MicroBurst{BurstRPS: brps, BurstWindow: burst, IdleWindow: idle}, nil
	case "slowloris":
		window := cfg.SlowlorisWindow
		if window <= 0 {
			window = time.Second
		}
		return Slowloris{Timeout: window}, nil
	case "heartbeat":
		interval := cfg.Interval
		if interval <= 0 {
			interval = time.Second
		}
		return Heartbeat{Interval: interval}, nil
	case "jittered":
		return JitteredConstant{TargetRPS: rps}, nil
	case "workinghours":
		return WorkingHours{
			StartHour:  cfg.StartHour,
			EndHour:    cfg.EndHour,
			OnHourRPS:  cfg.OnHourRPS,
			OffHourRPS: cfg.OffHourRPS,
		}, nil
	case "geolatency":
		return GeoLatency{RegionLatency: cfg.RegionLatency, BaselineRPS: rps}, nil
	case "race":
		interval := cfg.Interval
		if interval <= 0 {
			interval = 100 * time.Millisecond
		}
		return RaceConditionTrigger{BaseDelay: interval, Barrier: NewBarrier(parties)}, nil
	case "decoysniper":
		ratio := cfg.SniperRatio
		if ratio <= 0 {
			ratio = 0.1
		}
		return DecoySniper{
			Decoy:       StealthJitter{},
			Sniper:      Poisson{TargetRPS: rps},
			SniperRatio: ratio,
		}, nil
	default:
		return nil, fmt.Errorf("unknown traffic strategy %q", cfg.Strategy)
	}
}
