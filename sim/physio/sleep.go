package physio

import (
	"fmt"
	"math"
	"time"

	"github.com/vital-sim/vital-sim/sim"
)

// sleepDepthFactor is the fractional reduction of each vital sign in deep sleep.
var sleepDepthFactor = map[sim.VitalSign]float64{
	sim.HeartRate:       0.15,
	sim.SystolicBP:      0.10,
	sim.DiastolicBP:     0.10,
	sim.RespiratoryRate: 0.12,
	sim.Temperature:     0.01,
}

// sleepActivitySuppression is the share of activity removed in deep sleep.
const sleepActivitySuppression = 0.95

// SleepConfig describes the nightly sleep window.
type SleepConfig struct {
	Enabled   bool          `yaml:"enabled"`
	StartHour float64       `yaml:"start_hour"`
	Duration  time.Duration `yaml:"duration"`
	Ramp      time.Duration `yaml:"ramp"` // linear transition at each end of the window
}

// DefaultSleepConfig returns 23:00 for 8 h with 20 minute transitions.
func DefaultSleepConfig() SleepConfig {
	return SleepConfig{Enabled: true, StartHour: 23, Duration: 8 * time.Hour, Ramp: 20 * time.Minute}
}

// WakeHour returns the hour of day at which the window ends.
func (c SleepConfig) WakeHour() float64 {
	return wrapHour(c.StartHour + c.Duration.Hours())
}

// Depth returns how deeply asleep the patient is at the hour of day, in [0, 1].
// Depth is 0 outside the window and at both of its edges, so it never jumps.
func (c SleepConfig) Depth(hour float64) float64 {
	if !c.Enabled {
		return 0
	}
	since := wrapHour(hour-c.StartHour) * 60
	dur := c.Duration.Minutes()
	if since >= dur {
		return 0
	}
	edge := math.Min(since, dur-since)
	ramp := c.Ramp.Minutes()
	if ramp <= 0 {
		return 1
	}
	return math.Min(1, edge/ramp)
}

// Dampening returns the multiplicative sleep factor for v at the given depth.
func Dampening(v sim.VitalSign, depth float64) float64 {
	return 1 - sleepDepthFactor[v]*depth
}

// ActivitySuppression returns the factor applied to activity intensity at the given depth.
func ActivitySuppression(depth float64) float64 {
	return 1 - sleepActivitySuppression*depth
}

// Validate checks the sleep section.
func (c SleepConfig) Validate(prefix string) error {
	if !c.Enabled {
		return nil
	}
	if c.StartHour < 0 || c.StartHour >= 24 || math.IsNaN(c.StartHour) {
		return fmt.Errorf("%s.start_hour must be in [0, 24), got %v", prefix, c.StartHour)
	}
	if c.Duration <= 0 || c.Duration >= 24*time.Hour {
		return fmt.Errorf("%s.duration must be in (0, 24h), got %s", prefix, c.Duration)
	}
	if c.Ramp < 0 || c.Ramp > c.Duration/2 {
		return fmt.Errorf("%s.ramp must be in [0, duration/2], got %s", prefix, c.Ramp)
	}
	return nil
}
