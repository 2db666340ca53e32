package physio

import (
	"fmt"
	"math"
	"time"

	"github.com/vital-sim/vital-sim/sim"
)

const (
	// circadianPeakHour is the hour of the daily maximum; the trough falls 12 h later at 04:00.
	circadianPeakHour = 16.0
	// surgeSigmaHours is the width of the morning blood-pressure surge.
	surgeSigmaHours = 1.0
	// defaultWakeHour is used when neither the circadian nor sleep section names a wake time.
	defaultWakeHour = 7.0
)

// circadianAmplitude is the fractional half-swing of each vital sign over a day.
var circadianAmplitude = map[sim.VitalSign]float64{
	sim.HeartRate:       0.10,
	sim.SystolicBP:      0.06,
	sim.DiastolicBP:     0.05,
	sim.SpO2:            0.003,
	sim.Glucose:         0.03,
	sim.Temperature:     0.01,
	sim.RespiratoryRate: 0.05,
}

// morningSurge is the fractional peak of the post-wake surge.
var morningSurge = map[sim.VitalSign]float64{
	sim.SystolicBP:  0.05,
	sim.DiastolicBP: 0.04,
}

// CircadianConfig controls the 24-hour rhythm.
type CircadianConfig struct {
	Enabled    bool          `yaml:"enabled"`
	WakeHour   *float64      `yaml:"wake_hour,omitempty"`   // nil derives from the sleep window
	SurgeDelay time.Duration `yaml:"surge_delay,omitempty"` // time after waking of the BP surge peak
}

// DefaultCircadianConfig returns the enabled rhythm with a 1.5 h surge delay.
func DefaultCircadianConfig() CircadianConfig {
	return CircadianConfig{Enabled: true, SurgeDelay: 90 * time.Minute}
}

func (c CircadianConfig) wakeHour() float64 {
	if c.WakeHour != nil {
		return *c.WakeHour
	}
	return defaultWakeHour
}

// Multiplier returns the circadian factor for v at the fractional hour of day.
// The result is periodic in hour with period 24, so it is continuous across midnight.
func (c CircadianConfig) Multiplier(v sim.VitalSign, hour float64) float64 {
	if !c.Enabled {
		return 1
	}
	phase := 2 * math.Pi * (hour - circadianPeakHour) / 24
	m := 1 + circadianAmplitude[v]*math.Cos(phase)
	if s := morningSurge[v]; s > 0 {
		d := circularDistance(hour, c.wakeHour()+c.SurgeDelay.Hours())
		m += s * math.Exp(-d*d/(2*surgeSigmaHours*surgeSigmaHours))
	}
	return m
}

// MaxSlopePerMinute bounds |dMultiplier/dt| for v, in multiplier units per simulated minute.
func (c CircadianConfig) MaxSlopePerMinute(v sim.VitalSign) float64 {
	if !c.Enabled {
		return 0
	}
	perHour := circadianAmplitude[v]*2*math.Pi/24 + morningSurge[v]/(surgeSigmaHours*math.Sqrt(math.E))
	return perHour / 60
}

// Validate checks the circadian section.
func (c CircadianConfig) Validate(prefix string) error {
	if c.WakeHour != nil && (*c.WakeHour < 0 || *c.WakeHour >= 24 || math.IsNaN(*c.WakeHour)) {
		return fmt.Errorf("%s.wake_hour must be in [0, 24), got %v", prefix, *c.WakeHour)
	}
	if c.SurgeDelay < 0 || c.SurgeDelay >= 12*time.Hour {
		return fmt.Errorf("%s.surge_delay must be in [0, 12h), got %s", prefix, c.SurgeDelay)
	}
	return nil
}

// circularDistance returns the shortest distance in hours between two hours of day.
func circularDistance(a, b float64) float64 {
	d := math.Abs(wrapHour(a - b))
	return math.Min(d, 24-d)
}

// wrapHour maps h into [0, 24).
func wrapHour(h float64) float64 {
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	return h
}
