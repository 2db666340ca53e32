package physio

import (
	"fmt"
	"math"
	"time"

	"github.com/vital-sim/vital-sim/sim"
)

const (
	heartRatePerIntensity   = 40.0 // bpm at full intensity, linear
	respiratoryPerIntensity = 8.0  // breaths/min at full intensity, square-root response
	stepsPerMinute          = 110.0
	strideMeters            = 0.75
	restingKcalPerMinute    = 1.1
	activeKcalPerMinute     = 8.0
)

// ActivityConfig shapes daily movement as Gaussian bumps around peak hours.
type ActivityConfig struct {
	Enabled       bool          `yaml:"enabled"`
	PeakHours     []float64     `yaml:"peak_hours"`
	Width         time.Duration `yaml:"width"` // standard deviation of each bump
	PeakIntensity float64       `yaml:"peak_intensity"`
	ResetPeriod   time.Duration `yaml:"reset_period"` // counter reset period, aligned to the start day
}

// DefaultActivityConfig returns a morning and an evening activity peak.
func DefaultActivityConfig() ActivityConfig {
	return ActivityConfig{
		Enabled:       true,
		PeakHours:     []float64{10, 18},
		Width:         time.Hour,
		PeakIntensity: 0.4,
		ResetPeriod:   24 * time.Hour,
	}
}

// Intensity returns the activity level in [0, 1] at the hour of day, before sleep suppression.
func (c ActivityConfig) Intensity(hour float64) float64 {
	if !c.Enabled || c.Width <= 0 {
		return 0
	}
	w := c.Width.Hours()
	total := 0.0
	for _, p := range c.PeakHours {
		d := circularDistance(hour, p)
		total += c.PeakIntensity * math.Exp(-d*d/(2*w*w))
	}
	return math.Min(1, math.Max(0, total))
}

// Elevation returns the additive activity contribution to v at the given intensity.
func Elevation(v sim.VitalSign, intensity float64) float64 {
	switch v {
	case sim.HeartRate:
		return heartRatePerIntensity * intensity
	case sim.RespiratoryRate:
		return respiratoryPerIntensity * math.Sqrt(intensity)
	}
	return 0
}

// Counters accumulates movement totals within one reset period.
type Counters struct {
	PeriodStart  time.Time
	Steps        float64
	DistanceM    float64
	CaloriesKcal float64
}

// Accumulate adds one tick of movement at the given intensity to prev.
// Totals restart whenever now falls in a different reset period than prev,
// with periods counted from origin.
func (c ActivityConfig) Accumulate(prev Counters, intensity float64, now, origin time.Time, tick time.Duration) Counters {
	if !c.Enabled {
		return Counters{}
	}
	start := periodStart(now, origin, c.ResetPeriod)
	next := prev
	if !prev.PeriodStart.Equal(start) {
		next = Counters{PeriodStart: start}
	}
	minutes := tick.Minutes()
	steps := stepsPerMinute * intensity * minutes
	next.Steps += steps
	next.DistanceM += steps * strideMeters
	next.CaloriesKcal += (restingKcalPerMinute + activeKcalPerMinute*intensity) * minutes
	return next
}

func periodStart(now, origin time.Time, period time.Duration) time.Time {
	if period <= 0 {
		return origin
	}
	elapsed := now.Sub(origin)
	n := elapsed / period
	if elapsed < 0 && elapsed%period != 0 {
		n--
	}
	return origin.Add(n * period)
}

// Validate checks the activity section.
func (c ActivityConfig) Validate(prefix string) error {
	if !c.Enabled {
		return nil
	}
	for i, h := range c.PeakHours {
		if h < 0 || h >= 24 || math.IsNaN(h) {
			return fmt.Errorf("%s.peak_hours[%d] must be in [0, 24), got %v", prefix, i, h)
		}
	}
	if c.Width <= 0 {
		return fmt.Errorf("%s.width must be positive, got %s", prefix, c.Width)
	}
	if c.PeakIntensity < 0 || c.PeakIntensity > 1 || math.IsNaN(c.PeakIntensity) {
		return fmt.Errorf("%s.peak_intensity must be in [0, 1], got %v", prefix, c.PeakIntensity)
	}
	if c.ResetPeriod <= 0 {
		return fmt.Errorf("%s.reset_period must be positive, got %s", prefix, c.ResetPeriod)
	}
	return nil
}
