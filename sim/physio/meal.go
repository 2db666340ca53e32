package physio

import (
	"fmt"
	"math"
	"time"

	"github.com/vital-sim/vital-sim/sim"
)

// MealConfig controls post-prandial glucose and heart-rate bumps.
type MealConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Times         []int         `yaml:"times"`           // whole hours of day
	PeakGlucose   float64       `yaml:"peak_glucose"`    // mg/dL above the pre-meal value
	PeakDelay     time.Duration `yaml:"peak_delay"`      // meal start to glucose peak
	Horizon       time.Duration `yaml:"horizon"`         // meal start to full return
	HeartRatePeak float64       `yaml:"heart_rate_peak"` // bpm added at the peak
}

// DefaultMealConfig returns three meals at 07:00, 12:00 and 19:00.
func DefaultMealConfig() MealConfig {
	return MealConfig{
		Enabled:       true,
		Times:         []int{7, 12, 19},
		PeakGlucose:   40,
		PeakDelay:     60 * time.Minute,
		Horizon:       180 * time.Minute,
		HeartRatePeak: 4,
	}
}

// Pulse returns the summed unit-peak response of all meals at the hour of day.
// A single meal contributes 1 exactly at PeakDelay and 0 at and beyond Horizon.
func (c MealConfig) Pulse(hour float64) float64 {
	if !c.Enabled {
		return 0
	}
	delay := c.PeakDelay.Minutes()
	horizon := c.Horizon.Minutes()
	total := 0.0
	for _, m := range c.Times {
		t := wrapHour(hour-float64(m)) * 60
		switch {
		case t <= delay:
			total += (1 - math.Cos(math.Pi*t/delay)) / 2
		case t < horizon:
			total += (1 + math.Cos(math.Pi*(t-delay)/(horizon-delay))) / 2
		}
	}
	return total
}

// Effect returns the additive meal contribution to v at the hour of day.
func (c MealConfig) Effect(v sim.VitalSign, hour float64) float64 {
	switch v {
	case sim.Glucose:
		return c.PeakGlucose * c.Pulse(hour)
	case sim.HeartRate:
		return c.HeartRatePeak * c.Pulse(hour)
	}
	return 0
}

// Validate checks the meal section.
func (c MealConfig) Validate(prefix string) error {
	if !c.Enabled {
		return nil
	}
	seen := make(map[int]bool, len(c.Times))
	for i, m := range c.Times {
		if m < 0 || m > 23 {
			return fmt.Errorf("%s.times[%d] must be an hour in [0, 23], got %d", prefix, i, m)
		}
		if seen[m] {
			return fmt.Errorf("%s.times[%d]: duplicate meal hour %d", prefix, i, m)
		}
		seen[m] = true
	}
	if c.Horizon <= 0 || c.Horizon > 12*time.Hour {
		return fmt.Errorf("%s.horizon must be in (0, 12h], got %s", prefix, c.Horizon)
	}
	if c.PeakDelay <= 0 || c.PeakDelay >= c.Horizon {
		return fmt.Errorf("%s.peak_delay must be in (0, horizon), got %s", prefix, c.PeakDelay)
	}
	if err := validateFiniteNonNegative(prefix+".peak_glucose", c.PeakGlucose); err != nil {
		return err
	}
	return validateFiniteNonNegative(prefix+".heart_rate_peak", c.HeartRatePeak)
}

func validateFiniteNonNegative(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val < 0 {
		return fmt.Errorf("%s must be non-negative, got %f", name, val)
	}
	return nil
}
