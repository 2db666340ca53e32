package physio

import (
	"math"
	"testing"
	"time"

	"github.com/vital-sim/vital-sim/sim"
)

func TestSleep_DepthRampsAndWrapsMidnight(t *testing.T) {
	c := DefaultSleepConfig() // 23:00 for 8h, 20 min ramps
	tests := []struct {
		hour float64
		want float64
	}{
		{22.5, 0},
		{23, 0},
		{23 + 10.0/60, 0.5},
		{23 + 20.0/60, 1},
		{3, 1},
		{7 - 10.0/60, 0.5},
		{7, 0},
		{12, 0},
	}
	for _, tt := range tests {
		if got := c.Depth(tt.hour); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Depth(%v) = %v, want %v", tt.hour, got, tt.want)
		}
	}
	if w := c.WakeHour(); w != 7 {
		t.Errorf("WakeHour() = %v, want 7", w)
	}
}

func TestSleep_DampensHeartRateAndSuppressesActivity(t *testing.T) {
	if got := Dampening(sim.HeartRate, 1); math.Abs(got-0.85) > 1e-12 {
		t.Errorf("heart rate dampening = %v, want 0.85", got)
	}
	if got := Dampening(sim.Glucose, 1); got != 1 {
		t.Errorf("glucose dampening = %v, want 1", got)
	}
	if got := ActivitySuppression(1); math.Abs(got-0.05) > 1e-12 {
		t.Errorf("activity suppression = %v, want 0.05", got)
	}
}

func TestSleep_Validate(t *testing.T) {
	c := DefaultSleepConfig()
	c.Duration = 24 * time.Hour
	if err := c.Validate("sleep"); err == nil {
		t.Error("24h sleep accepted, want error")
	}
	c = DefaultSleepConfig()
	c.Ramp = 5 * time.Hour
	if err := c.Validate("sleep"); err == nil {
		t.Error("ramp longer than half the window accepted, want error")
	}
}
