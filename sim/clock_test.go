package sim

import (
	"testing"
	"time"
)

func TestSimulationClock_AdvanceAndClone(t *testing.T) {
	start := time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)
	c := NewSimulationClock(start, 15*time.Minute)

	for i := 0; i < 4; i++ {
		c.Advance()
	}
	if want := start.Add(time.Hour); !c.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", c.Now(), want)
	}

	// GIVEN a clone WHEN the original advances THEN the clone stays put
	cp := c.Clone()
	c.Advance()
	if cp.Tick() != 4 || c.Tick() != 5 {
		t.Errorf("ticks = (%d, %d), want (4, 5)", cp.Tick(), c.Tick())
	}
}

func TestHourOfDay(t *testing.T) {
	tests := []struct {
		t    time.Time
		want float64
	}{
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2025, 1, 1, 13, 30, 0, 0, time.UTC), 13.5},
		{time.Date(2025, 1, 1, 23, 59, 0, 0, time.UTC), 23 + 59.0/60},
	}
	for _, tt := range tests {
		if got := HourOfDay(tt.t); got != tt.want {
			t.Errorf("HourOfDay(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}
