package sim

import (
	"math/rand"
	"time"
)

// SimulationClock maps integer ticks onto simulated wall-clock time.
// A clock has a single writer; independent patients each own a Clone.
type SimulationClock struct {
	start    time.Time
	interval time.Duration
	tick     int64
}

// NewSimulationClock creates a clock positioned at tick 0.
func NewSimulationClock(start time.Time, interval time.Duration) *SimulationClock {
	return &SimulationClock{start: start, interval: interval}
}

// Now returns the simulated time of the current tick.
func (c *SimulationClock) Now() time.Time {
	return c.start.Add(time.Duration(c.tick) * c.interval)
}

// Tick returns the current tick number.
func (c *SimulationClock) Tick() int64 { return c.tick }

// Interval returns the simulated duration of one tick.
func (c *SimulationClock) Interval() time.Duration { return c.interval }

// Start returns the simulated time of tick 0.
func (c *SimulationClock) Start() time.Time { return c.start }

// Advance moves the clock forward by one tick.
func (c *SimulationClock) Advance() {
	c.tick++
}

// Clone returns an independent copy positioned at the same tick.
func (c *SimulationClock) Clone() *SimulationClock {
	cp := *c
	return &cp
}

// SimulationContext carries everything a sub-model may read for one tick.
// It replaces any package-level simulation state: two contexts never share an RNG.
type SimulationContext struct {
	Now      time.Time
	Tick     int64
	Interval time.Duration
	Noise    *rand.Rand
	Events   *rand.Rand
}

// HourOfDay returns the fractional UTC hour of Now in [0, 24).
func (sc *SimulationContext) HourOfDay() float64 {
	return HourOfDay(sc.Now)
}

// HourOfDay returns the fractional UTC hour of t in [0, 24).
func HourOfDay(t time.Time) float64 {
	t = t.UTC()
	return float64(t.Hour()) + float64(t.Minute())/60 + (float64(t.Second())+float64(t.Nanosecond())/1e9)/3600
}
