package condition

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// EventConfig controls random acute event injection.
type EventConfig struct {
	Probability float64       `yaml:"probability"` // chance per tick that an idle patient starts an event
	Duration    time.Duration `yaml:"duration"`
}

// DefaultEventConfig disables injection with a 15 minute episode length.
func DefaultEventConfig() EventConfig {
	return EventConfig{Probability: 0, Duration: 15 * time.Minute}
}

// Validate checks the events section.
func (c EventConfig) Validate(prefix string) error {
	if math.IsNaN(c.Probability) || c.Probability < 0 || c.Probability > 1 {
		return fmt.Errorf("%s.probability must be in [0, 1], got %v", prefix, c.Probability)
	}
	if c.Probability > 0 && c.Duration <= 0 {
		return fmt.Errorf("%s.duration must be positive when probability is set, got %s", prefix, c.Duration)
	}
	return nil
}

// EventState is the per-patient acute event state carried between ticks.
type EventState struct {
	Active    *Event
	StartedAt time.Time
	ExpiresAt time.Time
}

// Step advances the event state to now. An expired event ends; an idle patient
// starts its condition's event with the configured probability. Step always draws
// one value from rng so the stream advances identically whether or not an event
// is running.
func (c EventConfig) Step(cond Condition, state EventState, now time.Time, rng *rand.Rand) EventState {
	roll := rng.Float64()
	if state.Active != nil {
		if now.Before(state.ExpiresAt) {
			return state
		}
		state = EventState{}
	}
	def := registry[cond]
	if def.Event == nil || c.Probability <= 0 {
		return state
	}
	if roll < c.Probability {
		return EventState{Active: def.Event, StartedAt: now, ExpiresAt: now.Add(c.Duration)}
	}
	return state
}

// Name returns the active event name, or "" when idle.
func (s EventState) Name() string {
	if s.Active == nil {
		return ""
	}
	return s.Active.Name
}
