package generator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/condition"
	"github.com/vital-sim/vital-sim/sim/physio"
)

// PatientProfile is the immutable description of a simulated patient.
// The condition is the only field an operator may change at run time, via Patient.SetCondition.
type PatientProfile struct {
	ID         string
	DeviceID   string
	Condition  condition.Condition
	Baselines  map[sim.VitalSign]float64
	NoiseLevel float64
	Seed       *int64 // overrides the scenario seed for this patient's streams
	Schedule   physio.Schedule
}

// Baseline returns the resting value of v, falling back to the vital sign default.
func (p *PatientProfile) Baseline(v sim.VitalSign) float64 {
	if b, ok := p.Baselines[v]; ok {
		return b
	}
	return v.Spec().Baseline
}

// Patient pairs a profile with the state one generation task owns between ticks.
type Patient struct {
	mu        sync.Mutex
	profile   PatientProfile
	condition condition.Condition
	noise     *rand.Rand
	events    *rand.Rand
	event     condition.EventState
	counters  physio.Counters
}

// NewPatient builds a patient with its own noise and event streams drawn from rng.
// NOT thread-safe with respect to rng: build every patient before starting any task.
func NewPatient(profile PatientProfile, rng *sim.PartitionedRNG) *Patient {
	if profile.Seed != nil {
		rng = sim.NewPartitionedRNG(sim.NewSimulationKey(*profile.Seed))
	}
	return &Patient{
		profile:   profile,
		condition: profile.Condition,
		noise:     rng.ForPatient(profile.ID, sim.StreamNoise),
		events:    rng.ForPatient(profile.ID, sim.StreamEvent),
	}
}

// ID returns the patient identifier.
func (p *Patient) ID() string { return p.profile.ID }

// Profile returns a copy of the static profile.
func (p *Patient) Profile() PatientProfile { return p.profile }

// Condition returns the current condition.
func (p *Patient) Condition() condition.Condition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.condition
}

// SetCondition switches the patient's condition and ends any running acute event.
func (p *Patient) SetCondition(c condition.Condition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = c
	p.event = condition.EventState{}
}

// Event returns the current acute event state.
func (p *Patient) Event() condition.EventState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.event
}

// Context builds the per-tick context holding this patient's RNG streams.
func (p *Patient) Context(now time.Time, tick int64, interval time.Duration) *sim.SimulationContext {
	return &sim.SimulationContext{
		Now:      now,
		Tick:     tick,
		Interval: interval,
		Noise:    p.noise,
		Events:   p.events,
	}
}
