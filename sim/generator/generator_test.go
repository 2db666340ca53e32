package generator

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/condition"
	"github.com/vital-sim/vital-sim/sim/physio"
)

var testStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

// flatProfile returns a profile with every time-of-day model disabled and no noise.
func flatProfile(id string, c condition.Condition) PatientProfile {
	return PatientProfile{ID: id, DeviceID: "dev-" + id, Condition: c, Baselines: sim.DefaultBaselines()}
}

// run generates n readings for one patient starting at testStart.
func run(g *Generator, p *Patient, interval time.Duration, n int) []sim.Reading {
	clock := sim.NewSimulationClock(testStart, interval)
	out := make([]sim.Reading, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Generate(p, p.Context(clock.Now(), clock.Tick(), clock.Interval())))
		clock.Advance()
	}
	return out
}

func TestGenerate_TachycardiaScenario(t *testing.T) {
	// GIVEN baseline heart rate 70, tachycardia, no noise, no time-of-day effects
	prof := flatProfile("p1", condition.Tachycardia)
	prof.Baselines[sim.HeartRate] = 70
	g := New(condition.DefaultEventConfig(), testStart)
	p := NewPatient(prof, sim.NewPartitionedRNG(sim.NewSimulationKey(42)))

	// WHEN one reading is generated
	r := run(g, p, time.Minute, 1)[0]

	// THEN heart rate is 70 * 1.3 = 91
	assert.Equal(t, 91.0, r.Vitals[sim.HeartRate])
	assert.Equal(t, "tachycardia", r.Metadata[sim.MetaCondition])
}

func TestGenerate_MealGlucoseScenario(t *testing.T) {
	// GIVEN glucose baseline 90 and a single meal at 12:00
	prof := flatProfile("p1", condition.Healthy)
	prof.Schedule.Meals = physio.DefaultMealConfig()
	prof.Schedule.Meals.Times = []int{12}
	g := New(condition.DefaultEventConfig(), testStart)
	p := NewPatient(prof, sim.NewPartitionedRNG(sim.NewSimulationKey(1)))

	// WHEN generating hourly readings over the day
	readings := run(g, p, time.Hour, 24)

	// THEN 13:00 carries the full bump and 15:00 is back at baseline
	assert.Equal(t, 130.0, readings[13].Vitals[sim.Glucose])
	assert.Equal(t, 90.0, readings[15].Vitals[sim.Glucose])
	assert.Equal(t, 90.0, readings[11].Vitals[sim.Glucose])
}

func TestGenerate_HypertensionRaisesMeanSystolic(t *testing.T) {
	// GIVEN identical seeds and full default schedules with noise
	mk := func(c condition.Condition) *Patient {
		prof := flatProfile("p1", c)
		prof.Schedule = physio.DefaultSchedule()
		prof.Schedule.Normalize()
		prof.NoiseLevel = 0.02
		return NewPatient(prof, sim.NewPartitionedRNG(sim.NewSimulationKey(42)))
	}
	g := New(condition.DefaultEventConfig(), testStart)

	// WHEN generating a 24-tick window for each
	healthy := run(g, mk(condition.Healthy), time.Hour, 24)
	hyper := run(g, mk(condition.Hypertension), time.Hour, 24)

	// THEN the hypertensive mean is about 20% higher
	mean := func(rs []sim.Reading) float64 {
		s := 0.0
		for _, r := range rs {
			s += r.Vitals[sim.SystolicBP]
		}
		return s / float64(len(rs))
	}
	ratio := mean(hyper) / mean(healthy)
	if math.Abs(ratio-1.2) > 0.01 {
		t.Errorf("systolic mean ratio = %.4f, want 1.20 ± 0.01", ratio)
	}
}

func TestGenerate_ValuesStayWithinClipBounds(t *testing.T) {
	// GIVEN extreme baselines, every condition, heavy noise and frequent events
	rng := rand.New(rand.NewSource(99))
	events := condition.EventConfig{Probability: 0.2, Duration: 30 * time.Minute}
	g := New(events, testStart)
	for i, name := range condition.Names() {
		prof := flatProfile(fmt.Sprintf("p%d", i), condition.Condition(name))
		prof.Schedule = physio.DefaultSchedule()
		prof.NoiseLevel = 0.25
		for _, v := range sim.AllVitalSigns {
			s := v.Spec()
			prof.Baselines[v] = s.ClipMin + rng.Float64()*(s.ClipMax-s.ClipMin)
		}
		p := NewPatient(prof, sim.NewPartitionedRNG(sim.NewSimulationKey(int64(i))))

		// WHEN generating two days of 15-minute readings
		for _, r := range run(g, p, 15*time.Minute, 192) {
			// THEN every value lies inside the hard physiological range
			for v, val := range r.Vitals {
				s := v.Spec()
				if val < s.ClipMin || val > s.ClipMax {
					t.Fatalf("%s %s = %v outside [%v, %v]", name, v, val, s.ClipMin, s.ClipMax)
				}
			}
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	mk := func() *Patient {
		prof := flatProfile("p7", condition.AFib)
		prof.Schedule = physio.DefaultSchedule()
		prof.NoiseLevel = 0.05
		return NewPatient(prof, sim.NewPartitionedRNG(sim.NewSimulationKey(5)))
	}
	g := New(condition.EventConfig{Probability: 0.05, Duration: time.Hour}, testStart)
	a := run(g, mk(), 10*time.Minute, 100)
	b := run(g, mk(), 10*time.Minute, 100)
	require.Equal(t, a, b)
}

func TestGenerate_PatientSeedOverride(t *testing.T) {
	seed := int64(3)
	prof := flatProfile("p1", condition.Healthy)
	prof.NoiseLevel = 0.05
	prof.Seed = &seed
	g := New(condition.DefaultEventConfig(), testStart)

	a := run(g, NewPatient(prof, sim.NewPartitionedRNG(sim.NewSimulationKey(1))), time.Minute, 5)
	b := run(g, NewPatient(prof, sim.NewPartitionedRNG(sim.NewSimulationKey(2))), time.Minute, 5)
	assert.Equal(t, a, b, "patient seed should make the scenario seed irrelevant")
}

func TestGenerate_SleepSuppressesActivity(t *testing.T) {
	prof := flatProfile("p1", condition.Healthy)
	prof.Schedule.Sleep = physio.DefaultSleepConfig()
	prof.Schedule.Activity = physio.DefaultActivityConfig()
	prof.Schedule.Activity.PeakHours = []float64{3}
	g := New(condition.DefaultEventConfig(), testStart)
	p := NewPatient(prof, sim.NewPartitionedRNG(sim.NewSimulationKey(1)))

	r := run(g, p, time.Hour, 4)[3]
	assert.LessOrEqual(t, r.Activity.Intensity, 0.02)
	assert.Less(t, r.Vitals[sim.HeartRate], 72.0, "deep sleep should lower heart rate")
}

func TestGenerate_ActiveEventInMetadata(t *testing.T) {
	prof := flatProfile("p1", condition.Hypertension)
	g := New(condition.EventConfig{Probability: 1, Duration: time.Hour}, testStart)
	p := NewPatient(prof, sim.NewPartitionedRNG(sim.NewSimulationKey(1)))

	r := run(g, p, time.Minute, 1)[0]
	assert.Equal(t, "hypertensive_crisis", r.Metadata[sim.MetaEvent])
	assert.Equal(t, 174.0, r.Vitals[sim.SystolicBP])
}

func TestPatient_SetConditionEndsEvent(t *testing.T) {
	prof := flatProfile("p1", condition.Hypertension)
	g := New(condition.EventConfig{Probability: 1, Duration: time.Hour}, testStart)
	p := NewPatient(prof, sim.NewPartitionedRNG(sim.NewSimulationKey(1)))
	run(g, p, time.Minute, 1)
	require.NotNil(t, p.Event().Active)

	p.SetCondition(condition.Healthy)
	assert.Nil(t, p.Event().Active)
	assert.Equal(t, condition.Healthy, p.Condition())
}
