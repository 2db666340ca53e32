package threshold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vital-sim/vital-sim/sim"
)

func TestEvaluator_EvaluateReading(t *testing.T) {
	e, err := NewEvaluator(DefaultRules(), nil)
	require.NoError(t, err)

	r := sim.Reading{
		PatientID: "p1",
		DeviceID:  "d1",
		Timestamp: time.Now(),
		Vitals:    map[sim.VitalSign]float64{sim.HeartRate: 120, sim.Glucose: 95, sim.SpO2: 88},
	}
	all := e.Evaluate(r)
	assert.Len(t, all, 3)

	assert.Equal(t, CriticalHigh, all[sim.HeartRate].Severity)
	assert.Equal(t, Normal, all[sim.Glucose].Severity)
	assert.Equal(t, Low, all[sim.SpO2].Severity)
}

func TestEvaluator_PatientOverride(t *testing.T) {
	// GIVEN an athlete whose resting heart rate of 45 is normal
	athlete := Rule{Vital: sim.HeartRate, Bands: []Band{
		{Severity: CriticalLow, Upper: f(35)},
		{Severity: Normal, Upper: f(101)},
		{Severity: High},
	}}
	e, err := NewEvaluator(DefaultRules(), map[string]map[sim.VitalSign]Rule{
		"athlete": {sim.HeartRate: athlete},
	})
	require.NoError(t, err)

	// THEN the override applies only to that patient
	assert.Equal(t, Normal, e.Classify("athlete", sim.HeartRate, 45).Severity)
	assert.Equal(t, Low, e.Classify("someone-else", sim.HeartRate, 45).Severity)
	assert.Equal(t, Normal, e.Classify("athlete", sim.Glucose, 100).Severity)
}

func TestNewEvaluator_RejectsIncompleteOrInvalid(t *testing.T) {
	rules := DefaultRules()
	delete(rules, sim.Temperature)
	_, err := NewEvaluator(rules, nil)
	assert.ErrorContains(t, err, "temperature")

	rules = DefaultRules()
	bad := rules[sim.HeartRate]
	bad.Bands = bad.Bands[:2]
	rules[sim.HeartRate] = bad
	_, err = NewEvaluator(rules, nil)
	assert.Error(t, err)
}
