// Package condition holds the closed registry of medical conditions, the percentage
// adjustments each applies to baseline vitals, and the acute events a condition can
// trigger.
package condition

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vital-sim/vital-sim/sim"
)

// Condition names one entry of the closed registry.
type Condition string

const (
	Healthy      Condition = "healthy"
	Hypertension Condition = "hypertension"
	Hypotension  Condition = "hypotension"
	Tachycardia  Condition = "tachycardia"
	Bradycardia  Condition = "bradycardia"
	Diabetes     Condition = "diabetes"
	Hypoglycemia Condition = "hypoglycemia"
	COPD         Condition = "copd"
	Fever        Condition = "fever"
	Sepsis       Condition = "sepsis"
	AFib         Condition = "afib"
	Hypoxia      Condition = "hypoxia"
)

// Adjustment raises or lowers one vital sign by a percentage.
type Adjustment struct {
	Vital   sim.VitalSign
	Percent float64 // signed: +20 raises by 20%, -15 lowers by 15%
}

// Factor returns the multiplier equivalent of the adjustment.
func (a Adjustment) Factor() float64 {
	return 1 + a.Percent/100
}

// Event is an acute episode that temporarily replaces a condition's adjustments.
type Event struct {
	Name  string
	Rules []Adjustment
}

// Definition is a registry entry.
type Definition struct {
	Rules []Adjustment
	Event *Event // nil when the condition has no acute episode
}

func adj(v sim.VitalSign, pct float64) Adjustment { return Adjustment{Vital: v, Percent: pct} }

var registry = map[Condition]Definition{
	Healthy: {},
	Hypertension: {
		Rules: []Adjustment{adj(sim.SystolicBP, 20), adj(sim.DiastolicBP, 20)},
		Event: &Event{Name: "hypertensive_crisis", Rules: []Adjustment{adj(sim.SystolicBP, 45), adj(sim.DiastolicBP, 35)}},
	},
	Hypotension: {
		Rules: []Adjustment{adj(sim.SystolicBP, -15), adj(sim.DiastolicBP, -15)},
		Event: &Event{Name: "syncope", Rules: []Adjustment{adj(sim.SystolicBP, -35), adj(sim.DiastolicBP, -30), adj(sim.HeartRate, 20)}},
	},
	Tachycardia: {
		Rules: []Adjustment{adj(sim.HeartRate, 30)},
		Event: &Event{Name: "svt_episode", Rules: []Adjustment{adj(sim.HeartRate, 80)}},
	},
	Bradycardia: {
		Rules: []Adjustment{adj(sim.HeartRate, -30)},
		Event: &Event{Name: "heart_block", Rules: []Adjustment{adj(sim.HeartRate, -50)}},
	},
	Diabetes: {
		Rules: []Adjustment{adj(sim.Glucose, 50)},
		Event: &Event{Name: "hyperglycemic_spike", Rules: []Adjustment{adj(sim.Glucose, 150)}},
	},
	Hypoglycemia: {
		Rules: []Adjustment{adj(sim.Glucose, -30)},
		Event: &Event{Name: "severe_hypoglycemia", Rules: []Adjustment{adj(sim.Glucose, -55), adj(sim.HeartRate, 15)}},
	},
	COPD: {
		Rules: []Adjustment{adj(sim.SpO2, -6), adj(sim.RespiratoryRate, 25)},
		Event: &Event{Name: "exacerbation", Rules: []Adjustment{adj(sim.SpO2, -15), adj(sim.RespiratoryRate, 60)}},
	},
	Fever: {
		Rules: []Adjustment{adj(sim.Temperature, 5), adj(sim.HeartRate, 10), adj(sim.RespiratoryRate, 10)},
		Event: &Event{Name: "fever_spike", Rules: []Adjustment{adj(sim.Temperature, 8), adj(sim.HeartRate, 25)}},
	},
	Sepsis: {
		Rules: []Adjustment{
			adj(sim.Temperature, 6), adj(sim.HeartRate, 35), adj(sim.RespiratoryRate, 40),
			adj(sim.SystolicBP, -15), adj(sim.DiastolicBP, -15), adj(sim.SpO2, -4),
		},
		Event: &Event{Name: "septic_shock", Rules: []Adjustment{
			adj(sim.SystolicBP, -35), adj(sim.DiastolicBP, -35), adj(sim.HeartRate, 55), adj(sim.SpO2, -10),
		}},
	},
	AFib: {
		Rules: []Adjustment{adj(sim.HeartRate, 25)},
		Event: &Event{Name: "rapid_ventricular_response", Rules: []Adjustment{adj(sim.HeartRate, 60)}},
	},
	Hypoxia: {
		Rules: []Adjustment{adj(sim.SpO2, -10)},
		Event: &Event{Name: "desaturation", Rules: []Adjustment{adj(sim.SpO2, -20), adj(sim.RespiratoryRate, 30)}},
	},
}

// Parse converts a configured name into a Condition. The empty string and "none" mean healthy.
func Parse(name string) (Condition, error) {
	switch name {
	case "", "none":
		return Healthy, nil
	}
	c := Condition(name)
	if _, ok := registry[c]; !ok {
		return "", fmt.Errorf("unknown condition %q; valid: %s", name, strings.Join(Names(), ", "))
	}
	return c, nil
}

// Names returns the sorted names of all registered conditions.
func Names() []string {
	names := make([]string, 0, len(registry))
	for c := range registry {
		names = append(names, string(c))
	}
	sort.Strings(names)
	return names
}

// Lookup returns the registry entry for c.
func Lookup(c Condition) (Definition, bool) {
	d, ok := registry[c]
	return d, ok
}

// Factor returns the combined multiplier the rules apply to v.
func Factor(rules []Adjustment, v sim.VitalSign) float64 {
	f := 1.0
	for _, r := range rules {
		if r.Vital == v {
			f *= r.Factor()
		}
	}
	return f
}

// Modifier applies c's adjustments, or the active event's adjustments, to one value.
func Modifier(c Condition, state EventState, v sim.VitalSign, value float64) float64 {
	if state.Active != nil {
		return value * Factor(state.Active.Rules, v)
	}
	return value * Factor(registry[c].Rules, v)
}
