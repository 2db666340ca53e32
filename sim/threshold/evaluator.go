package threshold

import (
	"fmt"

	"github.com/vital-sim/vital-sim/sim"
)

// Evaluator applies global rules, with optional per-patient overrides, to readings.
// It is stateless after construction and safe for concurrent use.
type Evaluator struct {
	global    map[sim.VitalSign]Rule
	overrides map[string]map[sim.VitalSign]Rule
}

// NewEvaluator validates every rule. global must cover every vital sign.
func NewEvaluator(global map[sim.VitalSign]Rule, overrides map[string]map[sim.VitalSign]Rule) (*Evaluator, error) {
	for _, v := range sim.AllVitalSigns {
		r, ok := global[v]
		if !ok {
			return nil, fmt.Errorf("alert_rules: missing rule for %s", v)
		}
		if r.Vital != v {
			return nil, fmt.Errorf("alert_rules.%s: rule is for %s", v, r.Vital)
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("alert_rules.%w", err)
		}
	}
	for patient, rules := range overrides {
		for v, r := range rules {
			if r.Vital != v {
				return nil, fmt.Errorf("patients[%s].alert_rules.%s: rule is for %s", patient, v, r.Vital)
			}
			if err := r.Validate(); err != nil {
				return nil, fmt.Errorf("patients[%s].alert_rules.%w", patient, err)
			}
		}
	}
	return &Evaluator{global: global, overrides: overrides}, nil
}

// Rule returns the rule that applies to v for patientID.
func (e *Evaluator) Rule(patientID string, v sim.VitalSign) Rule {
	if rules, ok := e.overrides[patientID]; ok {
		if r, ok := rules[v]; ok {
			return r
		}
	}
	return e.global[v]
}

// Classify returns the band for one value.
func (e *Evaluator) Classify(patientID string, v sim.VitalSign, value float64) Classification {
	return e.Rule(patientID, v).Classify(value)
}

// Evaluate classifies every vital sign in r and returns the complete result,
// normal values included, so callers can both raise and clear alerts.
func (e *Evaluator) Evaluate(r sim.Reading) map[sim.VitalSign]Classification {
	out := make(map[sim.VitalSign]Classification, len(r.Vitals))
	for v, val := range r.Vitals {
		if _, ok := e.global[v]; !ok {
			continue
		}
		out[v] = e.Classify(r.PatientID, v, val)
	}
	return out
}
