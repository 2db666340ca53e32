// Package threshold classifies vital sign values into severity bands.
package threshold

import (
	"fmt"
	"math"

	"github.com/vital-sim/vital-sim/sim"
)

// Band is one contiguous value range of a rule.
// Upper is exclusive and must be nil only on the last band. Lower is allowed only on the
// first band and is informational: values below it still classify into that band.
type Band struct {
	Severity Severity `yaml:"severity"`
	Lower    *float64 `yaml:"lower,omitempty"`
	Upper    *float64 `yaml:"upper,omitempty"`
}

// Rule is the ordered band list for one vital sign.
type Rule struct {
	Vital sim.VitalSign
	Bands []Band
}

// Classification is the result of evaluating one value.
type Classification struct {
	Vital    sim.VitalSign `json:"vital_sign"`
	Value    float64       `json:"value"`
	Severity Severity      `json:"severity"`
	Level    Level         `json:"level"`
	Lower    float64       `json:"lower"` // inclusive bound of the matched band, -Inf when open
	Upper    float64       `json:"upper"` // exclusive bound of the matched band, +Inf when open
}

// Validate checks that bands are ordered, gap-free and hold exactly one normal band.
// Contiguity is structural: each band starts where the previous one ends.
func (r Rule) Validate() error {
	if !r.Vital.IsValid() {
		return fmt.Errorf("unknown vital sign %q", r.Vital)
	}
	if len(r.Bands) == 0 {
		return fmt.Errorf("%s: at least one band required", r.Vital)
	}
	normals := 0
	for i, b := range r.Bands {
		prefix := fmt.Sprintf("%s.bands[%d]", r.Vital, i)
		if b.Severity.Rank() < 0 {
			return fmt.Errorf("%s: unknown severity %q", prefix, b.Severity)
		}
		if b.Severity == Normal {
			normals++
		}
		if i > 0 && b.Severity.Rank() <= r.Bands[i-1].Severity.Rank() {
			return fmt.Errorf("%s: severity %s must rank above %s", prefix, b.Severity, r.Bands[i-1].Severity)
		}
		if b.Lower != nil {
			if i > 0 {
				return fmt.Errorf("%s: lower is only allowed on the first band", prefix)
			}
			if err := validateFinite(prefix+".lower", *b.Lower); err != nil {
				return err
			}
		}
		last := i == len(r.Bands)-1
		if last && b.Upper != nil {
			return fmt.Errorf("%s: the last band must not set upper", prefix)
		}
		if !last {
			if b.Upper == nil {
				return fmt.Errorf("%s: upper is required on every band but the last", prefix)
			}
			if err := validateFinite(prefix+".upper", *b.Upper); err != nil {
				return err
			}
			if i > 0 && *b.Upper <= *r.Bands[i-1].Upper {
				return fmt.Errorf("%s: upper %v must exceed previous upper %v", prefix, *b.Upper, *r.Bands[i-1].Upper)
			}
			if i == 0 && b.Lower != nil && *b.Upper <= *b.Lower {
				return fmt.Errorf("%s: upper %v must exceed lower %v", prefix, *b.Upper, *b.Lower)
			}
		}
	}
	if normals != 1 {
		return fmt.Errorf("%s: exactly one normal band required, got %d", r.Vital, normals)
	}
	return nil
}

// Classify maps value to exactly one band. The function is total: values below every
// band land in the first band, values above in the last, and NaN in the last.
func (r Rule) Classify(value float64) Classification {
	idx := len(r.Bands) - 1
	for i, b := range r.Bands {
		if b.Upper != nil && value < *b.Upper {
			idx = i
			break
		}
	}
	b := r.Bands[idx]
	c := Classification{
		Vital:    r.Vital,
		Value:    value,
		Severity: b.Severity,
		Level:    b.Severity.Level(),
		Lower:    math.Inf(-1),
		Upper:    math.Inf(1),
	}
	if idx > 0 {
		c.Lower = *r.Bands[idx-1].Upper
	} else if b.Lower != nil {
		c.Lower = *b.Lower
	}
	if b.Upper != nil {
		c.Upper = *b.Upper
	}
	return c
}

func validateFinite(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	return nil
}

func f(v float64) *float64 { return &v }

// bands builds a rule from ascending (severity, upper) pairs; the final severity is open-ended.
func bands(pairs []Band, last Severity) []Band {
	return append(pairs, Band{Severity: last})
}

// DefaultRules returns the built-in rule for every vital sign.
// Integer vitals read as inclusive ranges: heart rate high is 101-110, critical from 111.
func DefaultRules() map[sim.VitalSign]Rule {
	return map[sim.VitalSign]Rule{
		sim.HeartRate: {Vital: sim.HeartRate, Bands: bands([]Band{
			{Severity: CriticalLow, Upper: f(40)},
			{Severity: Low, Upper: f(60)},
			{Severity: Normal, Upper: f(101)},
			{Severity: High, Upper: f(111)},
		}, CriticalHigh)},
		sim.SystolicBP: {Vital: sim.SystolicBP, Bands: bands([]Band{
			{Severity: CriticalLow, Upper: f(80)},
			{Severity: Low, Upper: f(90)},
			{Severity: Normal, Upper: f(141)},
			{Severity: High, Upper: f(181)},
		}, CriticalHigh)},
		sim.DiastolicBP: {Vital: sim.DiastolicBP, Bands: bands([]Band{
			{Severity: CriticalLow, Upper: f(50)},
			{Severity: Low, Upper: f(60)},
			{Severity: Normal, Upper: f(91)},
			{Severity: High, Upper: f(111)},
		}, CriticalHigh)},
		sim.SpO2: {Vital: sim.SpO2, Bands: bands([]Band{
			{Severity: CriticalLow, Upper: f(85)},
			{Severity: Low, Upper: f(92)},
		}, Normal)},
		sim.Glucose: {Vital: sim.Glucose, Bands: bands([]Band{
			{Severity: CriticalLow, Upper: f(54)},
			{Severity: Low, Upper: f(70)},
			{Severity: Normal, Upper: f(181)},
			{Severity: High, Upper: f(251)},
		}, CriticalHigh)},
		sim.Temperature: {Vital: sim.Temperature, Bands: bands([]Band{
			{Severity: CriticalLow, Upper: f(35)},
			{Severity: Low, Upper: f(36)},
			{Severity: Normal, Upper: f(38)},
			{Severity: High, Upper: f(39.5)},
		}, CriticalHigh)},
		sim.RespiratoryRate: {Vital: sim.RespiratoryRate, Bands: bands([]Band{
			{Severity: CriticalLow, Upper: f(8)},
			{Severity: Low, Upper: f(12)},
			{Severity: Normal, Upper: f(21)},
			{Severity: High, Upper: f(30)},
		}, CriticalHigh)},
	}
}
