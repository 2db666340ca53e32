package sim

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// VitalSign names one physiological measurement carried by a Reading.
type VitalSign string

const (
	HeartRate       VitalSign = "heart_rate"
	SystolicBP      VitalSign = "systolic_bp"
	DiastolicBP     VitalSign = "diastolic_bp"
	SpO2            VitalSign = "spo2"
	Glucose         VitalSign = "glucose"
	Temperature     VitalSign = "temperature"
	RespiratoryRate VitalSign = "respiratory_rate"
)

// AllVitalSigns lists every vital sign in generation order.
// Noise draws follow this order, so it must never be reordered.
var AllVitalSigns = []VitalSign{
	HeartRate, SystolicBP, DiastolicBP, SpO2, Glucose, Temperature, RespiratoryRate,
}

// VitalSpec holds the static properties of a vital sign.
type VitalSpec struct {
	Unit      string
	Baseline  float64 // default resting value
	ClipMin   float64 // hard physiological lower bound
	ClipMax   float64 // hard physiological upper bound
	Precision int     // decimals reported by the sensor
}

var vitalSpecs = map[VitalSign]VitalSpec{
	HeartRate:       {Unit: "bpm", Baseline: 72, ClipMin: 20, ClipMax: 250, Precision: 0},
	SystolicBP:      {Unit: "mmHg", Baseline: 120, ClipMin: 50, ClipMax: 260, Precision: 0},
	DiastolicBP:     {Unit: "mmHg", Baseline: 80, ClipMin: 30, ClipMax: 160, Precision: 0},
	SpO2:            {Unit: "%", Baseline: 98, ClipMin: 50, ClipMax: 100, Precision: 1},
	Glucose:         {Unit: "mg/dL", Baseline: 90, ClipMin: 20, ClipMax: 600, Precision: 0},
	Temperature:     {Unit: "°C", Baseline: 36.8, ClipMin: 30, ClipMax: 43, Precision: 1},
	RespiratoryRate: {Unit: "breaths/min", Baseline: 16, ClipMin: 4, ClipMax: 60, Precision: 0},
}

// Spec returns the static properties of v. Unknown signs return a zero VitalSpec.
func (v VitalSign) Spec() VitalSpec {
	return vitalSpecs[v]
}

// IsValid reports whether v is one of the known vital signs.
func (v VitalSign) IsValid() bool {
	_, ok := vitalSpecs[v]
	return ok
}

// Clip bounds value to the hard physiological range of v.
func (v VitalSign) Clip(value float64) float64 {
	s := vitalSpecs[v]
	return math.Min(s.ClipMax, math.Max(s.ClipMin, value))
}

// Round rounds value to the sensor precision of v.
func (v VitalSign) Round(value float64) float64 {
	p := math.Pow(10, float64(vitalSpecs[v].Precision))
	return math.Round(value*p) / p
}

// ParseVitalSign converts a name such as "heart_rate" into a VitalSign.
func ParseVitalSign(name string) (VitalSign, error) {
	v := VitalSign(name)
	if !v.IsValid() {
		return "", fmt.Errorf("unknown vital sign %q; valid: %s", name, strings.Join(VitalSignNames(), ", "))
	}
	return v, nil
}

// VitalSignNames returns the sorted names of all vital signs.
func VitalSignNames() []string {
	names := make([]string, 0, len(vitalSpecs))
	for v := range vitalSpecs {
		names = append(names, string(v))
	}
	sort.Strings(names)
	return names
}

// DefaultBaselines returns a fresh map of the default resting values.
func DefaultBaselines() map[VitalSign]float64 {
	b := make(map[VitalSign]float64, len(vitalSpecs))
	for v, s := range vitalSpecs {
		b[v] = s.Baseline
	}
	return b
}
