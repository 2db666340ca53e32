package sim

import (
	"math"
	"time"
)

// ActivityMetrics describes movement for one tick.
// Steps, DistanceM and CaloriesKcal accumulate within a reset period.
type ActivityMetrics struct {
	Intensity    float64 `json:"intensity"`
	Steps        float64 `json:"steps"`
	DistanceM    float64 `json:"distance_m"`
	CaloriesKcal float64 `json:"calories_kcal"`
}

// Reading is one timestamped record of all vital signs for a patient.
type Reading struct {
	PatientID string                `json:"patient_id"`
	DeviceID  string                `json:"device_id"`
	Timestamp time.Time             `json:"timestamp"`
	Vitals    map[VitalSign]float64 `json:"vitals"`
	Activity  ActivityMetrics       `json:"activity"`
	Metadata  map[string]string     `json:"metadata,omitempty"`
}

// Reading metadata keys.
const (
	MetaCondition = "condition"
	MetaTick      = "tick"
	MetaEvent     = "event"
)

// Validate checks that r can enter the alert pipeline.
// When maxSkew is positive, timestamps further than maxSkew from now are rejected.
func (r *Reading) Validate(now time.Time, maxSkew time.Duration) error {
	if r.PatientID == "" {
		return &ValidationError{Field: "patient_id", Reason: "must not be empty"}
	}
	if r.DeviceID == "" {
		return &ValidationError{Field: "device_id", Reason: "must not be empty"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "must be set"}
	}
	if maxSkew > 0 {
		skew := r.Timestamp.Sub(now)
		if skew < 0 {
			skew = -skew
		}
		if skew > maxSkew {
			return &ValidationError{Field: "timestamp", Reason: "outside allowed clock skew " + maxSkew.String()}
		}
	}
	if len(r.Vitals) == 0 {
		return &ValidationError{Field: "vitals", Reason: "must contain at least one value"}
	}
	for v, val := range r.Vitals {
		if !v.IsValid() {
			return &ValidationError{Field: "vitals." + string(v), Reason: "unknown vital sign"}
		}
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return &ValidationError{Field: "vitals." + string(v), Reason: "must be a finite number"}
		}
	}
	return nil
}
