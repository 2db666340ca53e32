package sim

import (
	"errors"
	"math"
	"testing"
	"time"
)

func validReading(now time.Time) Reading {
	return Reading{
		PatientID: "patient-1",
		DeviceID:  "wearable-1",
		Timestamp: now,
		Vitals:    map[VitalSign]float64{HeartRate: 72},
	}
}

func TestReading_Validate(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		mutate func(r *Reading)
		skew   time.Duration
		field  string
	}{
		{"valid", func(r *Reading) {}, 0, ""},
		{"missing patient", func(r *Reading) { r.PatientID = "" }, 0, "patient_id"},
		{"missing device", func(r *Reading) { r.DeviceID = "" }, 0, "device_id"},
		{"zero timestamp", func(r *Reading) { r.Timestamp = time.Time{} }, 0, "timestamp"},
		{"future beyond skew", func(r *Reading) { r.Timestamp = now.Add(time.Hour) }, time.Minute, "timestamp"},
		{"past within skew", func(r *Reading) { r.Timestamp = now.Add(-30 * time.Second) }, time.Minute, ""},
		{"empty vitals", func(r *Reading) { r.Vitals = nil }, 0, "vitals"},
		{"unknown vital", func(r *Reading) { r.Vitals["pulse"] = 60 }, 0, "vitals.pulse"},
		{"NaN value", func(r *Reading) { r.Vitals[HeartRate] = math.NaN() }, 0, "vitals.heart_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReading(now)
			tt.mutate(&r)
			err := r.Validate(now, tt.skew)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestTransientTransportError_Unwraps(t *testing.T) {
	base := errors.New("broker unavailable")
	err := error(&TransientTransportError{Sink: "mqtt", Err: base})
	if !errors.Is(err, base) {
		t.Error("errors.Is did not find wrapped error")
	}
}
