package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVitalSign_DefaultBaselinesInsideClip(t *testing.T) {
	for _, v := range AllVitalSigns {
		s := v.Spec()
		if s.Baseline < s.ClipMin || s.Baseline > s.ClipMax {
			t.Errorf("%s baseline %v outside clip [%v, %v]", v, s.Baseline, s.ClipMin, s.ClipMax)
		}
	}
}

func TestVitalSign_Clip(t *testing.T) {
	tests := []struct {
		v    VitalSign
		in   float64
		want float64
	}{
		{HeartRate, 5, 20},
		{HeartRate, 300, 250},
		{HeartRate, 72, 72},
		{SpO2, 104, 100},
		{Temperature, 20, 30},
	}
	for _, tt := range tests {
		if got := tt.v.Clip(tt.in); got != tt.want {
			t.Errorf("%s.Clip(%v) = %v, want %v", tt.v, tt.in, got, tt.want)
		}
	}
}

func TestVitalSign_Round(t *testing.T) {
	assert.Equal(t, 91.0, HeartRate.Round(90.96))
	assert.Equal(t, 97.3, SpO2.Round(97.34))
	assert.Equal(t, 37.0, Temperature.Round(36.96))
}

func TestParseVitalSign(t *testing.T) {
	v, err := ParseVitalSign("glucose")
	assert.NoError(t, err)
	assert.Equal(t, Glucose, v)

	_, err = ParseVitalSign("pulse")
	assert.Error(t, err)
}

func TestAllVitalSigns_CoversSpecs(t *testing.T) {
	assert.Len(t, AllVitalSigns, len(VitalSignNames()))
	for _, v := range AllVitalSigns {
		assert.True(t, v.IsValid(), "%s should be valid", v)
	}
}
