package physio

import (
	"math/rand"
	"testing"
)

func TestNoise_BoundedToThreeSigma(t *testing.T) {
	n := Noise{Level: 0.02}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		got := n.Apply(100, rng)
		if got < 94 || got > 106 {
			t.Fatalf("draw %d: %v outside 100 ± 3σ", i, got)
		}
	}
}

func TestNoise_ZeroLevelStillConsumesDraw(t *testing.T) {
	// GIVEN two identical streams
	a := rand.New(rand.NewSource(9))
	b := rand.New(rand.NewSource(9))

	// WHEN one passes through a zero-noise injector
	if got := (Noise{}).Apply(72, a); got != 72 {
		t.Errorf("zero noise changed value to %v", got)
	}
	b.NormFloat64()

	// THEN both streams are still aligned
	if a.Int63() != b.Int63() {
		t.Error("zero-level noise did not consume exactly one draw")
	}
}

func TestValidateNoiseLevel(t *testing.T) {
	if err := ValidateNoiseLevel("noise_level", -0.1); err == nil {
		t.Error("negative noise level accepted")
	}
	if err := ValidateNoiseLevel("noise_level", 0.02); err != nil {
		t.Errorf("0.02 rejected: %v", err)
	}
}
