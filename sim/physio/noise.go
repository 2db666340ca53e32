package physio

import (
	"fmt"
	"math"
	"math/rand"
)

// noiseClampSigma bounds each Gaussian draw to ±3 standard deviations.
const noiseClampSigma = 3.0

// Noise applies bounded multiplicative Gaussian measurement noise.
type Noise struct {
	Level float64 // relative standard deviation
}

// Apply draws exactly one normal variate from rng and returns value*(1 + Level*z).
// The draw happens even when Level is zero so RNG streams stay aligned across scenarios.
func (n Noise) Apply(value float64, rng *rand.Rand) float64 {
	z := math.Min(noiseClampSigma, math.Max(-noiseClampSigma, rng.NormFloat64()))
	return value * (1 + n.Level*z)
}

// ValidateNoiseLevel checks a configured noise level.
func ValidateNoiseLevel(name string, level float64) error {
	if math.IsNaN(level) || math.IsInf(level, 0) || level < 0 || level > 0.25 {
		return fmt.Errorf("%s must be in [0, 0.25], got %v", name, level)
	}
	return nil
}
