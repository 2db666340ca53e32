package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical readings.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Stream names ===

const (
	// StreamNoise feeds the measurement noise injector.
	StreamNoise = "noise"

	// StreamEvent feeds acute event injection.
	StreamEvent = "event"
)

// PatientStream returns the stream name for one patient and purpose.
func PatientStream(patientID, stream string) string {
	return fmt.Sprintf("patient/%s/%s", patientID, stream)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per named stream.
//
// Derivation formula: masterSeed XOR fnv1a64(streamName).
// Adding or removing a patient never shifts another patient's sequence.
//
// Thread-safety: NOT thread-safe. Streams must be created from a single goroutine;
// the returned *rand.Rand may then be handed to exactly one owner.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:     key,
		streams: make(map[string]*rand.Rand),
	}
}

// ForStream returns a deterministically-seeded RNG for the named stream.
// The same name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForStream(name string) *rand.Rand {
	if rng, ok := p.streams[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.streams[name] = rng
	return rng
}

// ForPatient returns the stream for one patient and purpose.
func (p *PartitionedRNG) ForPatient(patientID, stream string) *rand.Rand {
	return p.ForStream(PatientStream(patientID, stream))
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
