// Package sim holds the shared vocabulary of the vital-sign simulator.
//
// # Reading Guide
//
// Start with these files to understand the data model:
//   - vitals.go: the seven vital signs, their units, clip bounds and precision
//   - reading.go: one sample from one wearable, and its ingest validation
//   - clock.go: the simulated clock and the per-tick context handed to generators
//
// # Architecture
//
// The sim package defines types shared by every stage; implementations live in
// sub-packages:
//   - sim/physio/: circadian, meal, sleep and activity models plus bounded noise
//   - sim/condition/: the closed condition registry and acute events
//   - sim/generator/: patients and the per-tick signal pipeline
//   - sim/threshold/: banded classification of readings
//   - sim/alert/: the alert lifecycle and deduplication
//   - sim/transport/: bounded queues, retrying dispatchers, MQTT and AMQP
//   - sim/store/: Postgres alert history and the Redis live-state cache
//   - sim/engine/: ticks, patients and the alert pipeline of one run
//   - sim/config/: scenario loading and compilation
//   - sim/status/: the health snapshot over HTTP
//   - sim/trace/: alert lifecycle trace recording
//
// # Determinism
//
// Every patient draws from its own streams of a PartitionedRNG derived from
// the scenario seed, so a patient's readings do not depend on how many other
// patients run or in which order their ticks are scheduled.
//
// # Errors
//
// errors.go defines the four error kinds: ConfigurationError, ValidationError,
// StateConflictError and TransientTransportError.
package sim
