// Package config loads, validates and compiles scenario documents.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/condition"
	"github.com/vital-sim/vital-sim/sim/physio"
	"github.com/vital-sim/vital-sim/sim/store/postgres"
	"github.com/vital-sim/vital-sim/sim/store/redis"
	"github.com/vital-sim/vital-sim/sim/threshold"
	"github.com/vital-sim/vital-sim/sim/transport"
	"github.com/vital-sim/vital-sim/sim/transport/amqp"
	"github.com/vital-sim/vital-sim/sim/transport/mqtt"
)

// SyncMode selects how patient tasks share the simulation clock.
type SyncMode string

const (
	// Lockstep finishes every patient's tick N before any patient starts tick N+1.
	Lockstep SyncMode = "lockstep"
	// Independent gives each patient its own clock and goroutine.
	Independent SyncMode = "independent"
)

// Document is the scenario file as written. Fields absent from the file keep
// the values of DefaultDocument.
type Document struct {
	Version      string                      `yaml:"version"`
	Seed         int64                       `yaml:"seed"`
	StartTime    string                      `yaml:"start_time,omitempty"` // RFC 3339; empty starts at the current minute
	TickInterval time.Duration               `yaml:"tick_interval"`
	Horizon      time.Duration               `yaml:"horizon"` // simulated run length; 0 runs until stopped (realtime only)
	SyncMode     SyncMode                    `yaml:"sync_mode"`
	Realtime     bool                        `yaml:"realtime"`
	Speedup      float64                     `yaml:"speedup"`
	MaxClockSkew time.Duration               `yaml:"max_clock_skew"` // 0 disables the ingest timestamp check
	TraceLevel   string                      `yaml:"trace_level"`
	Defaults     PatientDefaults             `yaml:"defaults"`
	Patients     PatientsSection             `yaml:"patients"`
	Events       condition.EventConfig       `yaml:"events"`
	AlertRules   map[string][]threshold.Band `yaml:"alert_rules"`
	Transport    TransportSection            `yaml:"transport"`
	MQTT         mqtt.Config                 `yaml:"mqtt"`
	Postgres     postgres.Config             `yaml:"postgres"`
	Redis        redis.Config                `yaml:"redis"`
	AMQP         amqp.Config                 `yaml:"amqp"`
	HTTP         HTTPSection                 `yaml:"http"`
	Alerts       AlertsSection               `yaml:"alerts"`
}

// PatientDefaults apply to every patient that does not override them.
type PatientDefaults struct {
	Baselines  map[string]float64 `yaml:"baselines"`
	NoiseLevel float64            `yaml:"noise_level"`
	Schedule   physio.Schedule    `yaml:"schedule"`
}

// DefaultPatientCount is the number of generated patients when a document
// neither sets patients.count nor lists any profile.
const DefaultPatientCount = 3

// PatientsSection lists explicit profiles and fills up to Count with generated ones.
type PatientsSection struct {
	Count      int             `yaml:"count"`       // total patients; 0 means len(profiles), or DefaultPatientCount when none are listed
	IDPrefix   string          `yaml:"id_prefix"`   // generated ids are <id_prefix><NNN>
	Conditions []string        `yaml:"conditions"`  // assigned round-robin to generated patients
	Profiles   []PatientConfig `yaml:"profiles"`
}

// PatientConfig overrides the defaults for one patient.
type PatientConfig struct {
	ID         string                      `yaml:"id"`
	DeviceID   string                      `yaml:"device_id,omitempty"`
	Condition  string                      `yaml:"condition,omitempty"`
	Seed       *int64                      `yaml:"seed,omitempty"`
	Baselines  map[string]float64          `yaml:"baselines,omitempty"`
	NoiseLevel *float64                    `yaml:"noise_level,omitempty"`
	Schedule   yaml.Node                   `yaml:"schedule,omitempty"` // merged over defaults.schedule
	AlertRules map[string][]threshold.Band `yaml:"alert_rules,omitempty"`
}

// TransportSection sizes the outbound queues and their retry policy.
type TransportSection struct {
	Queue transport.QueueConfig `yaml:"queue"`
	Retry transport.RetryConfig `yaml:"retry"`
}

// HTTPSection configures the status server. An empty address disables it.
type HTTPSection struct {
	Addr string `yaml:"addr"`
}

// AlertsSection configures alert history retention.
type AlertsSection struct {
	Retention     time.Duration `yaml:"retention"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

// DefaultDocument returns the scenario used when a file omits a field.
func DefaultDocument() Document {
	return Document{
		Version:      "1",
		Seed:         42,
		TickInterval: time.Minute,
		Horizon:      24 * time.Hour,
		SyncMode:     Lockstep,
		Speedup:      1,
		TraceLevel:   "none",
		Defaults: PatientDefaults{
			Baselines:  map[string]float64{},
			NoiseLevel: 0.02,
			Schedule:   physio.DefaultSchedule(),
		},
		Patients: PatientsSection{
			IDPrefix:   "patient-",
			Conditions: []string{string(condition.Healthy)},
		},
		Events:     condition.DefaultEventConfig(),
		AlertRules: rulesDocument(threshold.DefaultRules()),
		Transport: TransportSection{
			Queue: transport.DefaultQueueConfig(),
			Retry: transport.DefaultRetryConfig(),
		},
		MQTT:   mqtt.DefaultConfig(),
		Redis:  redis.DefaultConfig(),
		AMQP:   amqp.DefaultConfig(),
		Alerts: AlertsSection{Retention: 720 * time.Hour, PurgeInterval: time.Hour},
	}
}

func rulesDocument(rules map[sim.VitalSign]threshold.Rule) map[string][]threshold.Band {
	out := make(map[string][]threshold.Band, len(rules))
	for v, r := range rules {
		out[string(v)] = r.Bands
	}
	return out
}
