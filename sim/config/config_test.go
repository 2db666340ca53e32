package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/condition"
	"github.com/vital-sim/vital-sim/sim/threshold"
)

const ward = `
version: "1"
seed: 7
start_time: "2024-01-01T00:00:00Z"
tick_interval: 1m
horizon: 2h
patients:
  count: 4
  conditions: [healthy, tachycardia]
  profiles:
    - id: alice
      condition: hypertension
      baselines:
        systolic_bp: 130
      schedule:
        sleep:
          start_hour: 1
    - id: bob
      device_id: band-9
      noise_level: 0
      alert_rules:
        heart_rate:
          - {severity: critical_low, upper: 30}
          - {severity: normal, upper: 130}
          - {severity: critical_high}
`

func compile(t *testing.T, doc string) (*Scenario, error) {
	t.Helper()
	d, err := Parse([]byte(doc))
	if err != nil {
		return nil, err
	}
	return d.Compile()
}

func TestCompile_Ward(t *testing.T) {
	s, err := compile(t, ward)
	require.NoError(t, err)

	assert.Equal(t, int64(120), s.Ticks())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), s.Start)
	require.Len(t, s.Profiles, 4)

	alice, bob := s.Profiles[0], s.Profiles[1]
	assert.Equal(t, condition.Hypertension, alice.Condition)
	assert.Equal(t, "device-alice", alice.DeviceID)
	assert.Equal(t, 130.0, alice.Baseline(sim.SystolicBP))
	assert.Equal(t, 72.0, alice.Baseline(sim.HeartRate), "unset baselines fall back to the vital default")

	// Only the overridden field changes; the rest of the sleep window comes from defaults.
	assert.Equal(t, 1.0, alice.Schedule.Sleep.StartHour)
	assert.Equal(t, 8*time.Hour, alice.Schedule.Sleep.Duration)
	require.NotNil(t, alice.Schedule.Circadian.WakeHour)
	assert.Equal(t, 9.0, *alice.Schedule.Circadian.WakeHour)

	assert.Equal(t, "band-9", bob.DeviceID)
	assert.Equal(t, 0.0, bob.NoiseLevel)
	assert.Equal(t, 0.02, alice.NoiseLevel)

	// Generated patients continue the numbering and cycle the condition list.
	assert.Equal(t, "patient-003", s.Profiles[2].ID)
	assert.Equal(t, condition.Healthy, s.Profiles[2].Condition)
	assert.Equal(t, "patient-004", s.Profiles[3].ID)
	assert.Equal(t, condition.Tachycardia, s.Profiles[3].Condition)

	// bob's heart-rate override applies to bob only.
	assert.Equal(t, threshold.Normal, s.Evaluator.Classify("bob", sim.HeartRate, 120).Severity)
	assert.Equal(t, threshold.CriticalHigh, s.Evaluator.Classify("alice", sim.HeartRate, 120).Severity)
}

func TestParse_EmptyDocumentUsesDefaults(t *testing.T) {
	s, err := compile(t, "")
	require.NoError(t, err)
	assert.Len(t, s.Profiles, 3)
	assert.Equal(t, Lockstep, s.SyncMode)
	assert.Equal(t, 720*time.Hour, s.Retention)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("tick_intervall: 1m\n"))
	var cerr *sim.ConfigurationError
	assert.True(t, errors.As(err, &cerr), "got %v", err)

	_, err = compile(t, "patients:\n  profiles:\n    - id: a\n      schedule:\n        slep: {}\n")
	assert.True(t, errors.As(err, &cerr), "typos inside a schedule override are rejected too, got %v", err)
}

func TestCompile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown condition", "patients: {profiles: [{id: a, condition: scurvy}]}", "patients.profiles[0].condition"},
		{"unknown generated condition", "patients: {conditions: [scurvy]}", "patients.conditions[0]"},
		{"sleep a full day", "defaults: {schedule: {sleep: {duration: 24h}}}", "defaults.schedule.sleep"},
		{"meal hour out of range", "defaults: {schedule: {meals: {times: [25]}}}", "defaults.schedule.meals"},
		{"baseline outside clip", "defaults: {baselines: {heart_rate: 300}}", "defaults.baselines.heart_rate"},
		{"unknown vital baseline", "defaults: {baselines: {pulse: 60}}", "defaults.baselines"},
		{"noise too high", "defaults: {noise_level: 0.9}", "noise_level"},
		{"two normal bands", "alert_rules: {heart_rate: [{severity: normal, upper: 50}, {severity: normal}]}", "alert_rules.heart_rate"},
		{"band without upper", "alert_rules: {heart_rate: [{severity: normal}, {severity: high}]}", "alert_rules.heart_rate"},
		{"duplicate id", "patients: {profiles: [{id: a}, {id: a}]}", "duplicate patient id"},
		{"empty id", "patients: {profiles: [{id: ''}]}", "patients.profiles[0].id"},
		{"count below profiles", "patients: {count: 1, profiles: [{id: a}, {id: b}]}", "patients.count"},
		{"no horizon offline", "horizon: 0s", "horizon"},
		{"bad sync mode", "sync_mode: parallel", "sync_mode"},
		{"bad start time", "start_time: yesterday", "start_time"},
		{"bad speedup", "speedup: 0", "speedup"},
		{"negative skew", "max_clock_skew: -1s", "max_clock_skew"},
		{"skew below one tick", "tick_interval: 1m\nmax_clock_skew: 30s", "max_clock_skew"},
		{"bad trace level", "trace_level: verbose", "trace_level"},
		{"bad event probability", "events: {probability: 2}", "events.probability"},
		{"bad queue", "transport: {queue: {size: 0}}", "transport.queue.size"},
		{"bad overflow", "transport: {queue: {overflow: spill}}", "transport.queue"},
		{"bad mqtt qos", "mqtt: {broker: localhost, qos: 3}", "mqtt.qos"},
		{"bad retention", "alerts: {retention: 0s}", "alerts.retention"},
		{"unsupported version", "version: \"2\"", "version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compile(t, tt.doc)
			var cerr *sim.ConfigurationError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %q, want it to mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestCompile_PatientCount(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{"listed profiles only", "patients: {profiles: [{id: a}, {id: b}]}", []string{"a", "b"}},
		{"count only", "patients: {count: 2}", []string{"patient-001", "patient-002"}},
		{"count pads profiles", "patients: {count: 3, profiles: [{id: a}]}", []string{"a", "patient-002", "patient-003"}},
		{"nothing listed", "seed: 1", []string{"patient-001", "patient-002", "patient-003"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := compile(t, tt.doc)
			require.NoError(t, err)
			var ids []string
			for _, p := range s.Profiles {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestCompile_ClockSkewOfWholeTicksAccepted(t *testing.T) {
	s, err := compile(t, "tick_interval: 1m\nmax_clock_skew: 1m\n")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, s.MaxClockSkew)
}

func TestCompile_RealtimeMayRunUnbounded(t *testing.T) {
	s, err := compile(t, "horizon: 0s\nrealtime: true\n")
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Ticks())
}

func TestDefaultDocument_RoundTrips(t *testing.T) {
	// GIVEN the default document rendered as YAML
	out, err := yaml.Marshal(DefaultDocument())
	require.NoError(t, err)

	// WHEN it is parsed back under strict decoding
	s, err := compile(t, string(out))

	// THEN it compiles to the built-in rules
	require.NoError(t, err)
	assert.Equal(t, threshold.High, s.Evaluator.Classify("patient-001", sim.HeartRate, 101).Severity)
	assert.Equal(t, threshold.Normal, s.Evaluator.Classify("patient-001", sim.HeartRate, 100).Severity)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvMQTTBroker:   "broker.local",
		EnvMQTTPort:     "8883",
		EnvPostgresDSN:  "postgres://vs@db/vitals",
		EnvRedisAddr:    "cache:6379",
		EnvAMQPURL:      "amqp://mq",
		EnvHTTPAddr:     ":9090",
		EnvMQTTPassword: "s3cret",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	doc := DefaultDocument()
	require.NoError(t, ApplyEnv(&doc, lookup))
	assert.Equal(t, "broker.local", doc.MQTT.Broker)
	assert.Equal(t, 8883, doc.MQTT.Port)
	assert.Equal(t, "s3cret", doc.MQTT.Password)
	assert.Equal(t, "postgres://vs@db/vitals", doc.Postgres.DSN)
	assert.Equal(t, "cache:6379", doc.Redis.Addr)
	assert.Equal(t, "amqp://mq", doc.AMQP.URL)
	assert.Equal(t, ":9090", doc.HTTP.Addr)

	env[EnvMQTTPort] = "eighty"
	var cerr *sim.ConfigurationError
	assert.True(t, errors.As(ApplyEnv(&doc, lookup), &cerr))
}

func TestLoad_ReadsDotEnvBesideScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ward), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvHTTPAddr+"=:7070\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv(EnvHTTPAddr) })

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", s.HTTPAddr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var cerr *sim.ConfigurationError
	assert.True(t, errors.As(err, &cerr))
}
