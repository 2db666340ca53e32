package config

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/condition"
	"github.com/vital-sim/vital-sim/sim/generator"
	"github.com/vital-sim/vital-sim/sim/physio"
	"github.com/vital-sim/vital-sim/sim/store/postgres"
	"github.com/vital-sim/vital-sim/sim/store/redis"
	"github.com/vital-sim/vital-sim/sim/threshold"
	"github.com/vital-sim/vital-sim/sim/trace"
	"github.com/vital-sim/vital-sim/sim/transport"
	"github.com/vital-sim/vital-sim/sim/transport/amqp"
	"github.com/vital-sim/vital-sim/sim/transport/mqtt"
)

// Scenario is a validated document compiled into runtime objects.
type Scenario struct {
	Seed          int64
	Start         time.Time
	TickInterval  time.Duration
	Horizon       time.Duration
	SyncMode      SyncMode
	Realtime      bool
	Speedup       float64
	MaxClockSkew  time.Duration
	Trace         trace.TraceConfig
	Profiles      []generator.PatientProfile
	Events        condition.EventConfig
	Evaluator     *threshold.Evaluator
	Queue         transport.QueueConfig
	Retry         transport.RetryConfig
	MQTT          mqtt.Config
	Postgres      postgres.Config
	Redis         redis.Config
	AMQP          amqp.Config
	HTTPAddr      string
	Retention     time.Duration
	PurgeInterval time.Duration
}

// Ticks returns the number of ticks in the horizon, or 0 for an open-ended run.
func (s *Scenario) Ticks() int64 {
	return int64(s.Horizon / s.TickInterval)
}

func invalid(field, format string, args ...any) error {
	return &sim.ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// wrap turns a section validator's path-prefixed error into a ConfigurationError.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*sim.ConfigurationError); ok {
		return err
	}
	return &sim.ConfigurationError{Reason: err.Error()}
}

// Compile validates every section and builds the Scenario. It returns the
// first error found as a *sim.ConfigurationError.
func (d *Document) Compile() (*Scenario, error) {
	s := &Scenario{
		Seed:          d.Seed,
		TickInterval:  d.TickInterval,
		Horizon:       d.Horizon,
		SyncMode:      d.SyncMode,
		Realtime:      d.Realtime,
		Speedup:       d.Speedup,
		MaxClockSkew:  d.MaxClockSkew,
		Events:        d.Events,
		Queue:         d.Transport.Queue,
		Retry:         d.Transport.Retry,
		MQTT:          d.MQTT,
		Postgres:      d.Postgres,
		Redis:         d.Redis,
		AMQP:          d.AMQP,
		HTTPAddr:      d.HTTP.Addr,
		Retention:     d.Alerts.Retention,
		PurgeInterval: d.Alerts.PurgeInterval,
	}
	if err := d.compileRun(s); err != nil {
		return nil, err
	}
	global, err := compileRules("alert_rules", d.AlertRules, threshold.DefaultRules())
	if err != nil {
		return nil, err
	}
	if err := wrap(d.Events.Validate("events")); err != nil {
		return nil, err
	}
	if err := d.compilePatients(s, global); err != nil {
		return nil, err
	}
	for _, err := range []error{
		d.Transport.Queue.Validate("transport.queue"),
		d.Transport.Retry.Validate("transport.retry"),
		d.MQTT.Validate("mqtt"),
		d.Postgres.Validate("postgres"),
		d.Redis.Validate("redis"),
		d.AMQP.Validate("amqp"),
	} {
		if err != nil {
			return nil, wrap(err)
		}
	}
	if d.Alerts.Retention <= 0 {
		return nil, invalid("alerts.retention", "must be positive, got %s", d.Alerts.Retention)
	}
	if d.Alerts.PurgeInterval <= 0 {
		return nil, invalid("alerts.purge_interval", "must be positive, got %s", d.Alerts.PurgeInterval)
	}
	return s, nil
}

func (d *Document) compileRun(s *Scenario) error {
	if d.Version != "1" {
		return invalid("version", "unsupported version %q; valid: 1", d.Version)
	}
	if d.StartTime == "" {
		s.Start = time.Now().UTC().Truncate(time.Minute)
	} else {
		t, err := time.Parse(time.RFC3339, d.StartTime)
		if err != nil {
			return invalid("start_time", "must be RFC 3339: %v", err)
		}
		s.Start = t.UTC()
	}
	if d.TickInterval <= 0 {
		return invalid("tick_interval", "must be positive, got %s", d.TickInterval)
	}
	if d.Horizon < 0 {
		return invalid("horizon", "must be non-negative, got %s", d.Horizon)
	}
	if d.Horizon == 0 && !d.Realtime {
		return invalid("horizon", "must be set unless realtime is enabled")
	}
	if d.Horizon > 0 && d.Horizon < d.TickInterval {
		return invalid("horizon", "%s is shorter than one tick (%s)", d.Horizon, d.TickInterval)
	}
	switch d.SyncMode {
	case Lockstep, Independent:
	default:
		return invalid("sync_mode", "unknown mode %q; valid: lockstep, independent", d.SyncMode)
	}
	if math.IsNaN(d.Speedup) || math.IsInf(d.Speedup, 0) || d.Speedup <= 0 {
		return invalid("speedup", "must be a finite positive number, got %v", d.Speedup)
	}
	if d.MaxClockSkew < 0 {
		return invalid("max_clock_skew", "must be non-negative, got %s", d.MaxClockSkew)
	}
	if d.MaxClockSkew > 0 && d.MaxClockSkew < d.TickInterval {
		return invalid("max_clock_skew", "%s is shorter than one tick (%s); use 0 to disable the check", d.MaxClockSkew, d.TickInterval)
	}
	if !trace.IsValidTraceLevel(d.TraceLevel) {
		return invalid("trace_level", "unknown level %q; valid: none, alerts", d.TraceLevel)
	}
	s.Trace = trace.TraceConfig{Level: trace.TraceLevel(d.TraceLevel)}
	return nil
}

func (d *Document) compilePatients(s *Scenario, global map[sim.VitalSign]threshold.Rule) error {
	p := d.Patients
	if err := validateBaselines("defaults.baselines", d.Defaults.Baselines); err != nil {
		return err
	}
	if err := physio.ValidateNoiseLevel("defaults.noise_level", d.Defaults.NoiseLevel); err != nil {
		return wrap(err)
	}
	if err := d.Defaults.Schedule.Validate("defaults.schedule"); err != nil {
		return wrap(err)
	}
	if p.Count < 0 {
		return invalid("patients.count", "must be non-negative, got %d", p.Count)
	}
	count := p.Count
	if count == 0 {
		count = len(p.Profiles)
	}
	if count == 0 {
		count = DefaultPatientCount
	}
	if count < len(p.Profiles) {
		return invalid("patients.count", "%d is less than the %d listed profiles", count, len(p.Profiles))
	}
	if count > len(p.Profiles) && len(p.Conditions) == 0 {
		return invalid("patients.conditions", "at least one condition required to generate patients")
	}
	generated := make([]condition.Condition, len(p.Conditions))
	for i, name := range p.Conditions {
		c, err := condition.Parse(name)
		if err != nil {
			return invalid(fmt.Sprintf("patients.conditions[%d]", i), "%v", err)
		}
		generated[i] = c
	}

	overrides := make(map[string]map[sim.VitalSign]threshold.Rule)
	seen := make(map[string]bool, count)
	for i := 0; i < count; i++ {
		var pc PatientConfig
		prefix := fmt.Sprintf("patients.profiles[%d]", i)
		if i < len(p.Profiles) {
			pc = p.Profiles[i]
		} else {
			pc = PatientConfig{
				ID:        fmt.Sprintf("%s%03d", p.IDPrefix, i+1),
				Condition: string(generated[(i-len(p.Profiles))%len(generated)]),
			}
			prefix = fmt.Sprintf("patients[%s]", pc.ID)
		}
		profile, rules, err := d.compileProfile(prefix, pc)
		if err != nil {
			return err
		}
		if seen[profile.ID] {
			return invalid(prefix+".id", "duplicate patient id %q", profile.ID)
		}
		seen[profile.ID] = true
		if len(rules) > 0 {
			overrides[profile.ID] = rules
		}
		s.Profiles = append(s.Profiles, profile)
	}

	ev, err := threshold.NewEvaluator(global, overrides)
	if err != nil {
		return wrap(err)
	}
	s.Evaluator = ev
	return nil
}

func (d *Document) compileProfile(prefix string, pc PatientConfig) (generator.PatientProfile, map[sim.VitalSign]threshold.Rule, error) {
	var profile generator.PatientProfile
	if strings.TrimSpace(pc.ID) == "" {
		return profile, nil, invalid(prefix+".id", "must not be empty")
	}
	cond, err := condition.Parse(pc.Condition)
	if err != nil {
		return profile, nil, invalid(prefix+".condition", "%v", err)
	}
	if err := validateBaselines(prefix+".baselines", pc.Baselines); err != nil {
		return profile, nil, err
	}
	baselines := make(map[sim.VitalSign]float64, len(sim.AllVitalSigns))
	for name, v := range d.Defaults.Baselines {
		baselines[sim.VitalSign(name)] = v
	}
	for name, v := range pc.Baselines {
		baselines[sim.VitalSign(name)] = v
	}
	noise := d.Defaults.NoiseLevel
	if pc.NoiseLevel != nil {
		noise = *pc.NoiseLevel
		if err := physio.ValidateNoiseLevel(prefix+".noise_level", noise); err != nil {
			return profile, nil, wrap(err)
		}
	}
	schedule, err := mergeSchedule(prefix+".schedule", d.Defaults.Schedule, pc.Schedule)
	if err != nil {
		return profile, nil, err
	}
	deviceID := pc.DeviceID
	if deviceID == "" {
		deviceID = "device-" + pc.ID
	}

	rules, err := compileRules(prefix+".alert_rules", pc.AlertRules, nil)
	if err != nil {
		return profile, nil, err
	}

	profile = generator.PatientProfile{
		ID:         pc.ID,
		DeviceID:   deviceID,
		Condition:  cond,
		Baselines:  baselines,
		NoiseLevel: noise,
		Seed:       pc.Seed,
		Schedule:   schedule,
	}
	return profile, rules, nil
}

// mergeSchedule decodes a patient's schedule node over a copy of the defaults.
func mergeSchedule(prefix string, defaults physio.Schedule, node yaml.Node) (physio.Schedule, error) {
	s := defaults
	if node.Kind != 0 {
		// Re-encode so the strict decoder rejects unknown keys inside the override.
		raw, err := yaml.Marshal(&node)
		if err != nil {
			return s, invalid(prefix, "%v", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return s, invalid(prefix, "%v", err)
		}
	}
	s.Normalize()
	if err := s.Validate(prefix); err != nil {
		return s, wrap(err)
	}
	return s, nil
}

func validateBaselines(field string, baselines map[string]float64) error {
	for name, value := range baselines {
		v, err := sim.ParseVitalSign(name)
		if err != nil {
			return invalid(field, "%v", err)
		}
		spec := v.Spec()
		if math.IsNaN(value) || value < spec.ClipMin || value > spec.ClipMax {
			return invalid(field+"."+name, "%v is outside [%v, %v]", value, spec.ClipMin, spec.ClipMax)
		}
	}
	return nil
}

// compileRules parses a rules section. Vitals not named in the section are taken
// from base; a nil base returns only the named vitals.
func compileRules(field string, doc map[string][]threshold.Band, base map[sim.VitalSign]threshold.Rule) (map[sim.VitalSign]threshold.Rule, error) {
	out := make(map[sim.VitalSign]threshold.Rule, len(sim.AllVitalSigns))
	for v, r := range base {
		out[v] = r
	}
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, err := sim.ParseVitalSign(name)
		if err != nil {
			return nil, invalid(field, "%v", err)
		}
		r := threshold.Rule{Vital: v, Bands: doc[name]}
		if err := r.Validate(); err != nil {
			return nil, invalid(field+"."+name, "%v", err)
		}
		out[v] = r
	}
	return out, nil
}

// Summary writes a human-readable digest of the scenario.
func (s *Scenario) Summary(w io.Writer) {
	fmt.Fprintf(w, "=== Scenario ===\n")
	fmt.Fprintf(w, "Seed          : %d\n", s.Seed)
	fmt.Fprintf(w, "Start         : %s\n", s.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "Tick interval : %s\n", s.TickInterval)
	if s.Horizon > 0 {
		fmt.Fprintf(w, "Horizon       : %s (%d ticks)\n", s.Horizon, s.Ticks())
	} else {
		fmt.Fprintf(w, "Horizon       : unbounded\n")
	}
	fmt.Fprintf(w, "Sync mode     : %s\n", s.SyncMode)
	if s.Realtime {
		fmt.Fprintf(w, "Realtime      : x%g\n", s.Speedup)
	}
	fmt.Fprintf(w, "Patients      : %d\n", len(s.Profiles))
	for _, p := range s.Profiles {
		fmt.Fprintf(w, "  %-16s %-20s %s\n", p.ID, p.DeviceID, p.Condition)
	}
	var sinks []string
	if s.MQTT.Enabled() {
		sinks = append(sinks, "mqtt")
	}
	if s.Postgres.Enabled() {
		sinks = append(sinks, "postgres")
	}
	if s.Redis.Enabled() {
		sinks = append(sinks, "redis")
	}
	if s.AMQP.Enabled() {
		sinks = append(sinks, "amqp")
	}
	if len(sinks) == 0 {
		sinks = append(sinks, "log")
	}
	fmt.Fprintf(w, "Sinks         : %s\n", strings.Join(sinks, ", "))
}
