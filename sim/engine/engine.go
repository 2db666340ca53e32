// Package engine runs patient generation tasks and feeds their readings
// through the alerting pipeline and out to the configured sinks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/alert"
	"github.com/vital-sim/vital-sim/sim/condition"
	"github.com/vital-sim/vital-sim/sim/config"
	"github.com/vital-sim/vital-sim/sim/generator"
	"github.com/vital-sim/vital-sim/sim/status"
	"github.com/vital-sim/vital-sim/sim/trace"
	"github.com/vital-sim/vital-sim/sim/transport"
)

// ErrPatientNotFound is returned by operator commands naming an unknown patient.
var ErrPatientNotFound = errors.New("patient not found")

// drainTimeout bounds how long Run waits for queued items after the last tick.
const drainTimeout = 10 * time.Second

// Purger removes resolved alerts from external storage.
type Purger interface {
	PurgeResolved(ctx context.Context, before time.Time) (int64, error)
}

// Sinks are the external collaborators of a run, keyed by name for logs and metrics.
type Sinks struct {
	Readings map[string]transport.ReadingSink
	Alerts   map[string]transport.AlertEventSink
	Purgers  []Purger
}

// Engine owns the patients, the simulation clock and the alert pipeline of one run.
type Engine struct {
	sc       *config.Scenario
	gen      *generator.Generator
	patients []*generator.Patient
	byID     map[string]*generator.Patient
	pipeline *Pipeline
	readings transport.Fanout[sim.Reading]
	alerts   transport.Fanout[alert.Event]
	purgers  []Purger
	metrics  *sim.Metrics
	trace    *trace.SimulationTrace

	mu        sync.Mutex
	stopped   map[string]bool
	cancels   map[string]context.CancelFunc
	lastPurge time.Time

	running  atomic.Bool
	tick     atomic.Int64
	lastTick atomic.Int64 // unix nanoseconds of the newest completed tick
	clock    atomic.Int64 // unix nanoseconds of the newest generated reading
	started  atomic.Int64 // unix nanoseconds of the wall-clock start

	wait func(ctx context.Context, d time.Duration) error
}

// New builds every patient and dispatcher. It does not start anything.
func New(sc *config.Scenario, sinks Sinks, m *sim.Metrics) *Engine {
	e := &Engine{
		sc:      sc,
		gen:     generator.New(sc.Events, sc.Start),
		byID:    make(map[string]*generator.Patient, len(sc.Profiles)),
		metrics: m,
		trace:   trace.NewSimulationTrace(sc.Trace),
		stopped: make(map[string]bool),
		cancels: make(map[string]context.CancelFunc),
		wait:    sleepCtx,
	}
	// Streams are derived here, on one goroutine, before any task starts.
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(sc.Seed))
	for _, prof := range sc.Profiles {
		p := generator.NewPatient(prof, rng)
		e.patients = append(e.patients, p)
		e.byID[p.ID()] = p
	}

	for _, name := range sortedKeys(sinks.Readings) {
		sink := sinks.Readings[name]
		e.readings = append(e.readings, transport.NewDispatcher("readings/"+name, sc.Queue, sc.Retry, m, sink.PublishReading))
	}
	for _, name := range sortedKeys(sinks.Alerts) {
		sink := sinks.Alerts[name]
		e.alerts = append(e.alerts, transport.NewDispatcher("alerts/"+name, sc.Queue, sc.Retry, m, sink.PublishAlertEvent))
	}
	e.purgers = sinks.Purgers

	dedup := alert.NewDeduplicator(
		alert.WithClock(e.simNow),
		alert.WithConflictHook(func(alert.Key) {
			m.StateConflicts.Inc()
		}),
	)
	e.pipeline = NewPipeline(sc.Evaluator, dedup, e.alerts, m, e.trace, sc.MaxClockSkew, e.simNow)
	return e
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pipeline returns the alerting pipeline shared by every patient.
func (e *Engine) Pipeline() *Pipeline { return e.pipeline }

// Trace returns the run's lifecycle trace.
func (e *Engine) Trace() *trace.SimulationTrace { return e.trace }

// Ticks returns the number of completed ticks of the furthest patient.
func (e *Engine) Ticks() int64 { return e.tick.Load() }

// simNow is the run's simulated present: the timestamp of the newest generated
// reading, or the start before the first one. Acknowledgements are stamped with it.
func (e *Engine) simNow() time.Time {
	if ns := e.clock.Load(); ns != 0 {
		return time.Unix(0, ns).UTC()
	}
	return e.sc.Start
}

// Run simulates until the horizon, ctx cancellation, or every patient is stopped,
// then drains the dispatchers.
func (e *Engine) Run(ctx context.Context) error {
	e.started.Store(time.Now().UnixNano())
	e.lastPurge = e.sc.Start
	e.running.Store(true)
	defer e.running.Store(false)

	// Deliveries outlive ctx so queued items can drain after an interrupt.
	sinkCtx, cancelSinks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSinks()
	e.readings.Start(sinkCtx)
	e.alerts.Start(sinkCtx)

	logrus.Infof("simulating %d patient(s) in %s mode from %s", len(e.patients), e.sc.SyncMode, e.sc.Start.Format(time.RFC3339))
	var err error
	switch e.sc.SyncMode {
	case config.Independent:
		err = e.runIndependent(ctx)
	default:
		err = e.runLockstep(ctx)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if derr := e.readings.Close(drainCtx); derr != nil {
		logrus.Warnf("draining readings: %v", derr)
	}
	if derr := e.alerts.Close(drainCtx); derr != nil {
		logrus.Warnf("draining alert events: %v", derr)
	}
	return err
}

func (e *Engine) done(tick int64) bool {
	n := e.sc.Ticks()
	return n > 0 && tick >= n
}

func (e *Engine) runLockstep(ctx context.Context) error {
	clock := sim.NewSimulationClock(e.sc.Start, e.sc.TickInterval)
	for ; !e.done(clock.Tick()); clock.Advance() {
		if err := ctx.Err(); err != nil {
			return err
		}
		active := e.activePatients()
		if len(active) == 0 {
			logrus.Info("every patient stopped")
			return nil
		}
		now, tick := clock.Now(), clock.Tick()
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for _, p := range active {
			p := p
			g.Go(func() error {
				return e.step(gctx, p, now, tick)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		e.completeTick(ctx, now, tick)
		if err := e.pace(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runIndependent(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range e.patients {
		p := p
		pctx, cancel := context.WithCancel(gctx)
		e.mu.Lock()
		if e.stopped[p.ID()] {
			e.mu.Unlock()
			cancel()
			continue
		}
		e.cancels[p.ID()] = cancel
		e.mu.Unlock()

		g.Go(func() error {
			defer cancel()
			err := e.runPatient(pctx, p)
			if errors.Is(err, context.Canceled) && gctx.Err() == nil {
				logrus.WithField("patient_id", p.ID()).Info("patient stopped")
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (e *Engine) runPatient(ctx context.Context, p *generator.Patient) error {
	clock := sim.NewSimulationClock(e.sc.Start, e.sc.TickInterval)
	for ; !e.done(clock.Tick()); clock.Advance() {
		if err := ctx.Err(); err != nil {
			return err
		}
		now, tick := clock.Now(), clock.Tick()
		if err := e.step(ctx, p, now, tick); err != nil {
			return err
		}
		e.completeTick(ctx, now, tick)
		if err := e.pace(ctx); err != nil {
			return err
		}
	}
	return nil
}

// step generates one reading for p, sends it to the reading sinks and ingests it.
func (e *Engine) step(ctx context.Context, p *generator.Patient, now time.Time, tick int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := e.gen.Generate(p, p.Context(now, tick, e.sc.TickInterval))
	e.metrics.ReadingsGenerated.Inc()
	e.advanceClock(now)
	e.readings.Enqueue(r)
	// Patients drift apart in independent mode, so each reading is checked
	// against its own patient's clock.
	if _, err := e.pipeline.IngestAt(ctx, r, now); err != nil {
		var verr *sim.ValidationError
		if errors.As(err, &verr) {
			return nil
		}
		return err
	}
	return nil
}

func (e *Engine) advanceClock(now time.Time) {
	ns := now.UnixNano()
	for {
		cur := e.clock.Load()
		if ns <= cur || e.clock.CompareAndSwap(cur, ns) {
			return
		}
	}
}

// completeTick advances the run-wide tick counters and purges old alerts once
// per purge interval of simulated time.
func (e *Engine) completeTick(ctx context.Context, now time.Time, tick int64) {
	for {
		cur := e.tick.Load()
		if tick+1 <= cur {
			break
		}
		if e.tick.CompareAndSwap(cur, tick+1) {
			e.lastTick.Store(now.UnixNano())
			e.metrics.Ticks.Inc()
			break
		}
	}

	e.mu.Lock()
	due := now.Sub(e.lastPurge) >= e.sc.PurgeInterval
	if due {
		e.lastPurge = now
	}
	e.mu.Unlock()
	if due {
		e.purge(ctx, now.Add(-e.sc.Retention))
	}
}

func (e *Engine) purge(ctx context.Context, before time.Time) {
	if n := e.pipeline.Deduplicator().PurgeResolved(before); n > 0 {
		logrus.Debugf("purged %d resolved alert(s) older than %s", n, before.Format(time.RFC3339))
	}
	for _, p := range e.purgers {
		if _, err := p.PurgeResolved(ctx, before); err != nil {
			logrus.Warnf("purging resolved alerts: %v", err)
		}
	}
}

// pace waits one tick of wall time, scaled by speedup, in realtime mode.
func (e *Engine) pace(ctx context.Context) error {
	if !e.sc.Realtime {
		return nil
	}
	return e.wait(ctx, time.Duration(float64(e.sc.TickInterval)/e.sc.Speedup))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) activePatients() []*generator.Patient {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*generator.Patient, 0, len(e.patients))
	for _, p := range e.patients {
		if !e.stopped[p.ID()] {
			out = append(out, p)
		}
	}
	return out
}

// StopPatient ends one patient's generation. Other patients are unaffected.
func (e *Engine) StopPatient(patientID string) error {
	if _, ok := e.byID[patientID]; !ok {
		return fmt.Errorf("%w: %q", ErrPatientNotFound, patientID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped[patientID] = true
	if cancel, ok := e.cancels[patientID]; ok {
		cancel()
	}
	logrus.WithField("patient_id", patientID).Info("stop requested")
	return nil
}

// SetCondition switches a patient's condition from the next tick on.
func (e *Engine) SetCondition(patientID, name string) error {
	p, ok := e.byID[patientID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrPatientNotFound, patientID)
	}
	c, err := condition.Parse(name)
	if err != nil {
		return &sim.ValidationError{Field: "condition", Reason: err.Error()}
	}
	p.SetCondition(c)
	logrus.WithField("patient_id", patientID).Infof("condition set to %s", c)
	return nil
}

// Acknowledge acknowledges a live alert on behalf of actor.
func (e *Engine) Acknowledge(alertID, actor, notes string) error {
	_, err := e.pipeline.Acknowledge(alertID, actor, notes)
	return err
}

// Health reports liveness and progress without side effects.
func (e *Engine) Health() status.Health {
	h := status.Health{
		Alive:        e.running.Load(),
		Tick:         e.tick.Load(),
		Patients:     len(e.activePatients()),
		ActiveAlerts: e.pipeline.Deduplicator().LiveCount(),
	}
	if ns := e.lastTick.Load(); ns != 0 {
		h.LastTick = time.Unix(0, ns).UTC()
	}
	if ns := e.started.Load(); ns != 0 {
		h.Uptime = time.Since(time.Unix(0, ns))
	}
	return h
}
