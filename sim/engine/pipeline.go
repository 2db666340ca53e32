package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/alert"
	"github.com/vital-sim/vital-sim/sim/threshold"
	"github.com/vital-sim/vital-sim/sim/trace"
	"github.com/vital-sim/vital-sim/sim/transport"
)

// Pipeline turns readings into alert events: validate, classify, deduplicate,
// then hand every event to the alert dispatchers.
type Pipeline struct {
	evaluator *threshold.Evaluator
	dedup     *alert.Deduplicator
	alerts    transport.Fanout[alert.Event]
	metrics   *sim.Metrics
	trace     *trace.SimulationTrace
	maxSkew   time.Duration
	now       func() time.Time
}

// NewPipeline wires the alerting stages. now is the reference time for the
// timestamp skew check; tr and alerts may be nil.
func NewPipeline(ev *threshold.Evaluator, dd *alert.Deduplicator, alerts transport.Fanout[alert.Event],
	m *sim.Metrics, tr *trace.SimulationTrace, maxSkew time.Duration, now func() time.Time) *Pipeline {
	return &Pipeline{
		evaluator: ev,
		dedup:     dd,
		alerts:    alerts,
		metrics:   m,
		trace:     tr,
		maxSkew:   maxSkew,
		now:       now,
	}
}

// Ingest processes one reading and returns the alert events it caused.
// An invalid reading is counted and returned as *sim.ValidationError; the
// pipeline stays usable for the next reading.
func (p *Pipeline) Ingest(ctx context.Context, r sim.Reading) ([]alert.Event, error) {
	return p.IngestAt(ctx, r, p.now())
}

// IngestAt is Ingest with the timestamp skew measured against ref instead of
// the pipeline clock.
func (p *Pipeline) IngestAt(ctx context.Context, r sim.Reading, ref time.Time) ([]alert.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.Validate(ref, p.maxSkew); err != nil {
		p.metrics.ReadingsRejected.Inc()
		if p.trace.Enabled() {
			p.trace.RecordRejection(trace.RejectionRecord{PatientID: r.PatientID, Clock: r.Timestamp, Reason: err.Error()})
		}
		logrus.WithFields(logrus.Fields{"patient_id": r.PatientID, "device_id": r.DeviceID}).Warnf("rejected reading: %v", err)
		return nil, err
	}
	events := p.dedup.Observe(r, p.evaluator.Evaluate(r))
	for _, ev := range events {
		p.publish(ev)
	}
	return events, nil
}

// Acknowledge acknowledges a live alert and publishes the transition.
func (p *Pipeline) Acknowledge(id, actor, notes string) (alert.Alert, error) {
	a, ev, err := p.dedup.Acknowledge(id, actor, notes)
	if err != nil {
		return a, err
	}
	if ev != nil {
		p.publish(*ev)
	}
	return a, nil
}

// ListAlerts returns alerts matching f, newest first.
func (p *Pipeline) ListAlerts(f alert.Filter) []alert.Alert {
	return p.dedup.List(f)
}

// Deduplicator exposes the alert store for queries.
func (p *Pipeline) Deduplicator() *alert.Deduplicator { return p.dedup }

func (p *Pipeline) publish(ev alert.Event) {
	p.metrics.AlertTransitions.WithLabelValues(string(ev.Type)).Inc()
	p.metrics.ActiveAlerts.Set(float64(p.dedup.LiveCount()))
	if p.trace.Enabled() {
		p.trace.RecordTransition(trace.TransitionRecord{
			AlertID:   ev.Alert.ID,
			PatientID: ev.Alert.PatientID,
			Vital:     string(ev.Alert.Vital),
			Type:      string(ev.Type),
			Severity:  string(ev.Alert.Severity),
			Value:     ev.Alert.Value,
			Clock:     ev.At,
		})
	}
	logrus.WithFields(logrus.Fields{
		"alert_id":   ev.Alert.ID,
		"patient_id": ev.Alert.PatientID,
		"vital_sign": ev.Alert.Vital,
	}).Infof("alert %s: %s", ev.Type, ev.Alert.Message)
	p.alerts.Enqueue(ev)
}
