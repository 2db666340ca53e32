package alert

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/threshold"
)

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithClock sets the time source used for acknowledgments.
func WithClock(now func() time.Time) Option {
	return func(d *Deduplicator) { d.now = now }
}

// WithIDGenerator replaces the uuid alert id generator.
func WithIDGenerator(newID func() string) Option {
	return func(d *Deduplicator) { d.newID = newID }
}

// WithConflictHook is called for every stale update that was not applied.
func WithConflictHook(hook func(Key)) Option {
	return func(d *Deduplicator) { d.onConflict = hook }
}

// Deduplicator owns all alerts. Operations on the same Key are serialized by a
// per-key lock; operations on different keys proceed in parallel. mu only guards
// the maps and is never held while waiting for a key lock.
type Deduplicator struct {
	mu     sync.Mutex
	locks  map[Key]*sync.Mutex
	live   map[Key]string   // key -> id of the active or acknowledged alert
	alerts map[string]Alert // id -> latest state, resolved included

	now        func() time.Time
	newID      func() string
	onConflict func(Key)
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator(opts ...Option) *Deduplicator {
	d := &Deduplicator{
		locks:  make(map[Key]*sync.Mutex),
		live:   make(map[Key]string),
		alerts: make(map[string]Alert),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Deduplicator) keyLock(k Key) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[k]
	if !ok {
		l = &sync.Mutex{}
		d.locks[k] = l
	}
	return l
}

func (d *Deduplicator) liveAlert(k Key) (Alert, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.live[k]
	if !ok {
		return Alert{}, false
	}
	return d.alerts[id], true
}

func (d *Deduplicator) store(a Alert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts[a.ID] = a
	if a.Status.IsLive() {
		d.live[a.Key()] = a.ID
	} else if d.live[a.Key()] == a.ID {
		delete(d.live, a.Key())
	}
}

// Observe applies one reading's classifications and returns the resulting events.
// Classifications must include normal values so live alerts can resolve.
func (d *Deduplicator) Observe(r sim.Reading, classes map[sim.VitalSign]threshold.Classification) []Event {
	var events []Event
	for _, v := range sim.AllVitalSigns {
		c, ok := classes[v]
		if !ok {
			continue
		}
		if ev, ok := d.observeOne(r, c); ok {
			events = append(events, ev)
		}
	}
	return events
}

func (d *Deduplicator) observeOne(r sim.Reading, c threshold.Classification) (Event, bool) {
	k := Key{PatientID: r.PatientID, Vital: c.Vital}
	l := d.keyLock(k)
	l.Lock()
	defer l.Unlock()

	cur, exists := d.liveAlert(k)
	ts := r.Timestamp

	if !c.Severity.IsViolation() {
		if !exists {
			return Event{}, false
		}
		if ts.Before(cur.LastObservedAt) {
			d.conflict(k, cur.ID, "stale normal reading")
			return Event{}, false
		}
		resolved := ts
		cur.Status = StatusResolved
		cur.ResolvedAt = &resolved
		cur.Sequence++
		d.store(cur)
		return Event{Type: EventResolved, Sequence: cur.Sequence, At: ts, Alert: cur}, true
	}

	if !exists {
		a := Alert{
			ID:             d.newID(),
			PatientID:      r.PatientID,
			DeviceID:       r.DeviceID,
			Vital:          c.Vital,
			Value:          c.Value,
			Severity:       c.Severity,
			Level:          c.Level,
			Threshold:      crossedThreshold(c),
			Status:         StatusActive,
			Message:        message(c),
			CreatedAt:      ts,
			LastObservedAt: ts,
			Sequence:       1,
		}
		d.store(a)
		logrus.WithFields(logrus.Fields{"alert_id": a.ID, "patient_id": a.PatientID, "vital_sign": a.Vital}).
			Infof("alert created: %s", a.Message)
		return Event{Type: EventCreated, Sequence: a.Sequence, At: ts, Alert: a}, true
	}

	// Last writer wins on value and severity; created_at keeps the first writer's time.
	if ts.Before(cur.LastObservedAt) {
		d.conflict(k, cur.ID, "out-of-order violation applied")
	} else {
		cur.LastObservedAt = ts
	}
	changed := cur.Severity != c.Severity
	cur.Value = c.Value
	cur.Severity = c.Severity
	cur.Level = c.Level
	cur.Threshold = crossedThreshold(c)
	cur.Message = message(c)
	if !changed {
		d.store(cur)
		return Event{}, false
	}
	cur.Sequence++
	d.store(cur)
	return Event{Type: EventUpdated, Sequence: cur.Sequence, At: ts, Alert: cur}, true
}

func (d *Deduplicator) conflict(k Key, id, reason string) {
	logrus.WithFields(logrus.Fields{"alert_id": id, "key": k.String()}).Warnf("alert state conflict: %s", reason)
	if d.onConflict != nil {
		d.onConflict(k)
	}
}

// Acknowledge marks a live alert as acknowledged by actor.
// Acknowledging an acknowledged alert returns it unchanged with a nil event.
// Acknowledging a resolved alert returns *sim.StateConflictError.
func (d *Deduplicator) Acknowledge(id, actor, notes string) (Alert, *Event, error) {
	if actor == "" {
		return Alert{}, nil, ErrActorRequired
	}
	a, ok := d.Get(id)
	if !ok {
		return Alert{}, nil, ErrAlertNotFound
	}
	l := d.keyLock(a.Key())
	l.Lock()
	defer l.Unlock()

	// Re-read under the key lock: a concurrent reading may have resolved it.
	if a, ok = d.Get(id); !ok {
		return Alert{}, nil, ErrAlertNotFound
	}
	switch a.Status {
	case StatusAcknowledged:
		return a, nil, nil
	case StatusResolved:
		return a, nil, &sim.StateConflictError{AlertID: id, Reason: "alert already resolved"}
	}
	at := d.now()
	a.Status = StatusAcknowledged
	a.AcknowledgedAt = &at
	a.AcknowledgedBy = actor
	a.Notes = notes
	a.Sequence++
	d.store(a)
	logrus.WithFields(logrus.Fields{"alert_id": id, "actor": actor}).Info("alert acknowledged")
	return a, &Event{Type: EventAcknowledged, Sequence: a.Sequence, At: at, Alert: a}, nil
}

// Get returns the latest state of an alert.
func (d *Deduplicator) Get(id string) (Alert, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.alerts[id]
	return a, ok
}

// LiveCount returns the number of active or acknowledged alerts.
func (d *Deduplicator) LiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Filter selects alerts for List. Zero fields match everything.
type Filter struct {
	PatientID string
	Status    Status
	Severity  threshold.Severity
	Vital     sim.VitalSign
	Limit     int
}

func (f Filter) match(a *Alert) bool {
	return (f.PatientID == "" || a.PatientID == f.PatientID) &&
		(f.Status == "" || a.Status == f.Status) &&
		(f.Severity == "" || a.Severity == f.Severity) &&
		(f.Vital == "" || a.Vital == f.Vital)
}

// List returns matching alerts, newest first.
func (d *Deduplicator) List(f Filter) []Alert {
	d.mu.Lock()
	out := make([]Alert, 0)
	for _, a := range d.alerts {
		if f.match(&a) {
			out = append(out, a)
		}
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// PurgeResolved forgets resolved alerts whose resolution predates before.
// It returns the number removed.
func (d *Deduplicator) PurgeResolved(before time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, a := range d.alerts {
		if a.Status == StatusResolved && a.ResolvedAt != nil && a.ResolvedAt.Before(before) {
			delete(d.alerts, id)
			n++
		}
	}
	return n
}
