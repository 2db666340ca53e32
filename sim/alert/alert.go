// Package alert turns per-reading threshold classifications into a bounded set of
// alert lifecycle events. At most one live alert exists per (patient, vital sign).
//
// Lifecycle: none -> active -> acknowledged -> resolved, with active -> resolved
// allowed directly. A violation after resolution opens a new alert with a new id.
package alert

import (
	"errors"
	"fmt"
	"time"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/threshold"
)

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// IsLive reports whether an alert in status s still occupies its key.
func (s Status) IsLive() bool {
	return s == StatusActive || s == StatusAcknowledged
}

// ParseStatus validates a status name.
func ParseStatus(name string) (Status, error) {
	switch s := Status(name); s {
	case StatusActive, StatusAcknowledged, StatusResolved:
		return s, nil
	}
	return "", fmt.Errorf("unknown alert status %q; valid: active, acknowledged, resolved", name)
}

// EventType names a lifecycle transition.
type EventType string

const (
	EventCreated      EventType = "created"
	EventUpdated      EventType = "updated"
	EventAcknowledged EventType = "acknowledged"
	EventResolved     EventType = "resolved"
)

var (
	// ErrAlertNotFound is returned for an unknown alert id.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrActorRequired is returned when acknowledging without naming who did it.
	ErrActorRequired = errors.New("acknowledging actor is required")
)

// Key identifies the single live alert slot of a patient's vital sign.
type Key struct {
	PatientID string
	Vital     sim.VitalSign
}

func (k Key) String() string {
	return k.PatientID + "/" + string(k.Vital)
}

// Alert is the current state of one alert.
type Alert struct {
	ID             string             `json:"id"`
	PatientID      string             `json:"patient_id"`
	DeviceID       string             `json:"device_id"`
	Vital          sim.VitalSign      `json:"vital_sign"`
	Value          float64            `json:"value"`
	Severity       threshold.Severity `json:"severity"`
	Level          threshold.Level    `json:"level"`
	Threshold      float64            `json:"threshold"`
	Status         Status             `json:"status"`
	Message        string             `json:"message"`
	CreatedAt      time.Time          `json:"created_at"`
	LastObservedAt time.Time          `json:"last_observed_at"`
	AcknowledgedAt *time.Time         `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string             `json:"acknowledged_by,omitempty"`
	Notes          string             `json:"notes,omitempty"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`
	Sequence       int                `json:"sequence"`
}

// Key returns the alert's live slot.
func (a *Alert) Key() Key {
	return Key{PatientID: a.PatientID, Vital: a.Vital}
}

// Event is one lifecycle transition. Consumers deduplicate on DedupKey.
type Event struct {
	Type     EventType `json:"type"`
	Sequence int       `json:"sequence"`
	At       time.Time `json:"at"`
	Alert    Alert     `json:"alert"`
}

// DedupKey is unique per alert transition: "<alert id>:<type>:<sequence>".
func (e *Event) DedupKey() string {
	return fmt.Sprintf("%s:%s:%d", e.Alert.ID, e.Type, e.Sequence)
}

// crossedThreshold returns the band bound the value went past.
func crossedThreshold(c threshold.Classification) float64 {
	switch c.Severity {
	case threshold.High, threshold.CriticalHigh:
		return c.Lower
	}
	return c.Upper
}

func message(c threshold.Classification) string {
	return fmt.Sprintf("%s %s: %g %s (threshold %g)",
		c.Vital, c.Severity, c.Value, c.Vital.Spec().Unit, crossedThreshold(c))
}
