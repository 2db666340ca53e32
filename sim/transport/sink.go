// Package transport moves readings and alert events from the simulation to external
// sinks through bounded queues with counted overflow and bounded retry.
package transport

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/vital-sim/vital-sim/sim"
	"github.com/vital-sim/vital-sim/sim/alert"
)

// ReadingSink accepts generated readings. Implementations must tolerate redelivery.
type ReadingSink interface {
	PublishReading(ctx context.Context, r sim.Reading) error
}

// AlertEventSink accepts alert lifecycle events. Delivery is at-least-once;
// consumers deduplicate on alert.Event.DedupKey.
type AlertEventSink interface {
	PublishAlertEvent(ctx context.Context, ev alert.Event) error
}

// LogSink writes readings and alert events to the logger. It backs dry runs.
type LogSink struct{}

// PublishReading logs r at debug level.
func (LogSink) PublishReading(_ context.Context, r sim.Reading) error {
	logrus.WithFields(logrus.Fields{"patient_id": r.PatientID, "timestamp": r.Timestamp}).Debugf("reading %v", r.Vitals)
	return nil
}

// PublishAlertEvent logs ev at info level.
func (LogSink) PublishAlertEvent(_ context.Context, ev alert.Event) error {
	logrus.WithFields(logrus.Fields{
		"alert_id":   ev.Alert.ID,
		"patient_id": ev.Alert.PatientID,
		"vital_sign": ev.Alert.Vital,
		"severity":   ev.Alert.Severity,
	}).Infof("alert %s: %s", ev.Type, ev.Alert.Message)
	return nil
}
