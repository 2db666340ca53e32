// Package trace records alert lifecycle transitions and rejected readings for
// post-run analysis. This package has no dependencies on sim/; it stores pure data types.
package trace

import "time"

// TransitionRecord captures one alert lifecycle transition.
type TransitionRecord struct {
	AlertID   string
	PatientID string
	Vital     string
	Type      string // created, updated, acknowledged, resolved
	Severity  string
	Value     float64
	Clock     time.Time // simulated time of the transition
}

// RejectionRecord captures a reading refused by validation.
type RejectionRecord struct {
	PatientID string
	Clock     time.Time
	Reason    string
}
