package sim

import "fmt"

// ConfigurationError reports an invalid configuration document.
// It is returned at load time and is fatal to the run.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// ValidationError reports a reading that was rejected before evaluation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid reading: %s %s", e.Field, e.Reason)
}

// StateConflictError reports an alert operation that lost a race with another transition.
type StateConflictError struct {
	AlertID string
	Reason  string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("alert %s: state conflict: %s", e.AlertID, e.Reason)
}

// TransientTransportError wraps a sink failure that may succeed on retry.
type TransientTransportError struct {
	Sink string
	Err  error
}

func (e *TransientTransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Sink, e.Err)
}

func (e *TransientTransportError) Unwrap() error {
	return e.Err
}
