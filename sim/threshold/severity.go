package threshold

import "fmt"

// Severity is the band a value falls into.
type Severity string

const (
	CriticalLow  Severity = "critical_low"
	Low          Severity = "low"
	Normal       Severity = "normal"
	High         Severity = "high"
	CriticalHigh Severity = "critical_high"
)

// Level groups severities into alert urgency.
type Level string

const (
	LevelNone     Level = ""
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

var severityRank = map[Severity]int{
	CriticalLow:  0,
	Low:          1,
	Normal:       2,
	High:         3,
	CriticalHigh: 4,
}

// Rank orders severities from critical_low (0) to critical_high (4). Unknown severities rank -1.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Level returns warning for low/high, critical for the critical bands and none for normal.
func (s Severity) Level() Level {
	switch s {
	case Low, High:
		return LevelWarning
	case CriticalLow, CriticalHigh:
		return LevelCritical
	}
	return LevelNone
}

// IsViolation reports whether s is anything other than normal.
func (s Severity) IsViolation() bool {
	return s != Normal
}

// ParseSeverity validates a configured severity name.
func ParseSeverity(name string) (Severity, error) {
	s := Severity(name)
	if _, ok := severityRank[s]; !ok {
		return "", fmt.Errorf("unknown severity %q; valid: critical_low, low, normal, high, critical_high", name)
	}
	return s, nil
}
