package trace

import "time"

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalTransitions  int
	Created           int
	Updated           int
	Acknowledged      int
	Resolved          int
	Rejected          int
	UniquePatients    int
	MeanTimeToResolve time.Duration  // over alerts whose creation and resolution were both traced
	VitalDistribution map[string]int // vital sign → alerts created
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		VitalDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	patients := make(map[string]bool)
	created := make(map[string]time.Time)
	var resolveTotal time.Duration
	resolvedPairs := 0

	summary.TotalTransitions = len(st.Transitions)
	for _, r := range st.Transitions {
		patients[r.PatientID] = true
		switch r.Type {
		case "created":
			summary.Created++
			summary.VitalDistribution[r.Vital]++
			created[r.AlertID] = r.Clock
		case "updated":
			summary.Updated++
		case "acknowledged":
			summary.Acknowledged++
		case "resolved":
			summary.Resolved++
			if start, ok := created[r.AlertID]; ok {
				resolveTotal += r.Clock.Sub(start)
				resolvedPairs++
			}
		}
	}
	if resolvedPairs > 0 {
		summary.MeanTimeToResolve = resolveTotal / time.Duration(resolvedPairs)
	}
	summary.Rejected = len(st.Rejections)
	summary.UniquePatients = len(patients)

	return summary
}
