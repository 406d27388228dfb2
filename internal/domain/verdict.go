package domain

type Verdict string

const (
	VerdictOnSchedule Verdict = "ON_SCHEDULE"
	VerdictDeviation  Verdict = "DEVIATION"
)

// Evaluate compares an observed step with its expected master plan step.
//
// ON_SCHEDULE iff the locations match and the expected time sorts after the
// observed timestamp. Timestamps are compared as strings, so both sides must
// share one ISO-8601 layout and timezone. A sentinel timestamp always sorts
// after a real one and therefore always deviates.
func Evaluate(observed ExecutionStep, expected MasterPlanStep) Verdict {
	if observed.Location == expected.ExpectedLocation && expected.ExpectedTime > observed.Timestamp {
		return VerdictOnSchedule
	}
	return VerdictDeviation
}
