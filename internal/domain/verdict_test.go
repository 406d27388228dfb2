package domain

import "testing"

func TestEvaluate(t *testing.T) {
	expected := MasterPlanStep{
		StepName:         "FIRST_SORTING",
		ExpectedLocation: "RONKIN_01",
		ExpectedTime:     "2025-02-25T10:10:00Z",
	}

	cases := []struct {
		name     string
		observed ExecutionStep
		want     Verdict
	}{
		{
			name:     "on schedule",
			observed: ExecutionStep{Location: "RONKIN_01", Timestamp: "2025-02-25T09:00:00Z"},
			want:     VerdictOnSchedule,
		},
		{
			name:     "wrong location",
			observed: ExecutionStep{Location: "Utrecht_01", Timestamp: "2025-02-25T09:00:00Z"},
			want:     VerdictDeviation,
		},
		{
			name:     "late",
			observed: ExecutionStep{Location: "RONKIN_01", Timestamp: "2025-02-25T11:00:00Z"},
			want:     VerdictDeviation,
		},
		{
			name:     "exactly on expected time is not before it",
			observed: ExecutionStep{Location: "RONKIN_01", Timestamp: "2025-02-25T10:10:00Z"},
			want:     VerdictDeviation,
		},
		{
			name:     "unknown timestamp",
			observed: ExecutionStep{Location: "RONKIN_01", Timestamp: UnknownTimestamp},
			want:     VerdictDeviation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(tc.observed, expected); got != tc.want {
				t.Fatalf("Evaluate() = %s, want %s", got, tc.want)
			}
		})
	}
}
