package domain

// ShipmentClass identifies a reference master plan.
type ShipmentClass string

const (
	ClassStandard ShipmentClass = "Standard"
	ClassPriority ShipmentClass = "Priority"
)

// One expected step of a master plan. ExpectedTime is an ISO-8601 string and
// is compared as a string, never parsed.
type MasterPlanStep struct {
	StepName         string `json:"step" yaml:"step"`
	ExpectedLocation string `json:"expectedLocation" yaml:"expectedLocation"`
	ExpectedTime     string `json:"expectedTime" yaml:"expectedTime"`
}

// Reference sequence of expected steps for a shipment class.
// A MasterPlan is immutable once seeded.
type MasterPlan struct {
	ShipmentClass ShipmentClass    `json:"shipmentClass" yaml:"shipmentClass"`
	Steps         []MasterPlanStep `json:"steps" yaml:"steps"`
}

// StepFor returns the plan step whose name equals phase.
func (p MasterPlan) StepFor(phase Phase) (MasterPlanStep, bool) {
	return FindPlanStep(p.Steps, phase)
}

func FindPlanStep(steps []MasterPlanStep, phase Phase) (MasterPlanStep, bool) {
	for _, s := range steps {
		if s.StepName == string(phase) {
			return s, true
		}
	}
	return MasterPlanStep{}, false
}

// NormalizePlanStep fills missing fields with sentinels.
func NormalizePlanStep(s MasterPlanStep) MasterPlanStep {
	if s.StepName == "" {
		s.StepName = UnknownStep
	}
	if s.ExpectedLocation == "" {
		s.ExpectedLocation = UnknownLocation
	}
	if s.ExpectedTime == "" {
		s.ExpectedTime = UnknownTimestamp
	}
	return s
}

func clonePlanSteps(steps []MasterPlanStep) []MasterPlanStep {
	if steps == nil {
		return nil
	}
	out := make([]MasterPlanStep, len(steps))
	copy(out, steps)
	return out
}
