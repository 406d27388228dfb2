package domain

const (
	UnknownStep      = "UNKNOWN_STEP"
	UnknownLocation  = "UNKNOWN_LOCATION"
	UnknownStatus    = "UNKNOWN_STATUS"
	UnknownTimestamp = "UNKNOWN_TIMESTAMP"
	UnknownPhase     = "UNKNOWN_PHASE"

	StatusFailed = "FAILED"
)

// MutationOrigin tags which component produced a record mutation.
type MutationOrigin string

const (
	OriginIngest     MutationOrigin = "ingest"
	OriginCorrection MutationOrigin = "correction"
	OriginMonitor    MutationOrigin = "monitor"
)

// One observed step of a shipment. Missing fields hold UNKNOWN_* sentinels,
// never empty strings, once the step has passed through NormalizeStep.
type ExecutionStep struct {
	StepName  string `json:"step"`
	Location  string `json:"location"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func NormalizeStep(s ExecutionStep) ExecutionStep {
	if s.StepName == "" {
		s.StepName = UnknownStep
	}
	if s.Location == "" {
		s.Location = UnknownLocation
	}
	if s.Status == "" {
		s.Status = UnknownStatus
	}
	if s.Timestamp == "" {
		s.Timestamp = UnknownTimestamp
	}
	return s
}

// NormalizePlan returns a copy of steps with every step normalized.
// It never adds, drops or reorders steps.
func NormalizePlan(steps []ExecutionStep) []ExecutionStep {
	out := make([]ExecutionStep, 0, len(steps))
	for _, s := range steps {
		out = append(out, NormalizeStep(s))
	}
	return out
}

// Per-shipment record of observed steps and current state.
// ShipmentID is immutable once created. ExecutionPlan only grows through
// Apply; ReplacePlan is the single path allowed to rewrite it.
type ExecutionRecord struct {
	ShipmentID         string           `json:"shipmentId"`
	ShipmentClass      ShipmentClass    `json:"shipmentClass,omitempty"`
	EventType          string           `json:"eventType"`
	CurrentPhase       Phase            `json:"currentPhase"`
	ExecutionStatus    string           `json:"executionStatus"`
	ExecutionPlan      []ExecutionStep  `json:"executionPlan"`
	MasterPlanSnapshot []MasterPlanStep `json:"masterPlanSnapshot"`
	DueDate            string           `json:"dueDate"`
	LastUpdated        string           `json:"lastUpdated"`
	LastAlertedAt      string           `json:"lastAlertedAt,omitempty"`
	Version            int64            `json:"version"`
	LastOrigin         MutationOrigin   `json:"-"`
}

// PhaseUpdate is one accepted phase event reduced to what the store merges.
type PhaseUpdate struct {
	ShipmentID      string
	ShipmentClass   ShipmentClass
	EventType       string
	CurrentPhase    Phase
	ExecutionStatus string
	Steps           []ExecutionStep
	MasterPlan      []MasterPlanStep
	DueDate         string
	At              string
}

func NewExecutionRecord(shipmentID string) *ExecutionRecord {
	return &ExecutionRecord{
		ShipmentID:         shipmentID,
		ExecutionPlan:      []ExecutionStep{},
		MasterPlanSnapshot: []MasterPlanStep{},
	}
}

// Apply merges u into the record. It returns how many steps were appended and
// whether the record changed at all; an unchanged record keeps its version.
//
// Steps are keyed by phase: a step whose name is already present is not
// appended again, so replaying the same event is a no-op on the plan.
// An update for a phase observed before the current one is a late or
// redelivered event: its new steps are kept but it does not move the
// current phase, event type or status back.
// The master plan snapshot is captured only while it is still empty.
// A FAILED status is sticky and is not overwritten by later events.
func (r *ExecutionRecord) Apply(u PhaseUpdate) (int, bool) {
	phase := u.CurrentPhase
	if phase == "" {
		phase = UnknownPhase
	}
	status := u.ExecutionStatus
	if status == "" {
		status = UnknownStatus
	}

	fresh := r.Version == 0
	stale := !fresh && r.isBehind(phase)
	before := *r

	if !stale {
		r.EventType = u.EventType
		r.CurrentPhase = phase
		if r.ExecutionStatus != StatusFailed {
			r.ExecutionStatus = status
		}
		if u.DueDate != "" {
			r.DueDate = u.DueDate
		}
	}

	if r.ShipmentClass == "" {
		r.ShipmentClass = u.ShipmentClass
	}

	appended := 0
	for _, s := range u.Steps {
		s = NormalizeStep(s)
		if r.hasStep(s) {
			continue
		}
		r.ExecutionPlan = append(r.ExecutionPlan, s)
		appended++
	}
	if r.ExecutionPlan == nil {
		r.ExecutionPlan = []ExecutionStep{}
	}

	captured := false
	if len(r.MasterPlanSnapshot) == 0 && len(u.MasterPlan) > 0 {
		r.MasterPlanSnapshot = make([]MasterPlanStep, 0, len(u.MasterPlan))
		for _, s := range u.MasterPlan {
			r.MasterPlanSnapshot = append(r.MasterPlanSnapshot, NormalizePlanStep(s))
		}
		captured = true
	}
	if r.MasterPlanSnapshot == nil {
		r.MasterPlanSnapshot = []MasterPlanStep{}
	}

	changed := fresh || appended > 0 || captured ||
		r.EventType != before.EventType ||
		r.CurrentPhase != before.CurrentPhase ||
		r.ExecutionStatus != before.ExecutionStatus ||
		r.DueDate != before.DueDate ||
		r.ShipmentClass != before.ShipmentClass
	if !changed {
		return 0, false
	}

	r.LastUpdated = u.At
	r.LastOrigin = OriginIngest
	r.Version++

	return appended, true
}

// isBehind reports whether phase was observed earlier in the execution plan
// than the record's current phase.
func (r *ExecutionRecord) isBehind(phase Phase) bool {
	if phase == r.CurrentPhase {
		return false
	}
	at, cur := -1, -1
	for i, s := range r.ExecutionPlan {
		switch s.StepName {
		case string(phase):
			at = i
		case string(r.CurrentPhase):
			cur = i
		}
	}
	return at >= 0 && cur >= 0 && at < cur
}

// ReplacePlan overwrites the execution plan. Only the corrective rewrite uses it.
func (r *ExecutionRecord) ReplacePlan(steps []ExecutionStep, at string) {
	r.ExecutionPlan = NormalizePlan(steps)
	r.LastUpdated = at
	r.LastOrigin = OriginCorrection
	r.Version++
}

// MarkFailed moves the record to FAILED. It reports false when the record
// was already FAILED so callers can escalate only on the transition.
func (r *ExecutionRecord) MarkFailed(at string) bool {
	if r.ExecutionStatus == StatusFailed {
		return false
	}
	r.ExecutionStatus = StatusFailed
	r.LastAlertedAt = at
	r.LastUpdated = at
	r.LastOrigin = OriginMonitor
	r.Version++
	return true
}

// StepAt returns the execution plan entry at a fixed phase slot.
func (r *ExecutionRecord) StepAt(index int) (ExecutionStep, bool) {
	if index < 0 || index >= len(r.ExecutionPlan) {
		return ExecutionStep{}, false
	}
	return r.ExecutionPlan[index], true
}

func (r *ExecutionRecord) ObservedPhaseCount() int { return len(r.ExecutionPlan) }

// Clone returns a deep copy so stores never hand out shared slices.
func (r *ExecutionRecord) Clone() *ExecutionRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.ExecutionPlan = make([]ExecutionStep, len(r.ExecutionPlan))
	copy(c.ExecutionPlan, r.ExecutionPlan)
	c.MasterPlanSnapshot = clonePlanSteps(r.MasterPlanSnapshot)
	if c.MasterPlanSnapshot == nil {
		c.MasterPlanSnapshot = []MasterPlanStep{}
	}
	return &c
}

func (r *ExecutionRecord) hasStep(s ExecutionStep) bool {
	for _, existing := range r.ExecutionPlan {
		if s.StepName == UnknownStep {
			if existing == s {
				return true
			}
			continue
		}
		if existing.StepName == s.StepName {
			return true
		}
	}
	return false
}

// RequiredPhaseCount is the number of steps the shipment must report: the
// captured snapshot when present, else planSteps (the live plan for its class).
func (r *ExecutionRecord) RequiredPhaseCount(planSteps int) int {
	if len(r.MasterPlanSnapshot) > 0 {
		return len(r.MasterPlanSnapshot)
	}
	return planSteps
}

// IsStalled reports whether the record still misses phases and has not
// already been escalated.
func (r *ExecutionRecord) IsStalled(planSteps int) bool {
	return r.ExecutionStatus != StatusFailed && r.ObservedPhaseCount() < r.RequiredPhaseCount(planSteps)
}

// IsUnmonitored reports whether the record has no required phase count at
// all, so liveness cannot be judged for it.
func (r *ExecutionRecord) IsUnmonitored(planSteps int) bool {
	return r.ExecutionStatus != StatusFailed && r.RequiredPhaseCount(planSteps) == 0
}
