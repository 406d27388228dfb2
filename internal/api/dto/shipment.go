package dto

type ExecutionStepResponse struct {
	Step      string `json:"step"`
	Location  string `json:"location"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type ShipmentResponse struct {
	ShipmentID         string                  `json:"shipmentId"`
	ShipmentClass      string                  `json:"shipmentClass,omitempty"`
	EventType          string                  `json:"eventType"`
	CurrentPhase       string                  `json:"currentPhase"`
	ExecutionStatus    string                  `json:"executionStatus"`
	ExecutionPlan      []ExecutionStepResponse `json:"executionPlan"`
	MasterPlanSnapshot []PlanStepResponse      `json:"masterPlanSnapshot"`
	DueDate            string                  `json:"dueDate"`
	LastUpdated        string                  `json:"lastUpdated"`
	LastAlertedAt      string                  `json:"lastAlertedAt,omitempty"`
	Version            int64                   `json:"version"`
}

type IngestResponse struct {
	Received        int    `json:"received"`
	Accepted        int    `json:"accepted"`
	Skipped         int    `json:"skipped"`
	Stored          int    `json:"stored"`
	StoreFailures   int    `json:"store_failures"`
	Published       int    `json:"published"`
	PublishFailures int    `json:"publish_failures"`
	Error           string `json:"error,omitempty"`
}
