package dto

type PlanStepResponse struct {
	Step             string `json:"step"`
	ExpectedLocation string `json:"expectedLocation"`
	ExpectedTime     string `json:"expectedTime"`
}

type PlanResponse struct {
	ShipmentClass string             `json:"shipmentClass"`
	Steps         []PlanStepResponse `json:"steps"`
}

type PlanMismatchResponse struct {
	ShipmentClass string `json:"shipmentClass"`
	Step          string `json:"step"`
}

type ListPlanResponse struct {
	PhaseOrder []string               `json:"phaseOrder"`
	Plans      []PlanResponse         `json:"plans"`
	Mismatches []PlanMismatchResponse `json:"mismatches"`
}
