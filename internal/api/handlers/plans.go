package handlers

import (
	"net/http"
	"parcel-tracking-service/internal/api/dto"
	"parcel-tracking-service/internal/plans"
	"parcel-tracking-service/internal/platform/logger"
)

// PlanHandler exposes the loaded plan registry, including steps the phase
// order cannot index.
type PlanHandler struct {
	Config plans.Config
	Log    *logger.Logger
}

func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, r, h.Log, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	res := dto.ListPlanResponse{
		PhaseOrder: make([]string, 0, len(h.Config.PhaseOrder)),
		Plans:      make([]dto.PlanResponse, 0, len(h.Config.Plans)),
		Mismatches: []dto.PlanMismatchResponse{},
	}
	for _, p := range h.Config.PhaseOrder {
		res.PhaseOrder = append(res.PhaseOrder, string(p))
	}
	for _, class := range h.Config.Classes() {
		res.Plans = append(res.Plans, dto.PlanResponse{
			ShipmentClass: string(class),
			Steps:         planStepsResponse(h.Config.Plans[class].Steps),
		})
	}
	for _, m := range h.Config.Validate() {
		res.Mismatches = append(res.Mismatches, dto.PlanMismatchResponse{
			ShipmentClass: string(m.ShipmentClass),
			Step:          m.StepName,
		})
	}

	writeJSON(w, r, h.Log, http.StatusOK, res)
}
