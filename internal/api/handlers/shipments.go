package handlers

import (
	"errors"
	"net/http"
	"parcel-tracking-service/internal/api/dto"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/platform/logger"
	"parcel-tracking-service/internal/ports"
	"strings"
)

// ShipmentHandler exposes read-only execution record retrieval.
type ShipmentHandler struct {
	Records ports.ExecutionRecordStore
	Log     *logger.Logger
}

func (h *ShipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, r, h.Log, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, h.Log, http.StatusBadRequest, "shipment id is required")
		return
	}

	rec, err := h.Records.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, r, h.Log, http.StatusNotFound, "shipment not found")
		return
	}
	if err != nil {
		h.Log.Error("get shipment failed", "shipment_id", id, "error", err)
		writeError(w, r, h.Log, http.StatusInternalServerError, "internal server error")
		return
	}

	res := dto.ShipmentResponse{
		ShipmentID:         rec.ShipmentID,
		ShipmentClass:      string(rec.ShipmentClass),
		EventType:          rec.EventType,
		CurrentPhase:       string(rec.CurrentPhase),
		ExecutionStatus:    rec.ExecutionStatus,
		ExecutionPlan:      make([]dto.ExecutionStepResponse, 0, len(rec.ExecutionPlan)),
		MasterPlanSnapshot: planStepsResponse(rec.MasterPlanSnapshot),
		DueDate:            rec.DueDate,
		LastUpdated:        rec.LastUpdated,
		LastAlertedAt:      rec.LastAlertedAt,
		Version:            rec.Version,
	}
	for _, s := range rec.ExecutionPlan {
		res.ExecutionPlan = append(res.ExecutionPlan, dto.ExecutionStepResponse{
			Step:      s.StepName,
			Location:  s.Location,
			Status:    s.Status,
			Timestamp: s.Timestamp,
		})
	}

	writeJSON(w, r, h.Log, http.StatusOK, res)
}
