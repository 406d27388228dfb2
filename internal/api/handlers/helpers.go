package handlers

import (
	"encoding/json"
	"net/http"
	"parcel-tracking-service/internal/api/dto"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/platform/logger"
)

func writeJSON(w http.ResponseWriter, r *http.Request, log *logger.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && log != nil {
		log.Warn("encode failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, status int, msg string) {
	writeJSON(w, r, log, status, map[string]string{"error": msg})
}

func planStepsResponse(steps []domain.MasterPlanStep) []dto.PlanStepResponse {
	out := make([]dto.PlanStepResponse, 0, len(steps))
	for _, s := range steps {
		out = append(out, dto.PlanStepResponse{
			Step:             s.StepName,
			ExpectedLocation: s.ExpectedLocation,
			ExpectedTime:     s.ExpectedTime,
		})
	}
	return out
}
