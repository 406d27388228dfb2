package handlers

import (
	"context"
	"io"
	"net/http"
	"parcel-tracking-service/internal/api/dto"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/platform/logger"
	"parcel-tracking-service/internal/services"
)

const maxBatchBytes = 4 << 20

// BatchRouter is the ingest entry point the handler drives.
type BatchRouter interface {
	Route(ctx context.Context, events []domain.PhaseEvent) (services.RouteResult, error)
}

// EventHandler accepts phase event batches from producers.
type EventHandler struct {
	Router BatchRouter
	Log    *logger.Logger
}

// Ingest decodes a batch and routes it. Invalid items are skipped, not
// rejected; only an undecodable body or an empty batch is a client error. Store or publish
// failures return 502 with the summary so the producer can redeliver.
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, r, h.Log, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBatchBytes+1))
	if err != nil {
		writeError(w, r, h.Log, http.StatusBadRequest, "could not read body")
		return
	}
	if len(body) > maxBatchBytes {
		writeError(w, r, h.Log, http.StatusRequestEntityTooLarge, "batch too large")
		return
	}

	events, err := domain.DecodeBatch(body)
	if err != nil {
		writeError(w, r, h.Log, http.StatusBadRequest, "invalid event batch")
		return
	}
	// A batch whose items are all invalid is still routed (and skipped);
	// only a batch with no items at all is rejected.
	if len(events) == 0 {
		writeError(w, r, h.Log, http.StatusBadRequest, "expected a non-empty events array")
		return
	}

	res, err := h.Router.Route(r.Context(), events)
	out := dto.IngestResponse{
		Received:        res.Received,
		Accepted:        res.Accepted,
		Skipped:         res.Skipped,
		Stored:          res.Stored,
		StoreFailures:   res.StoreFailures,
		Published:       res.Published,
		PublishFailures: res.PublishFailures,
	}
	if err != nil {
		h.Log.Error("route batch failed", "error", err)
		out.Error = "batch partially failed"
		writeJSON(w, r, h.Log, http.StatusBadGateway, out)
		return
	}

	writeJSON(w, r, h.Log, http.StatusOK, out)
}
