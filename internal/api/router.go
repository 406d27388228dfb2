package api

import (
	"net/http"
	"parcel-tracking-service/internal/api/handlers"
	"parcel-tracking-service/internal/plans"
	"parcel-tracking-service/internal/platform/logger"
	"parcel-tracking-service/internal/ports"
)

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// Handlers stay unaware of concrete adapters.
func NewRouter(
	router handlers.BatchRouter,
	records ports.ExecutionRecordStore,
	planConfig plans.Config,
	log *logger.Logger,
) http.Handler {
	mux := http.NewServeMux()

	eventHandler := &handlers.EventHandler{Router: router, Log: log}
	shipmentHandler := &handlers.ShipmentHandler{Records: records, Log: log}
	planHandler := &handlers.PlanHandler{Config: planConfig, Log: log}

	mux.HandleFunc("/health", handlers.Health)
	mux.HandleFunc("/events", eventHandler.Ingest)
	mux.HandleFunc("/shipments/{id}", shipmentHandler.Get)
	mux.HandleFunc("/plans", planHandler.List)

	return requestIDMiddleware(loggingMiddleware(mux, log))
}
