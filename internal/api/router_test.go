package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"parcel-tracking-service/internal/adapters/inmem"
	"parcel-tracking-service/internal/api/dto"
	"parcel-tracking-service/internal/plans"
	"parcel-tracking-service/internal/platform/logger"
	"parcel-tracking-service/internal/services"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const collectionBatch = `{"events": [{
	"detailType": "ParcelEvent-COLLECTION",
	"detail": {"data": {
		"shipmentId": "S-1",
		"shipmentClass": "Standard",
		"currentPhase": "COLLECTION",
		"executionStatus": "IN_PROGRESS",
		"executionPlan": [{"step": "COLLECTION", "location": "1181 CR - Amstelveen", "status": "completed", "timestamp": "2025-02-25T08:00:00Z"}]
	}}
}]}`

type testServer struct {
	handler http.Handler
	bus     *inmem.EventBus
}

func newTestServer(t *testing.T) testServer {
	t.Helper()

	cfg := plans.Default()
	log := logger.Nop()
	planStore := inmem.NewMasterPlanStore(cfg)
	records := inmem.NewExecutionRecordStore(planStore)
	bus := &inmem.EventBus{}
	router := services.NewEventRouter(records, planStore, bus, services.DefaultRouterConfig(), log)

	return testServer{
		handler: NewRouter(router, records, cfg, log),
		bus:     bus,
	}
}

func (s testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))

	rr = s.do(t, http.MethodPost, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	assert.Equal(t, "req-42", rr.Header().Get(requestIDHeader))
}

func TestIngestThenQueryShipment(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/events", collectionBatch)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var ingest dto.IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ingest))
	assert.Equal(t, 1, ingest.Received)
	assert.Equal(t, 1, ingest.Stored)
	assert.Equal(t, 1, ingest.Published)
	assert.Empty(t, ingest.Error)

	rr = s.do(t, http.MethodGet, "/shipments/S-1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var shipment dto.ShipmentResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &shipment))
	assert.Equal(t, "S-1", shipment.ShipmentID)
	assert.Equal(t, "Standard", shipment.ShipmentClass)
	assert.Equal(t, "COLLECTION", shipment.CurrentPhase)
	require.Len(t, shipment.ExecutionPlan, 1)
	assert.Equal(t, "1181 CR - Amstelveen", shipment.ExecutionPlan[0].Location)
	assert.Len(t, shipment.MasterPlanSnapshot, 6)
}

func TestQueryUnknownShipment(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/shipments/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestIngestRejectsUndecodableBody(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/events", `{"events": 42}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodGet, "/events", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, http.MethodPost, rr.Header().Get("Allow"))
}

func TestIngestReportsPublishFailure(t *testing.T) {
	s := newTestServer(t)
	s.bus.Err = errors.New("stream unavailable")

	rr := s.do(t, http.MethodPost, "/events", collectionBatch)
	require.Equal(t, http.StatusBadGateway, rr.Code)

	var ingest dto.IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ingest))
	assert.Equal(t, 1, ingest.Stored)
	assert.Equal(t, 1, ingest.PublishFailures)
	assert.NotEmpty(t, ingest.Error)
}

func TestListPlansReportsMismatches(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/plans", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var res dto.ListPlanResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Len(t, res.PhaseOrder, 6)
	require.Len(t, res.Plans, 2)
	assert.Equal(t, "Priority", res.Plans[0].ShipmentClass)
	assert.Equal(t, []dto.PlanMismatchResponse{{ShipmentClass: "Priority", Step: "FINAL_CUSTOMER"}}, res.Mismatches)
}

func TestIngestRejectsEmptyBatch(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{`[]`, `{"events": []}`, `{"events": "[]"}`} {
		rr := s.do(t, http.MethodPost, "/events", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	assert.Empty(t, s.bus.Batches())
}

func TestIngestAcceptsBatchOfSkippedItems(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/events", `[{"detail": {"data": {"shipmentId": "S-9"}}}]`)
	require.Equal(t, http.StatusOK, rr.Code)

	var ingest dto.IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ingest))
	assert.Equal(t, 1, ingest.Received)
	assert.Equal(t, 1, ingest.Skipped)
	assert.Zero(t, ingest.Stored)
}
