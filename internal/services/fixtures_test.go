package services

import (
	"context"
	"parcel-tracking-service/internal/adapters/inmem"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/plans"
	"parcel-tracking-service/internal/platform/logger"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 2, 25, 12, 0, 0, 0, time.UTC)

type harness struct {
	plans    *inmem.MasterPlanStore
	records  *inmem.ExecutionRecordStore
	bus      *inmem.EventBus
	alerts   *inmem.AlertPublisher
	recovery *inmem.RecoveryQueue

	router     *EventRouter
	reconciler *Reconciler
	listener   *ChangeListener
	monitor    *LivenessMonitor
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := plans.Default()
	log := logger.Nop()

	h := &harness{
		plans:    inmem.NewMasterPlanStore(cfg),
		bus:      &inmem.EventBus{},
		alerts:   &inmem.AlertPublisher{},
		recovery: &inmem.RecoveryQueue{},
	}
	h.records = inmem.NewExecutionRecordStore(h.plans)

	h.router = NewEventRouter(h.records, h.plans, h.bus, DefaultRouterConfig(), log)
	h.router.Now = func() time.Time { return fixedNow }
	ids := 0
	h.router.NewID = func() string {
		ids++
		return "evt-" + strconv.Itoa(ids)
	}

	h.reconciler = NewReconciler(h.records, h.plans, cfg, "", log)
	h.reconciler.Now = func() time.Time { return fixedNow }
	h.listener = NewChangeListener(h.reconciler, log)

	h.monitor = NewLivenessMonitor(h.records, h.alerts, h.recovery, 2, log)
	h.monitor.Now = func() time.Time { return fixedNow }

	return h
}

// wireListener makes every store mutation run through the change listener,
// the way the change feed does in production.
func (h *harness) wireListener(t *testing.T) *[]domain.RecordChange {
	t.Helper()
	var seen []domain.RecordChange
	h.records.OnChange = func(ctx context.Context, c domain.RecordChange) {
		seen = append(seen, c)
		require.NoError(t, h.listener.HandleChange(ctx, c))
	}
	return &seen
}

func decode(t *testing.T, body string) []domain.PhaseEvent {
	t.Helper()
	events, err := domain.DecodeBatch([]byte(body))
	require.NoError(t, err)
	return events
}

func standardRecord(id string, phase domain.Phase, steps ...domain.ExecutionStep) *domain.ExecutionRecord {
	rec := domain.NewExecutionRecord(id)
	rec.ShipmentClass = domain.ClassStandard
	rec.CurrentPhase = phase
	rec.ExecutionStatus = "IN_PROGRESS"
	rec.ExecutionPlan = steps
	rec.Version = 1
	return rec
}

var collectionStep = domain.ExecutionStep{
	StepName:  "COLLECTION",
	Location:  "1181 CR - Amstelveen",
	Status:    "completed",
	Timestamp: "2025-02-25T08:00:00Z",
}
