package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/plans"
	"parcel-tracking-service/internal/platform/db"
	"parcel-tracking-service/internal/platform/logger"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to TEST_DATABASE_URL and prepares a clean schema.
// Tests are skipped when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	conn, err := db.Open(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx := context.Background()
	require.NoError(t, InitSchema(ctx, conn, "test_record_changes"))
	_, err = conn.ExecContext(ctx, `TRUNCATE execution_records, master_plans;`)
	require.NoError(t, err)

	_, err = SeedMasterPlans(ctx, conn, plans.Default())
	require.NoError(t, err)

	return conn
}

func testShipmentID(t *testing.T) string {
	return fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
}

func standardUpdate(id string, phase domain.Phase, step domain.ExecutionStep) domain.PhaseUpdate {
	return domain.PhaseUpdate{
		ShipmentID:      id,
		ShipmentClass:   domain.ClassStandard,
		EventType:       "PHASE_UPDATE",
		CurrentPhase:    phase,
		ExecutionStatus: "IN_TRANSIT",
		Steps:           []domain.ExecutionStep{step},
		At:              "2025-02-25T12:00:00Z",
	}
}

func TestSQLExecutionRecordStore_ApplyPhaseEventCreatesThenMerges(t *testing.T) {
	conn := openTestDB(t)
	store := NewSQLExecutionRecordStore(conn, logger.Nop())
	ctx := context.Background()
	id := testShipmentID(t)

	first := domain.ExecutionStep{StepName: "COLLECTION", Location: "Amstelveen", Status: "DONE", Timestamp: "2025-02-25T08:00:00Z"}
	rec, created, err := store.ApplyPhaseEvent(ctx, standardUpdate(id, domain.PhaseCollection, first))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1), rec.Version)

	second := domain.ExecutionStep{StepName: "FIRST_SORTING", Location: "RONKIN_01", Status: "DONE", Timestamp: "2025-02-25T10:00:00Z"}
	rec, created, err = store.ApplyPhaseEvent(ctx, standardUpdate(id, domain.PhaseFirstSorting, second))
	require.NoError(t, err)
	assert.False(t, created)
	require.Len(t, rec.ExecutionPlan, 2)

	// Replaying the same event leaves the plan untouched.
	_, _, err = store.ApplyPhaseEvent(ctx, standardUpdate(id, domain.PhaseFirstSorting, second))
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []domain.ExecutionStep{first, second}, got.ExecutionPlan)
	assert.Equal(t, domain.PhaseFirstSorting, got.CurrentPhase)
	assert.Equal(t, domain.OriginIngest, got.LastOrigin)
}

func TestSQLExecutionRecordStore_ReplaceExecutionPlanChecksVersion(t *testing.T) {
	conn := openTestDB(t)
	store := NewSQLExecutionRecordStore(conn, logger.Nop())
	ctx := context.Background()
	id := testShipmentID(t)

	step := domain.ExecutionStep{StepName: "COLLECTION", Location: "Leiden", Status: "DONE", Timestamp: "2025-02-25T09:00:00Z"}
	rec, _, err := store.ApplyPhaseEvent(ctx, standardUpdate(id, domain.PhaseCollection, step))
	require.NoError(t, err)

	err = store.ReplaceExecutionPlan(ctx, id, rec.Version+1, []domain.ExecutionStep{step}, "2025-02-25T12:01:00Z")
	assert.ErrorIs(t, err, domain.ErrConflict)

	err = store.ReplaceExecutionPlan(ctx, id, rec.Version, []domain.ExecutionStep{{StepName: "COLLECTION"}}, "2025-02-25T12:01:00Z")
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.UnknownLocation, got.ExecutionPlan[0].Location)
	assert.Equal(t, domain.OriginCorrection, got.LastOrigin)
	assert.Equal(t, rec.Version+1, got.Version)

	err = store.ReplaceExecutionPlan(ctx, "missing", 1, nil, "2025-02-25T12:01:00Z")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLExecutionRecordStore_ListStalledAndMarkFailed(t *testing.T) {
	conn := openTestDB(t)
	store := NewSQLExecutionRecordStore(conn, logger.Nop())
	ctx := context.Background()

	step := domain.ExecutionStep{StepName: "COLLECTION", Location: "Amstelveen", Status: "DONE", Timestamp: "2025-02-25T08:00:00Z"}
	for _, id := range []string{"S-1", "S-2", "S-3"} {
		_, _, err := store.ApplyPhaseEvent(ctx, standardUpdate(id, domain.PhaseCollection, step))
		require.NoError(t, err)
	}

	page, err := store.ListStalled(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "S-2", page.NextCursor)

	page, err = store.ListStalled(ctx, page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "S-3", page.Records[0].ShipmentID)
	assert.Empty(t, page.NextCursor)

	changed, err := store.MarkFailed(ctx, "S-1", "2025-02-25T12:05:00Z")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.MarkFailed(ctx, "S-1", "2025-02-25T12:10:00Z")
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := store.Get(ctx, "S-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.ExecutionStatus)
	assert.Equal(t, "2025-02-25T12:05:00Z", got.LastAlertedAt)

	page, err = store.ListStalled(ctx, "", 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(page.Records))
	for _, r := range page.Records {
		ids = append(ids, r.ShipmentID)
	}
	assert.Equal(t, []string{"S-2", "S-3"}, ids)
}

func TestSQLMasterPlanStore_GetPlan(t *testing.T) {
	conn := openTestDB(t)
	store := NewSQLMasterPlanStore(conn)
	ctx := context.Background()

	plan, err := store.GetPlan(ctx, domain.ClassStandard)
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 6)

	_, err = store.GetPlan(ctx, "Unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLExecutionRecordStore_ListStalledReportsUnmonitored(t *testing.T) {
	conn := openTestDB(t)
	store := NewSQLExecutionRecordStore(conn, logger.Nop())
	ctx := context.Background()

	step := domain.ExecutionStep{StepName: "COLLECTION", Location: "Amstelveen"}
	_, _, err := store.ApplyPhaseEvent(ctx, standardUpdate("U-1", domain.PhaseCollection, step))
	require.NoError(t, err)
	unclassified := standardUpdate("U-2", domain.PhaseCollection, step)
	unclassified.ShipmentClass = ""
	_, _, err = store.ApplyPhaseEvent(ctx, unclassified)
	require.NoError(t, err)

	page, err := store.ListStalled(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "U-1", page.Records[0].ShipmentID)
	require.Len(t, page.Unmonitored, 1)
	assert.Equal(t, "U-2", page.Unmonitored[0].ShipmentID)
}

func TestSQLExecutionRecordStore_RedeliveryDoesNotRewind(t *testing.T) {
	conn := openTestDB(t)
	store := NewSQLExecutionRecordStore(conn, logger.Nop())
	ctx := context.Background()
	id := testShipmentID(t)

	collection := standardUpdate(id, domain.PhaseCollection, domain.ExecutionStep{StepName: "COLLECTION"})
	_, _, err := store.ApplyPhaseEvent(ctx, collection)
	require.NoError(t, err)
	rec, _, err := store.ApplyPhaseEvent(ctx, standardUpdate(id, domain.PhaseFirstSorting, domain.ExecutionStep{StepName: "FIRST_SORTING"}))
	require.NoError(t, err)

	_, _, err = store.ApplyPhaseEvent(ctx, collection)
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFirstSorting, got.CurrentPhase)
	assert.Equal(t, rec.Version, got.Version)
}
