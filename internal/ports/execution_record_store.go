package ports

import (
	"context"
	"parcel-tracking-service/internal/domain"
)

// One page of a liveness scan. NextCursor is empty on the last page.
// Unmonitored holds records whose required phase count cannot be resolved
// (no snapshot and no plan for their class); they share the page window
// with Records.
type StalledPage struct {
	Records     []*domain.ExecutionRecord
	Unmonitored []*domain.ExecutionRecord
	NextCursor  string
}

// Durable per-shipment record of observed steps and current state.
type ExecutionRecordStore interface {
	// Return the full record, or an error wrapping domain.ErrNotFound.
	Get(ctx context.Context, shipmentID string) (*domain.ExecutionRecord, error)

	// Atomically merge a phase update into the record keyed by
	// update.ShipmentID, creating it when absent. Reports whether it was created.
	ApplyPhaseEvent(ctx context.Context, update domain.PhaseUpdate) (*domain.ExecutionRecord, bool, error)

	// Overwrite the execution plan if the record is still at expectedVersion,
	// otherwise fail with domain.ErrConflict.
	ReplaceExecutionPlan(ctx context.Context, shipmentID string, expectedVersion int64, steps []domain.ExecutionStep, at string) error

	// List records that are not FAILED and have fewer observed steps than
	// their required phase count, plus records with no resolvable count,
	// ordered by shipment id, after cursor.
	ListStalled(ctx context.Context, cursor string, limit int) (StalledPage, error)

	// Move the record to FAILED. Reports false when it already was.
	MarkFailed(ctx context.Context, shipmentID string, at string) (bool, error)
}

// Receives every ExecutionRecordStore mutation.
type ChangeHandler interface {
	HandleChange(ctx context.Context, change domain.RecordChange) error
}
