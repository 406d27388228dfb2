package inmem

import (
	"context"
	"errors"
	"fmt"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/ports"
	"slices"
	"sync"
)

// In-memory ExecutionRecordStore. A single mutex makes ApplyPhaseEvent the
// atomic append primitive. OnChange, when set, is called synchronously after
// every mutation with a copy of the new record, outside the lock.
type ExecutionRecordStore struct {
	Plans    *MasterPlanStore
	OnChange func(ctx context.Context, change domain.RecordChange)

	// FailWrites makes every mutation for the listed shipment ids fail. Tests
	// use it to exercise partial batch failures.
	FailWrites map[string]bool

	mu      sync.Mutex
	records map[string]*domain.ExecutionRecord
}

var errInjected = errors.New("injected write failure")

func NewExecutionRecordStore(plans *MasterPlanStore) *ExecutionRecordStore {
	return &ExecutionRecordStore{
		Plans:   plans,
		records: make(map[string]*domain.ExecutionRecord),
	}
}

func (s *ExecutionRecordStore) Get(_ context.Context, shipmentID string) (*domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[shipmentID]
	if !ok {
		return nil, fmt.Errorf("get record %q: %w", shipmentID, domain.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *ExecutionRecordStore) ApplyPhaseEvent(ctx context.Context, u domain.PhaseUpdate) (*domain.ExecutionRecord, bool, error) {
	s.mu.Lock()
	if s.FailWrites[u.ShipmentID] {
		s.mu.Unlock()
		return nil, false, fmt.Errorf("apply phase event %q: %w: %w", u.ShipmentID, domain.ErrStoreWrite, errInjected)
	}

	rec, ok := s.records[u.ShipmentID]
	created := !ok
	if created {
		rec = domain.NewExecutionRecord(u.ShipmentID)
		s.records[u.ShipmentID] = rec
	}
	_, changed := rec.Apply(u)
	out := rec.Clone()
	s.mu.Unlock()

	if !changed {
		return out, false, nil
	}
	kind := domain.ChangeModify
	if created {
		kind = domain.ChangeInsert
	}
	s.notify(ctx, kind, out)
	return out, created, nil
}

func (s *ExecutionRecordStore) ReplaceExecutionPlan(
	ctx context.Context,
	shipmentID string,
	expectedVersion int64,
	steps []domain.ExecutionStep,
	at string,
) error {
	s.mu.Lock()
	if s.FailWrites[shipmentID] {
		s.mu.Unlock()
		return fmt.Errorf("replace execution plan %q: %w: %w", shipmentID, domain.ErrStoreWrite, errInjected)
	}

	rec, ok := s.records[shipmentID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("replace execution plan %q: %w", shipmentID, domain.ErrNotFound)
	}
	if rec.Version != expectedVersion {
		s.mu.Unlock()
		return fmt.Errorf("replace execution plan %q: have version %d, want %d: %w",
			shipmentID, rec.Version, expectedVersion, domain.ErrConflict)
	}
	rec.ReplacePlan(steps, at)
	out := rec.Clone()
	s.mu.Unlock()

	s.notify(ctx, domain.ChangeModify, out)
	return nil
}

func (s *ExecutionRecordStore) ListStalled(_ context.Context, cursor string, limit int) (ports.StalledPage, error) {
	if limit <= 0 {
		return ports.StalledPage{}, errors.New("list stalled: limit must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	page := ports.StalledPage{}
	taken, last := 0, ""
	for _, id := range ids {
		rec := s.records[id]
		planSteps := s.Plans.stepCount(rec.ShipmentClass)
		unmonitored := rec.IsUnmonitored(planSteps)
		if !unmonitored && !rec.IsStalled(planSteps) {
			continue
		}
		if taken == limit {
			page.NextCursor = last
			break
		}
		if unmonitored {
			page.Unmonitored = append(page.Unmonitored, rec.Clone())
		} else {
			page.Records = append(page.Records, rec.Clone())
		}
		taken++
		last = id
	}
	return page, nil
}

func (s *ExecutionRecordStore) MarkFailed(ctx context.Context, shipmentID string, at string) (bool, error) {
	s.mu.Lock()
	if s.FailWrites[shipmentID] {
		s.mu.Unlock()
		return false, fmt.Errorf("mark failed %q: %w: %w", shipmentID, domain.ErrStoreWrite, errInjected)
	}

	rec, ok := s.records[shipmentID]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("mark failed %q: %w", shipmentID, domain.ErrNotFound)
	}
	changed := rec.MarkFailed(at)
	out := rec.Clone()
	s.mu.Unlock()

	if changed {
		s.notify(ctx, domain.ChangeModify, out)
	}
	return changed, nil
}

// Put stores rec as-is, bypassing merge rules. Used to seed fixtures.
func (s *ExecutionRecordStore) Put(rec *domain.ExecutionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ShipmentID] = rec.Clone()
}

func (s *ExecutionRecordStore) notify(ctx context.Context, kind domain.ChangeKind, rec *domain.ExecutionRecord) {
	if s.OnChange == nil {
		return
	}
	s.OnChange(ctx, domain.RecordChange{Kind: kind, Origin: rec.LastOrigin, Record: *rec})
}
