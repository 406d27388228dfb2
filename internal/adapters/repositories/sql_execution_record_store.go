package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/platform/logger"
	"parcel-tracking-service/internal/platform/obs"
	"parcel-tracking-service/internal/ports"
)

const recordColumns = `
	r.shipment_id,
	r.shipment_class,
	r.event_type,
	r.current_phase,
	r.execution_status,
	r.execution_plan,
	r.master_plan_snapshot,
	r.due_date,
	r.last_updated,
	r.last_alerted_at,
	r.version,
	r.last_origin`

// Postgres-backed implementation of the ExecutionRecordStore port.
//
// ApplyPhaseEvent holds a row lock for the whole read-merge-write, which makes
// it the atomic append primitive. Every write fires the NOTIFY trigger
// installed by InitSchema.
type SQLExecutionRecordStore struct {
	DB  *sql.DB
	Log *logger.Logger
}

func NewSQLExecutionRecordStore(db *sql.DB, log *logger.Logger) *SQLExecutionRecordStore {
	return &SQLExecutionRecordStore{DB: db, Log: log.With("store", "execution_records")}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans recordColumns followed by any extra selected columns.
func scanRecord(row rowScanner, extra ...any) (*domain.ExecutionRecord, error) {
	var (
		rec      domain.ExecutionRecord
		class    string
		phase    string
		origin   string
		plan     []byte
		snapshot []byte
	)
	dest := []any{
		&rec.ShipmentID,
		&class,
		&rec.EventType,
		&phase,
		&rec.ExecutionStatus,
		&plan,
		&snapshot,
		&rec.DueDate,
		&rec.LastUpdated,
		&rec.LastAlertedAt,
		&rec.Version,
		&origin,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	rec.ShipmentClass = domain.ShipmentClass(class)
	rec.CurrentPhase = domain.Phase(phase)
	rec.LastOrigin = domain.MutationOrigin(origin)

	if err := json.Unmarshal(plan, &rec.ExecutionPlan); err != nil {
		return nil, fmt.Errorf("decode execution_plan: %w", err)
	}
	if err := json.Unmarshal(snapshot, &rec.MasterPlanSnapshot); err != nil {
		return nil, fmt.Errorf("decode master_plan_snapshot: %w", err)
	}
	if rec.ExecutionPlan == nil {
		rec.ExecutionPlan = []domain.ExecutionStep{}
	}
	if rec.MasterPlanSnapshot == nil {
		rec.MasterPlanSnapshot = []domain.MasterPlanStep{}
	}

	return &rec, nil
}

func (s *SQLExecutionRecordStore) Get(ctx context.Context, shipmentID string) (*domain.ExecutionRecord, error) {
	if s.DB == nil {
		return nil, errors.New("execution record store: DB is nil")
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+recordColumns+`
	FROM execution_records r
	WHERE r.shipment_id = $1;
	`, shipmentID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get record %q: %w", shipmentID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record %q: %w", shipmentID, err)
	}
	return rec, nil
}

func (s *SQLExecutionRecordStore) ApplyPhaseEvent(
	ctx context.Context,
	u domain.PhaseUpdate,
) (_ *domain.ExecutionRecord, _ bool, err error) {
	defer obs.Time(ctx, s.Log, "records.ApplyPhaseEvent")(&err)

	if s.DB == nil {
		return nil, false, errors.New("execution record store: DB is nil")
	}
	if u.ShipmentID == "" {
		return nil, false, fmt.Errorf("apply phase event: %w: empty shipment id", domain.ErrValidation)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("apply phase event %q: %w: begin tx: %w", u.ShipmentID, domain.ErrStoreWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := lockRecord(ctx, tx, u.ShipmentID)
	created := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec = domain.NewExecutionRecord(u.ShipmentID)
		rec.Apply(u)
		created, err = insertRecord(ctx, tx, rec)
		if err != nil {
			return nil, false, fmt.Errorf("apply phase event %q: %w: %w", u.ShipmentID, domain.ErrStoreWrite, err)
		}
		if !created {
			// A concurrent writer inserted first; merge into its row instead.
			if rec, err = lockRecord(ctx, tx, u.ShipmentID); err != nil {
				return nil, false, fmt.Errorf("apply phase event %q: %w: relock: %w", u.ShipmentID, domain.ErrStoreWrite, err)
			}
			if _, changed := rec.Apply(u); changed {
				if err := updateRecord(ctx, tx, rec); err != nil {
					return nil, false, fmt.Errorf("apply phase event %q: %w: %w", u.ShipmentID, domain.ErrStoreWrite, err)
				}
			}
		}
	case err != nil:
		return nil, false, fmt.Errorf("apply phase event %q: %w: lock: %w", u.ShipmentID, domain.ErrStoreWrite, err)
	default:
		if _, changed := rec.Apply(u); !changed {
			// Nothing to write, so no change notification either.
			return rec, false, nil
		}
		if err := updateRecord(ctx, tx, rec); err != nil {
			return nil, false, fmt.Errorf("apply phase event %q: %w: %w", u.ShipmentID, domain.ErrStoreWrite, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("apply phase event %q: %w: commit: %w", u.ShipmentID, domain.ErrStoreWrite, err)
	}

	return rec, created, nil
}

func lockRecord(ctx context.Context, tx *sql.Tx, shipmentID string) (*domain.ExecutionRecord, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+recordColumns+`
	FROM execution_records r
	WHERE r.shipment_id = $1
	FOR UPDATE;
	`, shipmentID)
	return scanRecord(row)
}

func encodeLists(rec *domain.ExecutionRecord) (string, string, error) {
	plan, err := json.Marshal(rec.ExecutionPlan)
	if err != nil {
		return "", "", fmt.Errorf("encode execution_plan: %w", err)
	}
	snapshot, err := json.Marshal(rec.MasterPlanSnapshot)
	if err != nil {
		return "", "", fmt.Errorf("encode master_plan_snapshot: %w", err)
	}
	return string(plan), string(snapshot), nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec *domain.ExecutionRecord) (bool, error) {
	plan, snapshot, err := encodeLists(rec)
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
	INSERT INTO execution_records (
		shipment_id,
		shipment_class,
		event_type,
		current_phase,
		execution_status,
		execution_plan,
		master_plan_snapshot,
		due_date,
		last_updated,
		version,
		last_origin
	)
	VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10, $11)
	ON CONFLICT (shipment_id) DO NOTHING;
	`,
		rec.ShipmentID,
		string(rec.ShipmentClass),
		rec.EventType,
		string(rec.CurrentPhase),
		rec.ExecutionStatus,
		plan,
		snapshot,
		rec.DueDate,
		rec.LastUpdated,
		rec.Version,
		string(rec.LastOrigin),
	)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert record: rows affected: %w", err)
	}
	return n == 1, nil
}

func updateRecord(ctx context.Context, tx *sql.Tx, rec *domain.ExecutionRecord) error {
	plan, snapshot, err := encodeLists(rec)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE execution_records
	SET shipment_class = $2,
		event_type = $3,
		current_phase = $4,
		execution_status = $5,
		execution_plan = $6::jsonb,
		master_plan_snapshot = $7::jsonb,
		due_date = $8,
		last_updated = $9,
		version = $10,
		last_origin = $11
	WHERE shipment_id = $1;
	`,
		rec.ShipmentID,
		string(rec.ShipmentClass),
		rec.EventType,
		string(rec.CurrentPhase),
		rec.ExecutionStatus,
		plan,
		snapshot,
		rec.DueDate,
		rec.LastUpdated,
		rec.Version,
		string(rec.LastOrigin),
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

func (s *SQLExecutionRecordStore) ReplaceExecutionPlan(
	ctx context.Context,
	shipmentID string,
	expectedVersion int64,
	steps []domain.ExecutionStep,
	at string,
) (err error) {
	defer obs.Time(ctx, s.Log, "records.ReplaceExecutionPlan")(&err)

	if s.DB == nil {
		return errors.New("execution record store: DB is nil")
	}

	plan, err := json.Marshal(domain.NormalizePlan(steps))
	if err != nil {
		return fmt.Errorf("replace execution plan %q: encode: %w", shipmentID, err)
	}

	res, err := s.DB.ExecContext(ctx, `
	UPDATE execution_records
	SET execution_plan = $3::jsonb,
		last_updated = $4,
		last_origin = $5,
		version = version + 1
	WHERE shipment_id = $1
		AND version = $2;
	`, shipmentID, expectedVersion, string(plan), at, string(domain.OriginCorrection))
	if err != nil {
		return fmt.Errorf("replace execution plan %q: %w", shipmentID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace execution plan %q: rows affected: %w", shipmentID, err)
	}
	if n == 1 {
		return nil
	}

	exists, err := s.exists(ctx, shipmentID)
	if err != nil {
		return fmt.Errorf("replace execution plan %q: %w", shipmentID, err)
	}
	if !exists {
		return fmt.Errorf("replace execution plan %q: %w", shipmentID, domain.ErrNotFound)
	}
	return fmt.Errorf("replace execution plan %q at version %d: %w", shipmentID, expectedVersion, domain.ErrConflict)
}

// ListStalled selects records whose observed step count is below the snapshot
// length, or below the class plan length when no snapshot was captured.
// Records where neither exists have a required count of zero and are
// returned as unmonitored.
func (s *SQLExecutionRecordStore) ListStalled(ctx context.Context, cursor string, limit int) (ports.StalledPage, error) {
	if s.DB == nil {
		return ports.StalledPage{}, errors.New("execution record store: DB is nil")
	}
	if limit <= 0 {
		return ports.StalledPage{}, errors.New("list stalled: limit must be positive")
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+recordColumns+`, r.required
	FROM (
		SELECT e.*,
			CASE
				WHEN jsonb_array_length(e.master_plan_snapshot) > 0 THEN jsonb_array_length(e.master_plan_snapshot)
				ELSE COALESCE(jsonb_array_length(m.steps), 0)
			END AS required
		FROM execution_records e
		LEFT JOIN master_plans m ON m.shipment_class = e.shipment_class
		WHERE e.shipment_id > $1
			AND e.execution_status <> $2
	) r
	WHERE r.required = 0
		OR jsonb_array_length(r.execution_plan) < r.required
	ORDER BY r.shipment_id
	LIMIT $3;
	`, cursor, domain.StatusFailed, limit+1)
	if err != nil {
		return ports.StalledPage{}, fmt.Errorf("list stalled: query execution_records: %w", err)
	}
	defer rows.Close()

	page := ports.StalledPage{Records: make([]*domain.ExecutionRecord, 0, limit)}
	taken, last := 0, ""
	for rows.Next() {
		var required int
		rec, err := scanRecord(rows, &required)
		if err != nil {
			return ports.StalledPage{}, fmt.Errorf("list stalled: scan row: %w", err)
		}
		if taken == limit {
			page.NextCursor = last
			break
		}
		if required == 0 {
			page.Unmonitored = append(page.Unmonitored, rec)
		} else {
			page.Records = append(page.Records, rec)
		}
		taken++
		last = rec.ShipmentID
	}
	if err := rows.Err(); err != nil {
		return ports.StalledPage{}, fmt.Errorf("list stalled: row iteration: %w", err)
	}

	return page, nil
}

func (s *SQLExecutionRecordStore) MarkFailed(ctx context.Context, shipmentID string, at string) (bool, error) {
	if s.DB == nil {
		return false, errors.New("execution record store: DB is nil")
	}

	res, err := s.DB.ExecContext(ctx, `
	UPDATE execution_records
	SET execution_status = $2,
		last_alerted_at = $3,
		last_updated = $3,
		last_origin = $4,
		version = version + 1
	WHERE shipment_id = $1
		AND execution_status <> $2;
	`, shipmentID, domain.StatusFailed, at, string(domain.OriginMonitor))
	if err != nil {
		return false, fmt.Errorf("mark failed %q: %w: %w", shipmentID, domain.ErrStoreWrite, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark failed %q: rows affected: %w", shipmentID, err)
	}
	if n == 1 {
		return true, nil
	}

	exists, err := s.exists(ctx, shipmentID)
	if err != nil {
		return false, fmt.Errorf("mark failed %q: %w", shipmentID, err)
	}
	if !exists {
		return false, fmt.Errorf("mark failed %q: %w", shipmentID, domain.ErrNotFound)
	}
	return false, nil
}

func (s *SQLExecutionRecordStore) exists(ctx context.Context, shipmentID string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM execution_records WHERE shipment_id = $1;`, shipmentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check record exists: %w", err)
	}
	return true, nil
}
