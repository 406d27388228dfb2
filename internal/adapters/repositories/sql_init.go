package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"parcel-tracking-service/internal/plans"
)

// DefaultChangeChannel is the NOTIFY channel the execution_records trigger uses.
const DefaultChangeChannel = "execution_record_changes"

// Initialize the Postgres schema, including the change notification trigger.
func InitSchema(ctx context.Context, db *sql.DB, changeChannel string) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}
	if changeChannel == "" {
		changeChannel = DefaultChangeChannel
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createMasterPlansQuery := `
	CREATE TABLE IF NOT EXISTS master_plans (
		shipment_class TEXT PRIMARY KEY,
		steps JSONB NOT NULL
	);
	`

	createExecutionRecordsQuery := `
	CREATE TABLE IF NOT EXISTS execution_records (
		shipment_id TEXT PRIMARY KEY,
		shipment_class TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL DEFAULT '',
		current_phase TEXT NOT NULL DEFAULT '',
		execution_status TEXT NOT NULL DEFAULT '',
		execution_plan JSONB NOT NULL DEFAULT '[]'::jsonb,
		master_plan_snapshot JSONB NOT NULL DEFAULT '[]'::jsonb,
		due_date TEXT NOT NULL DEFAULT '',
		last_updated TEXT NOT NULL DEFAULT '',
		last_alerted_at TEXT NOT NULL DEFAULT '',
		version BIGINT NOT NULL DEFAULT 1,
		last_origin TEXT NOT NULL DEFAULT 'ingest'
	);
	`

	createStatusIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_execution_records_status_id
	ON execution_records(execution_status, shipment_id);
	`

	// The payload carries the version so listeners can drop superseded notifications.
	createNotifyFunctionQuery := fmt.Sprintf(`
	CREATE OR REPLACE FUNCTION notify_execution_record_change() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify(%s, json_build_object(
			'op', TG_OP,
			'shipment_id', NEW.shipment_id,
			'origin', NEW.last_origin,
			'version', NEW.version
		)::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;
	`, quoteLiteral(changeChannel))

	dropTriggerQuery := `
	DROP TRIGGER IF EXISTS execution_records_notify ON execution_records;
	`

	createTriggerQuery := `
	CREATE TRIGGER execution_records_notify
	AFTER INSERT OR UPDATE ON execution_records
	FOR EACH ROW EXECUTE FUNCTION notify_execution_record_change();
	`

	statements := []string{
		createMasterPlansQuery,
		createExecutionRecordsQuery,
		createStatusIndexQuery,
		createNotifyFunctionQuery,
		dropTriggerQuery,
		createTriggerQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

// SeedMasterPlans inserts every configured plan. Existing plans are left
// untouched since plans are immutable once seeded. Returns how many were inserted.
func SeedMasterPlans(ctx context.Context, db *sql.DB, cfg plans.Config) (int, error) {
	if db == nil {
		return 0, errors.New("seed master plans: DB is nil")
	}
	if len(cfg.Plans) == 0 {
		return 0, errors.New("seed master plans: no plans configured")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seed master plans: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO master_plans (shipment_class, steps)
	VALUES ($1, $2::jsonb)
	ON CONFLICT (shipment_class) DO NOTHING;
	`)
	if err != nil {
		return 0, fmt.Errorf("seed master plans: prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, class := range cfg.Classes() {
		steps, err := json.Marshal(cfg.Plans[class].Steps)
		if err != nil {
			return 0, fmt.Errorf("seed master plans: encode class=%s: %w", class, err)
		}

		res, err := stmt.ExecContext(ctx, string(class), string(steps))
		if err != nil {
			return 0, fmt.Errorf("seed master plans: insert class=%s: %w", class, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed master plans: commit tx: %w", err)
	}

	return inserted, nil
}

func quoteLiteral(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(append(out, '\''))
}
