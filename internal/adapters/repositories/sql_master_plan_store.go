package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"parcel-tracking-service/internal/domain"
)

// Postgres-backed implementation of the MasterPlanStore port.
type SQLMasterPlanStore struct{ DB *sql.DB }

func NewSQLMasterPlanStore(db *sql.DB) *SQLMasterPlanStore {
	return &SQLMasterPlanStore{DB: db}
}

func (s *SQLMasterPlanStore) GetPlan(ctx context.Context, class domain.ShipmentClass) (domain.MasterPlan, error) {
	if s.DB == nil {
		return domain.MasterPlan{}, errors.New("master plan store: DB is nil")
	}

	var raw []byte
	err := s.DB.QueryRowContext(ctx, `
	SELECT steps
	FROM master_plans
	WHERE shipment_class = $1;
	`, string(class)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MasterPlan{}, fmt.Errorf("get plan: class %q: %w", class, domain.ErrNotFound)
	}
	if err != nil {
		return domain.MasterPlan{}, fmt.Errorf("get plan: query master_plans class=%q: %w", class, err)
	}

	var steps []domain.MasterPlanStep
	if err := json.Unmarshal(raw, &steps); err != nil {
		return domain.MasterPlan{}, fmt.Errorf("get plan: decode steps class=%q: %w", class, err)
	}

	return domain.MasterPlan{ShipmentClass: class, Steps: steps}, nil
}
