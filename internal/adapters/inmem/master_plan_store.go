package inmem

import (
	"context"
	"fmt"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/plans"
	"sync"
)

// In-memory MasterPlanStore seeded once from a plan configuration.
type MasterPlanStore struct {
	mu    sync.RWMutex
	plans map[domain.ShipmentClass]domain.MasterPlan
}

func NewMasterPlanStore(cfg plans.Config) *MasterPlanStore {
	s := &MasterPlanStore{plans: make(map[domain.ShipmentClass]domain.MasterPlan, len(cfg.Plans))}
	for class, p := range cfg.Plans {
		steps := make([]domain.MasterPlanStep, len(p.Steps))
		copy(steps, p.Steps)
		s.plans[class] = domain.MasterPlan{ShipmentClass: class, Steps: steps}
	}
	return s
}

func (s *MasterPlanStore) GetPlan(_ context.Context, class domain.ShipmentClass) (domain.MasterPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[class]
	if !ok {
		return domain.MasterPlan{}, fmt.Errorf("get plan: class %q: %w", class, domain.ErrNotFound)
	}

	steps := make([]domain.MasterPlanStep, len(p.Steps))
	copy(steps, p.Steps)
	return domain.MasterPlan{ShipmentClass: p.ShipmentClass, Steps: steps}, nil
}

// stepCount is used by the record store to resolve required phase counts.
func (s *MasterPlanStore) stepCount(class domain.ShipmentClass) int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.plans[class].Steps)
}
