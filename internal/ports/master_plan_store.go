package ports

import (
	"context"
	"parcel-tracking-service/internal/domain"
)

// Durable keyed lookup of reference plans. Plans are immutable after seeding,
// so the contract has no update operation.
type MasterPlanStore interface {
	// Return the plan for class, or an error wrapping domain.ErrNotFound.
	GetPlan(ctx context.Context, class domain.ShipmentClass) (domain.MasterPlan, error)
}
