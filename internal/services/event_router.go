package services

import (
	"context"
	"errors"
	"fmt"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/platform/logger"
	"parcel-tracking-service/internal/platform/obs"
	"parcel-tracking-service/internal/ports"
	"slices"
	"time"

	"github.com/google/uuid"
)

const DefaultEventSource = "event.management"

type RouterConfig struct {
	// Source tags every republished entry.
	Source string
	// InitialDetailType creates the record; PhaseDetailTypes extend it.
	// Any other detail type is republished but not stored.
	InitialDetailType string
	PhaseDetailTypes  []string
	// DefaultClass applies when a shipment declares no class. Empty means
	// no master plan snapshot is captured for such shipments.
	DefaultClass domain.ShipmentClass
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Source:            DefaultEventSource,
		InitialDetailType: "ParcelEvent-COLLECTION",
		PhaseDetailTypes: []string{
			"ParcelEvent-FIRST-SORTING",
			"ParcelEvent-CROSS-DOCKING",
			"ParcelEvent-SECOND-SORTING",
			"ParcelEvent-DISTRIBUTION",
			"ParcelEvent-FINAL-CONSUMER",
		},
	}
}

// RouteResult summarizes one batch invocation.
type RouteResult struct {
	Received        int `json:"received"`
	Accepted        int `json:"accepted"`
	Skipped         int `json:"skipped"`
	Stored          int `json:"stored"`
	StoreFailures   int `json:"store_failures"`
	Published       int `json:"published"`
	PublishFailures int `json:"publish_failures"`
}

// EventRouter ingests phase event batches, merges each event into the
// execution record store and republishes every accepted event.
type EventRouter struct {
	Records ports.ExecutionRecordStore
	Plans   ports.MasterPlanStore
	Bus     ports.EventBus
	Config  RouterConfig

	Now   func() time.Time
	NewID func() string

	log *logger.Logger
}

func NewEventRouter(
	records ports.ExecutionRecordStore,
	plans ports.MasterPlanStore,
	bus ports.EventBus,
	cfg RouterConfig,
	log *logger.Logger,
) *EventRouter {
	if cfg.Source == "" {
		cfg.Source = DefaultEventSource
	}
	return &EventRouter{
		Records: records,
		Plans:   plans,
		Bus:     bus,
		Config:  cfg,
		Now:     time.Now,
		NewID:   uuid.NewString,
		log:     log.With("service", "EventRouter"),
	}
}

// Route processes events in order. A failure on one event never stops the
// rest of the batch and never rolls back events already applied.
//
// The returned error is non-nil when any store write or the republish call
// failed; the result still describes everything that happened. Callers that
// redeliver the batch rely on the store merge being replay-idempotent.
func (r *EventRouter) Route(ctx context.Context, events []domain.PhaseEvent) (res RouteResult, err error) {
	defer obs.Time(ctx, r.log, "router.Route")(&err)

	res.Received = len(events)
	outbound := make([]domain.OutboundEvent, 0, len(events))
	var storeErrs []error

	for i, ev := range events {
		if verr := ev.Validate(); verr != nil {
			res.Skipped++
			r.log.Warn("skipping invalid event", "index", i, "detail_type", ev.DetailType, "error", verr)
			continue
		}
		res.Accepted++

		if r.isStored(ev.DetailType) {
			if serr := r.store(ctx, ev); serr != nil {
				res.StoreFailures++
				storeErrs = append(storeErrs, serr)
				r.log.Error("store phase event failed",
					"index", i,
					"shipment_id", ev.Detail.Data.ShipmentID,
					"detail_type", ev.DetailType,
					"error", serr,
				)
			} else {
				res.Stored++
			}
		}

		outbound = append(outbound, domain.OutboundEvent{
			ID:      r.NewID(),
			Source:  r.Config.Source,
			Type:    ev.DetailType,
			Payload: ev.Raw,
		})
	}

	if len(outbound) == 0 {
		r.log.Warn("no valid events to republish", "received", res.Received)
		return res, errors.Join(storeErrs...)
	}

	failed, perr := r.Bus.PublishBatch(ctx, outbound)
	res.PublishFailures = failed
	res.Published = len(outbound) - failed
	if perr != nil {
		r.log.Error("republish batch failed", "entries", len(outbound), "error", perr)
		storeErrs = append(storeErrs, perr)
	} else if failed > 0 {
		r.log.Warn("republish batch partially failed", "entries", len(outbound), "failed", failed)
		storeErrs = append(storeErrs, fmt.Errorf("%w: %d of %d entries rejected", domain.ErrChannelPublish, failed, len(outbound)))
	}

	r.log.Info("batch routed",
		"received", res.Received,
		"accepted", res.Accepted,
		"stored", res.Stored,
		"store_failures", res.StoreFailures,
		"published", res.Published,
	)
	return res, errors.Join(storeErrs...)
}

func (r *EventRouter) isStored(detailType string) bool {
	return detailType == r.Config.InitialDetailType || slices.Contains(r.Config.PhaseDetailTypes, detailType)
}

func (r *EventRouter) store(ctx context.Context, ev domain.PhaseEvent) error {
	data := ev.Detail.Data
	class, declared := data.DeclaredClass()
	if !declared {
		class = r.Config.DefaultClass
	}

	update := domain.PhaseUpdate{
		ShipmentID:      data.ShipmentID,
		ShipmentClass:   class,
		EventType:       ev.DetailType,
		CurrentPhase:    domain.Phase(data.CurrentPhase),
		ExecutionStatus: data.ExecutionStatus,
		Steps:           data.ExecutionPlan,
		MasterPlan:      data.MasterPlan,
		DueDate:         data.DueDate,
		At:              r.Now().UTC().Format(time.RFC3339),
	}

	if len(update.MasterPlan) == 0 {
		update.MasterPlan = r.snapshotFor(ctx, data.ShipmentID, class)
	}

	_, created, err := r.Records.ApplyPhaseEvent(ctx, update)
	if err != nil {
		return fmt.Errorf("route event %q: %w", data.ShipmentID, err)
	}
	if created && ev.DetailType != r.Config.InitialDetailType {
		r.log.Warn("record created by a non-initial phase event",
			"shipment_id", data.ShipmentID,
			"detail_type", ev.DetailType,
		)
	}
	return nil
}

// snapshotFor fetches the plan used as master plan snapshot when the producer
// sent none. The store keeps it only if the record has no snapshot yet.
func (r *EventRouter) snapshotFor(ctx context.Context, shipmentID string, class domain.ShipmentClass) []domain.MasterPlanStep {
	if class == "" {
		return nil
	}
	plan, err := r.Plans.GetPlan(ctx, class)
	if err != nil {
		r.log.Warn("no master plan for snapshot",
			"shipment_id", shipmentID,
			"class", class,
			"error", err,
		)
		return nil
	}
	return plan.Steps
}
