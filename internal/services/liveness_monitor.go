package services

import (
	"context"
	"errors"
	"fmt"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/platform/logger"
	"parcel-tracking-service/internal/platform/obs"
	"parcel-tracking-service/internal/ports"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"
)

const (
	DefaultSweepSchedule = "@every 5m"
	DefaultSweepPageSize = 100

	RecoveryReasonMissingEvents = "Missing events"
)

// SweepResult summarizes one liveness sweep.
type SweepResult struct {
	Pages    int
	Matched  int
	Alerted  int
	Enqueued int
	Failed   int
	Errors   int
	// Shipments with no snapshot and no plan for their class. They cannot
	// be judged, so they are reported on every sweep instead of escalated.
	Unmonitored int
}

// LivenessMonitor flags shipments that reported fewer phases than their plan
// requires: it alerts, enqueues a recovery message and marks them FAILED.
//
// Only records that are not FAILED yet are scanned, so a shipment is escalated
// once. A crash between the alert and the FAILED write means the next sweep
// alerts again; consumers of the alert channel must tolerate duplicates.
type LivenessMonitor struct {
	Records  ports.ExecutionRecordStore
	Alerts   ports.AlertPublisher
	Recovery ports.RecoveryQueue
	PageSize int
	Now      func() time.Time

	log     *logger.Logger
	running atomic.Bool
}

func NewLivenessMonitor(
	records ports.ExecutionRecordStore,
	alerts ports.AlertPublisher,
	recovery ports.RecoveryQueue,
	pageSize int,
	log *logger.Logger,
) *LivenessMonitor {
	if pageSize <= 0 {
		pageSize = DefaultSweepPageSize
	}
	return &LivenessMonitor{
		Records:  records,
		Alerts:   alerts,
		Recovery: recovery,
		PageSize: pageSize,
		Now:      time.Now,
		log:      log.With("service", "LivenessMonitor"),
	}
}

func AlertMessage(shipmentID string) string {
	return fmt.Sprintf("Missing events for shipmentId %s.", shipmentID)
}

// Sweep scans every page of stalled records and escalates each one. The three
// escalation steps run in sequence and independently: a failing step is
// logged and counted and does not stop the others.
func (m *LivenessMonitor) Sweep(ctx context.Context) (res SweepResult, err error) {
	defer obs.Time(ctx, m.log, "monitor.Sweep")(&err)

	var errs []error
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := m.Records.ListStalled(ctx, cursor, m.PageSize)
		if err != nil {
			return res, fmt.Errorf("liveness sweep: list stalled after %q: %w", cursor, err)
		}
		res.Pages++

		for _, rec := range page.Records {
			res.Matched++
			errs = append(errs, m.escalate(ctx, rec, &res)...)
		}
		for _, rec := range page.Unmonitored {
			res.Unmonitored++
			m.log.Warn("shipment has no required phase count, liveness unknown",
				"shipment_id", rec.ShipmentID,
				"class", rec.ShipmentClass,
				"observed", rec.ObservedPhaseCount(),
			)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if res.Matched == 0 && res.Unmonitored == 0 {
		m.log.Info("all execution plans are complete")
	} else {
		m.log.Info("liveness sweep done",
			"matched", res.Matched,
			"alerted", res.Alerted,
			"enqueued", res.Enqueued,
			"failed", res.Failed,
			"errors", res.Errors,
			"unmonitored", res.Unmonitored,
		)
	}
	return res, errors.Join(errs...)
}

func (m *LivenessMonitor) escalate(ctx context.Context, rec *domain.ExecutionRecord, res *SweepResult) []error {
	id := rec.ShipmentID
	log := m.log.With("shipment_id", id)
	log.Warn("missing events",
		"observed", rec.ObservedPhaseCount(),
		"snapshot_steps", len(rec.MasterPlanSnapshot),
	)

	var errs []error

	if err := m.Alerts.PublishAlert(ctx, AlertMessage(id)); err != nil {
		res.Errors++
		errs = append(errs, fmt.Errorf("alert %q: %w", id, err))
		log.Error("publish alert failed", "error", err)
	} else {
		res.Alerted++
	}

	msg := domain.RecoveryMessage{ShipmentID: id, Reason: RecoveryReasonMissingEvents}
	if err := m.Recovery.Enqueue(ctx, msg); err != nil {
		res.Errors++
		errs = append(errs, fmt.Errorf("enqueue recovery %q: %w", id, err))
		log.Error("enqueue recovery failed", "error", err)
	} else {
		res.Enqueued++
	}

	changed, err := m.Records.MarkFailed(ctx, id, m.Now().UTC().Format(time.RFC3339))
	switch {
	case err != nil:
		res.Errors++
		errs = append(errs, fmt.Errorf("mark failed %q: %w", id, err))
		log.Error("mark failed failed", "error", err)
	case changed:
		res.Failed++
		log.Info("shipment marked as FAILED")
	default:
		log.Debug("shipment was already FAILED")
	}

	return errs
}

// Schedule registers the sweep on c. Overlapping runs are skipped rather than
// queued.
func (m *LivenessMonitor) Schedule(ctx context.Context, c *cron.Cron, spec string) error {
	if spec == "" {
		spec = DefaultSweepSchedule
	}
	return c.AddFunc(spec, func() {
		m.RunOnce(ctx)
	})
}

// RunOnce runs a sweep unless one is already in progress. Reports whether it ran.
func (m *LivenessMonitor) RunOnce(ctx context.Context) bool {
	if !m.running.CompareAndSwap(false, true) {
		m.log.Warn("previous sweep still running, skipping")
		return false
	}
	defer m.running.Store(false)

	if _, err := m.Sweep(ctx); err != nil {
		m.log.Error("liveness sweep finished with errors", "error", err)
	}
	return true
}
