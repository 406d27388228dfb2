package services

import (
	"context"
	"errors"
	"fmt"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/plans"
	"parcel-tracking-service/internal/platform/logger"
	"parcel-tracking-service/internal/platform/obs"
	"parcel-tracking-service/internal/ports"
	"time"
)

// Outcome describes one reconciliation pass over a record.
type Outcome struct {
	ShipmentID string
	Phase      domain.Phase
	Index      int
	Observed   domain.ExecutionStep
	Expected   domain.MasterPlanStep
	Verdict    domain.Verdict

	// Skip is set when no verdict could be computed. It wraps
	// domain.ErrUpstreamLookup or domain.ErrValidation.
	Skip error
	// Corrected is true when the corrective rewrite was written.
	Corrected bool
	// Conflict is true when the rewrite lost a race with a newer mutation.
	Conflict bool
}

// Reconciler compares the observed step for a record's current phase with the
// master plan step of the same name and rewrites the plan on deviation.
type Reconciler struct {
	Records      ports.ExecutionRecordStore
	Plans        ports.MasterPlanStore
	PhaseConfig  plans.Config
	DefaultClass domain.ShipmentClass
	Now          func() time.Time

	log *logger.Logger
}

func NewReconciler(
	records ports.ExecutionRecordStore,
	masterPlans ports.MasterPlanStore,
	phaseConfig plans.Config,
	defaultClass domain.ShipmentClass,
	log *logger.Logger,
) *Reconciler {
	return &Reconciler{
		Records:      records,
		Plans:        masterPlans,
		PhaseConfig:  phaseConfig,
		DefaultClass: defaultClass,
		Now:          time.Now,
		log:          log.With("service", "ReconciliationEngine"),
	}
}

// Reconcile computes the verdict for rec's current phase.
//
// Lookup problems are reported through Outcome.Skip with a nil error. A
// non-nil error means a store read or write failed and the mutation should
// be redelivered.
func (r *Reconciler) Reconcile(ctx context.Context, rec domain.ExecutionRecord) (out Outcome, err error) {
	defer obs.Time(ctx, r.log, "reconciler.Reconcile")(&err)

	out = Outcome{ShipmentID: rec.ShipmentID, Phase: rec.CurrentPhase, Index: -1}
	log := r.log.With("shipment_id", rec.ShipmentID, "phase", rec.CurrentPhase)

	if rec.ShipmentID == "" || len(rec.ExecutionPlan) == 0 {
		out.Skip = fmt.Errorf("%w: record has no shipment id or execution plan", domain.ErrValidation)
		log.Warn("skipping reconciliation", "reason", out.Skip)
		return out, nil
	}

	out.Index = r.PhaseConfig.PhaseIndex(rec.CurrentPhase)
	if out.Index == -1 {
		out.Skip = fmt.Errorf("%w: phase %q is not in the phase order", domain.ErrUpstreamLookup, rec.CurrentPhase)
		log.Warn("skipping reconciliation", "reason", out.Skip)
		return out, nil
	}

	// The slot for the current phase, not the most recently appended step.
	observed, ok := rec.StepAt(out.Index)
	if !ok {
		log.Warn("no observed step in phase slot", "index", out.Index, "plan_len", len(rec.ExecutionPlan))
	}
	out.Observed = domain.NormalizeStep(observed)

	class := rec.ShipmentClass
	if class == "" {
		class = r.DefaultClass
	}
	if class == "" {
		out.Skip = fmt.Errorf("%w: shipment declares no class and no default class is configured", domain.ErrUpstreamLookup)
		log.Warn("skipping reconciliation", "reason", out.Skip)
		return out, nil
	}

	plan, err := r.Plans.GetPlan(ctx, class)
	if errors.Is(err, domain.ErrNotFound) {
		out.Skip = fmt.Errorf("%w: %w", domain.ErrUpstreamLookup, err)
		log.Error("master plan not found", "class", class)
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("reconcile %q: get plan %q: %w", rec.ShipmentID, class, err)
	}

	expected, ok := plan.StepFor(rec.CurrentPhase)
	if !ok {
		out.Skip = fmt.Errorf("%w: plan %q has no step %q", domain.ErrUpstreamLookup, class, rec.CurrentPhase)
		log.Warn("skipping reconciliation", "reason", out.Skip)
		return out, nil
	}
	out.Expected = expected

	out.Verdict = domain.Evaluate(out.Observed, expected)
	if out.Verdict == domain.VerdictOnSchedule {
		log.Info("step on schedule",
			"step", out.Observed.StepName,
			"location", out.Observed.Location,
			"timestamp", out.Observed.Timestamp,
		)
		return out, nil
	}

	log.Warn("deviation detected",
		"step", out.Observed.StepName,
		"location", out.Observed.Location,
		"expected_location", expected.ExpectedLocation,
		"timestamp", out.Observed.Timestamp,
		"expected_time", expected.ExpectedTime,
	)

	if err := r.correct(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			out.Conflict = true
			log.Warn("corrective rewrite lost a race, newer mutation will be reconciled", "error", err)
			return out, nil
		}
		return out, err
	}
	out.Corrected = true
	return out, nil
}

// correct rewrites the stored plan with every step normalized. Values are not
// changed; the rewrite only guarantees required fields are present.
func (r *Reconciler) correct(ctx context.Context, rec domain.ExecutionRecord) error {
	fixed := domain.NormalizePlan(rec.ExecutionPlan)
	at := r.Now().UTC().Format(time.RFC3339)

	if err := r.Records.ReplaceExecutionPlan(ctx, rec.ShipmentID, rec.Version, fixed, at); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return err
		}
		return fmt.Errorf("reconcile %q: corrective rewrite: %w: %w", rec.ShipmentID, domain.ErrStoreWrite, err)
	}
	return nil
}

// ChangeListener runs the reconciler for every store mutation except the
// reconciler's own corrective rewrites.
type ChangeListener struct {
	Engine *Reconciler

	log *logger.Logger
}

func NewChangeListener(engine *Reconciler, log *logger.Logger) *ChangeListener {
	return &ChangeListener{Engine: engine, log: log.With("service", "ChangeListener")}
}

func (l *ChangeListener) HandleChange(ctx context.Context, change domain.RecordChange) error {
	if change.Origin == domain.OriginCorrection {
		l.log.Debug("ignoring corrective rewrite", "shipment_id", change.Record.ShipmentID)
		return nil
	}

	out, err := l.Engine.Reconcile(ctx, change.Record)
	if err != nil {
		l.log.Error("reconciliation failed",
			"shipment_id", change.Record.ShipmentID,
			"change", change.Kind,
			"error", err,
		)
		return err
	}

	l.log.Debug("change reconciled",
		"shipment_id", out.ShipmentID,
		"change", change.Kind,
		"verdict", out.Verdict,
		"corrected", out.Corrected,
	)
	return nil
}
