// Package scenarioflow runs the create → apply → compute sequence shared by the
// wizards, deleting a scenario it created when a later step fails.
package scenarioflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"whatif-planner/internal/logger"
	"whatif-planner/internal/model"
	"whatif-planner/internal/query"
	"whatif-planner/internal/telemetry"
)

const rollbackTimeout = 10 * time.Second

// API is the slice of the backend client the flow needs.
type API interface {
	CreateScenario(ctx context.Context, in model.ScenarioInput) (model.Scenario, error)
	ComputeProjection(ctx context.Context, id string) (model.ComputeResponse, error)
	DeleteScenario(ctx context.Context, id string) error
}

type Mode string

const (
	ModeCreate Mode = "create"
	ModeAppend Mode = "append"
)

type Phase string

const (
	PhaseCreate  Phase = "create scenario"
	PhaseApply   Phase = "apply template"
	PhaseCompute Phase = "compute projection"
)

type Outcome string

const (
	Succeeded       Outcome = "succeeded"
	FailedAtCreate  Outcome = "failed_at_create"
	FailedAtApply   Outcome = "failed_at_apply"
	FailedAtCompute Outcome = "failed_at_compute"
)

// Target is the scenario a run writes into. It is either Created (this run
// made it and owns cleanup) or Appended (it already existed and is never
// deleted).
type Target interface {
	ScenarioID() string
	Kind() string
	compensate(ctx context.Context, api API, log *zap.Logger) bool
}

type Created struct{ ID string }

func (t Created) ScenarioID() string { return t.ID }
func (t Created) Kind() string       { return string(ModeCreate) }

func (t Created) compensate(ctx context.Context, api API, log *zap.Logger) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := api.DeleteScenario(ctx, t.ID); err != nil {
		telemetry.RecordRollback(false)
		log.Error("rollback delete failed", zap.String("scenario_id", t.ID), zap.Error(err))
		return false
	}
	telemetry.RecordRollback(true)
	log.Info("rolled back scenario", zap.String("scenario_id", t.ID))
	return true
}

type Appended struct{ ID string }

func (t Appended) ScenarioID() string { return t.ID }
func (t Appended) Kind() string       { return string(ModeAppend) }

func (Appended) compensate(context.Context, API, *zap.Logger) bool { return false }

// ApplyResult is what the populate step reports back.
type ApplyResult struct {
	ScenarioName   string
	ChangesApplied *int
}

type Plan struct {
	Mode        Mode
	Name        string // new scenario name, or the selected scenario's name when appending
	Description string
	StartDate   string // YYYY-MM-DD; today when blank
	ScenarioID  string // append target

	// LocalChanges is the fallback count when the backend does not report one.
	LocalChanges int

	Apply func(ctx context.Context, scenarioID string) (ApplyResult, error)
}

type Report struct {
	Target     Target
	Outcome    Outcome
	Result     model.WizardResult
	RolledBack bool
}

// FlowError names the phase that failed and wraps its cause.
type FlowError struct {
	Phase      Phase
	ScenarioID string
	RolledBack bool
	Err        error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *FlowError) Unwrap() error { return e.Err }

type Runner struct {
	API   API
	Cache query.Invalidator
	Log   *zap.Logger
	Now   func() time.Time
}

// Run executes plan. Each step starts only after the previous one succeeded.
func (r *Runner) Run(ctx context.Context, plan Plan) (Report, error) {
	log := logger.OrNop(r.Log)
	if plan.Apply == nil {
		return Report{}, errors.New("scenario flow has no apply step")
	}

	target, err := r.target(ctx, plan)
	if err != nil {
		telemetry.RecordFlow(string(plan.Mode), string(FailedAtCreate))
		log.Warn("scenario flow failed", zap.String("phase", string(PhaseCreate)), zap.Error(err))
		return Report{Outcome: FailedAtCreate}, &FlowError{Phase: PhaseCreate, Err: err}
	}
	log = log.With(zap.String("scenario_id", target.ScenarioID()), zap.String("target", target.Kind()))

	applied, err := plan.Apply(ctx, target.ScenarioID())
	if err != nil {
		return r.fail(ctx, log, target, PhaseApply, FailedAtApply, err)
	}

	if _, err := r.API.ComputeProjection(ctx, target.ScenarioID()); err != nil {
		return r.fail(ctx, log, target, PhaseCompute, FailedAtCompute, err)
	}

	result := model.WizardResult{
		ScenarioID:     target.ScenarioID(),
		ScenarioName:   plan.Name,
		ChangesApplied: plan.LocalChanges,
	}
	if applied.ScenarioName != "" {
		result.ScenarioName = applied.ScenarioName
	}
	if applied.ChangesApplied != nil {
		result.ChangesApplied = *applied.ChangesApplied
	}

	if r.Cache != nil {
		if err := r.Cache.Invalidate(ctx, query.KeyScenarios); err != nil {
			log.Warn("scenario cache invalidation failed", zap.Error(err))
		}
	}

	telemetry.RecordFlow(target.Kind(), string(Succeeded))
	log.Info("scenario flow succeeded", zap.Int("changes_applied", result.ChangesApplied))
	return Report{Target: target, Outcome: Succeeded, Result: result}, nil
}

func (r *Runner) target(ctx context.Context, plan Plan) (Target, error) {
	switch plan.Mode {
	case ModeAppend:
		if plan.ScenarioID == "" {
			return nil, errors.New("no scenario selected to append to")
		}
		return Appended{ID: plan.ScenarioID}, nil
	case ModeCreate, "":
		start := plan.StartDate
		if start == "" {
			start = r.now().Format(time.DateOnly)
		}
		s, err := r.API.CreateScenario(ctx, model.ScenarioInput{
			Name:        plan.Name,
			Description: plan.Description,
			StartDate:   start,
		})
		if err != nil {
			return nil, err
		}
		if s.ID == "" {
			return nil, errors.New("create scenario returned no id")
		}
		return Created{ID: s.ID}, nil
	default:
		return nil, fmt.Errorf("unknown scenario mode %q", plan.Mode)
	}
}

func (r *Runner) fail(ctx context.Context, log *zap.Logger, target Target, phase Phase, outcome Outcome, cause error) (Report, error) {
	log.Warn("scenario flow failed", zap.String("phase", string(phase)), zap.Error(cause))
	rolledBack := target.compensate(ctx, r.API, log)
	telemetry.RecordFlow(target.Kind(), string(outcome))
	return Report{Target: target, Outcome: outcome, RolledBack: rolledBack}, &FlowError{
		Phase:      phase,
		ScenarioID: target.ScenarioID(),
		RolledBack: rolledBack,
		Err:        cause,
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
