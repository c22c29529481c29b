// Package executor orders and runs plan steps and assembles the execution trace.
//
// The engine runs steps strictly one at a time in dependency order. A
// failing non-optional step causes its dependents to be skipped; failures
// never abort the plan. Only graph errors (duplicate ids, unknown
// references, cycles) abort a run before any step executes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/harrison/taskpilot/internal/models"
	"github.com/harrison/taskpilot/internal/telemetry"
)

// ErrPlanCancelled is the cause recorded on steps skipped after cancellation.
var ErrPlanCancelled = errors.New("plan cancelled")

// Config holds the tunables injected into an Engine at construction.
type Config struct {
	Retry       RetryPolicy
	Timeouts    Timeouts
	PlanTimeout time.Duration // Zero means no plan-level limit
}

// DefaultConfig returns the default retry policy and timeouts with no plan timeout.
func DefaultConfig() Config {
	return Config{
		Retry:    DefaultRetryPolicy(),
		Timeouts: DefaultTimeouts(),
	}
}

// Engine executes plans against a capability registry.
// One Engine may run many plans; each Execute call owns its own state.
type Engine struct {
	dispatcher  *Dispatcher
	planTimeout time.Duration
	opts        options
}

// NewEngine creates an Engine.
func NewEngine(resolver CapabilityResolver, cfg Config, opts ...Option) *Engine {
	o := buildOptions(opts)
	if o.runID == nil {
		o.runID = func() string { return uuid.New().String() }
	}
	return &Engine{
		dispatcher:  NewDispatcher(resolver, cfg.Retry, cfg.Timeouts, opts...),
		planTimeout: cfg.PlanTimeout,
		opts:        o,
	}
}

// Execute runs plan and returns its trace. A non-nil error is returned only
// for fatal graph errors, together with an aborted trace holding no steps.
// Cancellation of ctx, or the plan timeout, is honoured between steps: the
// remaining steps are recorded as skipped.
func (e *Engine) Execute(ctx context.Context, plan *models.Plan) (*models.ExecutionTrace, error) {
	start := e.opts.now()
	trace := &models.ExecutionTrace{
		RunID:     e.opts.runID(),
		Goal:      plan.Goal,
		StartedAt: start,
		Steps:     []models.StepResult{},
	}

	ctx, span := telemetry.StartSpan(ctx, e.opts.tracer, "plan.execute",
		telemetry.AttrRunID.String(trace.RunID),
		telemetry.AttrStepCount.Int(len(plan.Steps)),
	)
	defer span.End()

	graph, err := BuildDependencyGraph(plan)
	var order []string
	if err == nil {
		order, err = graph.Order()
	}
	if err != nil {
		trace.PlanStatus = models.PlanAborted
		trace.Elapsed = e.opts.now().Sub(start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.opts.logger.LogSummary(trace)
		e.opts.metrics.RecordPlan(ctx, trace)
		return trace, err
	}

	if e.planTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, e.planTimeout,
			fmt.Errorf("plan timeout of %s exceeded", e.planTimeout))
		defer cancel()
	}

	e.opts.logger.LogPlanStart(plan, order)

	ec := NewExecutionContext()
	for i, id := range order {
		step := graph.Steps[id]

		var result models.StepResult
		if ctx.Err() != nil {
			trace.Cancelled = true
			result = cancelledResult(step, context.Cause(ctx))
		} else if blockers := failedDependencies(graph, step, ec); len(blockers) > 0 {
			result = skippedResult(step, blockers)
		} else {
			e.opts.logger.LogStepStart(step, i+1, len(order))
			result = e.runStep(ctx, step, ec)
		}

		if err := ec.Record(result); err != nil {
			return nil, err
		}
		trace.Steps = append(trace.Steps, result)
		e.opts.logger.LogStepResult(result)
		e.opts.metrics.RecordStep(ctx, result)
	}

	trace.PlanStatus = planStatus(plan, ec)
	trace.Elapsed = e.opts.now().Sub(start)
	span.SetAttributes(telemetry.AttrStatus.String(string(trace.PlanStatus)))
	if trace.PlanStatus != models.PlanCompleted {
		span.SetStatus(codes.Error, string(trace.PlanStatus))
	}

	e.opts.logger.LogSummary(trace)
	e.opts.metrics.RecordPlan(ctx, trace)
	return trace, nil
}

// runStep resolves parameters and dispatches. Skipped steps never get here.
func (e *Engine) runStep(ctx context.Context, step *models.Step, ec *ExecutionContext) models.StepResult {
	ctx, span := telemetry.StartSpan(ctx, e.opts.tracer, "step.execute",
		telemetry.AttrStepID.String(step.ID),
		telemetry.AttrCapability.String(step.Capability),
	)
	defer span.End()

	start := e.opts.now()
	params, err := ResolveParameters(step, ec)
	if err != nil {
		kind := KindMissingDependencyOutput
		if errors.Is(err, ErrFieldNotFound) {
			kind = KindFieldNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.StepResult{
			StepID:     step.ID,
			Capability: step.Capability,
			Status:     models.StepFailed,
			Error:      err.Error(),
			ErrorKind:  kind,
			Elapsed:    e.opts.now().Sub(start),
		}
	}

	result := e.dispatcher.Dispatch(ctx, step, params)
	span.SetAttributes(telemetry.AttrStatus.String(string(result.Status)))
	if result.Status == models.StepFailed {
		span.SetStatus(codes.Error, result.Error)
	}
	return result
}

// failedDependencies returns the non-optional dependencies of step that did
// not succeed. A skipped dependency counts: that is how a failure reaches
// indirect dependents. Failures of optional dependencies never block.
func failedDependencies(graph *DependencyGraph, step *models.Step, ec *ExecutionContext) []string {
	var blockers []string
	for _, dep := range graph.Deps[step.ID] {
		if graph.Steps[dep].Optional {
			continue
		}
		r, ok := ec.Get(dep)
		if !ok {
			continue
		}
		if r.Status == models.StepFailed || r.Status == models.StepSkipped {
			blockers = append(blockers, dep)
		}
	}
	return blockers
}

func skippedResult(step *models.Step, blockers []string) models.StepResult {
	return models.StepResult{
		StepID:         step.ID,
		Capability:     step.Capability,
		Status:         models.StepSkipped,
		Error:          fmt.Sprintf("upstream dependency failed: %v", blockers),
		ErrorKind:      KindDependencyFailed,
		SkippedBecause: blockers,
	}
}

func cancelledResult(step *models.Step, cause error) models.StepResult {
	msg := ErrPlanCancelled.Error()
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return models.StepResult{
		StepID:     step.ID,
		Capability: step.Capability,
		Status:     models.StepSkipped,
		Error:      msg,
		ErrorKind:  KindCancelled,
	}
}

// planStatus is completed iff every non-optional step succeeded.
func planStatus(plan *models.Plan, ec *ExecutionContext) models.PlanStatus {
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.Optional {
			continue
		}
		r, ok := ec.Get(step.ID)
		if !ok || r.Status != models.StepSuccess {
			return models.PlanCompletedWithErrors
		}
	}
	return models.PlanCompleted
}
