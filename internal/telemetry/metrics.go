package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/harrison/taskpilot/internal/models"
)

// Metrics holds the instruments recorded during plan runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	StepDuration metric.Float64Histogram
	StepAttempts metric.Int64Counter
	StepRetries  metric.Int64Counter
	StepOutcomes metric.Int64Counter
	PlanDuration metric.Float64Histogram
	PlanRuns     metric.Int64Counter
}

// NewMetrics creates all instruments from meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.StepDuration, err = meter.Float64Histogram("taskpilot.step.duration",
		metric.WithDescription("Step duration including retries, in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.StepAttempts, err = meter.Int64Counter("taskpilot.step.attempts",
		metric.WithDescription("Capability invocations, including retries"),
	)
	if err != nil {
		return nil, err
	}

	m.StepRetries, err = meter.Int64Counter("taskpilot.step.retries",
		metric.WithDescription("Retries scheduled after transient failures"),
	)
	if err != nil {
		return nil, err
	}

	m.StepOutcomes, err = meter.Int64Counter("taskpilot.step.outcomes",
		metric.WithDescription("Steps by terminal status"),
	)
	if err != nil {
		return nil, err
	}

	m.PlanDuration, err = meter.Float64Histogram("taskpilot.plan.duration",
		metric.WithDescription("Plan run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.PlanRuns, err = meter.Int64Counter("taskpilot.plan.runs",
		metric.WithDescription("Plan runs by final status"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordStep records the terminal result of one step.
func (m *Metrics) RecordStep(ctx context.Context, r models.StepResult) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		AttrCapability.String(r.Capability),
		AttrStatus.String(string(r.Status)),
	)
	m.StepDuration.Record(ctx, r.Elapsed.Seconds(), attrs)
	m.StepOutcomes.Add(ctx, 1, attrs)
	if r.Attempts > 0 {
		m.StepAttempts.Add(ctx, int64(r.Attempts), metric.WithAttributes(AttrCapability.String(r.Capability)))
	}
}

// RecordRetry counts one scheduled retry.
func (m *Metrics) RecordRetry(ctx context.Context, capability string) {
	if m == nil {
		return
	}
	m.StepRetries.Add(ctx, 1, metric.WithAttributes(AttrCapability.String(capability)))
}

// RecordPlan records the outcome of a finished run.
func (m *Metrics) RecordPlan(ctx context.Context, t *models.ExecutionTrace) {
	if m == nil || t == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("taskpilot.plan.status", string(t.PlanStatus)))
	m.PlanDuration.Record(ctx, t.Elapsed.Seconds(), attrs)
	m.PlanRuns.Add(ctx, 1, attrs)
}
