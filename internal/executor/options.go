package executor

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/harrison/taskpilot/internal/models"
	"github.com/harrison/taskpilot/internal/registry"
	"github.com/harrison/taskpilot/internal/telemetry"
)

// Logger receives plan and step events from the engine and dispatcher.
// Implementations live in internal/logger.
type Logger interface {
	LogPlanStart(plan *models.Plan, order []string)
	LogStepStart(step *models.Step, position, total int)
	LogStepRetry(step *models.Step, attempt int, err error, delay time.Duration)
	LogStepResult(result models.StepResult)
	LogSummary(trace *models.ExecutionTrace)
}

// CapabilityResolver is the registry surface the dispatcher depends on.
type CapabilityResolver interface {
	Resolve(name string) (*registry.Descriptor, error)
}

// Timeouts are the per-attempt limits for each timeout class.
type Timeouts struct {
	Compute time.Duration
	Network time.Duration
}

// Timeout defaults
const (
	DefaultComputeTimeout = 5 * time.Second
	DefaultNetworkTimeout = 30 * time.Second
)

// DefaultTimeouts returns 5s for compute and 30s for network capabilities.
func DefaultTimeouts() Timeouts {
	return Timeouts{Compute: DefaultComputeTimeout, Network: DefaultNetworkTimeout}
}

// For returns the timeout that applies to d.
func (t Timeouts) For(d *registry.Descriptor) time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	if d.TimeoutClass == registry.ClassCompute {
		if t.Compute > 0 {
			return t.Compute
		}
		return DefaultComputeTimeout
	}
	if t.Network > 0 {
		return t.Network
	}
	return DefaultNetworkTimeout
}

// options are shared by Dispatcher and Engine.
type options struct {
	logger  Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics
	sleep   Sleeper
	now     func() time.Time
	runID   func() string
}

// Option customizes a Dispatcher or Engine.
type Option func(*options)

// WithLogger sets the event logger.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the OpenTelemetry tracer used for plan and step spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSleeper replaces the backoff sleep, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRunID replaces the run id generator.
func WithRunID(gen func() string) Option {
	return func(o *options) { o.runID = gen }
}

func buildOptions(opts []Option) options {
	o := options{
		logger: noopLogger{},
		tracer: telemetry.NoopTracer(),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = noopLogger{}
	}
	return o
}

type noopLogger struct{}

func (noopLogger) LogPlanStart(*models.Plan, []string) {}
func (noopLogger) LogStepStart(*models.Step, int, int) {}
func (noopLogger) LogStepRetry(*models.Step, int, error, time.Duration) {}
func (noopLogger) LogStepResult(models.StepResult) {}
func (noopLogger) LogSummary(*models.ExecutionTrace) {}
