package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/harrison/taskpilot/internal/models"
	"github.com/harrison/taskpilot/internal/registry"
	"github.com/harrison/taskpilot/internal/telemetry"
)

// Dispatcher invokes one step's capability with timeout and retry handling.
// It never records results; the caller does.
type Dispatcher struct {
	resolver CapabilityResolver
	policy   RetryPolicy
	timeouts Timeouts
	opts     options
}

// NewDispatcher creates a Dispatcher. Zero fields in policy and timeouts take defaults.
func NewDispatcher(resolver CapabilityResolver, policy RetryPolicy, timeouts Timeouts, opts ...Option) *Dispatcher {
	return &Dispatcher{
		resolver: resolver,
		policy:   policy.normalized(),
		timeouts: timeouts,
		opts:     buildOptions(opts),
	}
}

// Dispatch runs step with already-resolved params and returns its result.
// Unknown capabilities and schema violations fail after one attempt without
// invoking anything. Transient action failures are retried with backoff up
// to the policy's attempt budget; once ctx is done no further attempt starts.
func (d *Dispatcher) Dispatch(ctx context.Context, step *models.Step, params map[string]any) models.StepResult {
	start := d.opts.now()
	result := models.StepResult{
		StepID:     step.ID,
		Capability: step.Capability,
	}
	finish := func(status models.StepStatus, attempts int, kind string, err error) models.StepResult {
		result.Status = status
		result.Attempts = attempts
		result.ErrorKind = kind
		if err != nil {
			result.Error = err.Error()
		}
		result.Elapsed = d.opts.now().Sub(start)
		return result
	}

	desc, err := d.resolver.Resolve(step.Capability)
	if err != nil {
		return finish(models.StepFailed, 1, KindUnknownCapability, err)
	}

	validated, err := desc.Validate(params)
	if err != nil {
		return finish(models.StepFailed, 1, KindInvalidParameters, err)
	}

	timeout := d.timeouts.For(desc)
	for attempt := 1; ; attempt++ {
		output, err := d.attempt(ctx, step, desc, validated, timeout, attempt)
		if err == nil {
			result.Output = output
			return finish(models.StepSuccess, attempt, "", nil)
		}

		class := Classify(err)
		if class == Permanent {
			return finish(models.StepFailed, attempt, KindPermanent, err)
		}
		if attempt >= d.policy.MaxAttempts {
			return finish(models.StepFailed, attempt, KindTransient, err)
		}
		if ctx.Err() != nil {
			return finish(models.StepFailed, attempt, KindTransient,
				fmt.Errorf("%w (retry abandoned: %v)", err, context.Cause(ctx)))
		}

		delay := d.policy.Delay(attempt)
		d.opts.logger.LogStepRetry(step, attempt, err, delay)
		d.opts.metrics.RecordRetry(ctx, step.Capability)
		if sleepErr := d.opts.sleep(ctx, delay); sleepErr != nil {
			return finish(models.StepFailed, attempt, KindTransient,
				fmt.Errorf("%w (retry abandoned: %v)", err, sleepErr))
		}
	}
}

// attempt performs a single invocation bounded by timeout. The attempt runs
// on a context detached from ctx cancellation, so plan cancellation never
// interrupts an in-flight call; only the attempt timeout does.
func (d *Dispatcher) attempt(ctx context.Context, step *models.Step, desc *registry.Descriptor, params map[string]any, timeout time.Duration, n int) (any, error) {
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	attemptCtx, span := telemetry.StartSpan(attemptCtx, d.opts.tracer, "step.attempt",
		telemetry.AttrStepID.String(step.ID),
		telemetry.AttrCapability.String(desc.Name),
		telemetry.AttrAttempt.Int(n),
	)
	defer span.End()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: registry.MarkPermanent(fmt.Errorf("capability %s panicked: %v", desc.Name, r))}
			}
		}()
		v, err := desc.Action.Invoke(attemptCtx, cloneParams(params))
		done <- outcome{value: v, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-attemptCtx.Done():
		out = outcome{err: attemptCtx.Err()}
	}

	if out.err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		out.err = &AttemptTimeoutError{Capability: desc.Name, Timeout: timeout, Err: out.err}
	}
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
		return nil, out.err
	}

	normalized, err := normalizeOutput(out.value)
	if err != nil {
		err = registry.MarkPermanent(fmt.Errorf("capability %s returned a non-JSON payload: %w", desc.Name, err))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return normalized, nil
}

// AttemptTimeoutError reports an attempt cut off by its per-attempt timeout.
// It is always classified as transient.
type AttemptTimeoutError struct {
	Capability string
	Timeout    time.Duration
	Err        error
}

// Error implements the error interface for AttemptTimeoutError.
func (e *AttemptTimeoutError) Error() string {
	return fmt.Sprintf("capability %s timed out after %s: %v", e.Capability, e.Timeout, e.Err)
}

// Unwrap exposes both the cause and context.DeadlineExceeded.
func (e *AttemptTimeoutError) Unwrap() []error {
	return []error{e.Err, context.DeadlineExceeded}
}

// normalizeOutput round-trips the payload through JSON so recorded outputs
// only contain maps, slices, strings, float64, bool and nil.
func normalizeOutput(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = deepCopy(v)
	}
	return out
}
