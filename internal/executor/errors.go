package executor

import (
	"errors"
	"fmt"
	"strings"
)

// Plan-level (fatal) errors. Any of these aborts the run before a step executes.
var (
	ErrCyclicDependency     = errors.New("cyclic dependency")
	ErrUnknownStepReference = errors.New("unknown step reference")
	ErrDuplicateStepID      = errors.New("duplicate step id")
)

// Step-level errors raised while resolving parameters.
var (
	ErrMissingDependencyOutput = errors.New("missing dependency output")
	ErrFieldNotFound           = errors.New("field not found")
)

// ErrAlreadyRecorded is returned when a step result is recorded twice.
var ErrAlreadyRecorded = errors.New("step result already recorded")

// Error kinds written to StepResult.ErrorKind.
const (
	KindUnknownCapability       = "unknown_capability"
	KindInvalidParameters       = "invalid_parameters"
	KindMissingDependencyOutput = "missing_dependency_output"
	KindFieldNotFound           = "field_not_found"
	KindTransient               = "transient"
	KindPermanent               = "permanent"
	KindDependencyFailed        = "dependency_failed"
	KindCancelled               = "cancelled"
)

// CycleError names the steps forming a dependency cycle. The first step is
// repeated at the end, e.g. [a b a].
type CycleError struct {
	Cycle []string
}

// Error implements the error interface for CycleError.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(e.Cycle, " -> "))
}

// Unwrap allows errors.Is(err, ErrCyclicDependency).
func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// ReferenceError reports a dependency on a step id that is not in the plan.
type ReferenceError struct {
	StepID  string // Step that declares the dependency
	Missing string // Id that does not exist
	Source  string // "depends_on" or "parameters"
}

// Error implements the error interface for ReferenceError.
func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s: step %s references %q in %s", ErrUnknownStepReference, e.StepID, e.Missing, e.Source)
}

// Unwrap allows errors.Is(err, ErrUnknownStepReference).
func (e *ReferenceError) Unwrap() error {
	return ErrUnknownStepReference
}

// ResolutionError reports a parameter reference that could not be resolved.
type ResolutionError struct {
	StepID    string // Step whose parameters were being resolved
	Parameter string // Top-level parameter containing the reference
	Reference string // Reference in document form
	Err       error  // ErrMissingDependencyOutput or ErrFieldNotFound, possibly wrapped
}

// Error implements the error interface for ResolutionError.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("step %s: parameter %q: reference %s: %v", e.StepID, e.Parameter, e.Reference, e.Err)
}

// Unwrap returns the underlying error for error wrapping support.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err aborts a whole plan.
func IsFatal(err error) bool {
	return errors.Is(err, ErrCyclicDependency) ||
		errors.Is(err, ErrUnknownStepReference) ||
		errors.Is(err, ErrDuplicateStepID)
}

// IsCycleError reports whether err is or wraps a CycleError.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}
