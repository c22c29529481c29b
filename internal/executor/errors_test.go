package executor

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestCycleError verifies CycleError formatting and unwrapping.
func TestCycleError(t *testing.T) {
	err := &CycleError{Cycle: []string{"a", "b", "a"}}

	if got := err.Error(); got != "cyclic dependency: a -> b -> a" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrCyclicDependency) {
		t.Error("CycleError should unwrap to ErrCyclicDependency")
	}

	wrapped := fmt.Errorf("plan rejected: %w", err)
	if !IsCycleError(wrapped) {
		t.Error("IsCycleError should see through wrapping")
	}
	if IsCycleError(ErrCyclicDependency) {
		t.Error("the bare sentinel is not a CycleError")
	}
}

// TestReferenceError verifies ReferenceError formatting and unwrapping.
func TestReferenceError(t *testing.T) {
	err := &ReferenceError{StepID: "report", Missing: "fetch", Source: "parameters"}

	for _, want := range []string{"unknown step reference", "report", `"fetch"`, "parameters"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Error() = %q, missing %q", err.Error(), want)
		}
	}
	if !errors.Is(err, ErrUnknownStepReference) {
		t.Error("ReferenceError should unwrap to ErrUnknownStepReference")
	}
}

// TestResolutionError verifies the wrapped cause stays reachable.
func TestResolutionError(t *testing.T) {
	cause := fmt.Errorf("%w: key %q", ErrFieldNotFound, "temp")
	err := &ResolutionError{StepID: "report", Parameter: "values", Reference: "weather.output.temp", Err: cause}

	if got := err.Error(); got != `step report: parameter "values": reference weather.output.temp: field not found: key "temp"` {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrFieldNotFound) {
		t.Error("ResolutionError should unwrap to its cause")
	}
	if errors.Is(err, ErrMissingDependencyOutput) {
		t.Error("unexpected match on ErrMissingDependencyOutput")
	}

	var re *ResolutionError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &re) || re.Parameter != "values" {
		t.Error("errors.As should recover the ResolutionError")
	}
}

// TestIsFatal verifies which errors abort a plan.
func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"cycle", &CycleError{Cycle: []string{"a", "a"}}, true},
		{"unknown reference", &ReferenceError{StepID: "a", Missing: "b", Source: "depends_on"}, true},
		{"duplicate id", fmt.Errorf("%w: %q", ErrDuplicateStepID, "a"), true},
		{"missing output", &ResolutionError{Err: ErrMissingDependencyOutput}, false},
		{"field not found", ErrFieldNotFound, false},
		{"already recorded", ErrAlreadyRecorded, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
