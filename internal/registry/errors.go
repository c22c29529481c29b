package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownCapability is returned when a name has no registered descriptor.
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrInvalidParameters is returned when parameters fail schema validation.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrDuplicateCapability is returned when a name is registered twice.
	ErrDuplicateCapability = errors.New("capability already registered")
	// ErrInvalidDescriptor is returned for descriptors missing a name or action.
	ErrInvalidDescriptor = errors.New("invalid capability descriptor")

	// ErrTransient marks an action failure that may succeed on retry.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks an action failure that will not succeed on retry.
	ErrPermanent = errors.New("permanent failure")
)

// ValidationError describes why a parameter set was rejected.
type ValidationError struct {
	Capability string
	Problems   []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidParameters, e.Capability, strings.Join(e.Problems, "; "))
}

// Unwrap allows errors.Is(err, ErrInvalidParameters).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidParameters
}

// markedError tags an action error with ErrTransient or ErrPermanent while
// keeping the original message and chain.
type markedError struct {
	err    error
	marker error
}

func (e *markedError) Error() string {
	return e.err.Error()
}

func (e *markedError) Unwrap() []error {
	return []error{e.err, e.marker}
}

// MarkTransient tags err so the dispatcher retries it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, marker: ErrTransient}
}

// MarkPermanent tags err so the dispatcher never retries it.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, marker: ErrPermanent}
}

// IsUnknownCapability reports whether err is or wraps ErrUnknownCapability.
func IsUnknownCapability(err error) bool {
	return errors.Is(err, ErrUnknownCapability)
}

// IsInvalidParameters reports whether err is or wraps ErrInvalidParameters.
func IsInvalidParameters(err error) bool {
	return errors.Is(err, ErrInvalidParameters)
}
