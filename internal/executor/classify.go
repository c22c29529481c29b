package executor

import (
	"context"
	"errors"
	"net"
	"regexp"

	"github.com/harrison/taskpilot/internal/registry"
)

// FailureClass decides whether a failed attempt is retried.
type FailureClass int

const (
	// Permanent failures are never retried.
	Permanent FailureClass = iota
	// Transient failures are retried until the attempt budget runs out.
	Transient
)

// String returns the string representation of FailureClass.
func (c FailureClass) String() string {
	if c == Transient {
		return "transient"
	}
	return "permanent"
}

// statusCoder is implemented by errors carrying an HTTP status code.
type statusCoder interface {
	HTTPStatus() int
}

// transientMessage matches error text that signals a temporary condition:
// rate limiting, timeouts, dropped connections and gateway errors.
var transientMessage = regexp.MustCompile(`(?i)(rate.?limit|too.?many.?requests|\btimed out\b|\btimeout (exceeded|expired)\b|deadline exceeded|connection (reset|refused)|temporar(y|ily) unavailable|service unavailable|bad gateway|\b(429|502|503|504)\b)`)

// Classify maps an action error to a FailureClass. Explicit markers win over
// every other signal.
func Classify(err error) FailureClass {
	if err == nil {
		return Permanent
	}

	switch {
	case errors.Is(err, registry.ErrPermanent):
		return Permanent
	case errors.Is(err, registry.ErrTransient):
		return Transient
	case errors.Is(err, registry.ErrInvalidParameters), errors.Is(err, registry.ErrUnknownCapability):
		return Permanent
	case errors.Is(err, context.Canceled):
		return Permanent
	case errors.Is(err, context.DeadlineExceeded):
		return Transient
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}

	if transientMessage.MatchString(err.Error()) {
		return Transient
	}
	return Permanent
}

func classifyStatus(code int) FailureClass {
	switch {
	case code == 408, code == 425, code == 429:
		return Transient
	case code >= 500:
		return Transient
	default:
		return Permanent
	}
}
