package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harrison/taskpilot/internal/registry"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "i/o wait exceeded" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return true }

var _ net.Error = timeoutNetErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"nil", nil, Permanent},
		{"transient marker", registry.MarkTransient(errors.New("flaky")), Transient},
		{"permanent marker beats message", registry.MarkPermanent(errors.New("rate limit exceeded")), Permanent},
		{"invalid parameters", fmt.Errorf("wrap: %w", registry.ErrInvalidParameters), Permanent},
		{"unknown capability", registry.ErrUnknownCapability, Permanent},
		{"deadline exceeded", fmt.Errorf("call: %w", context.DeadlineExceeded), Transient},
		{"attempt timeout", &AttemptTimeoutError{Capability: "c", Timeout: time.Second, Err: errors.New("slow")}, Transient},
		{"canceled", context.Canceled, Permanent},
		{"http 429", statusErr(429), Transient},
		{"http 503", statusErr(503), Transient},
		{"http 408", statusErr(408), Transient},
		{"http 404", statusErr(404), Permanent},
		{"http 401", statusErr(401), Permanent},
		{"http 403", statusErr(403), Permanent},
		{"wrapped http 502", fmt.Errorf("fetch: %w", statusErr(502)), Transient},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutNetErr{}}, Transient},
		{"rate limit text", errors.New("API rate limit exceeded for user"), Transient},
		{"too many requests text", errors.New("Too Many Requests"), Transient},
		{"connection reset text", errors.New("read tcp: connection reset by peer"), Transient},
		{"service unavailable text", errors.New("upstream temporarily unavailable"), Transient},
		{"timed out text", errors.New("request timed out"), Transient},
		{"timeout exceeded text", errors.New("gateway timeout exceeded"), Transient},
		{"timeout field is not a timeout", errors.New(`invalid value for field "timeout"`), Permanent},
		{"timeout setting is not a timeout", errors.New("unsupported option: readtimeout=5"), Permanent},
		{"not found text", errors.New("city not found"), Permanent},
		{"auth text", errors.New("invalid API key"), Permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestFailureClass_String(t *testing.T) {
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "permanent", Permanent.String())
}
