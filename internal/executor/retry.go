package executor

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Retry defaults
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultMultiplier  = 2.0
)

// RetryPolicy bounds how often and how fast transient failures are retried.
// MaxAttempts counts the first attempt, so 3 means at most two retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultRetryPolicy returns 3 attempts with exponential backoff from 1s, capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
	}
}

// normalized fills zero fields with defaults.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	return p
}

// Delay returns the wait before the attempt following failedAttempt (1-based):
// BaseDelay * Multiplier^(failedAttempt-1), capped at MaxDelay. With Jitter,
// up to half the delay again is added, still capped at MaxDelay.
func (p RetryPolicy) Delay(failedAttempt int) time.Duration {
	p = p.normalized()
	if failedAttempt < 1 {
		failedAttempt = 1
	}

	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(failedAttempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter && d > 0 {
		d += rand.Float64() * d / 2 //nolint:gosec // jitter doesn't need crypto-strength randomness
		if d > float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
		}
	}
	return time.Duration(d)
}

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext is the default Sleeper.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
