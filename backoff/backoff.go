// Package backoff provides the delay strategies used while polling for a
// distributed lineage lock. All strategies are stateless and safe for
// concurrent use.
package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before poll attempt n (1-indexed).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant always waits Interval.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return capped(float64(e.Initial)*math.Pow(2, float64(attempt-1)), e.Max)
}

// ExponentialWithJitter applies full jitter to an exponential base, which
// spreads out pollers that lost the same lock at the same moment.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential strategy with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := capped(float64(e.Initial)*math.Pow(2, float64(attempt-1)), e.Max)
	return time.Duration(rand.Float64() * float64(base)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

func capped(d float64, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// Strategy names accepted by Named.
const (
	NameConstant    = "constant"
	NameExponential = "exponential"
	NameJitter      = "jitter"
)

// Named returns the strategy called name. interval is the constant delay,
// or the first delay of the exponential strategies; maxDelay caps those.
// An empty name selects the constant strategy.
func Named(name string, interval, maxDelay time.Duration) (Strategy, error) {
	switch name {
	case NameConstant, "":
		return NewConstant(interval), nil
	case NameExponential:
		return NewExponential(interval, maxDelay), nil
	case NameJitter:
		return NewExponentialWithJitter(interval, maxDelay), nil
	default:
		return nil, fmt.Errorf("backoff: unknown strategy %q: must be %s, %s or %s",
			name, NameConstant, NameExponential, NameJitter)
	}
}

// DefaultStrategy returns the lock poll strategy used when none is
// configured: a constant 1ms.
func DefaultStrategy() Strategy {
	return NewConstant(time.Millisecond)
}

// Sleep waits for the delay s assigns to attempt, returning early with
// ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, s Strategy, attempt int) error {
	d := s.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
