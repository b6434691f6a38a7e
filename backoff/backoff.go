// Package backoff decides how long a failed delivery waits before the
// sweeper may pick its job up again. Strategies are stateless and safe
// for concurrent use.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Strategy maps a retry attempt number to a wait duration. Attempt 1 is
// the first retry after the initial delivery failure.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// saturate is the growth ceiling for doubling schedules; beyond it a
// delay no longer doubles, which keeps the arithmetic overflow-free.
const saturate = 365 * 24 * time.Hour

// clamp bounds d to limit when limit is positive.
func clamp(d, limit time.Duration) time.Duration {
	if limit > 0 && d > limit {
		return limit
	}
	return d
}

// doubled returns initial * 2^(attempt-1), saturating at a year.
func doubled(initial time.Duration, attempt int) time.Duration {
	d := initial
	for i := 1; i < attempt && d > 0 && d < saturate; i++ {
		d *= 2
	}
	return d
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant waits the same interval before every retry.
type Constant struct {
	Interval time.Duration
}

func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear waits Initial * attempt, capped at Max.
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

func (l *Linear) Delay(attempt int) time.Duration {
	return clamp(l.Initial*time.Duration(attempt), l.Max)
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the wait on each retry: Initial * 2^(attempt-1),
// capped at Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	return clamp(doubled(e.Initial, attempt), e.Max)
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter
// ──────────────────────────────────────────────────

// ExponentialWithJitter draws a uniform delay from [0, ceiling] where
// ceiling follows the Exponential schedule. Full jitter spreads retries
// out when many jobs fail in the same sweep.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	ceiling := clamp(doubled(e.Initial, attempt), e.Max)
	if ceiling <= 0 {
		return 0
	}
	return rand.N(ceiling + 1) //nolint:gosec // jitter does not need crypto rand
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the dispatcher default: a zero constant, so a
// failed job stays due and is retried on the very next sweep.
func DefaultStrategy() Strategy {
	return NewConstant(0)
}
