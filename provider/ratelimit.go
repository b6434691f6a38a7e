package provider

import (
	"context"

	"golang.org/x/time/rate"
)

var _ Provider = (*RateLimited)(nil)

// RateLimited wraps a Provider with a token-bucket rate limiter so a
// sweep over a large backlog cannot exceed the upstream service's send
// quota. Send blocks until a token is available or the context expires.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with a sustained perSecond send rate and
// the given burst size. A burst below 1 is raised to 1.
func NewRateLimited(inner Provider, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Name returns the wrapped provider's name.
func (r *RateLimited) Name() string { return r.inner.Name() }

// Send waits for rate limiter clearance, then delegates to the wrapped
// provider.
func (r *RateLimited) Send(ctx context.Context, msg Message) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.inner.Send(ctx, msg)
}
