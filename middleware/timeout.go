package middleware

import (
	"context"
	"time"

	"github.com/outreachlab/cadence/job"
)

// Timeout returns middleware that enforces a per-dispatch deadline.
// If d is non-zero, a context.WithTimeout wraps the handler call. When
// the deadline is exceeded the context is cancelled and the handler
// should return context.DeadlineExceeded.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *job.Job, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
