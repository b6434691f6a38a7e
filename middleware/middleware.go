// Package middleware provides composable wrappers around the delivery
// step of a dispatch: render plus provider send. A middleware sees the
// job being delivered and the rest of the chain, and may log, time,
// trace, or abort the delivery.
package middleware

import (
	"context"

	"github.com/outreachlab/cadence/job"
)

// Handler is the terminal function that renders and delivers a job.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It must call
// next to continue the chain unless it is short-circuiting on error.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain folds mws into one Middleware. The first element is outermost:
// Chain(a, b, c) runs a, then b, then c, then the handler.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		return run(ctx, j, mws, next)
	}
}

func run(ctx context.Context, j *job.Job, mws []Middleware, next Handler) error {
	if len(mws) == 0 {
		return next(ctx)
	}
	return mws[0](ctx, j, func(ctx context.Context) error {
		return run(ctx, j, mws[1:], next)
	})
}
