// Package middleware provides composable middleware for notification delivery.
//
// A [Middleware] is a function that wraps a delivery handler. Middleware are
// composed into a chain using [Chain] and applied before each dispatch.
// They are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs sequence, step, duration, and outcome at each dispatch
//   - [Recover] — catches panics and converts them to errors
//   - [Timeout] — cancels the dispatch context after a configured duration
//   - [Tracing] — wraps delivery in an OpenTelemetry span
//   - [Metrics] — records per-dispatch duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware
