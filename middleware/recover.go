package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/outreachlab/cadence/job"
)

// Recover converts a panic anywhere in the delivery chain into an
// ordinary error so one bad template or provider cannot take down a
// sweep. The stack is logged at error level.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error("delivery panicked",
				slog.String("job_id", j.ID.String()),
				slog.String("sequence", j.SequenceID),
				slog.String("step", j.StepID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			retErr = fmt.Errorf("panic dispatching job %s: %v", j.ID, r)
		}()
		return next(ctx)
	}
}
