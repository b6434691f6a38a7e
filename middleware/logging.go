package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/outreachlab/cadence/job"
)

// Logging records one line per delivery attempt with the outcome and
// elapsed time.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []any{
			slog.String("job_id", j.ID.String()),
			slog.String("sequence", j.SequenceID),
			slog.String("step", j.StepID),
			slog.Int("attempt", j.Attempts+1),
		}
		logger.Debug("delivering job", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		if err != nil {
			logger.Error("delivery failed", append(attrs, slog.String("error", err.Error()))...)
			return err
		}
		logger.Info("job delivered", attrs...)
		return nil
	}
}
