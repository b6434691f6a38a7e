// Package sweep finds due jobs and pushes them through the dispatcher.
//
// A sweep is a single pass: collect every pending job whose fire
// instant has arrived, then dispatch each one sequentially. Dispatch is
// idempotent under concurrent sweeps, so overlapping passes (a manual
// trigger racing the periodic runner) are safe; losers simply skip.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/outreachlab/cadence/dispatcher"
	"github.com/outreachlab/cadence/hook"
	"github.com/outreachlab/cadence/job"
)

// Sweeper performs on-demand queue sweeps.
type Sweeper struct {
	store      job.Store
	dispatcher *dispatcher.Dispatcher
	hooks      *hook.Registry
	logger     *slog.Logger
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithHooks sets the lifecycle hook registry.
func WithHooks(h *hook.Registry) Option {
	return func(s *Sweeper) { s.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// New creates a Sweeper.
func New(store job.Store, d *dispatcher.Dispatcher, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:      store,
		dispatcher: d,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hooks == nil {
		s.hooks = hook.NewRegistry(s.logger)
	}
	return s
}

// Process dispatches every job due at the given instant and returns how
// many were processed. Jobs claimed by a concurrent sweep are not
// counted. Terminal dispatch failures are logged and counted; they do
// not abort the pass.
func (s *Sweeper) Process(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()

	due, err := s.store.DueJobs(ctx, now)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, j := range due {
		outcome, err := s.dispatcher.Dispatch(ctx, j)
		if outcome == dispatcher.OutcomeSkipped {
			if err != nil {
				s.logger.Error("sweep dispatch error",
					slog.String("job_id", j.ID.String()),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		processed++
	}

	elapsed := time.Since(start)
	s.logger.Info("sweep completed",
		slog.Time("as_of", now),
		slog.Int("due", len(due)),
		slog.Int("processed", processed),
		slog.Duration("elapsed", elapsed),
	)
	s.hooks.EmitSweepCompleted(ctx, processed, elapsed)
	return processed, nil
}
