package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/outreachlab/cadence"
)

// Runner drives periodic sweeps. It ticks either on a fixed interval or
// on a standard five-field cron expression.
type Runner struct {
	sweeper  *Sweeper
	interval time.Duration
	cronSpec string
	clock    cadence.Clock
	logger   *slog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithInterval sets a fixed tick interval. Ignored when a cron spec is set.
func WithInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.interval = d }
}

// WithCronSpec sets a five-field cron expression (e.g. "*/5 * * * *")
// as the tick schedule. Takes precedence over the interval.
func WithCronSpec(spec string) RunnerOption {
	return func(r *Runner) { r.cronSpec = spec }
}

// WithRunnerClock sets the time source used as the sweep's due cutoff.
func WithRunnerClock(c cadence.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner around the given sweeper.
func NewRunner(s *Sweeper, opts ...RunnerOption) *Runner {
	r := &Runner{
		sweeper:  s,
		interval: cadence.DefaultConfig().SweepInterval,
		clock:    cadence.SystemClock{},
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the sweep loop. It returns immediately; an invalid
// cron spec is the only startup error.
func (r *Runner) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	var schedule cron.Schedule
	if r.cronSpec != "" {
		var err error
		schedule, err = cron.ParseStandard(r.cronSpec)
		if err != nil {
			return fmt.Errorf("parse cron spec %q: %w", r.cronSpec, err)
		}
	}
	r.running = true

	r.logger.Info("sweep runner starting",
		slog.Duration("interval", r.interval),
		slog.String("cron", r.cronSpec),
	)

	r.wg.Add(1)
	if schedule != nil {
		go r.cronLoop(schedule)
	} else {
		go r.tickLoop()
	}
	return nil
}

// Stop signals the loop to stop and waits for it to finish. If the
// context expires first, Stop returns without waiting further; the
// in-flight sweep still runs to completion in the background.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("sweep runner stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("sweep runner shutdown timed out")
		return ctx.Err()
	}
}

// tickLoop sweeps on a fixed interval.
func (r *Runner) tickLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

// cronLoop sweeps on a cron schedule.
func (r *Runner) cronLoop(schedule cron.Schedule) {
	defer r.wg.Done()

	for {
		next := schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-r.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			r.sweepOnce()
		}
	}
}

func (r *Runner) sweepOnce() {
	if _, err := r.sweeper.Process(context.Background(), r.clock.Now()); err != nil {
		r.logger.Error("sweep failed", slog.String("error", err.Error()))
	}
}
