// Package scheduler expands a sequence trigger into time-anchored jobs.
//
// All step delays are measured from the single trigger instant, not
// from each other: a sequence with delays 0h, 48h, 264h fires at
// trigger+0h, trigger+48h, trigger+264h regardless of when earlier
// steps actually deliver.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/outreachlab/cadence"
	"github.com/outreachlab/cadence/dispatcher"
	"github.com/outreachlab/cadence/hook"
	"github.com/outreachlab/cadence/id"
	"github.com/outreachlab/cadence/job"
	"github.com/outreachlab/cadence/sequence"
)

// Scheduler converts trigger events into persisted jobs.
type Scheduler struct {
	store       job.Store
	catalog     *sequence.Catalog
	dispatcher  *dispatcher.Dispatcher
	clock       cadence.Clock
	hooks       *hook.Registry
	logger      *slog.Logger
	maxAttempts int
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source.
func WithClock(c cadence.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithHooks sets the lifecycle hook registry.
func WithHooks(h *hook.Registry) Option {
	return func(s *Scheduler) { s.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMaxAttempts sets the per-job delivery attempt ceiling.
func WithMaxAttempts(n int) Option {
	return func(s *Scheduler) { s.maxAttempts = n }
}

// New creates a Scheduler.
func New(store job.Store, catalog *sequence.Catalog, d *dispatcher.Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:       store,
		catalog:     catalog,
		dispatcher:  d,
		clock:       cadence.SystemClock{},
		logger:      slog.Default(),
		maxAttempts: cadence.DefaultConfig().MaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hooks == nil {
		s.hooks = hook.NewRegistry(s.logger)
	}
	return s
}

// StartSequence triggers a sequence for an entity. One job per step is
// created, each anchored at triggerInstant + step delay, and all jobs
// share a trigger ID for later grouping. Steps with zero delay are
// dispatched synchronously before returning, so a "welcome" step is
// delivered without waiting for a sweep.
//
// An unknown sequence returns an error wrapping ErrSequenceNotFound
// with no partial effects. The returned slice lists every created job,
// including those already dispatched.
func (s *Scheduler) StartSequence(ctx context.Context, sequenceID, entityID string, bindings map[string]string) ([]id.JobID, error) {
	def, err := s.catalog.Get(sequenceID)
	if err != nil {
		return nil, err
	}

	triggerInstant := s.clock.Now()
	triggerID := id.NewTriggerID()

	jobs := make([]*job.Job, 0, len(def.Steps))
	for i := range def.Steps {
		step := &def.Steps[i]
		j := &job.Job{
			Entity:      cadence.NewEntityAt(triggerInstant),
			ID:          id.NewJobID(),
			TriggerID:   triggerID,
			EntityID:    entityID,
			SequenceID:  def.ID,
			StepID:      step.ID,
			Bindings:    maps.Clone(bindings),
			State:       job.StatePending,
			FireAt:      triggerInstant.Add(step.Delay),
			MaxAttempts: s.maxAttempts,
		}
		if err := s.store.InsertJob(ctx, j); err != nil {
			return nil, fmt.Errorf("schedule step %q: %w", step.ID, err)
		}
		s.hooks.EmitJobScheduled(ctx, j)
		jobs = append(jobs, j)
	}

	jobIDs := make([]id.JobID, len(jobs))
	for i, j := range jobs {
		jobIDs[i] = j.ID
	}

	s.logger.Info("sequence triggered",
		slog.String("sequence", def.ID),
		slog.String("entity_id", entityID),
		slog.String("trigger_id", triggerID.String()),
		slog.Int("steps", len(jobs)),
	)
	s.hooks.EmitSequenceTriggered(ctx, def.ID, entityID, triggerID, jobIDs)

	// Zero-delay steps are due right now. Dispatch failures take the
	// normal retry path and never fail the trigger itself.
	for i := range def.Steps {
		if def.Steps[i].Delay != 0 {
			continue
		}
		if _, err := s.dispatcher.Dispatch(ctx, jobs[i]); err != nil {
			s.logger.Warn("immediate dispatch failed",
				slog.String("job_id", jobs[i].ID.String()),
				slog.String("step", jobs[i].StepID),
				slog.String("error", err.Error()),
			)
		}
	}

	return jobIDs, nil
}
