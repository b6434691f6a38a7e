package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/outreachlab/cadence/id"
	"github.com/outreachlab/cadence/job"
)

// Named entry types pair a hook implementation with the hook name
// captured at registration time. This avoids type-asserting back to
// Hook inside the emit methods.
type sequenceTriggeredEntry struct {
	name string
	hook SequenceTriggered
}

type jobScheduledEntry struct {
	name string
	hook JobScheduled
}

type jobSentEntry struct {
	name string
	hook JobSent
}

type jobRetryingEntry struct {
	name string
	hook JobRetrying
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type sweepCompletedEntry struct {
	name string
	hook SweepCompleted
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered hooks and dispatches lifecycle events to
// them. It type-caches hooks at registration time so emit calls iterate
// only over hooks that implement the relevant event.
type Registry struct {
	hooks  []Hook
	logger *slog.Logger

	// Type-cached slices for each lifecycle event.
	sequenceTriggered []sequenceTriggeredEntry
	jobScheduled      []jobScheduledEntry
	jobSent           []jobSentEntry
	jobRetrying       []jobRetryingEntry
	jobFailed         []jobFailedEntry
	sweepCompleted    []sweepCompletedEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable event
// caches. Hooks are notified in registration order.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
	name := h.Name()

	if e, ok := h.(SequenceTriggered); ok {
		r.sequenceTriggered = append(r.sequenceTriggered, sequenceTriggeredEntry{name, e})
	}
	if e, ok := h.(JobScheduled); ok {
		r.jobScheduled = append(r.jobScheduled, jobScheduledEntry{name, e})
	}
	if e, ok := h.(JobSent); ok {
		r.jobSent = append(r.jobSent, jobSentEntry{name, e})
	}
	if e, ok := h.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, jobRetryingEntry{name, e})
	}
	if e, ok := h.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, e})
	}
	if e, ok := h.(SweepCompleted); ok {
		r.sweepCompleted = append(r.sweepCompleted, sweepCompletedEntry{name, e})
	}
	if e, ok := h.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, e})
	}
}

// Hooks returns all registered hooks.
func (r *Registry) Hooks() []Hook { return r.hooks }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitSequenceTriggered notifies all hooks that implement SequenceTriggered.
func (r *Registry) EmitSequenceTriggered(ctx context.Context, sequenceID, entityID string, triggerID id.TriggerID, jobIDs []id.JobID) {
	for _, e := range r.sequenceTriggered {
		if err := e.hook.OnSequenceTriggered(ctx, sequenceID, entityID, triggerID, jobIDs); err != nil {
			r.logHookError("OnSequenceTriggered", e.name, err)
		}
	}
}

// EmitJobScheduled notifies all hooks that implement JobScheduled.
func (r *Registry) EmitJobScheduled(ctx context.Context, j *job.Job) {
	for _, e := range r.jobScheduled {
		if err := e.hook.OnJobScheduled(ctx, j); err != nil {
			r.logHookError("OnJobScheduled", e.name, err)
		}
	}
}

// EmitJobSent notifies all hooks that implement JobSent.
func (r *Registry) EmitJobSent(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobSent {
		if err := e.hook.OnJobSent(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobSent", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all hooks that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextFireAt time.Time) {
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, j, attempt, nextFireAt); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobFailed notifies all hooks that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitSweepCompleted notifies all hooks that implement SweepCompleted.
func (r *Registry) EmitSweepCompleted(ctx context.Context, processed int, elapsed time.Duration) {
	for _, e := range r.sweepCompleted {
		if err := e.hook.OnSweepCompleted(ctx, processed, elapsed); err != nil {
			r.logHookError("OnSweepCompleted", e.name, err)
		}
	}
}

// EmitShutdown notifies all hooks that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block delivery.
func (r *Registry) logHookError(event, hookName string, err error) {
	r.logger.Warn("lifecycle hook error",
		slog.String("event", event),
		slog.String("hook", hookName),
		slog.String("error", err.Error()),
	)
}
