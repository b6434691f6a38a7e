// Package hook defines the lifecycle hook system for the sequencer.
// Hooks are notified of lifecycle events (job scheduled, sent, failed,
// sweep completed, etc.) and can react to them.
//
// Each lifecycle event is a separate interface so hooks opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/outreachlab/cadence/id"
	"github.com/outreachlab/cadence/job"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// ──────────────────────────────────────────────────
// Sequence lifecycle hooks
// ──────────────────────────────────────────────────

// SequenceTriggered is called after a sequence is started for an entity
// and all of its step jobs have been scheduled.
type SequenceTriggered interface {
	OnSequenceTriggered(ctx context.Context, sequenceID, entityID string, triggerID id.TriggerID, jobIDs []id.JobID) error
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobScheduled is called after a step job is persisted with its fire instant.
type JobScheduled interface {
	OnJobScheduled(ctx context.Context, j *job.Job) error
}

// JobSent is called after a job's notification is delivered.
type JobSent interface {
	OnJobSent(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when a delivery fails but the job will be retried.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextFireAt time.Time) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// SweepCompleted is called after each queue sweep with the number of
// jobs that were due and processed.
type SweepCompleted interface {
	OnSweepCompleted(ctx context.Context, processed int, elapsed time.Duration) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
