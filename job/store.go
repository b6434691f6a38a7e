package job

import (
	"context"
	"time"

	"github.com/outreachlab/cadence/id"
)

// Counts holds per-state job totals. Total always equals the sum of the
// other fields.
type Counts struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
	Sending int64 `json:"sending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
}

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// State filters by lifecycle state. Empty means all states.
	State State
	// SequenceID filters by sequence. Empty means all sequences.
	SequenceID string
}

// Store defines the persistence contract for jobs.
//
// TransitionJob is the engine's sole idempotence guard: every state
// change is a single compare-and-set, so no caller ever needs a lock
// around a job. Implementations must make InsertJob atomic with respect
// to its uniqueness check.
type Store interface {
	// InsertJob persists a new job. The job ID must be unique; inserting
	// a duplicate returns cadence.ErrJobAlreadyExists.
	InsertJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// DueJobs returns all Pending jobs whose fire instant is <= now, in
	// ascending fire-time order with insertion order as the tie-break.
	// Sending jobs are owned by an in-flight dispatch and are excluded.
	DueJobs(ctx context.Context, now time.Time) ([]*Job, error)

	// TransitionJob atomically moves a job from one state to another.
	// It returns false (with no error) when the job's current state is
	// not `from` — the caller lost the race and must skip the job.
	TransitionJob(ctx context.Context, jobID id.JobID, from, to State) (bool, error)

	// RecordAttempt increments the attempt counter, stores the failure
	// reason, and moves the fire instant to nextFireAt. It returns the
	// new attempt count. Only the dispatch that holds the job in Sending
	// may call it, so it needs no compare-and-set of its own.
	RecordAttempt(ctx context.Context, jobID id.JobID, lastError string, nextFireAt time.Time) (int, error)

	// MarkSent records the delivery instant. Called by the dispatch that
	// holds the job, immediately before the Sending->Sent transition.
	MarkSent(ctx context.Context, jobID id.JobID, at time.Time) error

	// ListJobs returns jobs matching the given options, ordered by
	// creation time.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns per-state totals.
	CountJobs(ctx context.Context) (Counts, error)

	// PurgeSent deletes all Sent jobs and returns how many were removed.
	// Pending, Sending, and Failed jobs are untouched.
	PurgeSent(ctx context.Context) (int64, error)
}
