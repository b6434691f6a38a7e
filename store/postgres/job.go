package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/outreachlab/cadence"
	"github.com/outreachlab/cadence/id"
	"github.com/outreachlab/cadence/job"
)

const jobColumns = `id, trigger_id, entity_id, sequence_id, step_id, bindings,
	state, fire_at, attempts, max_attempts, last_error, sent_at, created_at, updated_at`

// InsertJob persists a new job.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	bindings := j.Bindings
	if bindings == nil {
		bindings = map[string]string{}
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO cadence_jobs (id, trigger_id, entity_id, sequence_id, step_id, bindings,
	state, fire_at, attempts, max_attempts, last_error, sent_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		j.ID.String(), j.TriggerID.String(), j.EntityID, j.SequenceID, j.StepID, bindings,
		string(j.State), j.FireAt.UTC(), j.Attempts, j.MaxAttempts, j.LastError, j.SentAt,
		j.CreatedAt.UTC(), j.UpdatedAt.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return cadence.ErrJobAlreadyExists
		}
		return fmt.Errorf("cadence/postgres: insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM cadence_jobs WHERE id = $1`, jobID.String())
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cadence.ErrJobNotFound
		}
		return nil, fmt.Errorf("cadence/postgres: get job: %w", err)
	}
	return j, nil
}

// DueJobs returns pending jobs whose fire instant has passed, ordered by
// fire instant then insertion order.
func (s *Store) DueJobs(ctx context.Context, now time.Time) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+jobColumns+` FROM cadence_jobs
WHERE state = 'pending' AND fire_at <= $1
ORDER BY fire_at ASC, seq ASC`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: due jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// TransitionJob atomically moves a job from one state to another via a
// conditional update. Returns false when another dispatch won the race.
func (s *Store) TransitionJob(ctx context.Context, jobID id.JobID, from, to job.State) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE cadence_jobs SET state = $1, updated_at = NOW()
WHERE id = $2 AND state = $3`,
		string(to), jobID.String(), string(from))
	if err != nil {
		return false, fmt.Errorf("cadence/postgres: transition job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var one int
	err = s.pool.QueryRow(ctx,
		`SELECT 1 FROM cadence_jobs WHERE id = $1`, jobID.String()).Scan(&one)
	if isNoRows(err) {
		return false, cadence.ErrJobNotFound
	}
	if err != nil {
		return false, fmt.Errorf("cadence/postgres: transition job: %w", err)
	}
	return false, nil
}

// RecordAttempt increments the attempt counter, stores the error text,
// and reschedules the job.
func (s *Store) RecordAttempt(ctx context.Context, jobID id.JobID, lastError string, nextFireAt time.Time) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx, `
UPDATE cadence_jobs
SET attempts = attempts + 1, last_error = $1, fire_at = $2, updated_at = NOW()
WHERE id = $3
RETURNING attempts`,
		lastError, nextFireAt.UTC(), jobID.String()).Scan(&attempts)
	if err != nil {
		if isNoRows(err) {
			return 0, cadence.ErrJobNotFound
		}
		return 0, fmt.Errorf("cadence/postgres: record attempt: %w", err)
	}
	return attempts, nil
}

// MarkSent records the delivery instant.
func (s *Store) MarkSent(ctx context.Context, jobID id.JobID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE cadence_jobs SET sent_at = $1, updated_at = NOW() WHERE id = $2`,
		at.UTC(), jobID.String())
	if err != nil {
		return fmt.Errorf("cadence/postgres: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cadence.ErrJobNotFound
	}
	return nil
}

// ListJobs returns jobs matching the given options in insertion order.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM cadence_jobs`
	var args []any
	if opts.State != "" {
		args = append(args, string(opts.State))
		query += fmt.Sprintf(" WHERE state = $%d", len(args))
	}
	if opts.SequenceID != "" {
		args = append(args, opts.SequenceID)
		if len(args) == 1 {
			query += fmt.Sprintf(" WHERE sequence_id = $%d", len(args))
		} else {
			query += fmt.Sprintf(" AND sequence_id = $%d", len(args))
		}
	}
	query += " ORDER BY created_at ASC, seq ASC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// CountJobs returns job totals grouped by state.
func (s *Store) CountJobs(ctx context.Context) (job.Counts, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT state, COUNT(*) FROM cadence_jobs GROUP BY state`)
	if err != nil {
		return job.Counts{}, fmt.Errorf("cadence/postgres: count jobs: %w", err)
	}
	defer rows.Close()

	var counts job.Counts
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return job.Counts{}, fmt.Errorf("cadence/postgres: count jobs: %w", err)
		}
		counts.Total += n
		switch job.State(state) {
		case job.StatePending:
			counts.Pending = n
		case job.StateSending:
			counts.Sending = n
		case job.StateSent:
			counts.Sent = n
		case job.StateFailed:
			counts.Failed = n
		}
	}
	return counts, rows.Err()
}

// PurgeSent deletes delivered jobs.
func (s *Store) PurgeSent(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cadence_jobs WHERE state = 'sent'`)
	if err != nil {
		return 0, fmt.Errorf("cadence/postgres: purge sent: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ── row scanning ─────────────────────────────────────────────────

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		jobID     string
		triggerID string
		state     string
		sentAt    *time.Time
	)
	err := row.Scan(&jobID, &triggerID, &j.EntityID, &j.SequenceID, &j.StepID, &j.Bindings,
		&state, &j.FireAt, &j.Attempts, &j.MaxAttempts, &j.LastError, &sentAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if j.ID, err = id.Parse(jobID); err != nil {
		return nil, err
	}
	if j.TriggerID, err = id.Parse(triggerID); err != nil {
		return nil, err
	}
	j.State = job.State(state)
	if sentAt != nil {
		t := sentAt.UTC()
		j.SentAt = &t
	}
	j.FireAt = j.FireAt.UTC()
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("cadence/postgres: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
