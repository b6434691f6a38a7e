package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/outreachlab/cadence"
	"github.com/outreachlab/cadence/id"
	"github.com/outreachlab/cadence/job"
)

const jobColumns = `id, trigger_id, entity_id, sequence_id, step_id, bindings,
	state, fire_at, attempts, max_attempts, last_error, sent_at, created_at, updated_at`

// InsertJob persists a new job.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	bindings, err := json.Marshal(j.Bindings)
	if err != nil {
		return fmt.Errorf("cadence/sqlite: marshal bindings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO cadence_jobs (id, trigger_id, entity_id, sequence_id, step_id, bindings,
	state, fire_at, attempts, max_attempts, last_error, sent_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID.String(), j.TriggerID.String(), j.EntityID, j.SequenceID, j.StepID, string(bindings),
		string(j.State), j.FireAt.UTC(), j.Attempts, j.MaxAttempts, j.LastError, j.SentAt,
		j.CreatedAt.UTC(), j.UpdatedAt.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return cadence.ErrJobAlreadyExists
		}
		return fmt.Errorf("cadence/sqlite: insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM cadence_jobs WHERE id = ?`, jobID.String())
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cadence.ErrJobNotFound
		}
		return nil, fmt.Errorf("cadence/sqlite: get job: %w", err)
	}
	return j, nil
}

// DueJobs returns pending jobs whose fire instant has passed, ordered by
// fire instant then insertion order.
func (s *Store) DueJobs(ctx context.Context, now time.Time) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+jobColumns+` FROM cadence_jobs
WHERE state = 'pending' AND fire_at <= ?
ORDER BY fire_at ASC, seq ASC`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: due jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// TransitionJob atomically moves a job from one state to another via a
// conditional update. Returns false when another dispatch won the race.
func (s *Store) TransitionJob(ctx context.Context, jobID id.JobID, from, to job.State) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE cadence_jobs SET state = ?, updated_at = ?
WHERE id = ? AND state = ?`,
		string(to), time.Now().UTC(), jobID.String(), string(from))
	if err != nil {
		return false, fmt.Errorf("cadence/sqlite: transition job: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		return true, nil
	}

	// Distinguish a lost race from a missing job.
	var one int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM cadence_jobs WHERE id = ?`, jobID.String()).Scan(&one)
	if isNoRows(err) {
		return false, cadence.ErrJobNotFound
	}
	if err != nil {
		return false, fmt.Errorf("cadence/sqlite: transition job: %w", err)
	}
	return false, nil
}

// RecordAttempt increments the attempt counter, stores the error text,
// and reschedules the job.
func (s *Store) RecordAttempt(ctx context.Context, jobID id.JobID, lastError string, nextFireAt time.Time) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx, `
UPDATE cadence_jobs
SET attempts = attempts + 1, last_error = ?, fire_at = ?, updated_at = ?
WHERE id = ?
RETURNING attempts`,
		lastError, nextFireAt.UTC(), time.Now().UTC(), jobID.String()).Scan(&attempts)
	if err != nil {
		if isNoRows(err) {
			return 0, cadence.ErrJobNotFound
		}
		return 0, fmt.Errorf("cadence/sqlite: record attempt: %w", err)
	}
	return attempts, nil
}

// MarkSent records the delivery instant.
func (s *Store) MarkSent(ctx context.Context, jobID id.JobID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE cadence_jobs SET sent_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), jobID.String())
	if err != nil {
		return fmt.Errorf("cadence/sqlite: mark sent: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return cadence.ErrJobNotFound
	}
	return nil
}

// ListJobs returns jobs matching the given options in insertion order.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM cadence_jobs`
	var conds []string
	var args []any
	if opts.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(opts.State))
	}
	if opts.SequenceID != "" {
		conds = append(conds, "sequence_id = ?")
		args = append(args, opts.SequenceID)
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at ASC, seq ASC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// CountJobs returns job totals grouped by state.
func (s *Store) CountJobs(ctx context.Context) (job.Counts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM cadence_jobs GROUP BY state`)
	if err != nil {
		return job.Counts{}, fmt.Errorf("cadence/sqlite: count jobs: %w", err)
	}
	defer rows.Close()

	var counts job.Counts
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return job.Counts{}, fmt.Errorf("cadence/sqlite: count jobs: %w", err)
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
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cadence_jobs WHERE state = 'sent'`)
	if err != nil {
		return 0, fmt.Errorf("cadence/sqlite: purge sent: %w", err)
	}
	return res.RowsAffected()
}

// ── row scanning ─────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j         job.Job
		jobID     string
		triggerID string
		bindings  string
		state     string
		sentAt    sql.NullTime
	)
	err := row.Scan(&jobID, &triggerID, &j.EntityID, &j.SequenceID, &j.StepID, &bindings,
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
	if err := json.Unmarshal([]byte(bindings), &j.Bindings); err != nil {
		return nil, fmt.Errorf("unmarshal bindings: %w", err)
	}
	j.State = job.State(state)
	if sentAt.Valid {
		t := sentAt.Time.UTC()
		j.SentAt = &t
	}
	j.FireAt = j.FireAt.UTC()
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("cadence/sqlite: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
