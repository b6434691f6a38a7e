// Package memory provides a fully in-memory store backend. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/outreachlab/cadence"
	"github.com/outreachlab/cadence/id"
	"github.com/outreachlab/cadence/job"
)

var _ job.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	jobs map[string]*job.Job

	// order records insertion order per job key, the tie-break for
	// due jobs that share a fire instant.
	order map[string]uint64
	seq   uint64
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:  make(map[string]*job.Job),
		order: make(map[string]uint64),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// InsertJob persists a new job.
func (m *Store) InsertJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return cadence.ErrJobAlreadyExists
	}
	cp := *j
	m.jobs[key] = &cp
	m.seq++
	m.order[key] = m.seq
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, cadence.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// DueJobs returns pending jobs whose fire instant is at or before now,
// ordered by fire instant with insertion order as the tie-break.
func (m *Store) DueJobs(_ context.Context, now time.Time) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	due := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != job.StatePending {
			continue
		}
		if j.FireAt.After(now) {
			continue
		}
		cp := *j
		due = append(due, &cp)
	}

	sort.Slice(due, func(i, k int) bool {
		if !due[i].FireAt.Equal(due[k].FireAt) {
			return due[i].FireAt.Before(due[k].FireAt)
		}
		return m.order[due[i].ID.String()] < m.order[due[k].ID.String()]
	})

	return due, nil
}

// TransitionJob atomically moves a job from one state to another. Returns
// false when the job is not currently in the expected state.
func (m *Store) TransitionJob(_ context.Context, jobID id.JobID, from, to job.State) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return false, cadence.ErrJobNotFound
	}
	if j.State != from {
		return false, nil
	}
	j.State = to
	j.UpdatedAt = time.Now().UTC()
	return true, nil
}

// RecordAttempt increments the attempt counter and reschedules the job.
func (m *Store) RecordAttempt(_ context.Context, jobID id.JobID, lastError string, nextFireAt time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return 0, cadence.ErrJobNotFound
	}
	j.Attempts++
	j.LastError = lastError
	j.FireAt = nextFireAt
	j.UpdatedAt = time.Now().UTC()
	return j.Attempts, nil
}

// MarkSent records the delivery instant.
func (m *Store) MarkSent(_ context.Context, jobID id.JobID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return cadence.ErrJobNotFound
	}
	sent := at
	j.SentAt = &sent
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// ListJobs returns jobs matching the given options, ordered by creation time.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if opts.SequenceID != "" && j.SequenceID != opts.SequenceID {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		if !result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].CreatedAt.Before(result[k].CreatedAt)
		}
		return m.order[result[i].ID.String()] < m.order[result[k].ID.String()]
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountJobs returns per-state totals.
func (m *Store) CountJobs(_ context.Context) (job.Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var c job.Counts
	for _, j := range m.jobs {
		c.Total++
		switch j.State {
		case job.StatePending:
			c.Pending++
		case job.StateSending:
			c.Sending++
		case job.StateSent:
			c.Sent++
		case job.StateFailed:
			c.Failed++
		}
	}
	return c, nil
}

// PurgeSent deletes all Sent jobs and returns how many were removed.
func (m *Store) PurgeSent(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, j := range m.jobs {
		if j.State == job.StateSent {
			delete(m.jobs, key)
			delete(m.order, key)
			count++
		}
	}
	return count, nil
}
