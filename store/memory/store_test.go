package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/outreachlab/cadence"
	"github.com/outreachlab/cadence/id"
	"github.com/outreachlab/cadence/job"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Job Store tests
// ──────────────────────────────────────────────────

func newJob(sequenceID, stepID string, state job.State, fireAt time.Time) *job.Job {
	return &job.Job{
		Entity:      cadence.NewEntity(),
		ID:          id.NewJobID(),
		TriggerID:   id.NewTriggerID(),
		EntityID:    "lead-1",
		SequenceID:  sequenceID,
		StepID:      stepID,
		Bindings:    map[string]string{"firstName": "Ada"},
		State:       state,
		FireAt:      fireAt,
		MaxAttempts: 3,
	}
}

func TestInsertAndGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("trial-nurture", "welcome", job.StatePending, time.Now().UTC())

	tests := []struct {
		name    string
		fn      func() error
		wantErr error
	}{
		{
			name:    "insert new job",
			fn:      func() error { return s.InsertJob(ctx, j) },
			wantErr: nil,
		},
		{
			name:    "insert duplicate job",
			fn:      func() error { return s.InsertJob(ctx, j) },
			wantErr: cadence.ErrJobAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.StepID != j.StepID {
		t.Fatalf("got step %q, want %q", got.StepID, j.StepID)
	}

	_, err = s.GetJob(ctx, id.NewJobID())
	if !errors.Is(err, cadence.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("trial-nurture", "welcome", job.StatePending, time.Now().UTC())
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	got.State = job.StateFailed

	again, _ := s.GetJob(ctx, j.ID)
	if again.State != job.StatePending {
		t.Fatal("mutating a returned job leaked into the store")
	}
}

func TestDueJobs(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	early := newJob("trial-nurture", "welcome", job.StatePending, now.Add(-2*time.Hour))
	late := newJob("trial-nurture", "check-in", job.StatePending, now.Add(-time.Hour))
	future := newJob("trial-nurture", "trial-ending", job.StatePending, now.Add(time.Hour))
	inFlight := newJob("trial-nurture", "welcome", job.StateSending, now.Add(-3*time.Hour))
	done := newJob("trial-nurture", "welcome", job.StateSent, now.Add(-3*time.Hour))

	// Insert out of fire order to prove sorting.
	for _, j := range []*job.Job{late, future, inFlight, done, early} {
		if err := s.InsertJob(ctx, j); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}

	due, err := s.DueJobs(ctx, now)
	if err != nil {
		t.Fatalf("DueJobs: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("got %d due jobs, want 2", len(due))
	}
	if due[0].ID != early.ID || due[1].ID != late.ID {
		t.Fatalf("due jobs out of order: %s, %s", due[0].StepID, due[1].StepID)
	}
}

func TestDueJobsTieBreakInsertionOrder(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := newJob("demo-follow-up", "recap", job.StatePending, now)
	second := newJob("demo-follow-up", "next-steps", job.StatePending, now)

	if err := s.InsertJob(ctx, first); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if err := s.InsertJob(ctx, second); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	due, err := s.DueJobs(ctx, now)
	if err != nil {
		t.Fatalf("DueJobs: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("got %d due jobs, want 2", len(due))
	}
	if due[0].ID != first.ID {
		t.Fatal("equal fire instants should preserve insertion order")
	}
}

func TestTransitionJob(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("trial-nurture", "welcome", job.StatePending, time.Now().UTC())
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	ok, err := s.TransitionJob(ctx, j.ID, job.StatePending, job.StateSending)
	if err != nil {
		t.Fatalf("TransitionJob: %v", err)
	}
	if !ok {
		t.Fatal("first transition should win")
	}

	// A second claim loses without error.
	ok, err = s.TransitionJob(ctx, j.ID, job.StatePending, job.StateSending)
	if err != nil {
		t.Fatalf("TransitionJob: %v", err)
	}
	if ok {
		t.Fatal("second transition from pending should lose")
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.State != job.StateSending {
		t.Fatalf("got state %q, want %q", got.State, job.StateSending)
	}

	_, err = s.TransitionJob(ctx, id.NewJobID(), job.StatePending, job.StateSending)
	if !errors.Is(err, cadence.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRecordAttempt(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("trial-nurture", "welcome", job.StateSending, time.Now().UTC())
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	next := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	n, err := s.RecordAttempt(ctx, j.ID, "smtp timeout", next)
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d attempts, want 1", n)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.LastError != "smtp timeout" {
		t.Fatalf("got last error %q", got.LastError)
	}
	if !got.FireAt.Equal(next) {
		t.Fatalf("got fire instant %v, want %v", got.FireAt, next)
	}

	if n, _ = s.RecordAttempt(ctx, j.ID, "smtp timeout", next); n != 2 {
		t.Fatalf("got %d attempts, want 2", n)
	}
}

func TestMarkSent(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("trial-nurture", "welcome", job.StateSending, time.Now().UTC())
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	if err := s.MarkSent(ctx, j.ID, at); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.SentAt == nil || !got.SentAt.Equal(at) {
		t.Fatalf("got sent instant %v, want %v", got.SentAt, at)
	}
}

func TestListJobs(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	now := time.Now().UTC()
	a := newJob("trial-nurture", "welcome", job.StatePending, now)
	b := newJob("trial-nurture", "check-in", job.StateSent, now)
	c := newJob("demo-follow-up", "recap", job.StatePending, now)

	for _, j := range []*job.Job{a, b, c} {
		if err := s.InsertJob(ctx, j); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}

	tests := []struct {
		name string
		opts job.ListOpts
		want int
	}{
		{"all", job.ListOpts{}, 3},
		{"by state", job.ListOpts{State: job.StatePending}, 2},
		{"by sequence", job.ListOpts{SequenceID: "trial-nurture"}, 2},
		{"state and sequence", job.ListOpts{State: job.StateSent, SequenceID: "trial-nurture"}, 1},
		{"limit", job.ListOpts{Limit: 2}, 2},
		{"offset past end", job.ListOpts{Offset: 10}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListJobs: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d jobs, want %d", len(got), tt.want)
			}
		})
	}
}

func TestCountJobs(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	now := time.Now().UTC()
	states := []job.State{
		job.StatePending, job.StatePending,
		job.StateSending,
		job.StateSent, job.StateSent, job.StateSent,
		job.StateFailed,
	}
	for _, st := range states {
		if err := s.InsertJob(ctx, newJob("trial-nurture", "welcome", st, now)); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}

	c, err := s.CountJobs(ctx)
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	want := job.Counts{Total: 7, Pending: 2, Sending: 1, Sent: 3, Failed: 1}
	if c != want {
		t.Fatalf("got counts %+v, want %+v", c, want)
	}
	if c.Total != c.Pending+c.Sending+c.Sent+c.Failed {
		t.Fatal("counts do not sum to total")
	}
}

func TestPurgeSent(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	now := time.Now().UTC()
	for _, st := range []job.State{job.StateSent, job.StateSent, job.StatePending, job.StateFailed} {
		if err := s.InsertJob(ctx, newJob("trial-nurture", "welcome", st, now)); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}

	n, err := s.PurgeSent(ctx)
	if err != nil {
		t.Fatalf("PurgeSent: %v", err)
	}
	if n != 2 {
		t.Fatalf("purged %d jobs, want 2", n)
	}

	c, _ := s.CountJobs(ctx)
	if c.Total != 2 || c.Sent != 0 {
		t.Fatalf("got counts %+v after purge", c)
	}
}
