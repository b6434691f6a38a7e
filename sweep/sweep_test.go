package sweep_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/outreachlab/cadence/dispatcher"
	"github.com/outreachlab/cadence/provider"
	"github.com/outreachlab/cadence/resolver"
	"github.com/outreachlab/cadence/scheduler"
	"github.com/outreachlab/cadence/sequence"
	"github.com/outreachlab/cadence/store/memory"
	"github.com/outreachlab/cadence/sweep"
)

type spyProvider struct {
	mu   sync.Mutex
	sent []provider.Message
	err  error
}

func (s *spyProvider) Name() string { return "spy" }

func (s *spyProvider) Send(_ context.Context, msg provider.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *spyProvider) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store   *memory.Store
	spy     *spyProvider
	clock   *fakeClock
	sched   *scheduler.Scheduler
	sweeper *sweep.Sweeper
	trigger time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	trigger := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: trigger}

	catalog := sequence.NewCatalog()
	err := catalog.Register(&sequence.Definition{
		ID: "trial-nurture",
		Steps: []sequence.Step{
			{ID: "welcome", Subject: "Welcome, [firstName]!", Text: "Hi"},
			{ID: "check-in", Delay: 48 * time.Hour, Subject: "Checking in", Text: "Hi again"},
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	s := memory.New()
	spy := &spyProvider{}
	res := resolver.NewStatic(map[string]map[string]string{
		"lead-1": {"email": "ada@example.com", "firstName": "Ada"},
	})
	d := dispatcher.New(s, catalog, spy,
		dispatcher.WithResolver(res),
		dispatcher.WithClock(clock),
	)
	sched := scheduler.New(s, catalog, d, scheduler.WithClock(clock))
	sweeper := sweep.New(s, d)

	return &fixture{store: s, spy: spy, clock: clock, sched: sched, sweeper: sweeper, trigger: trigger}
}

func TestProcess_DispatchesOnlyDueJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.sched.StartSequence(ctx, "trial-nurture", "lead-1", nil); err != nil {
		t.Fatalf("StartSequence: %v", err)
	}
	// Welcome went out synchronously.
	if f.spy.count() != 1 {
		t.Fatalf("expected 1 immediate delivery, got %d", f.spy.count())
	}

	// 47h after trigger: the 48h step is not yet due.
	n, err := f.sweeper.Process(ctx, f.trigger.Add(47*time.Hour))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n != 0 {
		t.Fatalf("processed %d jobs at +47h, want 0", n)
	}

	// 49h after trigger: exactly the second step fires.
	n, err = f.sweeper.Process(ctx, f.trigger.Add(49*time.Hour))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed %d jobs at +49h, want 1", n)
	}
	if f.spy.count() != 2 {
		t.Fatalf("provider saw %d messages, want 2", f.spy.count())
	}
}

func TestProcess_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.sched.StartSequence(ctx, "trial-nurture", "lead-1", nil); err != nil {
		t.Fatalf("StartSequence: %v", err)
	}

	later := f.trigger.Add(49 * time.Hour)
	if _, err := f.sweeper.Process(ctx, later); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// A second pass over the same instant delivers nothing new.
	n, err := f.sweeper.Process(ctx, later)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n != 0 {
		t.Fatalf("second pass processed %d jobs, want 0", n)
	}
	if f.spy.count() != 2 {
		t.Fatalf("provider saw %d messages, want 2", f.spy.count())
	}
}

func TestProcess_RetriesEachSweepUntilFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.spy.err = errors.New("provider down")

	if _, err := f.sched.StartSequence(ctx, "trial-nurture", "lead-1", nil); err != nil {
		t.Fatalf("StartSequence: %v", err)
	}

	// The welcome step already burned attempt 1 at trigger time.
	// Two more sweeps exhaust the default budget of 3 for it.
	later := f.trigger.Add(49 * time.Hour)
	for i := 0; i < 2; i++ {
		if _, err := f.sweeper.Process(ctx, later); err != nil {
			t.Fatalf("Process %d: %v", i, err)
		}
	}

	// The check-in step has burned 2 attempts by now; one more sweep
	// drives it to Failed as well.
	if _, err := f.sweeper.Process(ctx, later); err != nil {
		t.Fatalf("Process: %v", err)
	}

	counts, _ := f.store.CountJobs(ctx)
	if counts.Failed != 2 {
		t.Fatalf("got %d failed jobs, want 2 (counts %+v)", counts.Failed, counts)
	}
	if counts.Pending != 0 || counts.Sending != 0 {
		t.Fatalf("no jobs should remain active: %+v", counts)
	}

	// Further sweeps are a no-op: failed is terminal.
	n, _ := f.sweeper.Process(ctx, later)
	if n != 0 {
		t.Fatalf("processed %d jobs after terminal failure, want 0", n)
	}
}

func TestRunner_TicksAndStops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.sched.StartSequence(ctx, "trial-nurture", "lead-1", nil); err != nil {
		t.Fatalf("StartSequence: %v", err)
	}
	f.clock.set(f.trigger.Add(49 * time.Hour))

	r := sweep.NewRunner(f.sweeper,
		sweep.WithInterval(5*time.Millisecond),
		sweep.WithRunnerClock(f.clock),
	)
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(time.Second)
	for f.spy.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("runner never dispatched the due job (%d deliveries)", f.spy.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRunner_InvalidCronSpec(t *testing.T) {
	f := newFixture(t)
	r := sweep.NewRunner(f.sweeper, sweep.WithCronSpec("not a cron spec"))

	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestRunner_StartIsIdempotent(t *testing.T) {
	f := newFixture(t)

	r := sweep.NewRunner(f.sweeper, sweep.WithInterval(time.Hour))
	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
