package backoff_test

import (
	"testing"
	"time"

	"github.com/outreachlab/cadence/backoff"
)

func TestConstant_SameDelayEveryAttempt(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 8; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", attempt, got)
		}
	}
}

func TestLinear_Schedule(t *testing.T) {
	tests := []struct {
		name     string
		initial  time.Duration
		maxDelay time.Duration
		attempt  int
		want     time.Duration
	}{
		{"first retry", time.Second, time.Minute, 1, time.Second},
		{"third retry", time.Second, time.Minute, 3, 3 * time.Second},
		{"tenth retry", time.Second, time.Minute, 10, 10 * time.Second},
		{"capped", time.Second, 5 * time.Second, 10, 5 * time.Second},
		{"capped far past max", time.Second, 5 * time.Second, 1000, 5 * time.Second},
		{"uncapped when max is zero", time.Second, 0, 90, 90 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := backoff.NewLinear(tt.initial, tt.maxDelay)
			if got := l.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestExponential_Schedule(t *testing.T) {
	tests := []struct {
		name     string
		maxDelay time.Duration
		attempt  int
		want     time.Duration
	}{
		{"first retry", time.Hour, 1, time.Second},
		{"second doubles", time.Hour, 2, 2 * time.Second},
		{"fifth", time.Hour, 5, 16 * time.Second},
		{"capped", 10 * time.Second, 5, 10 * time.Second},
		{"capped at high attempts", 10 * time.Second, 60, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := backoff.NewExponential(time.Second, tt.maxDelay)
			if got := e.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestExponential_HighAttemptDoesNotOverflow(t *testing.T) {
	e := backoff.NewExponential(time.Second, 0)
	if got := e.Delay(500); got <= 0 {
		t.Errorf("Delay(500) = %v, want a positive saturated delay", got)
	}
}

func TestExponentialWithJitter_StaysWithinCeiling(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 10*time.Second)
	for attempt := 1; attempt <= 5; attempt++ {
		for range 100 {
			got := e.Delay(attempt)
			if got < 0 || got > 10*time.Second {
				t.Fatalf("Delay(%d) = %v, want within [0, 10s]", attempt, got)
			}
		}
	}
}

func TestExponentialWithJitter_Varies(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, time.Minute)
	seen := make(map[time.Duration]bool)
	for range 100 {
		seen[e.Delay(3)] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected distinct jittered delays, got %d distinct value(s)", len(seen))
	}
}

func TestDefaultStrategy_RetriesOnNextSweep(t *testing.T) {
	s := backoff.DefaultStrategy()
	if s == nil {
		t.Fatal("DefaultStrategy() returned nil")
	}
	for attempt := 1; attempt <= 5; attempt++ {
		if d := s.Delay(attempt); d != 0 {
			t.Errorf("Delay(%d) = %v, want 0 so the job stays due", attempt, d)
		}
	}
}
