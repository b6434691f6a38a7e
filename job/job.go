package job

import (
	"time"

	"github.com/outreachlab/cadence"
	"github.com/outreachlab/cadence/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting for its fire instant.
	StatePending State = "pending"
	// StateSending means one dispatch has won the job and is delivering.
	StateSending State = "sending"
	// StateSent means the provider accepted the message. Terminal.
	StateSent State = "sent"
	// StateFailed means the attempt ceiling was exhausted. Terminal.
	StateFailed State = "failed"
)

// Job tracks one step's delivery for one subject entity. It is the only
// mutable record in the engine; state changes go exclusively through the
// store's compare-and-set TransitionJob.
type Job struct {
	cadence.Entity

	ID        id.JobID     `json:"id"`
	TriggerID id.TriggerID `json:"trigger_id"`

	// EntityID identifies whose data drives variable substitution.
	EntityID   string `json:"entity_id"`
	SequenceID string `json:"sequence_id"`
	StepID     string `json:"step_id"`

	// Bindings are the literal values captured at trigger time. They
	// take precedence over resolver-supplied values at dispatch.
	Bindings map[string]string `json:"bindings,omitempty"`

	State State `json:"state"`

	// FireAt is the absolute instant the job becomes due.
	FireAt time.Time `json:"fire_at"`

	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateSent || s == StateFailed
}

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateSending, StateSent, StateFailed:
		return true
	}
	return false
}
