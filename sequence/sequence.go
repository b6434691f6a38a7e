// Package sequence defines the catalog of multi-step notification
// sequences: immutable, named, ordered sets of templated steps.
//
// Definitions are created at process start — from the embedded builtins,
// from YAML files, or in code — and never mutated afterwards. The Catalog
// is an open registry: callers may supply additional named sequences
// without touching any other component.
package sequence

import (
	"fmt"
	"time"

	"github.com/outreachlab/cadence"
)

// Step defines one templated message plus its delay within a sequence.
type Step struct {
	// ID is unique within the sequence.
	ID string

	// Subject, HTML, and Text are render templates. Tokens use the
	// [name] form and are substituted at dispatch time.
	Subject string
	HTML    string
	Text    string

	// Delay is measured from the trigger instant, not cumulatively from
	// the previous step. Must be >= 0. A zero delay means the step is
	// dispatched synchronously when the sequence starts.
	Delay time.Duration

	// Display metadata.
	Label        string
	CallToAction string
}

// Definition is an immutable, named, ordered set of steps.
type Definition struct {
	ID          string
	Description string
	Steps       []Step

	// Source records where the definition came from: "builtin", a file
	// path, or "code".
	Source string
}

// Step returns the step with the given ID.
func (d *Definition) Step(stepID string) (*Step, bool) {
	for i := range d.Steps {
		if d.Steps[i].ID == stepID {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

// Validate checks the structural invariants of a definition.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing sequence id", cadence.ErrInvalidSequence)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: sequence %q has no steps", cadence.ErrInvalidSequence, d.ID)
	}

	seen := make(map[string]struct{}, len(d.Steps))
	for i, step := range d.Steps {
		if step.ID == "" {
			return fmt.Errorf("%w: sequence %q step %d has no id", cadence.ErrInvalidSequence, d.ID, i+1)
		}
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("%w: sequence %q has duplicate step %q", cadence.ErrInvalidSequence, d.ID, step.ID)
		}
		seen[step.ID] = struct{}{}

		if step.Delay < 0 {
			return fmt.Errorf("%w: sequence %q step %q has negative delay", cadence.ErrInvalidSequence, d.ID, step.ID)
		}
		if step.Subject == "" {
			return fmt.Errorf("%w: sequence %q step %q has no subject", cadence.ErrInvalidSequence, d.ID, step.ID)
		}
	}
	return nil
}
