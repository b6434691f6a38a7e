package cadence

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("cadence: no store configured")
	ErrStoreClosed = errors.New("cadence: store closed")

	// Not found errors.
	ErrJobNotFound      = errors.New("cadence: job not found")
	ErrSequenceNotFound = errors.New("cadence: sequence not found")
	ErrStepNotFound     = errors.New("cadence: step not found")
	ErrEntityNotFound   = errors.New("cadence: entity not found")

	// Conflict errors.
	ErrJobAlreadyExists    = errors.New("cadence: job already exists")
	ErrDuplicateSequence   = errors.New("cadence: duplicate sequence")
	ErrInvalidSequence     = errors.New("cadence: invalid sequence definition")
	ErrInvalidState        = errors.New("cadence: invalid state transition")
	ErrMaxAttemptsExceeded = errors.New("cadence: max attempts exceeded")

	// Wiring errors.
	ErrNoProvider = errors.New("cadence: no provider configured")
	ErrNoResolver = errors.New("cadence: no entity resolver configured")
)
