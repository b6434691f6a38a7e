// Package cadence provides a multi-step notification sequencing engine
// for Go. It expands a trigger event into time-anchored delivery jobs,
// sweeps due jobs at most once each, and renders templated messages before
// handing them to a pluggable delivery provider.
//
// Cadence is designed as a library, not a service. Import it, configure a
// store and a provider, and register named sequences as plain data.
//
// # Quick Start
//
//	e, err := cadence.New(
//	    cadence.WithStore(memory.New()),
//	    cadence.WithMaxAttempts(3),
//	)
//
// # Architecture
//
// Cadence follows a composable store pattern: the job subsystem defines a
// Store interface and a single backend implements it (memory, sqlite,
// postgres, redis). Scheduling is computed as absolute fire instants
// compared against a caller-supplied now, so the whole engine runs under a
// fake clock in tests with no timers.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package cadence
