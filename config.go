package cadence

import "time"

// Config holds configuration for the Engine.
type Config struct {
	// MaxAttempts is the delivery attempt ceiling per job. A job whose
	// attempt count reaches this value transitions to Failed.
	MaxAttempts int

	// SweepInterval is how often the periodic runner sweeps for due jobs.
	// Ignored when sweeps are driven manually.
	SweepInterval time.Duration

	// DispatchTimeout is the maximum duration one render+send may take
	// before its context is cancelled.
	DispatchTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		SweepInterval:   30 * time.Second,
		DispatchTimeout: 30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}
