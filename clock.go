package cadence

import "time"

// Clock supplies the current instant to components that schedule or
// compare fire times. The engine never sleeps or arms timers against a
// Clock; it only asks for now, which makes every component deterministic
// under a fake clock in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock. All instants are UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

// Now calls the underlying function.
func (f ClockFunc) Now() time.Time { return f() }
