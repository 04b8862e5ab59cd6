package audit

import "time"

// Clock supplies manifest timestamps. Implemented by SystemClock
// (production) and FixedClock (tests, replay).
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant, so tests and replays
// produce byte-identical manifests.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.At }
