// Package clock abstracts wall-clock time so cache expiry and crawl timing
// can be driven deterministically in tests.
package clock

import "time"

// Clock reports the current instant.
//
// Implemented by Real (production) and testutil.FakeClock (tests).
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
//
// Thread-safety: Real is stateless and safe for concurrent use.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t according to c.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}
