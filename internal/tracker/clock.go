package tracker

import "time"

// Clock abstracts the time source so zone transitions and escalation firing
// can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock implementation of Clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock is a Clock pinned to a settable instant, for tests.
type FixedClock struct {
	T time.Time
}

// Now returns the pinned instant.
func (c *FixedClock) Now() time.Time {
	return c.T
}

// Advance moves the pinned instant forward.
func (c *FixedClock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}
