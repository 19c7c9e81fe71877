package testfixtures

import (
	"sync"
	"time"
)

// Clock is a manually driven time source. Services receive NowFunc so tests
// can move time forward between operations.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock starts a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the clock's instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc returns Now for injection. A nil clock yields time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set jumps to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// AdvanceMinutes is Advance in whole minutes.
func (c *Clock) AdvanceMinutes(n int) time.Time {
	return c.Advance(time.Duration(n) * time.Minute)
}

// In returns the clock's instant shifted by n minutes without moving it.
func (c *Clock) In(n int) time.Time {
	return c.Now().Add(time.Duration(n) * time.Minute)
}
