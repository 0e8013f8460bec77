package testutil

import (
	"sync"
	"time"
)

// Epoch is the default starting instant for FakeClock
var Epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// FakeClock is a manually driven clock safe for concurrent use
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock frozen at start, or at Epoch when start is zero
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = Epoch
	}
	return &FakeClock{now: start}
}

// Now returns the current fake time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Days is shorthand for n whole days
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
