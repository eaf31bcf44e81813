package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a new SteppingClock.
var Epoch = time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)

// SteppingClock is a deterministic wall clock for tests.
//
// Each call to Now returns the previous instant plus Step, starting at
// Epoch, so durations derived from it are predictable in golden output.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SteppingClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewSteppingClock creates a clock that advances by step on every read.
func NewSteppingClock(step time.Duration) *SteppingClock {
	return &SteppingClock{next: Epoch, step: step}
}

// Now returns the current instant and advances the clock.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.step)
	return now
}

// Reset rewinds the clock to Epoch.
func (c *SteppingClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = Epoch
}
