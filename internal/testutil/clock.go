package testutil

import "sync"

// DeterministicClock is a record-timestamp source for tests.
//
// Now returns Start, Start+Step, Start+2*Step, ... in milliseconds, so
// ROWTIME values filled by the reference runtime are the same on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start int64
	step  int64
	n     int64
}

// NewDeterministicClock creates a clock whose first Now() returns start.
// A non-positive step defaults to 1.
func NewDeterministicClock(start, step int64) *DeterministicClock {
	if step <= 0 {
		step = 1
	}
	return &DeterministicClock{start: start, step: step}
}

// Now returns the next timestamp.
func (c *DeterministicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.start + c.n*c.step
	c.n++
	return ts
}

// Reset rewinds the clock so the next Now() returns start again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
