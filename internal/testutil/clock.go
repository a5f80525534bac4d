// Package testutil holds deterministic helpers shared by tests.
package testutil

import (
	"sync"
	"time"
)

// FrozenTime is the instant DeterministicClock starts at.
var FrozenTime = time.Date(2025, time.March, 14, 9, 26, 53, 0, time.UTC)

// DeterministicClock is a wall clock for tests that advances by a fixed
// step on every call to Now.
//
// A zero step freezes the clock, which is how marker tests prove that
// uniqueness never depends on the timestamp.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewDeterministicClock creates a clock at FrozenTime advancing by step.
//
// The first call to Now() returns FrozenTime.
func NewDeterministicClock(step time.Duration) *DeterministicClock {
	return &DeterministicClock{now: FrozenTime, step: step}
}

// Now returns the current time and then advances the clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}
