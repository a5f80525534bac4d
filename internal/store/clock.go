package store

import "sync/atomic"

// Clock hands out the sequence numbers that order call records.
//
// Calls from many virtual users interleave; seq is the only total order
// between them and is what trace output sorts by.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start. Open uses it so that a
// reopened database keeps appending after its last record.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}
