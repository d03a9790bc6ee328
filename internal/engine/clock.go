package engine

import "sync/atomic"

// Clock is the monotonic logical clock that orders status events within a
// run.
//
// Every event is stamped with a strictly increasing seq from this clock, so
// a journal reads back in emission order regardless of wall time. Rounds are
// numbered separately by the loop.
//
// Clock is safe for concurrent use; in practice only the round loop and the
// lifecycle methods call Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1. Used to continue
// a journal whose last event had seq start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
