package engine

import "sync/atomic"

// Clock hands out request ids.
//
// Ids are strictly increasing and start at 1. The queue calls Next while
// holding its lock, so id order and FIFO order agree.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next id is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next id and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last id handed out without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
