// 24-hour clock (C9): a lock-free, version-stamped reader protocol so
// Get never blocks the caller behind a writer it might race with
// Increment on every tick. Grounded on
// src/kern/modules/clock_24/clock_24.c's version-counter comment:
// odd version means a write is in progress, even means the triple
// (hours, minutes, seconds) is consistent.

package lazuli_internal

import "sync/atomic"

// Clock24 is a wall clock with one second resolution, rolling over at
// 24 hours. The zero value reads as 00:00:00.
type Clock24 struct {
	version atomic.Uint32
	hours   atomic.Uint32
	minutes atomic.Uint32
	seconds atomic.Uint32
}

func NewClock24() *Clock24 {
	return &Clock24{}
}

// Increment advances the clock by one second, rolling minutes and
// hours over as needed. Called by the scheduler once per accumulated
// second of ticks; never called concurrently with itself.
func (c *Clock24) Increment() {
	c.version.Add(1) // odd: update in progress

	s := c.seconds.Load() + 1
	if s >= 60 {
		s = 0
		m := c.minutes.Load() + 1
		if m >= 60 {
			m = 0
			h := c.hours.Load() + 1
			if h >= 24 {
				h = 0
			}
			c.hours.Store(h)
		}
		c.minutes.Store(m)
	}
	c.seconds.Store(s)

	c.version.Add(1) // even: consistent again
}

// Get returns the current (hours, minutes, seconds), retrying until it
// observes a version that did not change across the read and is even,
// i.e. was never mid-update.
func (c *Clock24) Get() (hours, minutes, seconds uint8) {
	for {
		v1 := c.version.Load()
		if v1%2 != 0 {
			continue
		}
		h := c.hours.Load()
		m := c.minutes.Load()
		s := c.seconds.Load()
		if v2 := c.version.Load(); v1 == v2 {
			return uint8(h), uint8(m), uint8(s)
		}
	}
}
