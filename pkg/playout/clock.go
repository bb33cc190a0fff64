// Package playout is the client side of the kiosk timeline: one-shot clock
// synchronisation, preload and show scheduling against the local clock, and
// the two-buffer crossfade renderer.
package playout

import (
	"sync"
	"time"
)

// Clock converts server-timeline instants to local ones through an offset
// learned exactly once per session.
//
// The offset is never re-learned mid-session. That trades long-session
// drift accuracy for complete absence of scheduling jitter from re-sync
// events; sessions are bounded well below the drift horizon.
type Clock struct {
	now func() int64

	mu          sync.Mutex
	initialised bool
	offset      int64
}

// ClockOption configures a [Clock].
type ClockOption func(*Clock)

// WithNowFunc replaces the local millisecond clock, for deterministic tests.
func WithNowFunc(now func() int64) ClockOption {
	return func(c *Clock) { c.now = now }
}

// NewClock creates an uninitialised Clock reading the wall clock.
func NewClock(opts ...ClockOption) *Clock {
	c := &Clock{
		now: func() int64 { return time.Now().UnixMilli() },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Initialise learns the offset from the first server timestamp:
// offset = serverTS - local_now. Later calls are no-ops.
func (c *Clock) Initialise(serverTS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialised {
		return
	}
	c.offset = serverTS - c.now()
	c.initialised = true
}

// Initialised reports whether the offset has been learned.
func (c *Clock) Initialised() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialised
}

// Convert maps a server-timeline instant to local milliseconds. The second
// return value is false when the clock has not been initialised yet.
func (c *Clock) Convert(serverTS int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialised {
		return 0, false
	}
	return serverTS - c.offset, true
}

// Now returns the local clock reading in milliseconds.
func (c *Clock) Now() int64 {
	return c.now()
}

// Reset clears the offset so the next session learns a fresh one.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialised = false
	c.offset = 0
}
