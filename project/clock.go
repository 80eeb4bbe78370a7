package project

import (
	"sync/atomic"
	"time"
)

// Clock returns monotonic milliseconds. The value is a 32-bit counter that
// wraps after ~49.7 days; always take durations with ElapsedMs.
type Clock interface {
	Millis() uint32
}

type MonotonicClock struct {
	start time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// ManualClock is a settable clock for tests and replays.
type ManualClock struct {
	now atomic.Uint32
}

func NewManualClock(start uint32) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

func (c *ManualClock) Millis() uint32 {
	return c.now.Load()
}

func (c *ManualClock) Set(ms uint32) {
	c.now.Store(ms)
}

func (c *ManualClock) Advance(ms uint32) uint32 {
	return c.now.Add(ms)
}

// ElapsedMs is wraparound safe as long as the real interval is below 2^32 ms.
func ElapsedMs(now, since uint32) uint32 {
	return now - since
}
