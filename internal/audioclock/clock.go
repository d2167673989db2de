// Package audioclock turns the coarse playback position of an audio device
// into a smooth, monotonic clock for pacing video, and implements the
// buffer protocol the playback driver uses to keep the device fed.
package audioclock

import (
	"sync"
	"time"
)

// Clock smooths hardware audio timestamps. Devices only report a new
// position when they finish consuming a chunk of data; between such updates
// the clock extrapolates with the wall clock. The reported value never
// decreases between restarts.
type Clock struct {
	now func() time.Time

	mu         sync.Mutex
	lastHW     int64
	acceptedAt time.Time
	reported   int64
}

// NewClock returns a clock that reads wall time from now. If now is nil,
// time.Now is used.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	c := &Clock{now: now}
	c.Restart(0)
	return c
}

// Report takes the current hardware timestamp in microseconds and returns
// the smoothed timestamp.
func (c *Clock) Report(hw int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if hw != c.lastHW {
		c.lastHW = hw
		c.acceptedAt = now
		c.reported = max(c.reported, hw)
		return c.reported
	}
	// Wall time read out of order must not move the clock back.
	elapsed := max(now.Sub(c.acceptedAt).Microseconds(), 0)
	c.reported = max(c.reported, hw+elapsed)
	return c.reported
}

// Reset re-anchors the extrapolation at hw without lowering the reported
// value. Use it when the device resumes after an underrun or a pause.
func (c *Clock) Reset(hw int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHW = hw
	c.acceptedAt = c.now()
}

// Restart starts a new playback segment at hw. This is the only way to
// lower the reported value.
func (c *Clock) Restart(hw int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHW = hw
	c.acceptedAt = c.now()
	c.reported = hw
}
