package audioclock

import (
	"errors"
	"sync"
	"time"

	"github.com/zsiec/stereoscope/internal/media"
)

type nullBuffer struct {
	frames   int
	rate     int
	duration time.Duration
}

// NullDevice is a Device that discards samples but consumes its queue in
// real time, for headless playback and tests.
type NullDevice struct {
	now func() time.Time

	mu        sync.Mutex
	queue     []nullBuffer
	playing   bool
	resumedAt time.Time
	played    time.Duration // play time since the start of queue[0]
	bytes     int64
}

// NewNullDevice returns a stopped device. If now is nil, time.Now is used.
func NewNullDevice(now func() time.Time) *NullDevice {
	if now == nil {
		now = time.Now
	}
	return &NullDevice{now: now}
}

// advance accounts for play time up to now and stops at the end of the
// queue.
func (d *NullDevice) advance() {
	if !d.playing {
		return
	}
	now := d.now()
	d.played += now.Sub(d.resumedAt)
	d.resumedAt = now
	var total time.Duration
	for _, b := range d.queue {
		total += b.duration
	}
	if d.played >= total {
		d.played = total
		d.playing = false
	}
}

// Queue implements Device.
func (d *NullDevice) Queue(data []byte, b media.AudioBlob) error {
	fs := b.FrameSize()
	if fs <= 0 || b.Rate <= 0 {
		return errors.New("null audio device: invalid format")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	frames := len(data) / fs
	d.queue = append(d.queue, nullBuffer{
		frames:   frames,
		rate:     b.Rate,
		duration: time.Duration(frames) * time.Second / time.Duration(b.Rate),
	})
	d.bytes += int64(len(data))
	return nil
}

// Unqueue implements Device.
func (d *NullDevice) Unqueue() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	if len(d.queue) == 0 || d.played < d.queue[0].duration {
		return errors.New("null audio device: no processed buffer")
	}
	d.played -= d.queue[0].duration
	d.queue = d.queue[1:]
	return nil
}

// Processed implements Device.
func (d *NullDevice) Processed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	n := 0
	var end time.Duration
	for _, b := range d.queue {
		end += b.duration
		if d.played < end {
			break
		}
		n++
	}
	return n
}

// SampleOffset implements Device.
func (d *NullDevice) SampleOffset() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	offset := 0
	left := d.played
	for _, b := range d.queue {
		if left >= b.duration {
			offset += b.frames
			left -= b.duration
			continue
		}
		offset += int(left * time.Duration(b.rate) / time.Second)
		break
	}
	return offset
}

// Playing implements Device.
func (d *NullDevice) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	return d.playing
}

// Play implements Device.
func (d *NullDevice) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	if !d.playing {
		d.playing = true
		d.resumedAt = d.now()
	}
	return nil
}

// Pause implements Device.
func (d *NullDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	d.playing = false
	return nil
}

// Stop implements Device.
func (d *NullDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
	d.queue = nil
	d.played = 0
	return nil
}

// BytesQueued returns the total number of bytes ever queued.
func (d *NullDevice) BytesQueued() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bytes
}
