package player

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zsiec/stereoscope/internal/media"
)

// Snapshot is a point-in-time view of playback counters. Times are in
// microseconds, media.NoTime when nothing was played yet.
type Snapshot struct {
	UptimeMs        int64 `json:"uptimeMs"`
	Position        int64 `json:"position"`
	FramesPresented int64 `json:"framesPresented"`
	FramesDropped   int64 `json:"framesDropped"`
	AudioBlobs      int64 `json:"audioBlobs"`
	LastVideoPTS    int64 `json:"lastVideoPts"`
	LastAudioPTS    int64 `json:"lastAudioPts"`
}

// Snapshot returns the current counters. It is safe to call from any
// goroutine while Run is active.
func (p *Player) Snapshot() Snapshot {
	return Snapshot{
		UptimeMs:        time.Since(p.startTime).Milliseconds(),
		Position:        p.position.Load(),
		FramesPresented: p.framesPresented.Load(),
		FramesDropped:   p.framesDropped.Load(),
		AudioBlobs:      p.audioBlobs.Load(),
		LastVideoPTS:    p.lastVideoPTS.Load(),
		LastAudioPTS:    p.lastAudioPTS.Load(),
	}
}

// Counter is a Renderer for headless playback. It unpacks the views of
// each prepared frame into buffers of its own, the way a texture upload
// would, and counts what passes through.
type Counter struct {
	Prepared  atomic.Int64
	Presented atomic.Int64
	Subtitles atomic.Int64
	Bytes     atomic.Int64 // unpacked view bytes

	views [2][3][]byte
}

// Prepare implements Renderer.
func (c *Counter) Prepare(frame media.VideoFrame, sub media.SubtitleBox) error {
	c.Prepared.Add(1)
	if sub.Valid() {
		c.Subtitles.Add(1)
	}

	views := 2
	if frame.StereoLayout == media.Mono {
		views = 1
	}
	for v := 0; v < views; v++ {
		for p := 0; p < frame.Layout.Planes(); p++ {
			n := frame.PlaneSize(p)
			if cap(c.views[v][p]) < n {
				c.views[v][p] = make([]byte, n)
			}
			c.views[v][p] = c.views[v][p][:n]
			if err := frame.CopyPlane(v, p, c.views[v][p]); err != nil {
				return fmt.Errorf("view %d: %w", v, err)
			}
			c.Bytes.Add(int64(n))
		}
	}
	return nil
}

// Present implements Renderer.
func (c *Counter) Present() error {
	c.Presented.Add(1)
	return nil
}
