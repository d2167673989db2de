package input

import (
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/stereoscope/internal/media"
	"github.com/zsiec/stereoscope/internal/object"
)

var errViewMissing = errors.New("input: view missing")

// task is a read running on its own goroutine. A panic in the read is
// re-raised by wait.
type task[T any] struct {
	done     chan struct{}
	val      T
	panicked any
}

func startTask[T any](read func() T) *task[T] {
	t := &task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.panicked = r
			}
		}()
		t.val = read()
	}()
	return t
}

func (t *task[T]) wait() T {
	<-t.done
	if t.panicked != nil {
		panic(t.panicked)
	}
	return t.val
}

// drain finishes all pending reads and discards their results.
func (in *Input) drain() {
	if in.videoRead != nil {
		t := in.videoRead
		in.videoRead = nil
		t.wait()
	}
	if in.audioRead != nil {
		t := in.audioRead
		in.audioRead = nil
		t.wait()
	}
	if in.subtitleRead != nil {
		t := in.subtitleRead
		in.subtitleRead = nil
		t.wait()
	}
}

// StartVideoFrameRead starts decoding the next stereo frame. It does nothing
// if a read is already pending.
func (in *Input) StartVideoFrameRead() {
	in.mustHaveVideo("StartVideoFrameRead")
	if in.videoRead != nil {
		return
	}

	tmpl := in.videoFrame
	if tmpl.StereoLayout == media.Separate {
		h0 := in.videoHandle("StartVideoFrameRead", 0)
		h1 := in.videoHandle("StartVideoFrameRead", 1)
		tolerance := in.VideoFrameDuration() / 2
		log, id := in.log, in.id
		h0.StartVideoFrameRead(1)
		h1.StartVideoFrameRead(1)
		in.videoRead = startTask(func() media.VideoFrame {
			frame := tmpl
			f0, f1, err := readPair(h0, h1)
			if err == nil {
				f0, f1, err = syncPair(h0, h1, f0, f1, tolerance, log, id)
			}
			if err != nil {
				frame.PresentationTime = media.NoTime
				return frame
			}
			frame.Data = [2][3][]byte{f0.Data[0], f1.Data[0]}
			frame.LineSize = [2][3]int{f0.LineSize[0], f1.LineSize[0]}
			frame.PresentationTime = f0.PresentationTime
			return frame
		})
		return
	}

	h := in.videoHandle("StartVideoFrameRead", in.activeVideo)
	rawFrames := 1
	if tmpl.StereoLayout == media.Alternating {
		rawFrames = 2
	}
	h.StartVideoFrameRead(rawFrames)
	in.videoRead = startTask(func() media.VideoFrame {
		f := h.FinishVideoFrameRead()
		frame := tmpl
		if !f.Valid() {
			frame.PresentationTime = media.NoTime
			return frame
		}
		frame.Data = f.Data
		frame.LineSize = f.LineSize
		frame.PresentationTime = f.PresentationTime
		return frame
	})
}

// readPair finishes the started reads of both views.
func readPair(h0, h1 object.StreamHandle) (f0, f1 media.VideoFrame, err error) {
	var g errgroup.Group
	g.Go(func() error {
		f0 = h0.FinishVideoFrameRead()
		if !f0.Valid() {
			return errViewMissing
		}
		return nil
	})
	g.Go(func() error {
		f1 = h1.FinishVideoFrameRead()
		if !f1.Valid() {
			return errViewMissing
		}
		return nil
	})
	err = g.Wait()
	return f0, f1, err
}

// syncPair reads further frames of the view that lags behind until both
// timestamps are at most tolerance apart. A view that dropped a frame, e.g.
// to a decode error, would otherwise pair every later frame with the wrong
// partner.
func syncPair(h0, h1 object.StreamHandle, f0, f1 media.VideoFrame, tolerance int64, log *slog.Logger, id string) (media.VideoFrame, media.VideoFrame, error) {
	skipped := 0
	for f0.PresentationTime != media.NoTime && f1.PresentationTime != media.NoTime {
		d := f0.PresentationTime - f1.PresentationTime
		if d >= -tolerance && d <= tolerance {
			break
		}
		lagging := &f1
		h := h1
		if d < 0 {
			lagging, h = &f0, h0
		}
		h.StartVideoFrameRead(1)
		*lagging = h.FinishVideoFrameRead()
		if !lagging.Valid() {
			return f0, f1, errViewMissing
		}
		skipped++
	}
	if skipped > 0 {
		log.Warn("views out of sync", "id", id, "skipped", skipped, "pts", f0.PresentationTime)
	}
	return f0, f1, nil
}

// FinishVideoFrameRead waits for the pending video read, starting one if
// necessary. The result is invalid at the end of the input, and in the
// separate layout as soon as either view is missing. Its data is borrowed
// until the next video read.
func (in *Input) FinishVideoFrameRead() media.VideoFrame {
	in.mustHaveVideo("FinishVideoFrameRead")
	if in.videoRead == nil {
		in.StartVideoFrameRead()
	}
	t := in.videoRead
	in.videoRead = nil
	return t.wait()
}

// StartAudioBlobRead starts reading size bytes from the active audio
// stream. It does nothing if a read is already pending.
func (in *Input) StartAudioBlobRead(size int) {
	in.mustBeOpen("StartAudioBlobRead")
	if in.activeAudio < 0 {
		misuse("StartAudioBlobRead", "no active audio stream")
	}
	if in.audioRead != nil {
		return
	}
	if size <= 0 {
		misuse("StartAudioBlobRead", "invalid size %d", size)
	}

	h := in.audioHandle("StartAudioBlobRead", in.activeAudio)
	h.StartAudioBlobRead(size)
	in.lastAudioSize = size
	in.audioRead = startTask(h.FinishAudioBlobRead)
}

// FinishAudioBlobRead waits for the pending audio read. Without a pending
// read it starts one with the size of the previous read.
func (in *Input) FinishAudioBlobRead() media.AudioBlob {
	in.mustBeOpen("FinishAudioBlobRead")
	if in.audioRead == nil {
		in.StartAudioBlobRead(in.lastAudioSize)
	}
	t := in.audioRead
	in.audioRead = nil
	return t.wait()
}

// StartSubtitleBoxRead starts reading the next event of the active
// subtitle stream. It does nothing if a read is already pending.
func (in *Input) StartSubtitleBoxRead() {
	in.mustBeOpen("StartSubtitleBoxRead")
	if in.activeSubtitle < 0 {
		misuse("StartSubtitleBoxRead", "no active subtitle stream")
	}
	if in.subtitleRead != nil {
		return
	}

	h := in.subtitleHandle("StartSubtitleBoxRead", in.activeSubtitle)
	h.StartSubtitleBoxRead()
	in.subtitleRead = startTask(h.FinishSubtitleBoxRead)
}

// FinishSubtitleBoxRead waits for the pending subtitle read, starting one
// if necessary.
func (in *Input) FinishSubtitleBoxRead() media.SubtitleBox {
	in.mustBeOpen("FinishSubtitleBoxRead")
	if in.subtitleRead == nil {
		in.StartSubtitleBoxRead()
	}
	t := in.subtitleRead
	in.subtitleRead = nil
	return t.wait()
}

// Tell returns the position of the object feeding the active audio stream,
// or of the one feeding the active video stream when there is no audio. It
// is media.NoTime when unknown.
func (in *Input) Tell() int64 {
	in.mustBeOpen("Tell")
	switch {
	case in.activeAudio >= 0:
		return in.audioHandle("Tell", in.activeAudio).Tell()
	case in.activeVideo >= 0:
		return in.videoHandle("Tell", in.activeVideo).Tell()
	default:
		return media.NoTime
	}
}

// Seek finishes pending reads and moves every object to pos.
func (in *Input) Seek(pos int64) {
	in.mustBeOpen("Seek")
	in.drain()
	for _, o := range in.objects {
		o.Seek(pos)
	}
	in.log.Debug("seek", "id", in.id, "pos", pos)
}
