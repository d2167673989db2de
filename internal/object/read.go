package object

import (
	"errors"
	"fmt"
	"io"

	"github.com/zsiec/stereoscope/internal/decode"
	"github.com/zsiec/stereoscope/internal/media"
)

// StartVideoFrameRead prepares a read of video stream i. rawFrames is 2 for
// the alternating layout, where two consecutive frames form one stereo
// frame, and 1 otherwise. Decoding happens in FinishVideoFrameRead.
func (o *Object) StartVideoFrameRead(i, rawFrames int) {
	if rawFrames != 1 && rawFrames != 2 {
		panic(fmt.Sprintf("object: invalid raw frame count %d", rawFrames))
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stream(decode.KindVideo, i).rawFrames = rawFrames
}

// FinishVideoFrameRead decodes the next frame of video stream i. At the end
// of the stream it returns a frame without data whose PresentationTime is
// media.NoTime. The frame data is valid until the next read of the same stream.
func (o *Object) FinishVideoFrameRead(i int) media.VideoFrame {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.readVideo(o.stream(decode.KindVideo, i))
}

// StartAudioBlobRead prepares a read of size bytes from audio stream i.
func (o *Object) StartAudioBlobRead(i, size int) {
	if size <= 0 {
		panic(fmt.Sprintf("object: invalid audio blob size %d", size))
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stream(decode.KindAudio, i).blobSize = size
}

// FinishAudioBlobRead returns exactly the requested number of bytes of
// interleaved samples from audio stream i. Decoded data beyond the request
// is kept for the next read. At the end of the stream, including when less
// than the requested size is left, the blob is invalid.
func (o *Object) FinishAudioBlobRead(i int) media.AudioBlob {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.readAudio(o.stream(decode.KindAudio, i))
}

// StartSubtitleBoxRead prepares a read of subtitle stream i.
func (o *Object) StartSubtitleBoxRead(i int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stream(decode.KindSubtitle, i)
}

// FinishSubtitleBoxRead returns the next event of subtitle stream i, or an
// invalid box at the end of the stream.
func (o *Object) FinishSubtitleBoxRead(i int) media.SubtitleBox {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.readSubtitle(o.stream(decode.KindSubtitle, i))
}

func (o *Object) readAhead(kind decode.Kind) int {
	if o.live {
		return 1
	}
	switch kind {
	case decode.KindVideo:
		return videoReadAhead
	case decode.KindAudio:
		return audioReadAhead
	default:
		return subtitleReadAhead
	}
}

// fill demuxes packets until st has its read-ahead depth queued or the
// input ends. Packets of other active streams are queued on the way.
func (o *Object) fill(st *streamState) {
	depth := o.readAhead(st.kind)
	for !o.eof && len(st.queue) < depth {
		pkt, err := o.sess.ReadPacket()
		if err != nil {
			if errors.Is(err, decode.ErrDecode) {
				o.log.Warn("skipping corrupt packet", "url", o.url, "error", err)
				continue
			}
			if !errors.Is(err, io.EOF) {
				o.log.Error("read failed", "url", o.url, "error", err)
			}
			o.eof = true
			return
		}
		o.distribute(pkt)
	}
}

func (o *Object) distribute(pkt *decode.Packet) {
	st := o.byIndex[pkt.StreamIndex]
	if st == nil || !st.active {
		return
	}
	// Without any timestamp reference the packet cannot be placed in time.
	if st.kind != decode.KindVideo && pkt.Time() == media.NoTime &&
		len(st.queue) == 0 && st.lastTime == media.NoTime {
		return
	}
	st.queue = append(st.queue, pkt)
}

// consumeFlush applies a pending seek to st: packets queued before the seek
// are dropped and the decoder is reset.
func (o *Object) consumeFlush(st *streamState) {
	if !st.flushPending {
		return
	}
	stale := min(st.stale, len(st.queue))
	clear(st.queue[:stale])
	st.queue = st.queue[stale:]
	if err := o.sess.Flush(st.index); err != nil {
		o.log.Error("decoder reset failed", "url", o.url, "stream", st.index, "kind", st.kind, "error", err)
	}
	st.residual = st.residual[:0]
	st.residualTime = media.NoTime
	st.sentTime = media.NoTime
	st.drained = false
	st.flushPending = false
	st.stale = 0
}

// feed sends the next queued packet of st to its decoder. When the input is
// exhausted it drains the decoder once and then returns io.EOF.
func (o *Object) feed(st *streamState) error {
	for {
		o.fill(st)
		if len(st.queue) == 0 {
			if st.drained {
				return io.EOF
			}
			st.drained = true
			if err := o.sess.SendPacket(st.index, nil); err != nil {
				o.log.Warn("drain failed", "url", o.url, "stream", st.index, "error", err)
				return io.EOF
			}
			return nil
		}

		pkt := st.queue[0]
		st.queue[0] = nil
		st.queue = st.queue[1:]
		if t := pkt.Time(); t != media.NoTime {
			st.sentTime = t
		}
		err := o.sess.SendPacket(st.index, pkt)
		if err == nil {
			return nil
		}
		if errors.Is(err, decode.ErrDecode) {
			o.log.Warn("decode glitch, skipping packet", "url", o.url, "stream", st.index, "kind", st.kind, "error", err)
			continue
		}
		return err
	}
}

// receive runs the receive/feed loop of one stream. recv returns decoded
// output; a nil error from recv ends the loop with true.
func (o *Object) receive(st *streamState, recv func() error) bool {
	for {
		err := recv()
		switch {
		case err == nil:
			return true
		case errors.Is(err, decode.ErrAgain):
			if err := o.feed(st); err != nil {
				if !errors.Is(err, io.EOF) {
					o.log.Error("decoder failed", "url", o.url, "stream", st.index, "kind", st.kind, "error", err)
				}
				return false
			}
		case errors.Is(err, io.EOF):
			return false
		case errors.Is(err, decode.ErrDecode):
			o.log.Warn("decode glitch", "url", o.url, "stream", st.index, "kind", st.kind, "error", err)
		default:
			o.log.Error("decoder failed", "url", o.url, "stream", st.index, "kind", st.kind, "error", err)
			return false
		}
	}
}

// timestamp substitutes the last known time of st for a missing one and
// records the result.
func timestamp(st *streamState, t int64) int64 {
	if t == media.NoTime {
		t = st.lastTime
	}
	st.lastTime = t
	return t
}

func (o *Object) haveActive(list []*streamState) bool {
	for _, st := range list {
		if st.active {
			return true
		}
	}
	return false
}

func (o *Object) readVideo(st *streamState) media.VideoFrame {
	f := st.video
	if !st.active {
		o.log.Debug("read on inactive stream", "url", o.url, "stream", st.index)
		return f
	}
	o.consumeFlush(st)

	for v := 0; v < st.rawFrames; v++ {
		raw := o.decodeVideo(st)
		if raw == nil {
			if v == 1 {
				// The second view of an alternating pair is missing.
				f.Data[1], f.LineSize[1] = f.Data[0], f.LineSize[0]
				return f
			}
			return st.video
		}
		for p := 0; p < f.Layout.Planes(); p++ {
			data := raw.Planes[p]
			if st.rawFrames == 2 && v == 0 {
				// The decoder reuses its buffers for the next frame.
				st.altPlane[p] = append(st.altPlane[p][:0], data...)
				data = st.altPlane[p]
			}
			f.Data[v][p] = data
			f.LineSize[v][p] = raw.LineSize[p]
		}
		f.PresentationTime = o.videoTime(st, raw.PTS)
	}
	return f
}

func (o *Object) decodeVideo(st *streamState) *decode.RawFrame {
	var raw *decode.RawFrame
	for {
		ok := o.receive(st, func() error {
			var err error
			raw, err = o.sess.ReceiveVideo(st.index)
			return err
		})
		if !ok {
			return nil
		}
		if raw.Width != st.video.RawWidth || raw.Height != st.video.RawHeight {
			o.log.Warn("dropping frame with unexpected size", "url", o.url, "stream", st.index,
				"width", raw.Width, "height", raw.Height)
			continue
		}
		return raw
	}
}

// videoTime picks the presentation time of a decoded frame: the frame's own
// time, else the time of the last packet sent, else the last frame time,
// else the current position. Video moves the position only while no audio
// stream is active or the position is unknown.
func (o *Object) videoTime(st *streamState, pts int64) int64 {
	t := pts
	if t == media.NoTime {
		t = st.sentTime
	}
	if t == media.NoTime && st.lastTime == media.NoTime {
		o.log.Debug("no video timestamp, using position", "url", o.url, "stream", st.index)
		return o.pos
	}
	ts := timestamp(st, t)
	if !o.haveActive(o.audio) || o.pos == media.NoTime {
		o.pos = ts
	}
	return ts
}

func (o *Object) readAudio(st *streamState) media.AudioBlob {
	if !st.active || st.blobSize <= 0 {
		o.log.Debug("audio read without an active stream or size", "url", o.url, "stream", st.index)
		return media.NewAudioBlob()
	}
	o.consumeFlush(st)

	size := st.blobSize
	for len(st.residual) < size {
		var raw *decode.RawAudio
		ok := o.receive(st, func() error {
			var err error
			raw, err = o.sess.ReceiveAudio(st.index)
			return err
		})
		if !ok {
			st.residual = st.residual[:0]
			st.residualTime = media.NoTime
			return media.NewAudioBlob()
		}
		if len(st.residual) == 0 {
			t := raw.PTS
			if t == media.NoTime {
				t = st.sentTime
			}
			if t != media.NoTime {
				st.residualTime = t
			}
		}
		st.residual = appendPCM(st.residual, raw)
	}

	b := st.audio
	st.blob = append(st.blob[:0], st.residual[:size]...)
	st.residual = st.residual[:copy(st.residual, st.residual[size:])]

	t := st.residualTime
	if t != media.NoTime {
		st.residualTime += b.Duration(size)
	}
	if t == media.NoTime && st.lastTime == media.NoTime {
		o.log.Debug("no audio timestamp, using position", "url", o.url, "stream", st.index)
		t = o.pos
	}
	ts := timestamp(st, t)
	o.pos = ts

	b.Data = st.blob
	b.PresentationTime = ts
	return b
}

func (o *Object) readSubtitle(st *streamState) media.SubtitleBox {
	if !st.active {
		return media.NewSubtitleBox()
	}
	o.consumeFlush(st)

	var raw *decode.RawSubtitle
	ok := o.receive(st, func() error {
		var err error
		raw, err = o.sess.ReceiveSubtitle(st.index)
		return err
	})
	if !ok {
		return media.NewSubtitleBox()
	}

	box := st.subtitle
	box.Format = raw.Format
	box.Str = raw.Text
	start := raw.Start
	if start == media.NoTime {
		start = st.sentTime
	}
	box.PresentationStart = timestamp(st, start)
	box.PresentationStop = raw.Stop
	// Subtitles only drive the position of subtitle-only inputs.
	if !o.haveActive(o.audio) && !o.haveActive(o.video) {
		o.pos = box.PresentationStart
	}
	return box
}
