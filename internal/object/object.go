// Package object implements the media object: one opened input (a file,
// network stream or capture device) with any number of video, audio and
// subtitle streams sharing a single demuxer.
//
// An Object turns the decode session's packet stream into per-stream read
// operations. Packets are distributed to per-stream queues as they are
// demuxed; a read on one stream therefore may buffer packets of the other
// active streams. The object keeps one running position that follows the
// clock-authoritative stream: audio when an audio stream is active,
// otherwise video.
package object

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zsiec/stereoscope/internal/decode"
	"github.com/zsiec/stereoscope/internal/media"
	"github.com/zsiec/stereoscope/internal/stereo"
)

// Read-ahead depths: the number of packets queued for a stream before its
// decoder is fed. Live inputs use a depth of 1 to keep latency low.
const (
	videoReadAhead    = 2
	audioReadAhead    = 5
	subtitleReadAhead = 1
)

// TagLanguage is the stream tag holding an ISO 639 language code.
const TagLanguage = "language"

// TagStereoMode is the stream tag holding a Matroska stereo mode.
const TagStereoMode = "stereo_mode"

type streamState struct {
	kind   decode.Kind
	index  int // session stream index
	info   decode.StreamInfo
	active bool

	queue    []*decode.Packet
	drained  bool  // a nil packet has been sent to the decoder
	lastTime int64 // last known timestamp, for packets without one
	sentTime int64 // time of the last packet sent to the decoder

	flushPending bool
	stale        int // queued packets that predate the last seek

	// Two-phase read requests.
	rawFrames int
	blobSize  int

	video    media.VideoFrame
	altPlane [3][]byte // copy of the first raw frame in alternating layout

	audio        media.AudioBlob
	residual     []byte
	residualTime int64
	blob         []byte

	subtitle media.SubtitleBox
}

// Object is one opened input. All methods are safe for concurrent use;
// reads on one object are serialized.
type Object struct {
	log    *slog.Logger
	opener decode.Opener

	mu       sync.Mutex
	url      string
	sess     decode.Session
	info     decode.Info
	tags     map[string]string
	live     bool
	eof      bool
	pos      int64
	video    []*streamState
	audio    []*streamState
	subtitle []*streamState
	byIndex  map[int]*streamState
}

// New creates an unopened object that opens inputs through opener. If log
// is nil, slog.Default() is used.
func New(opener decode.Opener, log *slog.Logger) *Object {
	if log == nil {
		log = slog.Default()
	}
	return &Object{
		log:    log.With("component", "media-object"),
		opener: opener,
		pos:    media.NoTime,
	}
}

// Open opens url and builds the stream templates. Any error wraps
// decode.ErrOpen; on error the object stays unopened.
func (o *Object) Open(ctx context.Context, url string, dev media.DeviceRequest) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sess != nil {
		return fmt.Errorf("%s: object already open: %w", url, decode.ErrOpen)
	}

	sess, err := o.opener.Open(ctx, url, dev)
	if err != nil {
		if errors.Is(err, decode.ErrOpen) {
			return err
		}
		return fmt.Errorf("%s: %w: %w", url, decode.ErrOpen, err)
	}

	info := sess.Info()
	log := o.log.With("url", url)
	var video, audio, subtitle []*streamState
	byIndex := make(map[int]*streamState)

	for _, si := range info.Streams {
		st := &streamState{
			kind:         si.Kind,
			index:        si.Index,
			info:         si,
			lastTime:     media.NoTime,
			sentTime:     media.NoTime,
			residualTime: media.NoTime,
			rawFrames:    1,
		}
		switch si.Kind {
		case decode.KindVideo:
			if si.Width <= 0 || si.Height <= 0 {
				log.Warn("skipping video stream without dimensions", "stream", si.Index)
				continue
			}
			st.video = videoTemplate(url, info.Tags, si, log)
			video = append(video, st)
		case decode.KindAudio:
			tmpl, err := audioTemplate(si)
			if err != nil {
				_ = sess.Close()
				return fmt.Errorf("%s: audio stream %d: %w: %w", url, si.Index, decode.ErrOpen, err)
			}
			st.audio = tmpl
			audio = append(audio, st)
		case decode.KindSubtitle:
			st.subtitle = media.NewSubtitleBox()
			st.subtitle.Language = si.Tags[TagLanguage]
			st.subtitle.Format = si.SubtitleFormat
			subtitle = append(subtitle, st)
		default:
			continue
		}
		byIndex[si.Index] = st
	}

	if len(video) == 0 && len(audio) == 0 && len(subtitle) == 0 {
		_ = sess.Close()
		return fmt.Errorf("%s: no usable streams: %w", url, decode.ErrOpen)
	}

	tags := make(map[string]string, len(info.Tags))
	for k, v := range info.Tags {
		tags[k] = v
	}

	o.url = url
	o.sess = sess
	o.info = info
	o.tags = tags
	o.live = info.Live || dev.IsDevice()
	o.eof = false
	o.pos = media.NoTime
	o.video, o.audio, o.subtitle = video, audio, subtitle
	o.byIndex = byIndex

	log.Debug("opened", "video_streams", len(video), "audio_streams", len(audio),
		"subtitle_streams", len(subtitle), "live", o.live)
	return nil
}

// videoTemplate derives the frame format of a video stream.
func videoTemplate(url string, tags map[string]string, si decode.StreamInfo, log *slog.Logger) media.VideoFrame {
	f := media.NewVideoFrame()
	f.RawWidth, f.RawHeight = si.Width, si.Height

	sar := 1.0
	if si.SARNum > 0 && si.SARDen > 0 {
		sar = float64(si.SARNum) / float64(si.SARDen)
	}
	f.RawAspectRatio = sar * float64(si.Width) / float64(si.Height)

	yuv := func(layout media.Layout, tenBit bool) {
		f.Layout = layout
		f.ColorSpace = media.YUV601
		if si.BT709 {
			f.ColorSpace = media.YUV709
		}
		switch {
		case tenBit && si.FullRange:
			f.ValueRange = media.U10Full
		case tenBit:
			f.ValueRange = media.U10MPEG
		case si.FullRange:
			f.ValueRange = media.U8Full
		default:
			f.ValueRange = media.U8MPEG
		}
		f.ChromaLocation = si.ChromaLocation
	}
	jpeg := func(layout media.Layout) {
		f.Layout = layout
		f.ColorSpace = media.YUV601
		f.ValueRange = media.U8Full
		f.ChromaLocation = media.Center
	}

	switch si.PixelFormat {
	case decode.PixelFormatYUV444P:
		yuv(media.YUV444P, false)
	case decode.PixelFormatYUV422P:
		yuv(media.YUV422P, false)
	case decode.PixelFormatYUV420P:
		yuv(media.YUV420P, false)
	case decode.PixelFormatYUV444P10:
		yuv(media.YUV444P, true)
	case decode.PixelFormatYUV422P10:
		yuv(media.YUV422P, true)
	case decode.PixelFormatYUV420P10:
		yuv(media.YUV420P, true)
	case decode.PixelFormatYUVJ444P:
		jpeg(media.YUV444P)
	case decode.PixelFormatYUVJ422P:
		jpeg(media.YUV422P)
	case decode.PixelFormatYUVJ420P:
		jpeg(media.YUV420P)
	}
	if f.Layout == media.YUV444P {
		f.ChromaLocation = media.Center
	}

	mode := si.Tags[TagStereoMode]
	if mode != "" && !stereo.KnownStereoMode(mode) {
		log.Warn("unsupported stereo mode, using mono", "stream", si.Index, "stereo_mode", mode)
	}
	r := stereo.Resolve(stereo.Hints{
		Width:            si.Width,
		Height:           si.Height,
		URL:              url,
		Tags:             tags,
		StreamStereoMode: mode,
		FramePacking:     si.FramePacking,
	})
	f.StereoLayout, f.StereoLayoutSwap = r.Layout, r.Swap
	f.SetViewDimensions()
	return f
}

// audioTemplate validates an audio stream and derives its output format.
func audioTemplate(si decode.StreamInfo) (media.AudioBlob, error) {
	b := media.NewAudioBlob()
	if !media.ValidChannelCount(si.Channels) {
		return b, fmt.Errorf("%d channels: %w", si.Channels, decode.ErrUnsupported)
	}
	sf, ok := outputSampleFormat(si.SampleFormat)
	if !ok {
		return b, fmt.Errorf("sample format %d: %w", si.SampleFormat, decode.ErrUnsupported)
	}
	if si.SampleRate <= 0 {
		return b, fmt.Errorf("sample rate %d: %w", si.SampleRate, decode.ErrUnsupported)
	}
	b.Language = si.Tags[TagLanguage]
	b.Channels = si.Channels
	b.Rate = si.SampleRate
	b.SampleFormat = sf
	return b, nil
}

// URL returns the opened URL.
func (o *Object) URL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.url
}

// Tags returns the container metadata.
func (o *Object) Tags() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tags
}

// Live reports whether the input is a live source.
func (o *Object) Live() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.live
}

// VideoStreams returns the number of video streams.
func (o *Object) VideoStreams() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.video)
}

// AudioStreams returns the number of audio streams.
func (o *Object) AudioStreams() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.audio)
}

// SubtitleStreams returns the number of subtitle streams.
func (o *Object) SubtitleStreams() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subtitle)
}

func (o *Object) stream(kind decode.Kind, i int) *streamState {
	var list []*streamState
	switch kind {
	case decode.KindVideo:
		list = o.video
	case decode.KindAudio:
		list = o.audio
	case decode.KindSubtitle:
		list = o.subtitle
	}
	if i < 0 || i >= len(list) {
		panic(fmt.Sprintf("object: %s stream %d out of range [0,%d)", kind, i, len(list)))
	}
	return list[i]
}

// VideoFrameTemplate returns the frame format of video stream i.
func (o *Object) VideoFrameTemplate(i int) media.VideoFrame {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stream(decode.KindVideo, i).video
}

// VideoFrameRate returns the frame rate of video stream i as a fraction.
func (o *Object) VideoFrameRate(i int) (num, den int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	si := o.stream(decode.KindVideo, i).info
	return si.FrameRateNum, si.FrameRateDen
}

// AudioBlobTemplate returns the sample format of audio stream i.
func (o *Object) AudioBlobTemplate(i int) media.AudioBlob {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stream(decode.KindAudio, i).audio
}

// SubtitleBoxTemplate returns the format of subtitle stream i.
func (o *Object) SubtitleBoxTemplate(i int) media.SubtitleBox {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stream(decode.KindSubtitle, i).subtitle
}

// VideoDuration returns the duration of video stream i in microseconds.
func (o *Object) VideoDuration(i int) int64 { return o.Duration(decode.KindVideo, i) }

// AudioDuration returns the duration of audio stream i in microseconds.
func (o *Object) AudioDuration(i int) int64 { return o.Duration(decode.KindAudio, i) }

// SubtitleDuration returns the duration of subtitle stream i in
// microseconds. Containers often report nonsense here.
func (o *Object) SubtitleDuration(i int) int64 { return o.Duration(decode.KindSubtitle, i) }

// Duration returns the duration of a stream in microseconds, falling back
// to the container duration. It is media.NoTime when unknown.
func (o *Object) Duration(kind decode.Kind, i int) int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if d := o.stream(kind, i).info.Duration; d != media.NoTime && d > 0 {
		return d
	}
	return o.info.Duration
}

// SetVideoStreamActive enables or disables decoding of video stream i.
func (o *Object) SetVideoStreamActive(i int, active bool) {
	o.setActive(decode.KindVideo, i, active)
}

// SetAudioStreamActive enables or disables decoding of audio stream i.
// While no audio stream is active, video timestamps drive the position.
func (o *Object) SetAudioStreamActive(i int, active bool) {
	o.setActive(decode.KindAudio, i, active)
}

// SetSubtitleStreamActive enables or disables decoding of subtitle stream i.
func (o *Object) SetSubtitleStreamActive(i int, active bool) {
	o.setActive(decode.KindSubtitle, i, active)
}

func (o *Object) setActive(kind decode.Kind, i int, active bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.stream(kind, i)
	if st.active == active {
		return
	}
	st.active = active
	if !active {
		// Packets queued so far are dropped on reactivation.
		st.flushPending = true
		st.stale = len(st.queue)
	}
}

// Tell returns the current position in microseconds, or media.NoTime when
// it is unknown, e.g. right after a seek.
func (o *Object) Tell() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pos
}

// Seek moves the input to pos (microseconds). Queued packets and decoder
// state are discarded lazily, on the next read of each stream. A rejected
// seek is logged and otherwise ignored.
func (o *Object) Seek(pos int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil {
		return
	}

	o.log.Debug("seek", "url", o.url, "from", o.pos, "to", pos)
	if err := o.sess.Seek(pos); err != nil {
		o.log.Error("seek failed", "url", o.url, "pos", pos, "error", err)
	}
	for _, list := range [][]*streamState{o.video, o.audio, o.subtitle} {
		for _, st := range list {
			st.flushPending = true
			st.stale = len(st.queue)
			st.lastTime = media.NoTime
		}
	}
	o.eof = false
	o.pos = media.NoTime
}

// Close releases the decode session. It is safe to call more than once.
func (o *Object) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil {
		return nil
	}
	err := o.sess.Close()
	o.sess = nil
	o.video, o.audio, o.subtitle = nil, nil, nil
	o.byIndex = nil
	o.pos = media.NoTime
	if err != nil {
		return fmt.Errorf("%s: close: %w", o.url, err)
	}
	return nil
}
