// Package libav implements decode.Session on top of FFmpeg through
// go-astiav. Demuxing and decoding run in FFmpeg; this package maps stream
// parameters, timestamps and decoded pictures to the decode types.
//
// FFmpeg's open, stream probing, codec open and close are not reentrant and
// are serialized across all sessions.
package libav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/stereoscope/internal/decode"
	"github.com/zsiec/stereoscope/internal/media"
)

var (
	avMu        sync.Mutex
	devicesOnce sync.Once

	microseconds = astiav.NewRational(1, 1_000_000)
)

// Sources resolves ingest:// URLs. OpenSource blocks until a source with
// the key is published or ctx ends, and returns its byte stream together
// with the FFmpeg name of its container format.
type Sources interface {
	OpenSource(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// Opener opens FFmpeg sessions.
type Opener struct {
	log     *slog.Logger
	sources Sources

	// Threads is the decoder thread count for video streams; 0 lets FFmpeg
	// decide.
	Threads int
}

// NewOpener returns an Opener. sources may be nil when ingest:// URLs are
// not used. If log is nil, slog.Default() is used.
func NewOpener(sources Sources, log *slog.Logger) *Opener {
	if log == nil {
		log = slog.Default()
	}
	return &Opener{
		log:     log.With("component", "libav"),
		sources: sources,
	}
}

// SetLogLevel silences FFmpeg's own logging unless debug is set.
func SetLogLevel(debug bool) {
	if debug {
		astiav.SetLogLevel(astiav.LogLevelVerbose)
		return
	}
	astiav.SetLogLevel(astiav.LogLevelQuiet)
}

type stream struct {
	info     decode.StreamInfo
	timeBase astiav.Rational
	params   *astiav.CodecParameters

	cc       *astiav.CodecContext
	frame    *astiav.Frame
	sws      *astiav.SoftwareScaleContext
	bgra     *astiav.Frame
	video    decode.RawFrame
	audio    decode.RawAudio
	subs     []*decode.RawSubtitle
	draining bool
}

// Session is one opened FFmpeg input.
type Session struct {
	log     *slog.Logger
	url     string
	fc      *astiav.FormatContext
	ii      astiav.IOInterrupter
	ioc     *astiav.IOContext
	source  io.ReadCloser
	pkt     *astiav.Packet
	sendPkt *astiav.Packet
	threads int

	info    decode.Info
	streams map[int]*stream
	closed  bool
}

// Open opens url, or the capture device described by dev. Cancelling ctx
// aborts a blocking open.
func (o *Opener) Open(ctx context.Context, url string, dev media.DeviceRequest) (decode.Session, error) {
	s := &Session{
		log:     o.log.With("url", url),
		url:     url,
		streams: make(map[int]*stream),
		threads: o.Threads,
	}
	if err := s.open(ctx, o.sources, url, dev); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) open(ctx context.Context, sources Sources, url string, dev media.DeviceRequest) error {
	var (
		inputFormat *astiav.InputFormat
		target      = url
		opts        map[string]string
	)
	live := dev.IsDevice() || liveURL(url)

	switch key, ok := ingestKey(url); {
	case dev.IsDevice():
		devicesOnce.Do(astiav.RegisterAllDevices)
		var name string
		name, target, opts = deviceInput(dev, url)
		if inputFormat = astiav.FindInputFormat(name); inputFormat == nil {
			return fmt.Errorf("%w: %w: no %s input device", decode.ErrOpen, decode.ErrUnsupported, name)
		}
	case ok:
		if sources == nil {
			return fmt.Errorf("%w: no ingest sources for %s", decode.ErrOpen, url)
		}
		r, format, err := sources.OpenSource(ctx, key)
		if err != nil {
			return fmt.Errorf("%w: %w", decode.ErrOpen, err)
		}
		s.source = r
		if s.ioc, err = astiav.AllocIOContext(ioBufferSize, false, readFunc(r), nil, nil); err != nil {
			return fmt.Errorf("%w: allocating io context: %w", decode.ErrOpen, err)
		}
		if format != "" {
			inputFormat = astiav.FindInputFormat(format)
		}
		target = ""
	}

	avMu.Lock()
	defer avMu.Unlock()

	if s.fc = astiav.AllocFormatContext(); s.fc == nil {
		return fmt.Errorf("%w: allocating format context failed", decode.ErrOpen)
	}
	s.ii = s.fc.SetInterruptCallback()
	if s.ioc != nil {
		s.fc.SetPb(s.ioc)
		s.fc.SetFlags(s.fc.Flags().Add(astiav.FormatContextFlagCustomIo))
	}

	stop := context.AfterFunc(ctx, s.ii.Interrupt)
	defer stop()

	dict := astiav.NewDictionary()
	defer dict.Free()
	for k, v := range opts {
		if err := dict.Set(k, v, astiav.NewDictionaryFlags()); err != nil {
			return fmt.Errorf("%w: setting %s: %w", decode.ErrOpen, k, err)
		}
	}

	if err := s.fc.OpenInput(target, inputFormat, dict); err != nil {
		s.fc.Free()
		s.fc = nil
		return fmt.Errorf("%w: %s: %w", decode.ErrOpen, url, err)
	}
	if err := s.fc.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("%w: finding stream info: %w", decode.ErrOpen, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", decode.ErrOpen, ctx.Err())
	}

	s.info = decode.Info{
		Tags:     dictionaryMap(s.fc.Metadata()),
		Duration: media.NoTime,
		Live:     live,
	}
	if d := s.fc.Duration(); d > 0 && d != astiav.NoPtsValue {
		s.info.Duration = d
	}

	for _, as := range s.fc.Streams() {
		st, err := s.openStream(as)
		if err != nil {
			return err
		}
		if st == nil {
			continue
		}
		st.info.Index = as.Index()
		s.streams[as.Index()] = st
		s.info.Streams = append(s.info.Streams, st.info)
	}
	if len(s.info.Streams) == 0 {
		return fmt.Errorf("%w: %w: no usable streams in %s", decode.ErrOpen, decode.ErrUnsupported, url)
	}

	if s.pkt = astiav.AllocPacket(); s.pkt == nil {
		return fmt.Errorf("%w: allocating packet failed", decode.ErrOpen)
	}
	if s.sendPkt = astiav.AllocPacket(); s.sendPkt == nil {
		return fmt.Errorf("%w: allocating packet failed", decode.ErrOpen)
	}
	s.log.Debug("opened", "streams", len(s.info.Streams), "duration", s.info.Duration, "live", live)
	return nil
}

// openStream describes a stream and opens its decoder. Streams of other
// media types and bitmap subtitles yield nil.
func (s *Session) openStream(as *astiav.Stream) (*stream, error) {
	cp := as.CodecParameters()
	st := &stream{
		timeBase: as.TimeBase(),
		params:   cp,
		info: decode.StreamInfo{
			Codec:    cp.CodecID().Name(),
			Duration: media.NoTime,
			Tags:     dictionaryMap(as.Metadata()),
		},
	}
	if d := as.Duration(); d > 0 && d != astiav.NoPtsValue {
		st.info.Duration = astiav.RescaleQ(d, st.timeBase, microseconds)
	}

	switch cp.MediaType() {
	case astiav.MediaTypeVideo:
		st.info.Kind = decode.KindVideo
		st.info.Width, st.info.Height = cp.Width(), cp.Height()
		sar := as.SampleAspectRatio()
		if sar.Num() <= 0 || sar.Den() <= 0 {
			sar = cp.SampleAspectRatio()
		}
		if sar.Num() <= 0 || sar.Den() <= 0 {
			sar = astiav.NewRational(1, 1)
		}
		st.info.SARNum, st.info.SARDen = sar.Num(), sar.Den()
		fr := as.AvgFrameRate()
		if fr.Num() <= 0 || fr.Den() <= 0 {
			fr = as.RFrameRate()
		}
		st.info.FrameRateNum, st.info.FrameRateDen = fr.Num(), fr.Den()
		st.info.PixelFormat = pixelFormat(cp.PixelFormat())
		st.info.BT709 = cp.ColorSpace() == astiav.ColorSpaceBt709
		st.info.FullRange = cp.ColorRange() == astiav.ColorRangeJpeg
		st.info.ChromaLocation = chromaLocation(cp.ChromaLocation())
		if err := s.openCodec(st); err != nil {
			return nil, err
		}
		st.frame = astiav.AllocFrame()
	case astiav.MediaTypeAudio:
		st.info.Kind = decode.KindAudio
		st.info.Channels = cp.ChannelLayout().Channels()
		st.info.SampleRate = cp.SampleRate()
		st.info.SampleFormat = sampleFormat(cp.SampleFormat())
		if err := s.openCodec(st); err != nil {
			return nil, err
		}
		st.frame = astiav.AllocFrame()
	case astiav.MediaTypeSubtitle:
		f, ok := subtitleFormat(st.info.Codec)
		if !ok {
			s.log.Debug("skipping bitmap subtitle stream", "stream", as.Index(), "codec", st.info.Codec)
			return nil, nil
		}
		st.info.Kind = decode.KindSubtitle
		st.info.SubtitleFormat = f
	default:
		return nil, nil
	}
	return st, nil
}

// openCodec opens the decoder of st. The caller holds avMu.
func (s *Session) openCodec(st *stream) error {
	codec := astiav.FindDecoder(st.params.CodecID())
	if codec == nil {
		return fmt.Errorf("%w: %w: no decoder for %s", decode.ErrOpen, decode.ErrUnsupported, st.info.Codec)
	}
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return fmt.Errorf("%w: allocating codec context for %s failed", decode.ErrOpen, st.info.Codec)
	}
	if err := st.params.ToCodecContext(cc); err != nil {
		cc.Free()
		return fmt.Errorf("%w: codec parameters for %s: %w", decode.ErrOpen, st.info.Codec, err)
	}
	if st.info.Kind == decode.KindVideo {
		cc.SetFramerate(astiav.NewRational(st.info.FrameRateNum, st.info.FrameRateDen))
		if s.threads > 0 {
			cc.SetThreadCount(s.threads)
		}
	}
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return fmt.Errorf("%w: opening %s decoder: %w", decode.ErrOpen, st.info.Codec, err)
	}
	st.cc = cc
	return nil
}

func (s *Session) Info() decode.Info { return s.info }

func (s *Session) toMicros(t int64, st *stream) int64 {
	if t == astiav.NoPtsValue {
		return media.NoTime
	}
	return astiav.RescaleQ(t, st.timeBase, microseconds)
}

func (s *Session) fromMicros(t int64, st *stream) int64 {
	if t == media.NoTime {
		return astiav.NoPtsValue
	}
	return astiav.RescaleQ(t, microseconds, st.timeBase)
}

// ReadPacket returns the next packet of a described stream. The packet data
// is a copy.
func (s *Session) ReadPacket() (*decode.Packet, error) {
	if s.closed {
		return nil, decode.ErrClosed
	}
	for {
		if err := s.fc.ReadFrame(s.pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				return nil, io.EOF
			}
			if errors.Is(err, astiav.ErrEagain) {
				continue
			}
			return nil, fmt.Errorf("%w: reading packet: %w", decode.ErrDecode, err)
		}
		st, ok := s.streams[s.pkt.StreamIndex()]
		if !ok {
			s.pkt.Unref()
			continue
		}
		p := &decode.Packet{
			StreamIndex: s.pkt.StreamIndex(),
			PTS:         s.toMicros(s.pkt.Pts(), st),
			DTS:         s.toMicros(s.pkt.Dts(), st),
			Duration:    media.NoTime,
			Keyframe:    s.pkt.Flags().Has(astiav.PacketFlagKey),
			Data:        append([]byte(nil), s.pkt.Data()...),
		}
		if d := s.pkt.Duration(); d > 0 {
			p.Duration = astiav.RescaleQ(d, st.timeBase, microseconds)
		}
		s.pkt.Unref()
		return p, nil
	}
}

func (s *Session) stream(i int, op string) (*stream, error) {
	if s.closed {
		return nil, decode.ErrClosed
	}
	st, ok := s.streams[i]
	if !ok {
		return nil, fmt.Errorf("%s: no stream %d", op, i)
	}
	return st, nil
}

// SendPacket feeds pkt to the decoder of stream i. Subtitle packets are
// converted to events right away.
func (s *Session) SendPacket(i int, pkt *decode.Packet) error {
	st, err := s.stream(i, "send packet")
	if err != nil {
		return err
	}

	if st.info.Kind == decode.KindSubtitle {
		if pkt == nil {
			st.draining = true
			return nil
		}
		stop := media.NoTime
		if pkt.PTS != media.NoTime && pkt.Duration != media.NoTime {
			stop = pkt.PTS + pkt.Duration
		}
		st.subs = append(st.subs, &decode.RawSubtitle{
			Format: st.info.SubtitleFormat,
			Text:   subtitleText(st.info.Codec, pkt.Data),
			Start:  pkt.PTS,
			Stop:   stop,
		})
		return nil
	}

	if st.cc == nil {
		return fmt.Errorf("stream %d: decoder: %w", i, decode.ErrClosed)
	}
	if pkt == nil {
		st.draining = true
		if err := st.cc.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
			return fmt.Errorf("%w: draining: %w", decode.ErrDecode, err)
		}
		return nil
	}

	defer s.sendPkt.Unref()
	if err := s.sendPkt.FromData(pkt.Data); err != nil {
		return fmt.Errorf("%w: packet data: %w", decode.ErrDecode, err)
	}
	s.sendPkt.SetStreamIndex(i)
	s.sendPkt.SetPts(s.fromMicros(pkt.PTS, st))
	s.sendPkt.SetDts(s.fromMicros(pkt.DTS, st))
	if pkt.Keyframe {
		s.sendPkt.SetFlags(s.sendPkt.Flags().Add(astiav.PacketFlagKey))
	}
	if err := st.cc.SendPacket(s.sendPkt); err != nil {
		if errors.Is(err, astiav.ErrEagain) {
			return decode.ErrAgain
		}
		return fmt.Errorf("%w: %w", decode.ErrDecode, err)
	}
	return nil
}

func (s *Session) receive(st *stream) error {
	if st.cc == nil {
		return fmt.Errorf("stream %d: decoder: %w", st.info.Index, decode.ErrClosed)
	}
	if err := st.cc.ReceiveFrame(st.frame); err != nil {
		switch {
		case errors.Is(err, astiav.ErrEagain):
			return decode.ErrAgain
		case errors.Is(err, astiav.ErrEof):
			return io.EOF
		default:
			return fmt.Errorf("%w: %w", decode.ErrDecode, err)
		}
	}
	return nil
}

// ReceiveVideo returns the next picture of video stream i. Pixel formats
// outside the YUV classes are converted to BGRA.
func (s *Session) ReceiveVideo(i int) (*decode.RawFrame, error) {
	st, err := s.stream(i, "receive video")
	if err != nil {
		return nil, err
	}
	if err := s.receive(st); err != nil {
		return nil, err
	}
	defer st.frame.Unref()

	src := st.frame
	w, h := src.Width(), src.Height()
	pf := pixelFormat(src.PixelFormat())
	if pf == decode.PixelFormatOther {
		if src, err = s.toBGRA(st); err != nil {
			return nil, err
		}
		defer src.Unref()
	}

	buf, err := src.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("%w: copying picture: %w", decode.ErrDecode, err)
	}
	lines, rows := planeLayout(pf, w, h)
	planes, err := splitPlanes(buf, lines, rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", decode.ErrDecode, err)
	}

	st.video = decode.RawFrame{
		Width:       w,
		Height:      h,
		PixelFormat: pf,
		Planes:      planes,
		LineSize:    lines,
		PTS:         s.toMicros(st.frame.Pts(), st),
	}
	return &st.video, nil
}

func (s *Session) toBGRA(st *stream) (*astiav.Frame, error) {
	src := st.frame
	if st.sws == nil {
		sws, err := astiav.CreateSoftwareScaleContext(
			src.Width(), src.Height(), src.PixelFormat(),
			src.Width(), src.Height(), astiav.PixelFormatBgra,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear))
		if err != nil {
			return nil, fmt.Errorf("%w: creating scaler: %w", decode.ErrDecode, err)
		}
		st.sws = sws
		st.bgra = astiav.AllocFrame()
	}
	if err := st.sws.ScaleFrame(src, st.bgra); err != nil {
		return nil, fmt.Errorf("%w: converting to bgra: %w", decode.ErrDecode, err)
	}
	return st.bgra, nil
}

// ReceiveAudio returns the next block of samples of audio stream i.
func (s *Session) ReceiveAudio(i int) (*decode.RawAudio, error) {
	st, err := s.stream(i, "receive audio")
	if err != nil {
		return nil, err
	}
	if err := s.receive(st); err != nil {
		return nil, err
	}
	defer st.frame.Unref()

	data, err := st.frame.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("%w: copying samples: %w", decode.ErrDecode, err)
	}
	st.audio = decode.RawAudio{
		Samples:      st.frame.NbSamples(),
		Channels:     st.frame.ChannelLayout().Channels(),
		SampleFormat: sampleFormat(st.frame.SampleFormat()),
		Data:         data,
		PTS:          s.toMicros(st.frame.Pts(), st),
	}
	return &st.audio, nil
}

// ReceiveSubtitle returns the next event of subtitle stream i.
func (s *Session) ReceiveSubtitle(i int) (*decode.RawSubtitle, error) {
	st, err := s.stream(i, "receive subtitle")
	if err != nil {
		return nil, err
	}
	if len(st.subs) == 0 {
		if st.draining {
			return nil, io.EOF
		}
		return nil, decode.ErrAgain
	}
	sub := st.subs[0]
	st.subs = st.subs[1:]
	return sub, nil
}

// Flush resets the decoder of stream i. FFmpeg decoders are reopened so that
// a drained decoder accepts packets again. If reopening fails the stream has
// no decoder left and later sends and receives return decode.ErrClosed.
func (s *Session) Flush(i int) error {
	st, err := s.stream(i, "flush")
	if err != nil {
		return err
	}
	st.subs = nil
	st.draining = false
	if st.info.Kind == decode.KindSubtitle || st.cc == nil {
		return nil
	}

	avMu.Lock()
	defer avMu.Unlock()
	st.cc.Free()
	st.cc = nil
	if err := s.openCodec(st); err != nil {
		return fmt.Errorf("stream %d: reopening decoder: %w", i, err)
	}
	return nil
}

// Seek moves the demuxer to the last keyframe at or before pos.
func (s *Session) Seek(pos int64) error {
	if s.closed {
		return decode.ErrClosed
	}
	if s.info.Live {
		return fmt.Errorf("%w: live input", decode.ErrSeek)
	}
	if err := s.fc.SeekFrame(-1, pos, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("%w: %d: %w", decode.ErrSeek, pos, err)
	}
	return nil
}

// Close releases all FFmpeg resources. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ii != nil {
		s.ii.Interrupt()
	}
	if s.source != nil {
		s.source.Close()
	}

	avMu.Lock()
	defer avMu.Unlock()
	for _, st := range s.streams {
		if st.cc != nil {
			st.cc.Free()
		}
		if st.frame != nil {
			st.frame.Free()
		}
		if st.sws != nil {
			st.sws.Free()
		}
		if st.bgra != nil {
			st.bgra.Free()
		}
	}
	if s.pkt != nil {
		s.pkt.Free()
	}
	if s.sendPkt != nil {
		s.sendPkt.Free()
	}
	if s.fc != nil {
		s.fc.CloseInput()
		s.fc.Free()
	}
	if s.ioc != nil {
		s.ioc.Free()
	}
	return nil
}
