// Package decodetest provides a scripted, in-memory decode.Session for
// tests of the media layers.
package decodetest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/zsiec/stereoscope/internal/decode"
	"github.com/zsiec/stereoscope/internal/media"
)

type output struct {
	frame    *decode.RawFrame
	audio    *decode.RawAudio
	subtitle *decode.RawSubtitle
	corrupt  bool
}

type decoderState struct {
	pending  []output
	draining bool
	closed   bool
}

// Session replays a fixed list of packets. Each packet decodes to exactly
// one frame, audio block or subtitle event, chosen when the packet was
// added. It records seeks and flushes for inspection.
type Session struct {
	mu      sync.Mutex
	info    decode.Info
	packets []*decode.Packet
	outputs map[*decode.Packet]output
	next    int

	decoders map[int]*decoderState
	counter  byte
	audioPos byte

	// SeekErr, when set, is returned by Seek.
	SeekErr error
	// FlushErr, when set, is returned by Flush, which then leaves the
	// stream without a decoder.
	FlushErr error

	Seeks   []int64
	Flushes map[int]int
	Sent    map[int]int
	Closed  bool
}

// New returns a session with the given streams. Stream indices are
// assigned in order.
func New(streams ...decode.StreamInfo) *Session {
	s := &Session{
		info:     decode.Info{Tags: map[string]string{}, Duration: media.NoTime},
		outputs:  make(map[*decode.Packet]output),
		decoders: make(map[int]*decoderState),
		Flushes:  make(map[int]int),
		Sent:     make(map[int]int),
	}
	for i, st := range streams {
		st.Index = i
		if st.Duration == 0 {
			st.Duration = media.NoTime
		}
		s.info.Streams = append(s.info.Streams, st)
	}
	return s
}

// Video returns a video stream description.
func Video(width, height int) decode.StreamInfo {
	return decode.StreamInfo{
		Kind: decode.KindVideo, Codec: "rawvideo",
		Width: width, Height: height, SARNum: 1, SARDen: 1,
		FrameRateNum: 25, FrameRateDen: 1,
	}
}

// Audio returns an audio stream description.
func Audio(channels, rate int, format decode.SampleFormat) decode.StreamInfo {
	return decode.StreamInfo{
		Kind: decode.KindAudio, Codec: "pcm",
		Channels: channels, SampleRate: rate, SampleFormat: format,
	}
}

// Subtitle returns a text subtitle stream description.
func Subtitle(lang string) decode.StreamInfo {
	return decode.StreamInfo{
		Kind: decode.KindSubtitle, Codec: "text",
		Tags: map[string]string{"language": lang},
	}
}

// SetTags sets container level metadata.
func (s *Session) SetTags(tags map[string]string) *Session {
	s.info.Tags = tags
	return s
}

// SetDuration sets the container duration in microseconds.
func (s *Session) SetDuration(d int64) *Session {
	s.info.Duration = d
	return s
}

// SetLive marks the session as a live source.
func (s *Session) SetLive(live bool) *Session {
	s.info.Live = live
	return s
}

// AddVideo appends a packet that decodes to a frame of the stream's size.
// Every byte of the frame holds the same value, which is returned so tests
// can identify the frame later.
func (s *Session) AddVideo(stream int, t int64) byte {
	st := s.info.Streams[stream]
	return s.AddVideoSized(stream, t, st.Width, st.Height)
}

// AddVideoSized is AddVideo with an explicit frame size.
func (s *Session) AddVideoSized(stream int, t int64, width, height int) byte {
	s.counter++
	v := s.counter
	f := &decode.RawFrame{Width: width, Height: height, PixelFormat: s.info.Streams[stream].PixelFormat, PTS: t}
	planes, sizes := planeSizes(f.PixelFormat, width, height)
	for p := 0; p < planes; p++ {
		f.LineSize[p] = sizes[p][0]
		buf := make([]byte, sizes[p][0]*sizes[p][1])
		for i := range buf {
			buf[i] = v
		}
		f.Planes[p] = buf
	}
	s.add(&decode.Packet{StreamIndex: stream, PTS: t, DTS: t, Keyframe: true}, output{frame: f})
	return v
}

// AddAudio appends a packet that decodes to n bytes of audio in the
// stream's native format. Byte values continue a running counter across
// all audio packets so concatenations can be verified.
func (s *Session) AddAudio(stream int, t int64, n int) {
	st := s.info.Streams[stream]
	data := make([]byte, n)
	for i := range data {
		data[i] = s.audioPos
		s.audioPos++
	}
	samples := 0
	if fs := st.Channels * st.SampleFormat.Bytes(); fs > 0 {
		samples = n / fs
	}
	a := &decode.RawAudio{Samples: samples, Channels: st.Channels, SampleFormat: st.SampleFormat, Data: data, PTS: t}
	s.add(&decode.Packet{StreamIndex: stream, PTS: t, DTS: t}, output{audio: a})
}

// AddAudioData appends a packet that decodes to the given raw samples.
func (s *Session) AddAudioData(stream int, t int64, samples int, data []byte) {
	st := s.info.Streams[stream]
	a := &decode.RawAudio{Samples: samples, Channels: st.Channels, SampleFormat: st.SampleFormat, Data: data, PTS: t}
	s.add(&decode.Packet{StreamIndex: stream, PTS: t, DTS: t}, output{audio: a})
}

// AddSubtitle appends a subtitle event.
func (s *Session) AddSubtitle(stream int, start, stop int64, text string) {
	sub := &decode.RawSubtitle{Format: s.info.Streams[stream].SubtitleFormat, Text: text, Start: start, Stop: stop}
	s.add(&decode.Packet{StreamIndex: stream, PTS: start, DTS: start, Data: []byte(text)}, output{subtitle: sub})
}

// AddCorrupt appends a packet that the decoder rejects with ErrDecode.
func (s *Session) AddCorrupt(stream int, t int64) {
	s.add(&decode.Packet{StreamIndex: stream, PTS: t, DTS: t}, output{corrupt: true})
}

// AddPacket appends an arbitrary packet that decodes to nothing.
func (s *Session) AddPacket(pkt *decode.Packet) {
	s.add(pkt, output{})
}

func (s *Session) add(pkt *decode.Packet, out output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, pkt)
	s.outputs[pkt] = out
}

func planeSizes(pf decode.PixelFormat, w, h int) (int, [3][2]int) {
	switch pf {
	case decode.PixelFormatYUV420P, decode.PixelFormatYUVJ420P:
		return 3, [3][2]int{{w, h}, {w / 2, h / 2}, {w / 2, h / 2}}
	case decode.PixelFormatYUV422P, decode.PixelFormatYUVJ422P:
		return 3, [3][2]int{{w, h}, {w / 2, h}, {w / 2, h}}
	case decode.PixelFormatYUV444P, decode.PixelFormatYUVJ444P:
		return 3, [3][2]int{{w, h}, {w, h}, {w, h}}
	case decode.PixelFormatYUV420P10:
		return 3, [3][2]int{{2 * w, h}, {w, h / 2}, {w, h / 2}}
	case decode.PixelFormatYUV422P10:
		return 3, [3][2]int{{2 * w, h}, {w, h}, {w, h}}
	case decode.PixelFormatYUV444P10:
		return 3, [3][2]int{{2 * w, h}, {2 * w, h}, {2 * w, h}}
	default:
		return 1, [3][2]int{{4 * w, h}}
	}
}

// Info implements decode.Session.
func (s *Session) Info() decode.Info {
	return s.info
}

// Remaining returns the number of packets not read yet.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packets) - s.next
}

// ReadPacket implements decode.Session.
func (s *Session) ReadPacket() (*decode.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Closed {
		return nil, decode.ErrClosed
	}
	if s.next >= len(s.packets) {
		return nil, io.EOF
	}
	pkt := s.packets[s.next]
	s.next++
	return pkt, nil
}

func (s *Session) decoder(stream int) *decoderState {
	d := s.decoders[stream]
	if d == nil {
		d = &decoderState{}
		s.decoders[stream] = d
	}
	return d
}

// SendPacket implements decode.Session.
func (s *Session) SendPacket(stream int, pkt *decode.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.decoder(stream)
	if d.closed {
		return fmt.Errorf("stream %d: %w", stream, decode.ErrClosed)
	}
	if pkt == nil {
		d.draining = true
		return nil
	}
	s.Sent[stream]++
	out, ok := s.outputs[pkt]
	if !ok {
		return fmt.Errorf("unknown packet for stream %d: %w", stream, decode.ErrDecode)
	}
	if out.corrupt {
		return fmt.Errorf("stream %d: %w", stream, decode.ErrDecode)
	}
	if out.frame != nil || out.audio != nil || out.subtitle != nil {
		d.pending = append(d.pending, out)
	}
	return nil
}

func (s *Session) receive(stream int) (output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.decoder(stream)
	if d.closed {
		return output{}, fmt.Errorf("stream %d: %w", stream, decode.ErrClosed)
	}
	if len(d.pending) > 0 {
		out := d.pending[0]
		d.pending = d.pending[1:]
		return out, nil
	}
	if d.draining {
		return output{}, io.EOF
	}
	return output{}, decode.ErrAgain
}

// ReceiveVideo implements decode.Session.
func (s *Session) ReceiveVideo(stream int) (*decode.RawFrame, error) {
	out, err := s.receive(stream)
	if err != nil {
		return nil, err
	}
	return out.frame, nil
}

// ReceiveAudio implements decode.Session.
func (s *Session) ReceiveAudio(stream int) (*decode.RawAudio, error) {
	out, err := s.receive(stream)
	if err != nil {
		return nil, err
	}
	return out.audio, nil
}

// ReceiveSubtitle implements decode.Session.
func (s *Session) ReceiveSubtitle(stream int) (*decode.RawSubtitle, error) {
	out, err := s.receive(stream)
	if err != nil {
		return nil, err
	}
	return out.subtitle, nil
}

// Flush implements decode.Session.
func (s *Session) Flush(stream int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Flushes[stream]++
	if s.FlushErr != nil {
		s.decoders[stream] = &decoderState{closed: true}
		return s.FlushErr
	}
	delete(s.decoders, stream)
	return nil
}

// Seek implements decode.Session. It positions the demuxer on the first
// packet at or after pos.
func (s *Session) Seek(pos int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Seeks = append(s.Seeks, pos)
	if s.SeekErr != nil {
		return s.SeekErr
	}
	s.next = len(s.packets)
	for i, p := range s.packets {
		if p.Time() >= pos {
			s.next = i
			break
		}
	}
	return nil
}

// Close implements decode.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Opener hands out prepared sessions by URL.
type Opener struct {
	mu       sync.Mutex
	sessions map[string]decode.Session
	errs     map[string]error
	Opened   []string
}

// NewOpener returns an empty Opener.
func NewOpener() *Opener {
	return &Opener{sessions: make(map[string]decode.Session), errs: make(map[string]error)}
}

// Add registers the session returned for url.
func (o *Opener) Add(url string, s decode.Session) *Opener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions[url] = s
	return o
}

// Fail makes opening url return err.
func (o *Opener) Fail(url string, err error) *Opener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs[url] = err
	return o
}

// Open implements decode.Opener.
func (o *Opener) Open(_ context.Context, url string, _ media.DeviceRequest) (decode.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Opened = append(o.Opened, url)
	if err := o.errs[url]; err != nil {
		return nil, err
	}
	s, ok := o.sessions[url]
	if !ok {
		return nil, fmt.Errorf("%s: no such file: %w", url, decode.ErrOpen)
	}
	return s, nil
}
