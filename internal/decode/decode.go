// Package decode defines the contract between the media pipeline and the
// demux/decode engine that turns an input URL into packets and decoded
// frames. The engine is an external collaborator: the FFmpeg binding lives
// in [github.com/zsiec/stereoscope/internal/decode/libav] and a scripted
// in-memory engine for tests lives in decodetest.
//
// A Session follows the send/receive model of FFmpeg: packets read from the
// shared demuxer are sent to the decoder of their stream, and decoded output
// is received until [ErrAgain] asks for more input. After a nil packet has
// been sent to drain a decoder, receive calls end with io.EOF.
package decode

import (
	"context"

	"github.com/zsiec/stereoscope/internal/media"
)

// Kind is the type of an elementary stream.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
	KindSubtitle
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// PixelFormat is the decoder's output pixel format, reduced to the classes
// the pipeline distinguishes. Everything in the Other class is converted to
// BGRA by the session before it is returned.
type PixelFormat int

const (
	PixelFormatOther PixelFormat = iota
	PixelFormatYUV444P
	PixelFormatYUV422P
	PixelFormatYUV420P
	PixelFormatYUV444P10
	PixelFormatYUV422P10
	PixelFormatYUV420P10
	PixelFormatYUVJ444P
	PixelFormatYUVJ422P
	PixelFormatYUVJ420P
)

// SampleFormat is the decoder's native audio sample format.
type SampleFormat int

const (
	SampleFormatOther SampleFormat = iota
	SampleFormatU8
	SampleFormatU8P
	SampleFormatS16
	SampleFormatS16P
	SampleFormatS32
	SampleFormatS32P
	SampleFormatFlt
	SampleFormatFltP
	SampleFormatDbl
	SampleFormatDblP
)

// Planar reports whether each channel is stored in its own plane.
func (s SampleFormat) Planar() bool {
	switch s {
	case SampleFormatU8P, SampleFormatS16P, SampleFormatS32P, SampleFormatFltP, SampleFormatDblP:
		return true
	default:
		return false
	}
}

// Bytes returns the size of one sample.
func (s SampleFormat) Bytes() int {
	switch s {
	case SampleFormatU8, SampleFormatU8P:
		return 1
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatS32, SampleFormatS32P, SampleFormatFlt, SampleFormatFltP:
		return 4
	case SampleFormatDbl, SampleFormatDblP:
		return 8
	default:
		return 0
	}
}

// StreamInfo describes one elementary stream of a session.
type StreamInfo struct {
	// Index is the position in Info.Streams and the StreamIndex of the
	// stream's packets.
	Index int
	Kind  Kind
	Codec string

	// Duration in microseconds, or media.NoTime when unknown.
	Duration int64

	Tags map[string]string

	// Video.
	Width          int
	Height         int
	SARNum         int
	SARDen         int
	FrameRateNum   int
	FrameRateDen   int
	PixelFormat    PixelFormat
	BT709          bool
	FullRange      bool
	ChromaLocation media.ChromaLocation

	// FramePacking is a stereo_mode style value derived from the
	// bitstream, filled in by inspectors such as demux.Inspector.
	FramePacking string

	// Audio.
	Channels     int
	SampleRate   int
	SampleFormat SampleFormat

	// Subtitle.
	SubtitleFormat media.SubtitleFormat
}

// Info describes an opened input.
type Info struct {
	Streams []StreamInfo

	// Tags holds container level metadata.
	Tags map[string]string

	// Duration of the whole input in microseconds, or media.NoTime.
	Duration int64

	// Live is true for capture devices and network sources that cannot seek
	// and deliver packets in real time.
	Live bool
}

// Packet is one compressed unit of a stream. Times are in microseconds,
// media.NoTime when unknown.
type Packet struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	Duration    int64
	Keyframe    bool
	Data        []byte
}

// Time returns the packet's decode timestamp, or its presentation timestamp
// when the former is unknown.
func (p *Packet) Time() int64 {
	if p.DTS != media.NoTime {
		return p.DTS
	}
	return p.PTS
}

// RawFrame is one decoded picture. Planes are borrowed from the session and
// stay valid until the next receive on the same stream.
type RawFrame struct {
	Width       int
	Height      int
	PixelFormat PixelFormat
	Planes      [3][]byte
	LineSize    [3]int
	PTS         int64
}

// RawAudio is a block of decoded samples in the stream's native format.
// Planar formats store the channels one after another, each plane Samples
// long. Data is borrowed until the next receive on the same stream.
type RawAudio struct {
	Samples      int
	Channels     int
	SampleFormat SampleFormat
	Data         []byte
	PTS          int64
}

// RawSubtitle is one decoded subtitle event.
type RawSubtitle struct {
	Format media.SubtitleFormat
	Text   string
	Start  int64
	Stop   int64
}

// Session is one opened input of the decode engine. Implementations need
// not be safe for concurrent use; callers serialize access per session.
type Session interface {
	// Info returns the streams and metadata found when opening.
	Info() Info

	// ReadPacket returns the next packet of any stream, or io.EOF.
	ReadPacket() (*Packet, error)

	// SendPacket feeds a packet to the decoder of the given stream. A nil
	// packet starts draining the decoder.
	SendPacket(stream int, pkt *Packet) error

	// ReceiveVideo returns the next decoded frame of a video stream,
	// ErrAgain when more input is needed, or io.EOF once drained.
	ReceiveVideo(stream int) (*RawFrame, error)

	// ReceiveAudio returns the next decoded block of an audio stream.
	ReceiveAudio(stream int) (*RawAudio, error)

	// ReceiveSubtitle returns the next decoded event of a subtitle stream.
	ReceiveSubtitle(stream int) (*RawSubtitle, error)

	// Flush discards the decoder state of a stream after a seek. After a
	// failed flush the stream's sends and receives return ErrClosed.
	Flush(stream int) error

	// Seek moves the demuxer to the given position in microseconds.
	Seek(pos int64) error

	Close() error
}

// Opener opens sessions.
type Opener interface {
	Open(ctx context.Context, url string, dev media.DeviceRequest) (Session, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string, dev media.DeviceRequest) (Session, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, url string, dev media.DeviceRequest) (Session, error) {
	return f(ctx, url, dev)
}
