package media

import "fmt"

// SampleFormat is the format of interleaved audio samples.
type SampleFormat int

const (
	U8  SampleFormat = iota // unsigned 8 bit
	S16                     // signed 16 bit, native endian
	F32                     // 32 bit float
	D64                     // 64 bit float
)

func (s SampleFormat) String() string {
	switch s {
	case U8:
		return "u8"
	case S16:
		return "s16"
	case F32:
		return "f32"
	case D64:
		return "d64"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(s))
	}
}

// Bits returns the sample size in bits.
func (s SampleFormat) Bits() int {
	switch s {
	case U8:
		return 8
	case S16:
		return 16
	case F32:
		return 32
	case D64:
		return 64
	default:
		return 0
	}
}

// ValidChannelCount reports whether the audio output path can handle n
// channels. Three and five channel layouts have no speaker mapping there.
func ValidChannelCount(n int) bool {
	switch n {
	case 1, 2, 4, 6, 7, 8:
		return true
	default:
		return false
	}
}

// AudioBlob is a chunk of interleaved audio samples. As a stream template
// it has no data and PresentationTime is NoTime. Data is borrowed from the
// media object that produced it and stays valid until the next read on that
// stream.
type AudioBlob struct {
	Language     string
	Channels     int
	Rate         int
	SampleFormat SampleFormat

	Data             []byte
	PresentationTime int64
}

// NewAudioBlob returns an empty blob.
func NewAudioBlob() AudioBlob {
	return AudioBlob{Channels: -1, Rate: -1, PresentationTime: NoTime}
}

// Valid reports whether the blob carries samples.
func (b *AudioBlob) Valid() bool {
	return b.PresentationTime != NoTime && len(b.Data) > 0
}

// SampleBits returns the size of one sample in bits.
func (b *AudioBlob) SampleBits() int {
	return b.SampleFormat.Bits()
}

// FrameSize returns the size in bytes of one sample for every channel.
func (b *AudioBlob) FrameSize() int {
	return b.Channels * b.SampleBits() / 8
}

// Duration returns the play time of n bytes in microseconds.
func (b *AudioBlob) Duration(n int) int64 {
	fs := b.FrameSize()
	if fs <= 0 || b.Rate <= 0 {
		return 0
	}
	return int64(n/fs) * 1_000_000 / int64(b.Rate)
}

func (b *AudioBlob) language() string {
	if b.Language == "" {
		return "unknown"
	}
	return b.Language
}

// FormatInfo returns a short human readable description, e.g.
// "eng, 2 ch., 48 kHz, 16 bit".
func (b *AudioBlob) FormatInfo() string {
	return fmt.Sprintf("%s, %d ch., %g kHz, %d bit", b.language(), b.Channels, float64(b.Rate)/1e3, b.SampleBits())
}

// FormatName returns a compact identifier, e.g. "eng-2-48000-s16".
func (b *AudioBlob) FormatName() string {
	return fmt.Sprintf("%s-%d-%d-%s", b.language(), b.Channels, b.Rate, b.SampleFormat)
}
