package object

import (
	"encoding/binary"
	"math"

	"github.com/zsiec/stereoscope/internal/decode"
	"github.com/zsiec/stereoscope/internal/media"
)

// outputSampleFormat maps a decoder sample format to the interleaved format
// handed to audio outputs. Signed 32 bit input is delivered as float.
func outputSampleFormat(f decode.SampleFormat) (media.SampleFormat, bool) {
	switch f {
	case decode.SampleFormatU8, decode.SampleFormatU8P:
		return media.U8, true
	case decode.SampleFormatS16, decode.SampleFormatS16P:
		return media.S16, true
	case decode.SampleFormatFlt, decode.SampleFormatFltP:
		return media.F32, true
	case decode.SampleFormatDbl, decode.SampleFormatDblP:
		return media.D64, true
	case decode.SampleFormatS32, decode.SampleFormatS32P:
		return media.F32, true
	default:
		return 0, false
	}
}

// appendPCM appends the samples of a decoded block to dst, interleaved and
// converted to the output sample format.
func appendPCM(dst []byte, a *decode.RawAudio) []byte {
	ss := a.SampleFormat.Bytes()
	if ss == 0 || a.Channels <= 0 {
		return dst
	}
	samples := a.Samples
	if avail := len(a.Data) / (a.Channels * ss); samples > avail {
		samples = avail
	}
	n := samples * a.Channels * ss

	start := len(dst)
	if a.SampleFormat.Planar() && a.Channels > 1 {
		plane := a.Samples * ss
		if plane*a.Channels > len(a.Data) {
			plane = samples * ss
		}
		for s := 0; s < samples; s++ {
			for c := 0; c < a.Channels; c++ {
				off := c*plane + s*ss
				dst = append(dst, a.Data[off:off+ss]...)
			}
		}
	} else {
		dst = append(dst, a.Data[:n]...)
	}

	if a.SampleFormat == decode.SampleFormatS32 || a.SampleFormat == decode.SampleFormatS32P {
		s32ToF32(dst[start:])
	}
	return dst
}

// s32ToF32 converts native endian int32 samples to float32 in place,
// mapping the full integer range onto [-1, 1].
func s32ToF32(buf []byte) {
	const (
		posDiv = float32(math.MaxInt32)
		negDiv = -float32(math.MinInt32)
	)
	for i := 0; i+4 <= len(buf); i += 4 {
		v := int32(binary.NativeEndian.Uint32(buf[i:]))
		var f float32
		if v >= 0 {
			f = float32(v) / posDiv
		} else {
			f = float32(v) / negDiv
		}
		binary.NativeEndian.PutUint32(buf[i:], math.Float32bits(f))
	}
}
