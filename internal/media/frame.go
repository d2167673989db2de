// Package media defines the frame, audio and subtitle types that flow from
// the decode layer through media objects and the media input to renderers
// and audio outputs.
package media

import (
	"fmt"
	"math"
)

// NoTime marks an unknown position or presentation time. All times are in
// microseconds.
const NoTime int64 = math.MinInt64

// VideoFrame describes one (possibly stereoscopic) video frame. The same
// type serves as a stream template, with no data and PresentationTime set to
// NoTime, and as a live frame returned by a read.
//
// Data and LineSize are borrowed from the decoder: they stay valid only until
// the next read on the stream that produced them. Callers that need the
// pixels longer must copy them, e.g. with Clone or CopyPlane.
type VideoFrame struct {
	// Dimensions of the decoded (packed) image.
	RawWidth       int
	RawHeight      int
	RawAspectRatio float64

	// Dimensions of one view, derived by SetViewDimensions.
	Width       int
	Height      int
	AspectRatio float64

	Layout         Layout
	ColorSpace     ColorSpace
	ValueRange     ValueRange
	ChromaLocation ChromaLocation

	StereoLayout     StereoLayout
	StereoLayoutSwap bool

	// Data holds up to 2 views of up to 3 planes. For single-stream layouts
	// only view 0 is set and contains the packed image.
	Data     [2][3][]byte
	LineSize [2][3]int

	PresentationTime int64
}

// NewVideoFrame returns an empty frame with default format values.
func NewVideoFrame() VideoFrame {
	return VideoFrame{
		RawAspectRatio:   1,
		AspectRatio:      1,
		Layout:           BGRA32,
		ColorSpace:       SRGB,
		ValueRange:       U8Full,
		ChromaLocation:   Center,
		StereoLayout:     Mono,
		PresentationTime: NoTime,
	}
}

// Valid reports whether the frame carries a decoded picture.
func (f *VideoFrame) Valid() bool {
	return f.PresentationTime != NoTime && f.Data[0][0] != nil
}

// SetViewDimensions derives Width, Height and AspectRatio from the raw
// values and the stereo layout. The half variants keep the aspect ratio
// because their views are meant to be stretched back to full size.
// EvenOddRows halves the height but keeps the aspect ratio as well; content
// in that layout is mastered with the packed aspect ratio.
func (f *VideoFrame) SetViewDimensions() {
	f.Width, f.Height, f.AspectRatio = ViewDimensions(f.RawWidth, f.RawHeight, f.RawAspectRatio, f.StereoLayout)
}

// ViewDimensions returns the per-view width, height and aspect ratio for a
// packed image of the given size.
func ViewDimensions(rawWidth, rawHeight int, rawAspect float64, layout StereoLayout) (int, int, float64) {
	w, h, a := rawWidth, rawHeight, rawAspect
	switch layout {
	case LeftRight:
		w /= 2
		a /= 2
	case LeftRightHalf:
		w /= 2
	case TopBottom:
		h /= 2
		a *= 2
	case TopBottomHalf:
		h /= 2
	case EvenOddRows:
		h /= 2
	}
	return w, h, a
}

// PackViewDimensions is the geometric inverse of ViewDimensions: it returns
// the packed image size and aspect ratio for views of the given size.
// EvenOddRows packs like TopBottom, so ViewDimensions(PackViewDimensions(x))
// does not restore the aspect ratio for that layout.
func PackViewDimensions(width, height int, aspect float64, layout StereoLayout) (int, int, float64) {
	w, h, a := width, height, aspect
	switch layout {
	case LeftRight:
		w *= 2
		a *= 2
	case LeftRightHalf:
		w *= 2
	case TopBottom, EvenOddRows:
		h *= 2
		a /= 2
	case TopBottomHalf:
		h *= 2
	}
	return w, h, a
}

// ComponentWidth returns the width in samples of the given plane of one view.
func (f *VideoFrame) ComponentWidth(plane int) int {
	switch {
	case f.Layout == BGRA32:
		return f.Width * 4
	case plane > 0 && (f.Layout == YUV422P || f.Layout == YUV420P):
		return f.Width / 2
	default:
		return f.Width
	}
}

// ComponentHeight returns the number of rows of the given plane of one view.
func (f *VideoFrame) ComponentHeight(plane int) int {
	if plane > 0 && f.Layout == YUV420P {
		return f.Height / 2
	}
	return f.Height
}

// PlaneRowSize returns the row size in bytes CopyPlane writes for the given
// plane. YUV rows are padded to a multiple of 4 bytes.
func (f *VideoFrame) PlaneRowSize(plane int) int {
	n := f.ComponentWidth(plane) * f.ValueRange.SampleBytes()
	if f.Layout != BGRA32 {
		n = (n + 3) / 4 * 4
	}
	return n
}

// PlaneSize returns the buffer size CopyPlane needs for the given plane.
func (f *VideoFrame) PlaneSize(plane int) int {
	return f.PlaneRowSize(plane) * f.ComponentHeight(plane)
}

// CopyPlane copies one plane of one view into dst, which must hold at least
// PlaneSize(plane) bytes. It unpacks single-stream layouts and honors the
// eye swap, so view 0 is always the left view.
func (f *VideoFrame) CopyPlane(view, plane int, dst []byte) error {
	if plane < 0 || plane >= f.Layout.Planes() {
		return fmt.Errorf("plane %d out of range for %s", plane, f.Layout)
	}
	if len(dst) < f.PlaneSize(plane) {
		return fmt.Errorf("destination too small: got %d bytes, need %d", len(dst), f.PlaneSize(plane))
	}
	if f.StereoLayoutSwap {
		view = 1 - view
	}

	rowBytes := f.ComponentWidth(plane) * f.ValueRange.SampleBytes()
	lines := f.ComponentHeight(plane)

	var src []byte
	var stride, offset int
	switch f.StereoLayout {
	case Mono:
		src, stride = f.Data[0][plane], f.LineSize[0][plane]
	case Separate, Alternating:
		src, stride = f.Data[view][plane], f.LineSize[view][plane]
	case TopBottom, TopBottomHalf:
		src, stride = f.Data[0][plane], f.LineSize[0][plane]
		offset = view * lines * stride
	case LeftRight, LeftRightHalf:
		src, stride = f.Data[0][plane], f.LineSize[0][plane]
		offset = view * rowBytes
	case EvenOddRows:
		src, stride = f.Data[0][plane], 2*f.LineSize[0][plane]
		offset = view * f.LineSize[0][plane]
	}
	if src == nil {
		return fmt.Errorf("view %d plane %d has no data", view, plane)
	}
	if need := offset + (lines-1)*stride + rowBytes; lines > 0 && need > len(src) {
		return fmt.Errorf("source plane too small: got %d bytes, need %d", len(src), need)
	}

	dstRow := f.PlaneRowSize(plane)
	for y := 0; y < lines; y++ {
		copy(dst[y*dstRow:y*dstRow+rowBytes], src[offset+y*stride:])
	}
	return nil
}

// FormatName returns a compact identifier of the frame format, e.g.
// "1920x1080-1.78:1-yuv420p-709-mpeg-l".
func (f *VideoFrame) FormatName() string {
	name := fmt.Sprintf("%dx%d-%.3g:1-%s-%s", f.RawWidth, f.RawHeight, f.RawAspectRatio, f.Layout, f.ColorSpace)
	if f.Layout != BGRA32 {
		name += "-" + f.ValueRange.String()
	}
	if f.Layout == YUV422P || f.Layout == YUV420P {
		name += "-" + f.ChromaLocation.String()
	}
	return name
}

// FormatInfo returns a short human readable description of the frame size.
func (f *VideoFrame) FormatInfo() string {
	return fmt.Sprintf("%dx%d, %.3g:1", f.RawWidth, f.RawHeight, f.AspectRatio)
}
