// Package stereo decides how the two eye views of a video stream are packed
// into its decoded frames.
//
// Resolve combines, in order of precedence, a marker in the file name,
// container metadata, the file extension and the frame dimensions. The
// result is always checked against the frame size: a layout that would split
// an odd dimension falls back to mono.
package stereo

import (
	"path"
	"strings"

	"github.com/zsiec/stereoscope/internal/media"
)

// Container tags consulted by Resolve.
const (
	TagLayout     = "StereoscopicLayout"
	TagHalfWidth  = "StereoscopicHalfWidth"
	TagHalfHeight = "StereoscopicHalfHeight"
)

// Hints is everything known about a video stream that may reveal its layout.
type Hints struct {
	Width  int
	Height int

	// URL is the input location; its base name may carry a layout marker
	// such as "movie-lr.mkv".
	URL string

	// Tags holds container level metadata.
	Tags map[string]string

	// StreamStereoMode is the stream level "stereo_mode" tag (Matroska). An
	// unknown value resolves to mono unless a file name marker or
	// StereoscopicLayout tag decides first.
	StreamStereoMode string

	// FramePacking is a stereo_mode style value derived from an H.264
	// frame packing arrangement SEI, if any.
	FramePacking string
}

// Result is a resolved layout.
type Result struct {
	Layout media.StereoLayout
	Swap   bool
}

type markerEntry struct {
	layout media.StereoLayout
	swap   bool
}

// markers follows the naming convention used by stereoscopic content
// distributors and players. It must not be changed.
var markers = map[string]markerEntry{
	"lr":   {media.LeftRight, false},
	"rl":   {media.LeftRight, true},
	"lrh":  {media.LeftRightHalf, false},
	"lrq":  {media.LeftRightHalf, false},
	"rlh":  {media.LeftRightHalf, true},
	"rlq":  {media.LeftRightHalf, true},
	"tb":   {media.TopBottom, false},
	"ab":   {media.TopBottom, false},
	"bt":   {media.TopBottom, true},
	"ba":   {media.TopBottom, true},
	"tbh":  {media.TopBottomHalf, false},
	"abq":  {media.TopBottomHalf, false},
	"bth":  {media.TopBottomHalf, true},
	"baq":  {media.TopBottomHalf, true},
	"eo":   {media.EvenOddRows, false},
	"oe":   {media.EvenOddRows, true},
	"eoq":  {media.EvenOddRows, false},
	"oeq":  {media.EvenOddRows, true},
	"3dir": {media.EvenOddRows, false},
	"3di":  {media.EvenOddRows, true},
	"2d":   {media.Mono, false},
}

// Marker returns the lowercased token after the last '-' of the URL's base
// name, without extension. It returns "" when there is no such token.
func Marker(url string) string {
	base := path.Base(strings.ReplaceAll(url, "\\", "/"))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	i := strings.LastIndexByte(base, '-')
	if i < 0 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// Resolve determines the stereo layout for a single video stream.
func Resolve(h Hints) Result {
	r, ok := fromMarker(h.URL)
	if !ok {
		r, ok = fromTags(h)
	}
	if !ok {
		r, ok = fromExtension(h.URL)
	}
	if !ok {
		r = fromDimensions(h.Width, h.Height)
	}
	if !Supported(r.Layout, h.Width, h.Height, false) {
		return Result{Layout: media.Mono}
	}
	return r
}

// Supported reports whether a frame of the given raw size can be split
// according to layout. Separate additionally requires a compatible second
// stream, reported by separateOK.
func Supported(layout media.StereoLayout, width, height int, separateOK bool) bool {
	switch layout {
	case media.LeftRight, media.LeftRightHalf:
		return width%2 == 0
	case media.TopBottom, media.TopBottomHalf, media.EvenOddRows:
		return height%2 == 0
	case media.Separate:
		return separateOK
	default:
		return true
	}
}

func fromMarker(url string) (Result, bool) {
	m, ok := markers[Marker(url)]
	if !ok {
		return Result{}, false
	}
	return Result{Layout: m.layout, Swap: m.swap}, true
}

func fromTags(h Hints) (Result, bool) {
	switch v := h.Tags[TagLayout]; v {
	case "SideBySideRF", "SideBySideLF":
		r := Result{Layout: media.LeftRight, Swap: v == "SideBySideRF"}
		if h.Tags[TagHalfWidth] == "1" {
			r.Layout = media.LeftRightHalf
		}
		return r, true
	case "OverUnderRT", "OverUnderLT":
		r := Result{Layout: media.TopBottom, Swap: v == "OverUnderRT"}
		if h.Tags[TagHalfHeight] == "1" {
			r.Layout = media.TopBottomHalf
		}
		return r, true
	}
	if h.StreamStereoMode != "" {
		if r, ok := FromStereoMode(h.StreamStereoMode, h.Width, h.Height); ok {
			return r, true
		}
		// A declared layout that cannot be shown is shown flat.
		return Result{Layout: media.Mono}, true
	}
	return FromStereoMode(h.FramePacking, h.Width, h.Height)
}

// FromStereoMode maps a Matroska style stereo_mode value to a layout. Full
// size side-by-side and over-under are told apart from their half variants
// by the frame shape. It returns false for empty or unknown values.
func FromStereoMode(mode string, width, height int) (Result, bool) {
	switch mode {
	case "mono":
		return Result{Layout: media.Mono}, true
	case "left_right", "right_left":
		r := Result{Layout: media.LeftRightHalf, Swap: mode == "right_left"}
		if width/2 > height {
			r.Layout = media.LeftRight
		}
		return r, true
	case "top_bottom", "bottom_top":
		r := Result{Layout: media.TopBottomHalf, Swap: mode == "bottom_top"}
		if height > width {
			r.Layout = media.TopBottom
		}
		return r, true
	case "row_interleaved_lr", "row_interleaved_rl":
		return Result{Layout: media.EvenOddRows, Swap: mode == "row_interleaved_rl"}, true
	case "block_lr", "block_rl":
		return Result{Layout: media.Alternating, Swap: mode == "block_rl"}, true
	}
	return Result{}, false
}

// KnownStereoMode reports whether FromStereoMode understands mode.
func KnownStereoMode(mode string) bool {
	_, ok := FromStereoMode(mode, 0, 0)
	return ok
}

func fromExtension(url string) (Result, bool) {
	switch strings.ToLower(path.Ext(url)) {
	case ".mpo":
		return Result{Layout: media.Alternating}, true
	case ".jps", ".pns":
		return Result{Layout: media.LeftRight, Swap: true}, true
	}
	return Result{}, false
}

func fromDimensions(width, height int) Result {
	switch {
	case width > 2*height:
		return Result{Layout: media.LeftRight}
	case height > width:
		return Result{Layout: media.TopBottom}
	default:
		return Result{Layout: media.Mono}
	}
}
