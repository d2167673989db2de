package media

import "fmt"

// StereoLayout describes how the left and right views are stored.
type StereoLayout int

// Stereo layouts. The zero value is Mono.
const (
	Mono          StereoLayout = iota // one view: the center view
	Separate                          // two streams, one per view
	Alternating                       // one stream, views stored consecutively
	TopBottom                         // left view on top, right view below
	TopBottomHalf                     // as TopBottom, each view at half height
	LeftRight                         // left view left, right view right
	LeftRightHalf                     // as LeftRight, each view at half width
	EvenOddRows                       // left view on even rows, right view on odd rows
)

func (l StereoLayout) String() string {
	switch l {
	case Mono:
		return "mono"
	case Separate:
		return "separate"
	case Alternating:
		return "alternating"
	case TopBottom:
		return "top_bottom"
	case TopBottomHalf:
		return "top_bottom_half"
	case LeftRight:
		return "left_right"
	case LeftRightHalf:
		return "left_right_half"
	case EvenOddRows:
		return "even_odd_rows"
	default:
		return fmt.Sprintf("StereoLayout(%d)", int(l))
	}
}

// Views returns the number of views the layout carries.
func (l StereoLayout) Views() int {
	if l == Mono {
		return 1
	}
	return 2
}

var stereoLayoutNames = []struct {
	name   string
	layout StereoLayout
	swap   bool
}{
	{"mono", Mono, false},
	{"separate-left-right", Separate, false},
	{"separate-right-left", Separate, true},
	{"alternating-left-right", Alternating, false},
	{"alternating-right-left", Alternating, true},
	{"top-bottom", TopBottom, false},
	{"bottom-top", TopBottom, true},
	{"top-bottom-half", TopBottomHalf, false},
	{"bottom-top-half", TopBottomHalf, true},
	{"left-right", LeftRight, false},
	{"right-left", LeftRight, true},
	{"left-right-half", LeftRightHalf, false},
	{"right-left-half", LeftRightHalf, true},
	{"even-odd-rows", EvenOddRows, false},
	{"odd-even-rows", EvenOddRows, true},
}

// StereoLayoutString returns the user-facing name of a layout/swap pair,
// e.g. "right-left-half". Mono ignores swap.
func StereoLayoutString(layout StereoLayout, swap bool) string {
	if layout == Mono {
		return "mono"
	}
	for _, n := range stereoLayoutNames {
		if n.layout == layout && n.swap == swap {
			return n.name
		}
	}
	return layout.String()
}

// ParseStereoLayout is the inverse of StereoLayoutString.
func ParseStereoLayout(s string) (StereoLayout, bool, error) {
	for _, n := range stereoLayoutNames {
		if n.name == s {
			return n.layout, n.swap, nil
		}
	}
	return Mono, false, fmt.Errorf("unknown stereo layout %q", s)
}

// Layout is the pixel layout of decoded video data.
type Layout int

const (
	BGRA32  Layout = iota // single plane, 4 bytes per pixel
	YUV444P               // three planes, full resolution chroma
	YUV422P               // three planes, chroma halved horizontally
	YUV420P               // three planes, chroma halved in both directions
)

func (l Layout) String() string {
	switch l {
	case BGRA32:
		return "bgra32"
	case YUV444P:
		return "yuv444p"
	case YUV422P:
		return "yuv422p"
	case YUV420P:
		return "yuv420p"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// Planes returns the number of data planes for the layout.
func (l Layout) Planes() int {
	if l == BGRA32 {
		return 1
	}
	return 3
}

// ColorSpace tells how to interpret decoded samples.
type ColorSpace int

const (
	SRGB   ColorSpace = iota
	YUV601            // BT.601
	YUV709            // BT.709
)

func (c ColorSpace) String() string {
	switch c {
	case SRGB:
		return "srgb"
	case YUV601:
		return "601"
	case YUV709:
		return "709"
	default:
		return fmt.Sprintf("ColorSpace(%d)", int(c))
	}
}

// ValueRange is the sample value range and bit depth.
type ValueRange int

const (
	U8Full  ValueRange = iota // 0-255
	U8MPEG                    // 16-235 luma, 16-240 chroma
	U10Full                   // 0-1023
	U10MPEG                   // 64-940 luma, 64-960 chroma
)

func (v ValueRange) String() string {
	switch v {
	case U8Full:
		return "jpeg"
	case U8MPEG:
		return "mpeg"
	case U10Full:
		return "jpeg10"
	case U10MPEG:
		return "mpeg10"
	default:
		return fmt.Sprintf("ValueRange(%d)", int(v))
	}
}

// SampleBytes returns the storage size of one sample component.
func (v ValueRange) SampleBytes() int {
	if v == U10Full || v == U10MPEG {
		return 2
	}
	return 1
}

// ChromaLocation is the position of subsampled chroma samples.
type ChromaLocation int

const (
	Center ChromaLocation = iota
	Left
	TopLeft
)

func (c ChromaLocation) String() string {
	switch c {
	case Center:
		return "c"
	case Left:
		return "l"
	case TopLeft:
		return "tl"
	default:
		return fmt.Sprintf("ChromaLocation(%d)", int(c))
	}
}
