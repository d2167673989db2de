package stereo

import (
	"testing"

	"github.com/zsiec/stereoscope/internal/media"
)

func TestMarker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{"movie-lr.mp4", "lr"},
		{"/videos/Some-Movie-RLH.mkv", "rlh"},
		{"C:\\videos\\clip-tb.avi", "tb"},
		{"http://example.com/a/b/trailer-3dir.ts", "3dir"},
		{"nomarker.mp4", ""},
		{"dir-with-dash/plain.mp4", ""},
		{"noext-eo", "eo"},
	}
	for _, tt := range tests {
		if got := Marker(tt.url); got != tt.want {
			t.Errorf("Marker(%q): got %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestResolveMarkerTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		marker string
		layout media.StereoLayout
		swap   bool
	}{
		{"lr", media.LeftRight, false},
		{"rl", media.LeftRight, true},
		{"lrh", media.LeftRightHalf, false},
		{"lrq", media.LeftRightHalf, false},
		{"rlh", media.LeftRightHalf, true},
		{"rlq", media.LeftRightHalf, true},
		{"tb", media.TopBottom, false},
		{"ab", media.TopBottom, false},
		{"bt", media.TopBottom, true},
		{"ba", media.TopBottom, true},
		{"tbh", media.TopBottomHalf, false},
		{"abq", media.TopBottomHalf, false},
		{"bth", media.TopBottomHalf, true},
		{"baq", media.TopBottomHalf, true},
		{"eo", media.EvenOddRows, false},
		{"oe", media.EvenOddRows, true},
		{"eoq", media.EvenOddRows, false},
		{"oeq", media.EvenOddRows, true},
		{"3dir", media.EvenOddRows, false},
		{"3di", media.EvenOddRows, true},
		{"2d", media.Mono, false},
	}
	for _, tt := range tests {
		t.Run(tt.marker, func(t *testing.T) {
			t.Parallel()
			got := Resolve(Hints{Width: 1920, Height: 1080, URL: "clip-" + tt.marker + ".mkv"})
			if got.Layout != tt.layout || got.Swap != tt.swap {
				t.Errorf("got %s/%v, want %s/%v", got.Layout, got.Swap, tt.layout, tt.swap)
			}
		})
	}
}

func TestResolveTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		tags   map[string]string
		layout media.StereoLayout
		swap   bool
	}{
		{"sbs lf", map[string]string{TagLayout: "SideBySideLF"}, media.LeftRight, false},
		{"sbs rf", map[string]string{TagLayout: "SideBySideRF"}, media.LeftRight, true},
		{"sbs half", map[string]string{TagLayout: "SideBySideLF", TagHalfWidth: "1"}, media.LeftRightHalf, false},
		{"ou lt", map[string]string{TagLayout: "OverUnderLT"}, media.TopBottom, false},
		{"ou rt half", map[string]string{TagLayout: "OverUnderRT", TagHalfHeight: "1"}, media.TopBottomHalf, true},
		{"unknown value", map[string]string{TagLayout: "Diagonal"}, media.Mono, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Resolve(Hints{Width: 1920, Height: 1080, URL: "plain.mkv", Tags: tt.tags})
			if got.Layout != tt.layout || got.Swap != tt.swap {
				t.Errorf("got %s/%v, want %s/%v", got.Layout, got.Swap, tt.layout, tt.swap)
			}
		})
	}
}

func TestFromStereoMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode   string
		w, h   int
		layout media.StereoLayout
		swap   bool
		ok     bool
	}{
		{"mono", 1920, 1080, media.Mono, false, true},
		{"left_right", 3840, 1080, media.LeftRight, false, true},
		{"left_right", 1920, 1080, media.LeftRightHalf, false, true},
		{"right_left", 3840, 1080, media.LeftRight, true, true},
		{"top_bottom", 1920, 2160, media.TopBottom, false, true},
		{"top_bottom", 1920, 1080, media.TopBottomHalf, false, true},
		{"bottom_top", 1920, 1080, media.TopBottomHalf, true, true},
		{"row_interleaved_lr", 1920, 1080, media.EvenOddRows, false, true},
		{"row_interleaved_rl", 1920, 1080, media.EvenOddRows, true, true},
		{"block_lr", 1920, 1080, media.Alternating, false, true},
		{"block_rl", 1920, 1080, media.Alternating, true, true},
		{"checkerboard_lr", 1920, 1080, media.Mono, false, false},
		{"", 1920, 1080, media.Mono, false, false},
	}
	for _, tt := range tests {
		got, ok := FromStereoMode(tt.mode, tt.w, tt.h)
		if ok != tt.ok {
			t.Errorf("FromStereoMode(%q) ok: got %v, want %v", tt.mode, ok, tt.ok)
			continue
		}
		if ok && (got.Layout != tt.layout || got.Swap != tt.swap) {
			t.Errorf("FromStereoMode(%q, %d, %d): got %s/%v, want %s/%v", tt.mode, tt.w, tt.h, got.Layout, got.Swap, tt.layout, tt.swap)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()

	// Filename marker wins over container tags.
	got := Resolve(Hints{
		Width: 3840, Height: 1080, URL: "movie-tb.mkv",
		Tags: map[string]string{TagLayout: "SideBySideLF"},
	})
	if got.Layout != media.TopBottom {
		t.Errorf("marker vs tag: got %s, want %s", got.Layout, media.TopBottom)
	}

	// StereoscopicLayout wins over the stream stereo_mode.
	got = Resolve(Hints{
		Width: 1920, Height: 1080, URL: "movie.mkv",
		Tags:             map[string]string{TagLayout: "OverUnderLT"},
		StreamStereoMode: "left_right",
	})
	if got.Layout != media.TopBottom {
		t.Errorf("tag vs stereo_mode: got %s, want %s", got.Layout, media.TopBottom)
	}

	// stereo_mode wins over the frame packing hint.
	got = Resolve(Hints{Width: 1920, Height: 1080, URL: "a.mkv", StreamStereoMode: "mono", FramePacking: "left_right"})
	if got.Layout != media.Mono {
		t.Errorf("stereo_mode vs frame packing: got %s, want %s", got.Layout, media.Mono)
	}

	// An unknown stereo_mode means mono, even where dimensions or frame
	// packing suggest otherwise.
	got = Resolve(Hints{Width: 3840, Height: 1080, URL: "wide.mkv", StreamStereoMode: "checkerboard_lr"})
	if got.Layout != media.Mono || got.Swap {
		t.Errorf("unknown stereo_mode vs dimensions: got %s/%v, want %s/false", got.Layout, got.Swap, media.Mono)
	}
	got = Resolve(Hints{Width: 1920, Height: 1080, URL: "a.mkv", StreamStereoMode: "anaglyph_cyan_red", FramePacking: "left_right"})
	if got.Layout != media.Mono {
		t.Errorf("unknown stereo_mode vs frame packing: got %s, want %s", got.Layout, media.Mono)
	}
	// The file name marker still decides first.
	got = Resolve(Hints{Width: 3840, Height: 1080, URL: "wide-lr.mkv", StreamStereoMode: "checkerboard_lr"})
	if got.Layout != media.LeftRight {
		t.Errorf("marker vs unknown stereo_mode: got %s, want %s", got.Layout, media.LeftRight)
	}

	// Frame packing alone.
	got = Resolve(Hints{Width: 1920, Height: 1080, URL: "a.h264", FramePacking: "top_bottom"})
	if got.Layout != media.TopBottomHalf {
		t.Errorf("frame packing: got %s, want %s", got.Layout, media.TopBottomHalf)
	}

	// Tags win over the extension.
	got = Resolve(Hints{Width: 1920, Height: 1080, URL: "photo.jps", Tags: map[string]string{TagLayout: "OverUnderLT"}})
	if got.Layout != media.TopBottom || got.Swap {
		t.Errorf("tag vs extension: got %s/%v, want %s/false", got.Layout, got.Swap, media.TopBottom)
	}

	// Extension wins over dimensions.
	got = Resolve(Hints{Width: 1000, Height: 2000, URL: "photo.JPS"})
	if got.Layout != media.LeftRight || !got.Swap {
		t.Errorf("extension: got %s/%v, want %s/true", got.Layout, got.Swap, media.LeftRight)
	}
	got = Resolve(Hints{Width: 1000, Height: 2000, URL: "camera.mpo"})
	if got.Layout != media.Alternating {
		t.Errorf("mpo: got %s, want %s", got.Layout, media.Alternating)
	}
}

func TestResolveDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		w, h   int
		layout media.StereoLayout
	}{
		{3840, 1080, media.LeftRight},
		{2160, 1080, media.Mono},
		{2162, 1080, media.LeftRight},
		{1920, 2160, media.TopBottom},
		{1080, 1080, media.Mono},
		{1920, 1080, media.Mono},
	}
	for _, tt := range tests {
		got := Resolve(Hints{Width: tt.w, Height: tt.h, URL: "plain.mp4"})
		if got.Layout != tt.layout || got.Swap {
			t.Errorf("%dx%d: got %s/%v, want %s/false", tt.w, tt.h, got.Layout, got.Swap, tt.layout)
		}
	}
}

// For every layout that splits a dimension, an odd size in that dimension
// resolves to mono without swap, whatever the hint source.
func TestResolveOddDimensionFallsBackToMono(t *testing.T) {
	t.Parallel()

	hints := []Hints{
		{URL: "a-lr.mp4"}, {URL: "a-rl.mp4"}, {URL: "a-lrh.mp4"}, {URL: "a-rlq.mp4"},
		{URL: "a-tb.mp4"}, {URL: "a-bt.mp4"}, {URL: "a-tbh.mp4"}, {URL: "a-baq.mp4"},
		{URL: "a-eo.mp4"}, {URL: "a-oe.mp4"},
		{URL: "a.mkv", Tags: map[string]string{TagLayout: "SideBySideRF"}},
		{URL: "a.mkv", Tags: map[string]string{TagLayout: "OverUnderRT"}},
		{URL: "a.mkv", StreamStereoMode: "row_interleaved_rl"},
		{URL: "a.jps"},
		{URL: "a.mp4"},
	}
	for _, h := range hints {
		for w := 1; w < 40; w += 3 {
			for hgt := 1; hgt < 40; hgt += 4 {
				h.Width, h.Height = w, hgt
				got := Resolve(h)
				if !Supported(got.Layout, w, hgt, false) {
					t.Fatalf("%+v: resolved unsupported layout %s", h, got.Layout)
				}
				if got.Layout == media.Mono && got.Swap {
					t.Fatalf("%+v: mono with swap", h)
				}
			}
		}
	}
}

func TestResolveScenarios(t *testing.T) {
	t.Parallel()

	// A 3840x1080 file named movie-lr.mp4 is side-by-side with full-width views.
	got := Resolve(Hints{Width: 3840, Height: 1080, URL: "movie-lr.mp4"})
	if got.Layout != media.LeftRight || got.Swap {
		t.Errorf("movie-lr.mp4: got %s/%v, want left_right/false", got.Layout, got.Swap)
	}
	w, _, a := media.ViewDimensions(3840, 1080, 32.0/9.0, got.Layout)
	if w != 1920 || a != 16.0/9.0 {
		t.Errorf("view: got width %d aspect %g, want 1920 and %g", w, a, 16.0/9.0)
	}

	// A 1920x1081 file tagged over-under cannot be split and plays as mono.
	got = Resolve(Hints{Width: 1920, Height: 1081, URL: "odd.mkv", Tags: map[string]string{TagLayout: "OverUnderLT"}})
	if got.Layout != media.Mono || got.Swap {
		t.Errorf("odd height: got %s/%v, want mono/false", got.Layout, got.Swap)
	}
}

func TestSupported(t *testing.T) {
	t.Parallel()

	if Supported(media.Separate, 1920, 1080, false) {
		t.Error("separate without a second stream reported supported")
	}
	if !Supported(media.Separate, 1921, 1081, true) {
		t.Error("separate with a second stream reported unsupported")
	}
	if !Supported(media.Mono, 1, 1, false) || !Supported(media.Alternating, 1, 1, false) {
		t.Error("mono and alternating must support any size")
	}
	if Supported(media.LeftRightHalf, 1921, 1080, false) {
		t.Error("left_right_half with odd width reported supported")
	}
	if !Supported(media.LeftRight, 1920, 1081, false) {
		t.Error("left_right with odd height reported unsupported")
	}
}
