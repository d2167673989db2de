package player

import (
	"bytes"
	"testing"

	"github.com/zsiec/stereoscope/internal/media"
)

func TestCounterUnpacksViews(t *testing.T) {
	t.Parallel()

	// 4x2 BGRA, left half 0x11, right half 0x22.
	f := media.NewVideoFrame()
	f.RawWidth, f.RawHeight = 4, 2
	f.StereoLayout = media.LeftRight
	f.SetViewDimensions()
	f.PresentationTime = 0
	row := append(bytes.Repeat([]byte{0x11}, 8), bytes.Repeat([]byte{0x22}, 8)...)
	f.Data[0][0] = append(append([]byte(nil), row...), row...)
	f.LineSize[0][0] = len(row)

	c := &Counter{}
	if err := c.Prepare(f, media.NewSubtitleBox()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := c.Bytes.Load(); got != 32 {
		t.Errorf("bytes: got %d, want 32", got)
	}
	if want := bytes.Repeat([]byte{0x11}, 16); !bytes.Equal(c.views[0][0], want) {
		t.Errorf("left view: got %x, want %x", c.views[0][0], want)
	}
	if want := bytes.Repeat([]byte{0x22}, 16); !bytes.Equal(c.views[1][0], want) {
		t.Errorf("right view: got %x, want %x", c.views[1][0], want)
	}

	// The copy must not alias decoder memory.
	f.Data[0][0][0] = 0xff
	if c.views[0][0][0] != 0x11 {
		t.Error("view buffer shares memory with the frame")
	}

	f.StereoLayoutSwap = true
	if err := c.Prepare(f, media.NewSubtitleBox()); err != nil {
		t.Fatalf("Prepare swapped: %v", err)
	}
	if c.views[0][0][1] != 0x22 {
		t.Errorf("swapped left view: got %x, want 22", c.views[0][0][1])
	}
	if c.Prepared.Load() != 2 || c.Subtitles.Load() != 0 {
		t.Errorf("counters: prepared %d subtitles %d, want 2 and 0", c.Prepared.Load(), c.Subtitles.Load())
	}
}

func TestCounterMissingView(t *testing.T) {
	t.Parallel()

	f := media.NewVideoFrame()
	f.RawWidth, f.RawHeight = 2, 2
	f.StereoLayout = media.Separate
	f.SetViewDimensions()
	f.PresentationTime = 0
	f.Data[0][0] = make([]byte, 16)
	f.LineSize[0][0] = 8

	c := &Counter{}
	if err := c.Prepare(f, media.NewSubtitleBox()); err == nil {
		t.Error("Prepare of a frame without right view: expected error")
	}
}
