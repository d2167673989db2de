package input

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/zsiec/stereoscope/internal/decode"
	"github.com/zsiec/stereoscope/internal/decode/decodetest"
	"github.com/zsiec/stereoscope/internal/media"
)

type source struct {
	url  string
	sess *decodetest.Session
}

func openInput(t *testing.T, sources ...source) *Input {
	t.Helper()
	opener := decodetest.NewOpener()
	urls := make([]string, len(sources))
	for i, src := range sources {
		opener.Add(src.url, src.sess)
		urls[i] = src.url
	}
	in := New(opener, nil)
	if err := in.Open(context.Background(), urls, media.DeviceRequest{}); err != nil {
		t.Fatalf("Open(%v): %v", urls, err)
	}
	t.Cleanup(in.Close)
	return in
}

func video(width, height, rateNum, rateDen int) decode.StreamInfo {
	st := decodetest.Video(width, height)
	st.FrameRateNum, st.FrameRateDen = rateNum, rateDen
	return st
}

// expectMisuse fails the test unless fn panics with a ProgrammingError.
func expectMisuse(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if _, ok := r.(ProgrammingError); !ok {
			t.Errorf("%s: got panic %v, want ProgrammingError", name, r)
		}
	}()
	fn()
}

func TestSeparateStreamsFromTwoFiles(t *testing.T) {
	t.Parallel()

	left := decodetest.New(video(1920, 1080, 24000, 1001))
	right := decodetest.New(video(1920, 1080, 24000, 1001))
	lv := left.AddVideo(0, 0)
	rv := right.AddVideo(0, 0)
	in := openInput(t, source{"/movies/left.mkv", left}, source{"/movies/right.mkv", right})

	if !in.SupportsStereoLayoutSeparate() {
		t.Fatal("separate layout not supported")
	}
	if got := in.ID(); got != "left.mkv/right.mkv" {
		t.Errorf("id: got %q, want left.mkv/right.mkv", got)
	}
	tmpl := in.VideoFrameTemplate()
	if tmpl.StereoLayout != media.Separate || tmpl.Width != 1920 || tmpl.Height != 1080 {
		t.Errorf("template: got %v %dx%d, want separate 1920x1080", tmpl.StereoLayout, tmpl.Width, tmpl.Height)
	}
	if num, den := in.VideoFrameRate(); num != 24000 || den != 1001 {
		t.Errorf("frame rate: got %d/%d, want 24000/1001", num, den)
	}
	if got := in.VideoFrameDuration(); got != 41_708 {
		t.Errorf("frame duration: got %d, want 41708", got)
	}

	in.StartVideoFrameRead()
	f := in.FinishVideoFrameRead()
	if !f.Valid() {
		t.Fatal("stereo frame invalid")
	}
	if f.StereoLayout != media.Separate || f.Width != 1920 || f.Height != 1080 {
		t.Errorf("frame: got %v %dx%d, want separate 1920x1080", f.StereoLayout, f.Width, f.Height)
	}
	if f.Data[0][0][0] != lv || f.Data[1][0][0] != rv {
		t.Errorf("views: got %d/%d, want %d/%d", f.Data[0][0][0], f.Data[1][0][0], lv, rv)
	}
	if f.LineSize[1][0] != 4*1920 {
		t.Errorf("right view line size: got %d, want %d", f.LineSize[1][0], 4*1920)
	}
}

func TestSeparatePairDropsIncompleteFrames(t *testing.T) {
	t.Parallel()

	left := decodetest.New(video(16, 8, 25, 1))
	right := decodetest.New(video(16, 8, 25, 1))
	for i := 0; i < 3; i++ {
		left.AddVideo(0, int64(i)*40_000)
	}
	right.AddVideo(0, 0)
	right.AddVideo(0, 40_000)
	in := openInput(t, source{"l.mp4", left}, source{"r.mp4", right})

	for i := 0; i < 2; i++ {
		if f := in.FinishVideoFrameRead(); !f.Valid() || f.PresentationTime != int64(i)*40_000 {
			t.Fatalf("frame %d: valid %v time %d", i, f.Valid(), f.PresentationTime)
		}
	}
	f := in.FinishVideoFrameRead()
	if f.Valid() {
		t.Error("frame with one missing view is valid")
	}
	if f.Data[0][0] != nil || f.Data[1][0] != nil {
		t.Error("invalid stereo frame carries view data")
	}
}

func TestSeparatePairMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		left, right decode.StreamInfo
	}{
		{"size", video(16, 8, 25, 1), video(16, 10, 25, 1)},
		{"frame rate", video(16, 8, 25, 1), video(16, 8, 30, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			left := decodetest.New(tt.left)
			right := decodetest.New(tt.right)
			opener := decodetest.NewOpener().Add("l.mp4", left).Add("r.mp4", right)
			in := New(opener, nil)
			err := in.Open(context.Background(), []string{"l.mp4", "r.mp4"}, media.DeviceRequest{})
			if !errors.Is(err, ErrIncompatibleViews) || !errors.Is(err, decode.ErrOpen) {
				t.Fatalf("Open: got %v, want ErrIncompatibleViews and ErrOpen", err)
			}
			if !left.Closed || !right.Closed {
				t.Error("objects not closed after failed open")
			}
		})
	}
}

func TestSeparatePairResyncsAfterLostFrame(t *testing.T) {
	t.Parallel()

	left := decodetest.New(video(16, 8, 25, 1))
	right := decodetest.New(video(16, 8, 25, 1))
	want := map[int64][2]byte{}
	lv := left.AddVideo(0, 0)
	left.AddCorrupt(0, 40_000)
	want[0] = [2]byte{lv, right.AddVideo(0, 0)}
	right.AddVideo(0, 40_000)
	for _, pts := range []int64{80_000, 120_000} {
		want[pts] = [2]byte{left.AddVideo(0, pts), right.AddVideo(0, pts)}
	}
	in := openInput(t, source{"l.mp4", left}, source{"r.mp4", right})

	for _, pts := range []int64{0, 80_000, 120_000} {
		f := in.FinishVideoFrameRead()
		if !f.Valid() {
			t.Fatalf("frame %d: invalid", pts)
		}
		if f.PresentationTime != pts {
			t.Fatalf("frame time: got %d, want %d", f.PresentationTime, pts)
		}
		got := [2]byte{f.Data[0][0][0], f.Data[1][0][0]}
		if got != want[pts] {
			t.Errorf("frame %d views: got %v, want %v", pts, got, want[pts])
		}
	}
	if f := in.FinishVideoFrameRead(); f.Valid() {
		t.Errorf("frame after end: got time %d, want invalid", f.PresentationTime)
	}
}

func TestSeparatePairComparesViews(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		left, right string
		wantErr     bool
	}{
		{"packed and mono", "left-lr.mp4", "right.mp4", true},
		{"both packed", "left-lr.mp4", "right-lr.mp4", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			left := decodetest.New(video(16, 8, 25, 1))
			right := decodetest.New(video(16, 8, 25, 1))
			opener := decodetest.NewOpener().Add(tt.left, left).Add(tt.right, right)
			in := New(opener, nil)
			defer in.Close()
			err := in.Open(context.Background(), []string{tt.left, tt.right}, media.DeviceRequest{})
			if tt.wantErr {
				if !errors.Is(err, ErrIncompatibleViews) {
					t.Fatalf("Open: got %v, want ErrIncompatibleViews", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if !in.SupportsStereoLayoutSeparate() {
				t.Error("views of equal size not offered as a separate pair")
			}
		})
	}
}

func TestObjectLogsCarryOneComponent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := decodetest.New(video(16, 8, 25, 1))
	s.AddCorrupt(0, 0)
	s.AddVideo(0, 40_000)
	in := New(decodetest.NewOpener().Add("clip.mp4", s), log)
	if err := in.Open(context.Background(), []string{"clip.mp4"}, media.DeviceRequest{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer in.Close()
	if f := in.FinishVideoFrameRead(); !f.Valid() {
		t.Fatal("frame after corrupt packet invalid")
	}

	var objectLines int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if n := strings.Count(line, `"component"`); n != 1 {
			t.Errorf("log line with %d component attributes: %s", n, line)
		}
		if strings.Contains(line, `"component":"media-object"`) {
			objectLines++
		}
	}
	if objectLines == 0 {
		t.Error("no log lines from the media object")
	}
}

func TestTwoStreamsOfOneFile(t *testing.T) {
	t.Parallel()

	// Different formats in one file are simply two alternatives.
	s := decodetest.New(video(16, 8, 25, 1), video(32, 8, 25, 1))
	in := openInput(t, source{"angles.mkv", s})
	if in.SupportsStereoLayoutSeparate() {
		t.Error("separate layout supported for different formats")
	}
	if got := in.VideoFrameTemplate().StereoLayout; got == media.Separate {
		t.Error("default layout is separate")
	}
	if !strings.HasPrefix(in.VideoStreamName(0), "#1/2: ") || !strings.HasPrefix(in.VideoStreamName(1), "#2/2: ") {
		t.Errorf("names: got %q, %q", in.VideoStreamName(0), in.VideoStreamName(1))
	}

	in.SelectVideoStream(1)
	if got := in.VideoFrameTemplate().RawWidth; got != 32 {
		t.Errorf("template after select: got width %d, want 32", got)
	}
}

func TestLayoutFromFileName(t *testing.T) {
	t.Parallel()

	s := decodetest.New(video(3840, 1080, 25, 1))
	in := openInput(t, source{"movie-lr.mp4", s})
	tmpl := in.VideoFrameTemplate()
	if tmpl.StereoLayout != media.LeftRight || tmpl.StereoLayoutSwap {
		t.Errorf("layout: got %v swap %v, want left_right", tmpl.StereoLayout, tmpl.StereoLayoutSwap)
	}
	if tmpl.Width != 1920 {
		t.Errorf("view width: got %d, want 1920", tmpl.Width)
	}
	if math.Abs(tmpl.AspectRatio-tmpl.RawAspectRatio/2) > 1e-9 {
		t.Errorf("view aspect: got %g, want %g", tmpl.AspectRatio, tmpl.RawAspectRatio/2)
	}
}

func TestLayoutFromTagsOddHeight(t *testing.T) {
	t.Parallel()

	s := decodetest.New(video(1920, 1081, 25, 1)).SetTags(map[string]string{"StereoscopicLayout": "OverUnderLT"})
	in := openInput(t, source{"movie.mkv", s})
	tmpl := in.VideoFrameTemplate()
	if tmpl.StereoLayout != media.Mono || tmpl.StereoLayoutSwap {
		t.Errorf("layout: got %v swap %v, want mono", tmpl.StereoLayout, tmpl.StereoLayoutSwap)
	}
	if in.StereoLayoutSupported(media.TopBottom, false) {
		t.Error("top_bottom supported with odd height")
	}
	expectMisuse(t, "SetStereoLayout", func() { in.SetStereoLayout(media.TopBottom, false) })
}

func TestOpenFailureClosesObjects(t *testing.T) {
	t.Parallel()

	first := decodetest.New(video(16, 8, 25, 1))
	opener := decodetest.NewOpener().Add("a.mp4", first)
	in := New(opener, nil)
	err := in.Open(context.Background(), []string{"a.mp4", "missing.mp4"}, media.DeviceRequest{})
	if !errors.Is(err, decode.ErrOpen) {
		t.Fatalf("Open: got %v, want ErrOpen", err)
	}
	if !first.Closed {
		t.Error("first object not closed")
	}
	expectMisuse(t, "ID after failed open", func() { in.ID() })

	if err := in.Open(context.Background(), nil, media.DeviceRequest{}); !errors.Is(err, decode.ErrOpen) {
		t.Errorf("Open without URLs: got %v, want ErrOpen", err)
	}
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	v := decodetest.New(video(16, 8, 25, 1)).
		SetTags(map[string]string{"title": "Demo", TagInitialSkip: "2500000"}).
		SetDuration(60_000_000)
	a := decodetest.New(decodetest.Audio(2, 48000, decode.SampleFormatS16), decodetest.Audio(6, 48000, decode.SampleFormatS16)).
		SetTags(map[string]string{"title": "Soundtrack"})
	a.SetDuration(59_000_000)
	in := openInput(t, source{`C:\media\demo.mkv`, v}, source{"http://host/audio/track.mka", a})

	if got := in.ID(); got != "demo.mkv/track.mka" {
		t.Errorf("id: got %q", got)
	}
	if got := in.TagValue("title"); got != "Demo" {
		t.Errorf("title: got %q, want first object's value", got)
	}
	if got := len(in.Tags()); got != 3 {
		t.Errorf("tags: got %d, want 3", got)
	}
	if got := in.InitialSkip(); got != 2_500_000 {
		t.Errorf("initial skip: got %d, want 2500000", got)
	}
	if got := in.Duration(); got != 59_000_000 {
		t.Errorf("duration: got %d, want 59000000", got)
	}
	if in.AudioStreams() != 2 || in.ActiveAudioStream() != 0 {
		t.Errorf("audio: %d streams, active %d", in.AudioStreams(), in.ActiveAudioStream())
	}
	if got := in.AudioStreamName(1); got != "#2/2: unknown, 6 ch., 48 kHz, 16 bit" {
		t.Errorf("audio name: got %q", got)
	}
	if in.ActiveSubtitleStream() != -1 {
		t.Errorf("subtitle stream active by default")
	}

	in.SelectAudioStream(1)
	if got := in.AudioBlobTemplate().Channels; got != 6 {
		t.Errorf("audio template after select: got %d channels, want 6", got)
	}
}

func TestUnknownDuration(t *testing.T) {
	t.Parallel()
	in := openInput(t, source{"live.ts", decodetest.New(video(16, 8, 25, 1))})
	if got := in.Duration(); got != media.NoTime {
		t.Errorf("duration: got %d, want NoTime", got)
	}
}

func TestAudioReadRemembersSize(t *testing.T) {
	t.Parallel()

	s := decodetest.New(decodetest.Audio(2, 48000, decode.SampleFormatS16))
	s.AddAudio(0, 0, 3000)
	s.AddAudio(0, 15_625, 3000)
	s.AddAudio(0, 31_250, 4000)
	in := openInput(t, source{"music.flac", s})

	expectMisuse(t, "finish without any size", func() { in.FinishAudioBlobRead() })

	in.StartAudioBlobRead(4000)
	// A second start while the read is pending is ignored.
	in.StartAudioBlobRead(100)
	if b := in.FinishAudioBlobRead(); len(b.Data) != 4000 {
		t.Fatalf("first blob: got %d bytes, want 4000", len(b.Data))
	}
	b := in.FinishAudioBlobRead()
	if len(b.Data) != 4000 {
		t.Fatalf("second blob: got %d bytes, want 4000", len(b.Data))
	}
	if b.Data[0] != byte(4000%256) {
		t.Errorf("second blob continues at %d, want %d", b.Data[0], byte(4000%256))
	}
	if in.Tell() != b.PresentationTime {
		t.Errorf("tell: got %d, want %d", in.Tell(), b.PresentationTime)
	}
}

func TestSeekSeeksEveryObjectOnce(t *testing.T) {
	t.Parallel()

	v := decodetest.New(video(16, 8, 25, 1))
	for i := 0; i < 4; i++ {
		v.AddVideo(0, int64(i)*40_000)
	}
	a := decodetest.New(decodetest.Audio(1, 8000, decode.SampleFormatS16))
	for i := 0; i < 4; i++ {
		a.AddAudio(0, int64(i)*40_000, 640)
	}
	in := openInput(t, source{"v.mp4", v}, source{"a.wav", a})

	in.StartVideoFrameRead()
	in.StartAudioBlobRead(640)
	in.Seek(80_000)

	if len(v.Seeks) != 1 || len(a.Seeks) != 1 || v.Seeks[0] != 80_000 {
		t.Errorf("seeks: video %v, audio %v", v.Seeks, a.Seeks)
	}
	if got := in.Tell(); got != media.NoTime {
		t.Errorf("tell after seek: got %d, want NoTime", got)
	}

	if f := in.FinishVideoFrameRead(); f.PresentationTime != 80_000 {
		t.Errorf("video after seek: got %d, want 80000", f.PresentationTime)
	}
	if in.Tell() != media.NoTime {
		t.Error("video moved the position while audio is active")
	}
	if b := in.FinishAudioBlobRead(); b.PresentationTime != 80_000 {
		t.Errorf("audio after seek: got %d, want 80000", b.PresentationTime)
	}
	if got := in.Tell(); got != 80_000 {
		t.Errorf("tell: got %d, want 80000", got)
	}
}

func TestSwitchToSeparateReseeks(t *testing.T) {
	t.Parallel()

	left := decodetest.New(video(16, 8, 25, 1))
	right := decodetest.New(video(16, 8, 25, 1))
	for i := 0; i < 4; i++ {
		left.AddVideo(0, int64(i)*40_000)
		right.AddVideo(0, int64(i)*40_000)
	}
	in := openInput(t, source{"l.mp4", left}, source{"r.mp4", right})

	in.SetStereoLayout(media.Mono, false)
	if in.VideoFrameTemplate().StereoLayout != media.Mono {
		t.Fatal("layout not changed")
	}
	for i := 0; i < 2; i++ {
		in.FinishVideoFrameRead()
	}
	if got := in.Tell(); got != 40_000 {
		t.Fatalf("tell: got %d, want 40000", got)
	}

	in.SetStereoLayout(media.Separate, true)
	if len(left.Seeks) != 1 || left.Seeks[0] != 40_000 || len(right.Seeks) != 1 {
		t.Errorf("seeks: left %v, right %v", left.Seeks, right.Seeks)
	}
	f := in.FinishVideoFrameRead()
	if !f.Valid() || f.PresentationTime != 40_000 || !f.StereoLayoutSwap {
		t.Errorf("frame after switch: valid %v time %d swap %v", f.Valid(), f.PresentationTime, f.StereoLayoutSwap)
	}
}

func TestSubtitleSelection(t *testing.T) {
	t.Parallel()

	s := decodetest.New(video(16, 8, 25, 1), decodetest.Subtitle("eng"), decodetest.Subtitle("deu"))
	s.AddSubtitle(1, 0, 1_000_000, "hello")
	s.AddSubtitle(2, 0, 1_000_000, "hallo")
	in := openInput(t, source{"film.mkv", s})

	expectMisuse(t, "template without subtitles", func() { in.SubtitleBoxTemplate() })
	in.SelectSubtitleStream(1)
	if got := in.SubtitleBoxTemplate().Language; got != "deu" {
		t.Errorf("language: got %q, want deu", got)
	}
	in.StartSubtitleBoxRead()
	b := in.FinishSubtitleBoxRead()
	if !b.Valid() || b.Str != "hallo" {
		t.Errorf("subtitle: got %+v", b)
	}
	in.SelectSubtitleStream(-1)
	if in.ActiveSubtitleStream() != -1 {
		t.Error("subtitles not disabled")
	}
}

func TestProgrammingErrors(t *testing.T) {
	t.Parallel()

	in := New(decodetest.NewOpener(), nil)
	expectMisuse(t, "read before open", func() { in.StartVideoFrameRead() })
	expectMisuse(t, "tell before open", func() { in.Tell() })
	in.Close()

	s := decodetest.New(video(16, 8, 25, 1))
	in = openInput(t, source{"a.mp4", s})
	expectMisuse(t, "video stream out of range", func() { in.SelectVideoStream(1) })
	expectMisuse(t, "negative audio stream", func() { in.SelectAudioStream(-1) })
	expectMisuse(t, "audio read without audio", func() { in.StartAudioBlobRead(100) })
	expectMisuse(t, "separate without pair", func() { in.SetStereoLayout(media.Separate, false) })
	expectMisuse(t, "second open", func() {
		_ = in.Open(context.Background(), []string{"a.mp4"}, media.DeviceRequest{})
	})
}

func TestCloseWithPendingReads(t *testing.T) {
	t.Parallel()

	s := decodetest.New(video(16, 8, 25, 1), decodetest.Audio(2, 48000, decode.SampleFormatS16))
	s.AddVideo(0, 0)
	s.AddAudio(1, 0, 400)
	in := openInput(t, source{"a.mp4", s})

	in.StartVideoFrameRead()
	in.StartAudioBlobRead(400)
	in.Close()
	if !s.Closed {
		t.Error("session not closed")
	}
	in.Close()
	expectMisuse(t, "read after close", func() { in.FinishVideoFrameRead() })
}
