// Package input combines one or more media objects into one logical input.
// It numbers the streams of all objects globally, selects the active video,
// audio and subtitle stream, owns the stereo layout of the video output, and
// turns the two views of a separate stereo pair into one stereo frame.
//
// An Input is driven by a single caller (the playback loop). Reads are
// started and finished in two phases; the decoding itself runs on a
// goroutine between the two calls.
package input

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/zsiec/stereoscope/internal/decode"
	"github.com/zsiec/stereoscope/internal/media"
	"github.com/zsiec/stereoscope/internal/object"
	"github.com/zsiec/stereoscope/internal/stereo"
)

// TagInitialSkip is a container tag holding the number of microseconds to
// skip at the start of playback.
const TagInitialSkip = "StereoscopicSkip"

// Tag is one metadata entry. Names may repeat across objects.
type Tag struct {
	Name  string
	Value string
}

// Input is the media input of one playback session.
type Input struct {
	log     *slog.Logger
	baseLog *slog.Logger
	opener  decode.Opener

	objects []*object.Object
	id      string

	// Streams of all objects in global order.
	video    []object.StreamHandle
	audio    []object.StreamHandle
	subtitle []object.StreamHandle

	live    bool
	tags    []Tag

	videoNames    []string
	audioNames    []string
	subtitleNames []string

	activeVideo    int
	activeAudio    int
	activeSubtitle int

	supportsSeparate bool
	initialSkip      int64
	duration         int64

	videoFrame  media.VideoFrame
	audioBlob   media.AudioBlob
	subtitleBox media.SubtitleBox

	videoRead     *task[media.VideoFrame]
	audioRead     *task[media.AudioBlob]
	subtitleRead  *task[media.SubtitleBox]
	lastAudioSize int
}

// New returns an unopened Input that opens its objects through opener. If
// log is nil, slog.Default() is used.
func New(opener decode.Opener, log *slog.Logger) *Input {
	if log == nil {
		log = slog.Default()
	}
	in := &Input{
		log:     log.With("component", "media-input"),
		baseLog: log,
		opener:  opener,
	}
	in.reset()
	return in
}

func (in *Input) reset() {
	in.objects = nil
	in.video, in.audio, in.subtitle = nil, nil, nil
	in.id = ""
	in.live = false
	in.tags = nil
	in.videoNames, in.audioNames, in.subtitleNames = nil, nil, nil
	in.activeVideo, in.activeAudio, in.activeSubtitle = -1, -1, -1
	in.supportsSeparate = false
	in.initialSkip = 0
	in.duration = media.NoTime
	in.videoFrame = media.NewVideoFrame()
	in.audioBlob = media.NewAudioBlob()
	in.subtitleBox = media.NewSubtitleBox()
	in.videoRead, in.audioRead, in.subtitleRead = nil, nil, nil
	in.lastAudioSize = 0
}

// basename returns the last element of a path or URL, accepting both slash
// and backslash separators.
func basename(url string) string {
	if i := strings.LastIndexAny(url, `/\`); i >= 0 {
		return url[i+1:]
	}
	return url
}

// Open opens one object per URL and selects the default streams: the first
// video stream (both, in the separate layout), the first audio stream and
// no subtitles. Two video streams of identical format from two URLs, or
// from one URL holding exactly two, form a separate stereo pair. On error
// every object opened so far is closed again and the error wraps
// decode.ErrOpen.
func (in *Input) Open(ctx context.Context, urls []string, dev media.DeviceRequest) error {
	if in.objects != nil {
		misuse("Open", "input already open")
	}
	if len(urls) == 0 {
		return fmt.Errorf("no input: %w", decode.ErrOpen)
	}

	objects := make([]*object.Object, 0, len(urls))
	for _, url := range urls {
		o := object.New(in.opener, in.baseLog)
		if err := o.Open(ctx, url, dev); err != nil {
			closeAll(objects)
			return err
		}
		objects = append(objects, o)
	}

	supportsSeparate, err := separatePair(objects)
	if err != nil {
		closeAll(objects)
		return err
	}

	in.objects = objects
	in.video = handles(objects, decode.KindVideo)
	in.audio = handles(objects, decode.KindAudio)
	in.subtitle = handles(objects, decode.KindSubtitle)
	in.live = dev.IsDevice()
	ids := make([]string, len(objects))
	for i, o := range objects {
		ids[i] = basename(o.URL())
		in.live = in.live || o.Live()

		tags := o.Tags()
		names := make([]string, 0, len(tags))
		for name := range tags {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			in.tags = append(in.tags, Tag{Name: name, Value: tags[name]})
		}
	}
	in.id = strings.Join(ids, "/")

	for _, h := range in.video {
		t := h.VideoFrameTemplate()
		in.videoNames = append(in.videoNames, t.FormatInfo())
	}
	for _, h := range in.audio {
		t := h.AudioBlobTemplate()
		in.audioNames = append(in.audioNames, t.FormatInfo())
	}
	for _, h := range in.subtitle {
		t := h.SubtitleBoxTemplate()
		in.subtitleNames = append(in.subtitleNames, t.FormatInfo())
	}
	numberNames(in.videoNames)
	numberNames(in.audioNames)
	numberNames(in.subtitleNames)

	in.duration = durationOf(objects)
	if v, err := strconv.ParseInt(in.TagValue(TagInitialSkip), 10, 64); err == nil && v > 0 {
		in.initialSkip = v
	}

	in.supportsSeparate = supportsSeparate
	if len(in.videoNames) > 0 {
		in.videoFrame = in.video[0].VideoFrameTemplate()
		if supportsSeparate {
			in.videoFrame.StereoLayout = media.Separate
			in.videoFrame.StereoLayoutSwap = false
		}
		in.SelectVideoStream(0)
	}
	if len(in.audioNames) > 0 {
		in.SelectAudioStream(0)
	}
	in.SelectSubtitleStream(-1)

	in.logSummary()
	return nil
}

// handles lists the streams of a kind of all objects in global order.
func handles(objects []*object.Object, kind decode.Kind) []object.StreamHandle {
	var list []object.StreamHandle
	for _, o := range objects {
		n := 0
		switch kind {
		case decode.KindVideo:
			n = o.VideoStreams()
		case decode.KindAudio:
			n = o.AudioStreams()
		case decode.KindSubtitle:
			n = o.SubtitleStreams()
		}
		for j := 0; j < n; j++ {
			list = append(list, o.Handle(kind, j))
		}
	}
	return list
}

func closeAll(objects []*object.Object) {
	for _, o := range objects {
		_ = o.Close()
	}
}

// numberNames prefixes each name with "#i/N: " when there is more than one.
func numberNames(names []string) {
	if len(names) < 2 {
		return
	}
	for i := range names {
		names[i] = fmt.Sprintf("#%d/%d: %s", i+1, len(names), names[i])
	}
}

// durationOf returns the shortest known video or audio duration. Subtitle
// durations are unreliable and ignored.
func durationOf(objects []*object.Object) int64 {
	d := int64(math.MaxInt64)
	for _, o := range objects {
		for j := 0; j < o.VideoStreams(); j++ {
			if v := o.VideoDuration(j); v != media.NoTime && v < d {
				d = v
			}
		}
		for j := 0; j < o.AudioStreams(); j++ {
			if v := o.AudioDuration(j); v != media.NoTime && v < d {
				d = v
			}
		}
	}
	if d == math.MaxInt64 {
		return media.NoTime
	}
	return d
}

// separatePair reports whether the objects hold exactly two video streams
// that can be shown as the left and right view. Sizes are compared per
// view, after any packing the streams declare. When the two streams come
// from two URLs with one video stream each, the caller asked for a stereo
// pair explicitly and any format difference is an error.
func separatePair(objects []*object.Object) (bool, error) {
	views := handles(objects, decode.KindVideo)
	if len(views) != 2 {
		return false, nil
	}

	h0, h1 := views[0], views[1]
	t0 := h0.VideoFrameTemplate()
	t1 := h1.VideoFrameTemplate()
	w0, ht0, a0 := media.ViewDimensions(t0.RawWidth, t0.RawHeight, t0.RawAspectRatio, t0.StereoLayout)
	w1, ht1, a1 := media.ViewDimensions(t1.RawWidth, t1.RawHeight, t1.RawAspectRatio, t1.StereoLayout)
	same := w0 == w1 && ht0 == ht1 && a0 == a1 &&
		t0.Layout == t1.Layout &&
		t0.ColorSpace == t1.ColorSpace &&
		t0.ValueRange == t1.ValueRange &&
		t0.ChromaLocation == t1.ChromaLocation
	n0, d0 := h0.FrameRate()
	n1, d1 := h1.FrameRate()
	sameRate := int64(n0)*int64(d1) == int64(n1)*int64(d0)

	if h0.Object != h1.Object {
		if !same {
			return false, fmt.Errorf("%s, %s: %w: %s vs %s: %w", h0.Object.URL(), h1.Object.URL(),
				ErrIncompatibleViews, t0.FormatName(), t1.FormatName(), decode.ErrOpen)
		}
		if !sameRate {
			return false, fmt.Errorf("%s, %s: %w: frame rate %d/%d vs %d/%d: %w", h0.Object.URL(), h1.Object.URL(),
				ErrIncompatibleViews, n0, d0, n1, d1, decode.ErrOpen)
		}
	}
	return same && sameRate, nil
}

func (in *Input) logSummary() {
	for i, name := range in.videoNames {
		t := in.video[i].VideoFrameTemplate()
		in.log.Info("video stream", "id", in.id, "name", name, "format", t.FormatName())
	}
	for i, name := range in.audioNames {
		t := in.audio[i].AudioBlobTemplate()
		in.log.Info("audio stream", "id", in.id, "name", name, "format", t.FormatName())
	}
	for _, name := range in.subtitleNames {
		in.log.Info("subtitle stream", "id", in.id, "name", name)
	}
	attrs := []any{"id", in.id, "duration_us", in.duration, "live", in.live}
	if in.activeVideo >= 0 {
		attrs = append(attrs, "stereo_layout", in.videoFrame.StereoLayout, "swap", in.videoFrame.StereoLayoutSwap)
	}
	in.log.Info("input opened", attrs...)
}

// Close drains pending reads and closes all objects. It never panics and
// leaves the Input unopened; it is safe to call more than once.
func (in *Input) Close() {
	if in.objects != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					in.log.Warn("pending read failed during close", "error", r)
				}
			}()
			in.drain()
		}()
		for _, o := range in.objects {
			if err := o.Close(); err != nil {
				in.log.Warn("close failed", "url", o.URL(), "error", err)
			}
		}
	}
	in.reset()
}

func (in *Input) mustBeOpen(op string) {
	if in.objects == nil {
		misuse(op, "input not open")
	}
}

// handle returns stream i of list, the streams of one kind.
func (in *Input) handle(op, kind string, list []object.StreamHandle, i int) object.StreamHandle {
	in.mustBeOpen(op)
	if i < 0 || i >= len(list) {
		misuse(op, "%s stream %d out of range", kind, i)
	}
	return list[i]
}

func (in *Input) videoHandle(op string, i int) object.StreamHandle {
	return in.handle(op, "video", in.video, i)
}

func (in *Input) audioHandle(op string, i int) object.StreamHandle {
	return in.handle(op, "audio", in.audio, i)
}

func (in *Input) subtitleHandle(op string, i int) object.StreamHandle {
	return in.handle(op, "subtitle", in.subtitle, i)
}

// ID identifies the input by the base names of its URLs, joined by "/".
func (in *Input) ID() string {
	in.mustBeOpen("ID")
	return in.id
}

// URLs returns the URLs of the objects.
func (in *Input) URLs() []string {
	in.mustBeOpen("URLs")
	urls := make([]string, len(in.objects))
	for i, o := range in.objects {
		urls[i] = o.URL()
	}
	return urls
}

// Live reports whether the input is a device or another live source.
func (in *Input) Live() bool {
	in.mustBeOpen("Live")
	return in.live
}

// Tags returns the metadata of all objects, in object order.
func (in *Input) Tags() []Tag {
	in.mustBeOpen("Tags")
	return append([]Tag(nil), in.tags...)
}

// TagValue returns the value of the first tag called name, or "".
func (in *Input) TagValue(name string) string {
	in.mustBeOpen("TagValue")
	for _, t := range in.tags {
		if t.Name == name {
			return t.Value
		}
	}
	return ""
}

// VideoStreams returns the number of video streams of all objects.
func (in *Input) VideoStreams() int {
	in.mustBeOpen("VideoStreams")
	return len(in.videoNames)
}

// AudioStreams returns the number of audio streams of all objects.
func (in *Input) AudioStreams() int {
	in.mustBeOpen("AudioStreams")
	return len(in.audioNames)
}

// SubtitleStreams returns the number of subtitle streams of all objects.
func (in *Input) SubtitleStreams() int {
	in.mustBeOpen("SubtitleStreams")
	return len(in.subtitleNames)
}

// VideoStreamName returns the display name of video stream i.
func (in *Input) VideoStreamName(i int) string {
	in.videoHandle("VideoStreamName", i)
	return in.videoNames[i]
}

// AudioStreamName returns the display name of audio stream i.
func (in *Input) AudioStreamName(i int) string {
	in.audioHandle("AudioStreamName", i)
	return in.audioNames[i]
}

// SubtitleStreamName returns the display name of subtitle stream i.
func (in *Input) SubtitleStreamName(i int) string {
	in.subtitleHandle("SubtitleStreamName", i)
	return in.subtitleNames[i]
}

// ActiveVideoStream returns the selected video stream, or -1.
func (in *Input) ActiveVideoStream() int {
	in.mustBeOpen("ActiveVideoStream")
	return in.activeVideo
}

// ActiveAudioStream returns the selected audio stream, or -1.
func (in *Input) ActiveAudioStream() int {
	in.mustBeOpen("ActiveAudioStream")
	return in.activeAudio
}

// ActiveSubtitleStream returns the selected subtitle stream, or -1.
func (in *Input) ActiveSubtitleStream() int {
	in.mustBeOpen("ActiveSubtitleStream")
	return in.activeSubtitle
}

// InitialSkip returns the number of microseconds the content asks to skip
// at the start, or 0.
func (in *Input) InitialSkip() int64 {
	in.mustBeOpen("InitialSkip")
	return in.initialSkip
}

// Duration returns the shortest video or audio stream duration in
// microseconds, or media.NoTime when no duration is known.
func (in *Input) Duration() int64 {
	in.mustBeOpen("Duration")
	return in.duration
}

// SupportsStereoLayoutSeparate reports whether the input holds a separate
// stereo pair.
func (in *Input) SupportsStereoLayoutSeparate() bool {
	in.mustBeOpen("SupportsStereoLayoutSeparate")
	return in.supportsSeparate
}

func (in *Input) mustHaveVideo(op string) {
	in.mustBeOpen(op)
	if in.activeVideo < 0 {
		misuse(op, "no active video stream")
	}
}

// VideoFrameTemplate returns the format of the frames returned by
// FinishVideoFrameRead.
func (in *Input) VideoFrameTemplate() media.VideoFrame {
	in.mustHaveVideo("VideoFrameTemplate")
	return in.videoFrame
}

// VideoFrameRate returns the frame rate of the active video stream.
func (in *Input) VideoFrameRate() (num, den int) {
	in.mustHaveVideo("VideoFrameRate")
	return in.videoHandle("VideoFrameRate", in.activeVideo).FrameRate()
}

// VideoFrameDuration returns the duration of one frame in microseconds.
func (in *Input) VideoFrameDuration() int64 {
	num, den := in.VideoFrameRate()
	if num <= 0 {
		return 0
	}
	return int64(den) * 1_000_000 / int64(num)
}

// AudioBlobTemplate returns the format of the blobs returned by
// FinishAudioBlobRead.
func (in *Input) AudioBlobTemplate() media.AudioBlob {
	in.mustBeOpen("AudioBlobTemplate")
	if in.activeAudio < 0 {
		misuse("AudioBlobTemplate", "no active audio stream")
	}
	return in.audioBlob
}

// SubtitleBoxTemplate returns the format of the active subtitle stream.
func (in *Input) SubtitleBoxTemplate() media.SubtitleBox {
	in.mustBeOpen("SubtitleBoxTemplate")
	if in.activeSubtitle < 0 {
		misuse("SubtitleBoxTemplate", "no active subtitle stream")
	}
	return in.subtitleBox
}

// StereoLayoutSupported reports whether the active video stream can be
// shown in layout. The swap flag is accepted for every layout.
func (in *Input) StereoLayoutSupported(layout media.StereoLayout, swap bool) bool {
	in.mustBeOpen("StereoLayoutSupported")
	if in.activeVideo < 0 {
		return false
	}
	t := in.videoHandle("StereoLayoutSupported", in.activeVideo).VideoFrameTemplate()
	return stereo.Supported(layout, t.RawWidth, t.RawHeight, in.supportsSeparate)
}
