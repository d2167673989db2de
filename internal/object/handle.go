package object

import (
	"fmt"

	"github.com/zsiec/stereoscope/internal/decode"
	"github.com/zsiec/stereoscope/internal/media"
)

// StreamHandle names one stream of an object. It is a small value that can
// be copied and compared.
type StreamHandle struct {
	Object *Object
	Kind   decode.Kind
	Index  int
}

// Handle returns the handle of stream i of the given kind. It panics when
// the stream does not exist.
func (o *Object) Handle(kind decode.Kind, i int) StreamHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stream(kind, i)
	return StreamHandle{Object: o, Kind: kind, Index: i}
}

func (h StreamHandle) String() string {
	if h.Object == nil {
		return "none"
	}
	return fmt.Sprintf("%s#%s%d", h.Object.URL(), h.Kind, h.Index)
}

// Valid reports whether h refers to a stream.
func (h StreamHandle) Valid() bool {
	return h.Object != nil
}

// SetActive enables or disables decoding of the stream.
func (h StreamHandle) SetActive(active bool) {
	h.Object.setActive(h.Kind, h.Index, active)
}

// Duration returns the stream duration in microseconds, or media.NoTime.
func (h StreamHandle) Duration() int64 {
	return h.Object.Duration(h.Kind, h.Index)
}

// VideoFrameTemplate returns the frame format of a video stream.
func (h StreamHandle) VideoFrameTemplate() media.VideoFrame {
	return h.Object.VideoFrameTemplate(h.Index)
}

// FrameRate returns the frame rate of a video stream.
func (h StreamHandle) FrameRate() (num, den int) {
	return h.Object.VideoFrameRate(h.Index)
}

// AudioBlobTemplate returns the sample format of an audio stream.
func (h StreamHandle) AudioBlobTemplate() media.AudioBlob {
	return h.Object.AudioBlobTemplate(h.Index)
}

// SubtitleBoxTemplate returns the format of a subtitle stream.
func (h StreamHandle) SubtitleBoxTemplate() media.SubtitleBox {
	return h.Object.SubtitleBoxTemplate(h.Index)
}

// StartVideoFrameRead starts a read of a video stream.
func (h StreamHandle) StartVideoFrameRead(rawFrames int) {
	h.Object.StartVideoFrameRead(h.Index, rawFrames)
}

// FinishVideoFrameRead completes a read of a video stream.
func (h StreamHandle) FinishVideoFrameRead() media.VideoFrame {
	return h.Object.FinishVideoFrameRead(h.Index)
}

// StartAudioBlobRead starts a read of an audio stream.
func (h StreamHandle) StartAudioBlobRead(size int) {
	h.Object.StartAudioBlobRead(h.Index, size)
}

// FinishAudioBlobRead completes a read of an audio stream.
func (h StreamHandle) FinishAudioBlobRead() media.AudioBlob {
	return h.Object.FinishAudioBlobRead(h.Index)
}

// StartSubtitleBoxRead starts a read of a subtitle stream.
func (h StreamHandle) StartSubtitleBoxRead() {
	h.Object.StartSubtitleBoxRead(h.Index)
}

// FinishSubtitleBoxRead completes a read of a subtitle stream.
func (h StreamHandle) FinishSubtitleBoxRead() media.SubtitleBox {
	return h.Object.FinishSubtitleBoxRead(h.Index)
}

// Tell returns the position of the object the stream belongs to.
func (h StreamHandle) Tell() int64 {
	return h.Object.Tell()
}

// Seek moves the object the stream belongs to.
func (h StreamHandle) Seek(pos int64) {
	h.Object.Seek(pos)
}
