package input

import (
	"github.com/zsiec/stereoscope/internal/media"
	"github.com/zsiec/stereoscope/internal/object"
)

// SelectVideoStream makes video stream i the active one. In the separate
// layout both video streams stay active and i is ignored. The stereo layout
// and swap flag carry over to the new stream.
func (in *Input) SelectVideoStream(i int) {
	in.mustBeOpen("SelectVideoStream")
	in.drain()
	active := in.videoHandle("SelectVideoStream", i)

	if in.videoFrame.StereoLayout == media.Separate {
		in.activeVideo = 0
		for _, h := range in.video {
			h.SetActive(true)
		}
		active = in.video[0]
	} else {
		in.activeVideo = i
		for _, h := range in.video {
			h.SetActive(h == active)
		}
	}

	layout, swap := in.videoFrame.StereoLayout, in.videoFrame.StereoLayoutSwap
	in.videoFrame = active.VideoFrameTemplate()
	in.videoFrame.StereoLayout, in.videoFrame.StereoLayoutSwap = layout, swap
	in.videoFrame.SetViewDimensions()
}

// SelectAudioStream makes audio stream i the active one.
func (in *Input) SelectAudioStream(i int) {
	in.mustBeOpen("SelectAudioStream")
	in.drain()
	active := in.audioHandle("SelectAudioStream", i)

	in.activeAudio = i
	for _, h := range in.audio {
		h.SetActive(h == active)
	}
	in.audioBlob = active.AudioBlobTemplate()
}

// SelectSubtitleStream makes subtitle stream i the active one; -1 disables
// subtitles.
func (in *Input) SelectSubtitleStream(i int) {
	in.mustBeOpen("SelectSubtitleStream")
	in.drain()
	var active object.StreamHandle
	if i != -1 {
		active = in.subtitleHandle("SelectSubtitleStream", i)
	}

	in.activeSubtitle = i
	for _, h := range in.subtitle {
		h.SetActive(h == active)
	}
	if i == -1 {
		in.subtitleBox = media.NewSubtitleBox()
	} else {
		in.subtitleBox = active.SubtitleBoxTemplate()
	}
}

// SetStereoLayout changes how the active video stream is split into views.
// The layout must be supported, see StereoLayoutSupported. Switching to the
// separate layout seeks back to the current position so that the second
// view, which was not decoded before, starts in sync.
func (in *Input) SetStereoLayout(layout media.StereoLayout, swap bool) {
	if !in.StereoLayoutSupported(layout, swap) {
		misuse("SetStereoLayout", "layout %s not supported by the active video stream", layout)
	}
	in.drain()

	h := in.videoHandle("SetStereoLayout", in.activeVideo)
	in.videoFrame = h.VideoFrameTemplate()
	in.videoFrame.StereoLayout, in.videoFrame.StereoLayoutSwap = layout, swap
	in.videoFrame.SetViewDimensions()
	// Re-select to switch between one and two active video streams.
	in.SelectVideoStream(in.activeVideo)

	if layout == media.Separate {
		if pos := h.Tell(); pos != media.NoTime {
			in.Seek(pos)
		}
	}
	in.log.Debug("stereo layout set", "id", in.id, "stereo_layout", layout, "swap", swap)
}
