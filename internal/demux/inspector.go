package demux

import (
	"context"
	"io"
	"log/slog"

	"github.com/zsiec/stereoscope/internal/decode"
	"github.com/zsiec/stereoscope/internal/media"
)

// CaptionLanguage is the language tag of the closed caption stream added by
// the Inspector.
const CaptionLanguage = "cc"

// Limits of the frame packing probe run when a session is opened.
const (
	probeVideoPackets = 8
	probePackets      = 64
)

// Inspector wraps a decode session and looks into the H.264/H.265
// bitstream of its first such video stream. A frame packing arrangement
// found in the first packets becomes the stream's FramePacking hint, and
// the closed captions carried in SEI messages are exposed as an additional
// text subtitle stream.
type Inspector struct {
	inner decode.Session
	log   *slog.Logger
	info  decode.Info

	video   int // inspected stream, -1 if none
	hevc    bool
	ccIndex int // caption stream, -1 if none

	buffered []*decode.Packet // packets read by the probe
	probeErr error
	pending  []*decode.Packet // caption packets waiting for ReadPacket

	captions   *CaptionDecoder
	ccChannel  int
	ccQueue    []decode.RawSubtitle
	ccDraining bool
}

// NewInspector probes inner and returns the wrapping session. If log is
// nil, slog.Default() is used.
func NewInspector(inner decode.Session, log *slog.Logger) *Inspector {
	if log == nil {
		log = slog.Default()
	}
	s := &Inspector{
		inner:   inner,
		log:     log.With("component", "sei-inspector"),
		video:   -1,
		ccIndex: -1,
	}

	info := inner.Info()
	s.info = info
	s.info.Streams = append([]decode.StreamInfo(nil), info.Streams...)
	for i, st := range s.info.Streams {
		if st.Kind != decode.KindVideo {
			continue
		}
		switch st.Codec {
		case "h264":
		case "hevc", "h265":
			s.hevc = true
		default:
			continue
		}
		s.video = i
		break
	}
	if s.video < 0 {
		return s
	}

	src := s.info.Streams[s.video]
	s.ccIndex = len(s.info.Streams)
	s.info.Streams = append(s.info.Streams, decode.StreamInfo{
		Index:          s.ccIndex,
		Kind:           decode.KindSubtitle,
		Codec:          "eia_608",
		Duration:       src.Duration,
		Tags:           map[string]string{"language": CaptionLanguage},
		SubtitleFormat: media.SubtitleText,
	})
	s.captions = NewCaptionDecoder()
	s.probe()
	return s
}

// probe reads packets until a frame packing arrangement is found in the
// inspected stream or the probe limits are reached.
func (s *Inspector) probe() {
	videoSeen := 0
	for len(s.buffered) < probePackets && videoSeen < probeVideoPackets {
		pkt, err := s.inner.ReadPacket()
		if err != nil {
			s.probeErr = err
			return
		}
		s.buffered = append(s.buffered, pkt)
		if pkt.StreamIndex != s.video {
			continue
		}
		videoSeen++
		if mode, ok := FramePackingMode(ParsePacket(pkt.Data, s.hevc), s.hevc); ok {
			if mode != "" {
				s.info.Streams[s.video].FramePacking = mode
				s.log.Debug("frame packing arrangement", "stream", s.video, "stereo_mode", mode)
			}
			return
		}
	}
}

// Info implements decode.Session.
func (s *Inspector) Info() decode.Info {
	return s.info
}

// ReadPacket implements decode.Session.
func (s *Inspector) ReadPacket() (*decode.Packet, error) {
	if len(s.pending) > 0 {
		pkt := s.pending[0]
		s.pending = s.pending[1:]
		return pkt, nil
	}

	var pkt *decode.Packet
	switch {
	case len(s.buffered) > 0:
		pkt = s.buffered[0]
		s.buffered = s.buffered[1:]
	case s.probeErr != nil:
		err := s.probeErr
		s.probeErr = nil
		return nil, err
	default:
		var err error
		if pkt, err = s.inner.ReadPacket(); err != nil {
			return nil, err
		}
	}

	if s.video >= 0 && pkt.StreamIndex == s.video {
		units := ParsePacket(pkt.Data, s.hevc)
		if !pkt.Keyframe && s.randomAccess(units) {
			pkt.Keyframe = true
		}
		s.extractCaptions(pkt, units)
	}
	return pkt, nil
}

// randomAccess reports whether units contain an IDR picture, or for H.265
// any IRAP picture. Raw elementary streams carry no container key flag, so
// this is the only way to tell the decoder where it can start.
func (s *Inspector) randomAccess(units []NALUnit) bool {
	for _, u := range units {
		if s.hevc && IsHEVCKeyframe(u.Type) || !s.hevc && IsKeyframe(u.Type) {
			return true
		}
	}
	return false
}

func (s *Inspector) extractCaptions(pkt *decode.Packet, units []NALUnit) {
	t := pkt.PTS
	if t == media.NoTime {
		t = pkt.DTS
	}
	for _, c := range s.captions.Feed(units, s.hevc, t) {
		// The stream follows the first channel that carries text.
		if s.ccChannel == 0 {
			s.ccChannel = c.Channel
			s.log.Debug("caption channel selected", "channel", c.Channel)
		}
		if c.Channel != s.ccChannel {
			continue
		}
		s.pending = append(s.pending, &decode.Packet{
			StreamIndex: s.ccIndex,
			PTS:         c.PTS,
			DTS:         c.PTS,
			Data:        []byte(c.Text),
		})
	}
}

// SendPacket implements decode.Session.
func (s *Inspector) SendPacket(stream int, pkt *decode.Packet) error {
	if stream != s.ccIndex || s.ccIndex < 0 {
		return s.inner.SendPacket(stream, pkt)
	}
	if pkt == nil {
		s.ccDraining = true
		return nil
	}
	s.ccQueue = append(s.ccQueue, decode.RawSubtitle{
		Format: media.SubtitleText,
		Text:   string(pkt.Data),
		Start:  pkt.PTS,
		Stop:   media.NoTime,
	})
	return nil
}

// ReceiveVideo implements decode.Session.
func (s *Inspector) ReceiveVideo(stream int) (*decode.RawFrame, error) {
	return s.inner.ReceiveVideo(stream)
}

// ReceiveAudio implements decode.Session.
func (s *Inspector) ReceiveAudio(stream int) (*decode.RawAudio, error) {
	return s.inner.ReceiveAudio(stream)
}

// ReceiveSubtitle implements decode.Session.
func (s *Inspector) ReceiveSubtitle(stream int) (*decode.RawSubtitle, error) {
	if stream != s.ccIndex || s.ccIndex < 0 {
		return s.inner.ReceiveSubtitle(stream)
	}
	if len(s.ccQueue) > 0 {
		sub := s.ccQueue[0]
		s.ccQueue = s.ccQueue[1:]
		return &sub, nil
	}
	if s.ccDraining {
		return nil, io.EOF
	}
	return nil, decode.ErrAgain
}

// Flush implements decode.Session.
func (s *Inspector) Flush(stream int) error {
	if stream != s.ccIndex || s.ccIndex < 0 {
		return s.inner.Flush(stream)
	}
	s.ccQueue = nil
	s.ccDraining = false
	return nil
}

// Seek implements decode.Session. Caption decoding restarts from scratch.
func (s *Inspector) Seek(pos int64) error {
	err := s.inner.Seek(pos)
	if err == nil {
		s.buffered = nil
		s.probeErr = nil
	}
	s.pending = nil
	if s.captions != nil {
		s.captions.Reset()
	}
	return err
}

// Close implements decode.Session.
func (s *Inspector) Close() error {
	return s.inner.Close()
}

// NewOpener returns an opener that wraps every session of inner in an
// Inspector.
func NewOpener(inner decode.Opener, log *slog.Logger) decode.Opener {
	return decode.OpenerFunc(func(ctx context.Context, url string, dev media.DeviceRequest) (decode.Session, error) {
		sess, err := inner.Open(ctx, url, dev)
		if err != nil {
			return nil, err
		}
		return NewInspector(sess, log), nil
	})
}
