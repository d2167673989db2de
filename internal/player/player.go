// Package player drives playback of a MediaInput: it paces video frames
// against the audio clock (or the wall clock when there is no audio), feeds
// the audio output, tracks subtitles and applies user commands between
// ticks.
package player

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/stereoscope/internal/audioclock"
	"github.com/zsiec/stereoscope/internal/input"
	"github.com/zsiec/stereoscope/internal/media"
)

// DefaultTick is the interval between presentation checks.
const DefaultTick = 5 * time.Millisecond

// Renderer displays video frames. Prepare receives a frame ahead of its
// presentation time together with the subtitle to show on it; the frame
// data is borrowed and must be copied before Prepare returns. Present shows
// the most recently prepared frame.
type Renderer interface {
	Prepare(frame media.VideoFrame, sub media.SubtitleBox) error
	Present() error
}

// Player plays one opened Input.
type Player struct {
	log      *slog.Logger
	in       *input.Input
	renderer Renderer
	out      *audioclock.Output
	now      func() time.Time
	tick     time.Duration
	cmds     chan Command

	startTime time.Time
	paused    bool
	frameDur  int64

	// Video.
	videoEOF    bool
	prepared    bool
	preparedPTS int64

	// Audio clock.
	audioOn   bool
	audioBase int64

	// Wall clock, used without audio.
	wallOn    bool
	wallBase  int64
	wallStart time.Time
	pausedAt  time.Time

	// Subtitles.
	subCur  media.SubtitleBox
	subNext media.SubtitleBox
	subEOF  bool

	framesPresented atomic.Int64
	framesDropped   atomic.Int64
	audioBlobs      atomic.Int64
	lastVideoPTS    atomic.Int64
	lastAudioPTS    atomic.Int64
	position        atomic.Int64
}

// New returns a player for the opened input in. dev is the audio sink; if
// nil, audio is not played and video runs on the wall clock. If log is
// nil, slog.Default() is used.
func New(in *input.Input, r Renderer, dev audioclock.Device, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	p := &Player{
		log:      log.With("component", "player", "input", in.ID()),
		in:       in,
		renderer: r,
		now:      time.Now,
		tick:     DefaultTick,
		cmds:     make(chan Command, 16),
		subCur:   media.NewSubtitleBox(),
		subNext:  media.NewSubtitleBox(),

		startTime: time.Now(),
	}
	if dev != nil {
		p.out = audioclock.NewOutput(dev, nil, log)
	}
	p.lastVideoPTS.Store(media.NoTime)
	p.lastAudioPTS.Store(media.NoTime)
	p.position.Store(media.NoTime)
	return p
}

// SetTick changes the interval between presentation checks. It must be
// called before Run.
func (p *Player) SetTick(d time.Duration) {
	if d > 0 {
		p.tick = d
	}
}

// Send queues a command for the playback loop. It returns false if the
// queue is full.
func (p *Player) Send(c Command) bool {
	select {
	case p.cmds <- c:
		return true
	default:
		p.log.Warn("command queue full, dropping command", "command", c.Type)
		return false
	}
}

// Run plays the input until the end of the video (or of the audio when
// there is no video), a CmdQuit, or cancellation of ctx.
func (p *Player) Run(ctx context.Context) error {
	hasVideo := p.in.VideoStreams() > 0
	if hasVideo {
		p.frameDur = p.in.VideoFrameDuration()
	}

	if skip := p.in.InitialSkip(); skip > 0 && !p.in.Live() {
		p.log.Info("skipping to initial position", "pos", skip)
		p.in.Seek(skip)
	}
	p.videoEOF = !hasVideo
	p.startAudio()
	p.resetSubtitles()
	p.startReads()

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	defer p.stopAudio()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-p.cmds:
			if p.apply(c) {
				return nil
			}
			continue
		case <-ticker.C:
		}

		if p.paused {
			continue
		}

		master := p.audioStep()
		if hasVideo {
			master = p.videoStep(master)
			if p.videoEOF && !p.prepared {
				p.log.Info("end of video", "stats", p.Snapshot())
				return nil
			}
		} else if !p.audioOn {
			p.log.Info("end of audio", "stats", p.Snapshot())
			return nil
		}
		if master != media.NoTime {
			p.position.Store(master)
		}
	}
}

// startReads starts the reads the loop will wait for next. Starting a read
// that is already pending does nothing.
func (p *Player) startReads() {
	if !p.videoEOF && !p.prepared {
		p.in.StartVideoFrameRead()
	}
	if p.audioOn {
		p.in.StartAudioBlobRead(p.out.RequiredUpdateDataSize())
	}
	if p.in.ActiveSubtitleStream() >= 0 && !p.subEOF && !p.subNext.Valid() {
		p.in.StartSubtitleBoxRead()
	}
}

// startAudio fills the output with initial data and starts it. Audio stays
// off when there is no device, no audio stream or not enough data.
func (p *Player) startAudio() {
	p.audioOn = false
	if p.out == nil || p.in.ActiveAudioStream() < 0 {
		return
	}
	p.in.StartAudioBlobRead(p.out.RequiredInitialDataSize())
	b := p.in.FinishAudioBlobRead()
	if !b.Valid() {
		p.log.Info("no audio data to start playback")
		return
	}
	if err := p.out.Data(b); err != nil {
		p.log.Warn("audio output rejected initial data", "error", err)
		return
	}
	if _, err := p.out.Start(); err != nil {
		p.log.Warn("starting audio output failed", "error", err)
		return
	}
	p.audioOn = true
	p.audioBase = b.PresentationTime
	p.audioBlobs.Add(1)
	p.lastAudioPTS.Store(b.PresentationTime)
	p.log.Debug("audio started", "pos", b.PresentationTime, "format", b.FormatName())
}

func (p *Player) stopAudio() {
	if p.out == nil {
		return
	}
	if err := p.out.Stop(); err != nil {
		p.log.Debug("stopping audio output", "error", err)
	}
}

// audioStep refills the output when it asks for data and returns the audio
// clock, or the wall clock when audio is off.
func (p *Player) audioStep() int64 {
	if !p.audioOn {
		return p.wallTime()
	}
	t, need, err := p.out.Status()
	if err != nil {
		p.log.Warn("audio status", "error", err)
	}
	master := media.NoTime
	if t != media.NoTime {
		master = p.audioBase + t
	}
	if !need {
		return master
	}

	b := p.in.FinishAudioBlobRead()
	if !b.Valid() {
		p.log.Info("end of audio")
		p.audioOn = false
		p.stopAudio()
		// Video continues on the wall clock from here.
		if master != media.NoTime {
			p.startWallClock(master)
		}
		return master
	}
	if err := p.out.Data(b); err != nil {
		p.log.Warn("audio output rejected data", "error", err)
	}
	p.audioBlobs.Add(1)
	p.lastAudioPTS.Store(b.PresentationTime)
	p.in.StartAudioBlobRead(p.out.RequiredUpdateDataSize())
	return master
}

func (p *Player) startWallClock(base int64) {
	p.wallOn = true
	p.wallBase = base
	p.wallStart = p.now()
}

func (p *Player) wallTime() int64 {
	if !p.wallOn {
		return media.NoTime
	}
	return p.wallBase + p.now().Sub(p.wallStart).Microseconds()
}

// videoStep prepares the next frame and presents it once master reaches
// its time. Frames more than one frame duration late are dropped. Without
// a master clock, the first frame starts the wall clock.
func (p *Player) videoStep(master int64) int64 {
	if !p.prepared && !p.videoEOF {
		f := p.in.FinishVideoFrameRead()
		switch {
		case !f.Valid():
			p.videoEOF = true
			return master
		case master != media.NoTime && f.PresentationTime+p.frameDur < master:
			p.framesDropped.Add(1)
			p.log.Debug("dropping late frame", "pts", f.PresentationTime, "clock", master)
			p.in.StartVideoFrameRead()
			return master
		}

		if master == media.NoTime && !p.audioOn {
			p.startWallClock(f.PresentationTime)
			master = f.PresentationTime
		}
		if err := p.renderer.Prepare(f, p.subtitleAt(f.PresentationTime)); err != nil {
			p.log.Warn("preparing frame failed", "pts", f.PresentationTime, "error", err)
		}
		p.prepared = true
		p.preparedPTS = f.PresentationTime
		p.in.StartVideoFrameRead()
	}

	if p.prepared && master != media.NoTime && p.preparedPTS <= master {
		if err := p.renderer.Present(); err != nil {
			p.log.Warn("presenting frame failed", "pts", p.preparedPTS, "error", err)
		}
		p.prepared = false
		p.framesPresented.Add(1)
		p.lastVideoPTS.Store(p.preparedPTS)
	}
	return master
}

// subtitleAt returns the subtitle to show at t, or an invalid box.
func (p *Player) subtitleAt(t int64) media.SubtitleBox {
	if p.in.ActiveSubtitleStream() < 0 {
		return media.NewSubtitleBox()
	}
	for !p.subEOF {
		if !p.subNext.Valid() {
			p.subNext = p.in.FinishSubtitleBoxRead()
			if !p.subNext.Valid() {
				p.subEOF = true
				break
			}
		}
		if p.subNext.PresentationStart > t {
			break
		}
		p.subCur = p.subNext
		p.subNext = media.NewSubtitleBox()
		p.in.StartSubtitleBoxRead()
	}

	c := p.subCur
	if !c.Valid() || c.PresentationStart > t {
		return media.NewSubtitleBox()
	}
	if c.PresentationStop != media.NoTime && t >= c.PresentationStop {
		return media.NewSubtitleBox()
	}
	return c
}

func (p *Player) resetSubtitles() {
	p.subCur = media.NewSubtitleBox()
	p.subNext = media.NewSubtitleBox()
	p.subEOF = false
}
