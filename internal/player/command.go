package player

import (
	"fmt"

	"github.com/zsiec/stereoscope/internal/media"
)

// CommandType selects what a Command does.
type CommandType int

const (
	CmdPlay CommandType = iota
	CmdPause
	CmdToggle
	CmdSeek
	CmdSetStereoLayout
	CmdCycleVideo
	CmdCycleAudio
	CmdCycleSubtitle
	CmdQuit
)

func (c CommandType) String() string {
	switch c {
	case CmdPlay:
		return "play"
	case CmdPause:
		return "pause"
	case CmdToggle:
		return "toggle"
	case CmdSeek:
		return "seek"
	case CmdSetStereoLayout:
		return "set_stereo_layout"
	case CmdCycleVideo:
		return "cycle_video"
	case CmdCycleAudio:
		return "cycle_audio"
	case CmdCycleSubtitle:
		return "cycle_subtitle"
	case CmdQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// ParseCommandType returns the CommandType named s, as printed by String.
func ParseCommandType(s string) (CommandType, error) {
	for c := CmdPlay; c <= CmdQuit; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", s)
}

// Command is a request to the playback loop. Pos is used by CmdSeek, in
// microseconds; Relative makes it an offset from the current position.
// Layout and Swap are used by CmdSetStereoLayout.
type Command struct {
	Type     CommandType
	Pos      int64
	Relative bool
	Layout   media.StereoLayout
	Swap     bool
}

// apply runs c and reports whether playback should stop.
func (p *Player) apply(c Command) bool {
	p.log.Debug("command", "command", c.Type)
	switch c.Type {
	case CmdQuit:
		return true
	case CmdPlay:
		p.setPaused(false)
	case CmdPause:
		p.setPaused(true)
	case CmdToggle:
		p.setPaused(!p.paused)
	case CmdSeek:
		pos := c.Pos
		if c.Relative {
			cur := p.position.Load()
			if cur == media.NoTime {
				cur = 0
			}
			pos += cur
		}
		p.seek(pos)
	case CmdSetStereoLayout:
		if p.in.VideoStreams() == 0 || !p.in.StereoLayoutSupported(c.Layout, c.Swap) {
			p.log.Warn("stereo layout not supported", "stereo_layout", media.StereoLayoutString(c.Layout, c.Swap))
			return false
		}
		p.in.SetStereoLayout(c.Layout, c.Swap)
		p.restartVideo()
	case CmdCycleVideo:
		if n := p.in.VideoStreams(); n > 1 {
			p.in.SelectVideoStream((p.in.ActiveVideoStream() + 1) % n)
			p.frameDur = p.in.VideoFrameDuration()
			p.restartVideo()
		}
	case CmdCycleAudio:
		if n := p.in.AudioStreams(); n > 1 {
			p.in.SelectAudioStream((p.in.ActiveAudioStream() + 1) % n)
			// The new stream starts at the current position.
			p.seek(p.position.Load())
		}
	case CmdCycleSubtitle:
		if n := p.in.SubtitleStreams(); n > 0 {
			next := p.in.ActiveSubtitleStream() + 1
			if next >= n {
				next = -1
			}
			p.in.SelectSubtitleStream(next)
			p.resetSubtitles()
			p.startReads()
		}
	default:
		p.log.Warn("unknown command", "command", c.Type)
	}
	return false
}

func (p *Player) setPaused(paused bool) {
	if paused == p.paused {
		return
	}
	p.paused = paused
	if p.audioOn {
		var err error
		if paused {
			err = p.out.Pause()
		} else {
			err = p.out.Unpause()
		}
		if err != nil {
			p.log.Warn("audio pause", "paused", paused, "error", err)
		}
		return
	}
	if !p.wallOn {
		return
	}
	if paused {
		p.pausedAt = p.now()
	} else {
		p.wallStart = p.wallStart.Add(p.now().Sub(p.pausedAt))
	}
}

// restartVideo discards the prepared frame after the input drained its
// reads, and starts reading again.
func (p *Player) restartVideo() {
	p.prepared = false
	p.videoEOF = p.in.VideoStreams() == 0
	p.startReads()
}

// seek moves the input to pos and restarts every stream from there. Live
// inputs cannot seek.
func (p *Player) seek(pos int64) {
	if p.in.Live() {
		p.log.Info("ignoring seek on live input")
		return
	}
	if pos == media.NoTime || pos < 0 {
		pos = 0
	}
	if d := p.in.Duration(); d != media.NoTime && pos > d {
		pos = d
	}

	p.in.Seek(pos)
	p.stopAudio()
	p.wallOn = false
	p.prepared = false
	p.videoEOF = p.in.VideoStreams() == 0
	p.resetSubtitles()
	p.startAudio()
	if p.audioOn && p.paused {
		if err := p.out.Pause(); err != nil {
			p.log.Warn("audio pause", "error", err)
		}
	}
	p.position.Store(pos)
	p.startReads()
	p.log.Info("seek", "pos", pos)
}
