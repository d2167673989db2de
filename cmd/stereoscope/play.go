package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/zsiec/stereoscope/internal/audioclock"
	"github.com/zsiec/stereoscope/internal/config"
	"github.com/zsiec/stereoscope/internal/input"
	"github.com/zsiec/stereoscope/internal/player"
)

var (
	playDevice   deviceFlags
	playLayout   string
	playSeek     time.Duration
	playFrames   int64
	playVideo    int
	playAudio    int
	playSubtitle int
)

var playCmd = &cobra.Command{
	Use:   "play URL...",
	Short: "Play an input headlessly and report playback statistics",
	Long: "Play one or more URLs as a single input, pacing video against the audio\n" +
		"clock, and print what was presented. Frames are decoded and assembled but\n" +
		"not displayed.",
	RunE: runPlay,
}

func init() {
	playDevice.register(playCmd)
	f := playCmd.Flags()
	f.StringVar(&playLayout, "layout", "", `stereo layout, e.g. "left-right-half"; overrides the config`)
	f.DurationVar(&playSeek, "seek", 0, "start position")
	f.Int64Var(&playFrames, "frames", 0, "stop after presenting this many frames, 0 for all")
	f.IntVar(&playVideo, "video", 0, "video stream index")
	f.IntVar(&playAudio, "audio", 0, "audio stream index")
	f.IntVar(&playSubtitle, "subtitle", -1, "subtitle stream index, -1 for none")
}

func runPlay(cmd *cobra.Command, args []string) error {
	dev, err := playDevice.request()
	if err != nil {
		return err
	}
	if len(args) == 0 && !dev.IsDevice() {
		return fmt.Errorf("play needs a URL or --device")
	}
	if playLayout != "" {
		cfg.StereoLayout = playLayout
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	in := input.New(newOpener(nil), nil)
	if err := in.Open(ctx, args, dev); err != nil {
		return err
	}
	defer in.Close()

	if err := selectStreams(in); err != nil {
		return err
	}
	if err := applyLayout(in, cfg); err != nil {
		return err
	}
	printInput(cmd.OutOrStdout(), in)

	r := &frameLimit{Counter: &player.Counter{}, max: playFrames, stop: cancel}
	p := player.New(in, r, audioDevice(), nil)
	p.SetTick(cfg.Tick)
	if playSeek > 0 {
		p.Send(player.Command{Type: player.CmdSeek, Pos: playSeek.Microseconds()})
	}

	if err := p.Run(ctx); err != nil {
		return err
	}

	s := p.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "Played:   %d frames presented, %d dropped, %d audio blobs, %d subtitled, at %s\n",
		s.FramesPresented, s.FramesDropped, s.AudioBlobs, r.Subtitles.Load(), formatTime(s.Position))
	return nil
}

func selectStreams(in *input.Input) error {
	if n := in.VideoStreams(); n > 0 {
		if playVideo < 0 || playVideo >= n {
			return fmt.Errorf("--video %d out of range, input has %d video streams", playVideo, n)
		}
		in.SelectVideoStream(playVideo)
	}
	if n := in.AudioStreams(); n > 0 {
		if playAudio < 0 || playAudio >= n {
			return fmt.Errorf("--audio %d out of range, input has %d audio streams", playAudio, n)
		}
		in.SelectAudioStream(playAudio)
	}
	if playSubtitle >= in.SubtitleStreams() {
		return fmt.Errorf("--subtitle %d out of range, input has %d subtitle streams", playSubtitle, in.SubtitleStreams())
	}
	if playSubtitle >= 0 {
		in.SelectSubtitleStream(playSubtitle)
	}
	return nil
}

// applyLayout sets the configured stereo layout on in, unless it is "auto".
func applyLayout(in *input.Input, c config.Config) error {
	layout, swap, ok, err := c.Layout()
	if err != nil || !ok {
		return err
	}
	if in.VideoStreams() == 0 || !in.StereoLayoutSupported(layout, swap) {
		return fmt.Errorf("stereo layout %q is not supported by %s", c.StereoLayout, in.ID())
	}
	in.SetStereoLayout(layout, swap)
	return nil
}

// audioDevice returns the sink that paces playback, or nil to play video
// on the wall clock.
func audioDevice() audioclock.Device {
	if !cfg.Audio {
		return nil
	}
	return audioclock.NewNullDevice(time.Now)
}

// frameLimit counts frames and calls stop once max were presented.
type frameLimit struct {
	*player.Counter
	max  int64
	stop func()
}

func (f *frameLimit) Present() error {
	if err := f.Counter.Present(); err != nil {
		return err
	}
	if f.max > 0 && f.Presented.Load() >= f.max {
		slog.Debug("frame limit reached", "frames", f.max)
		f.stop()
	}
	return nil
}
