package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zsiec/stereoscope/internal/input"
	"github.com/zsiec/stereoscope/internal/media"
)

var probeDevice deviceFlags

var probeCmd = &cobra.Command{
	Use:   "probe URL...",
	Short: "Open an input and print its streams and stereo layout",
	Long: "Open one or more URLs as a single input and print what was detected.\n" +
		"Two URLs are treated as the left and right view of a stereo pair.",
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := probeDevice.request()
		if err != nil {
			return err
		}
		if len(args) == 0 && !dev.IsDevice() {
			return fmt.Errorf("probe needs a URL or --device")
		}

		in := input.New(newOpener(nil), nil)
		if err := in.Open(cmd.Context(), args, dev); err != nil {
			return err
		}
		defer in.Close()

		printInput(cmd.OutOrStdout(), in)
		return nil
	},
}

func init() {
	probeDevice.register(probeCmd)
}

func printInput(w io.Writer, in *input.Input) {
	fmt.Fprintf(w, "Input:    %s\n", in.ID())
	fmt.Fprintf(w, "URLs:     %s\n", strings.Join(in.URLs(), ", "))
	fmt.Fprintf(w, "Duration: %s\n", formatTime(in.Duration()))
	if in.Live() {
		fmt.Fprintln(w, "Live:     yes")
	}
	if skip := in.InitialSkip(); skip > 0 {
		fmt.Fprintf(w, "Skip:     %s\n", formatTime(skip))
	}

	if tags := in.Tags(); len(tags) > 0 {
		fmt.Fprintln(w, "Tags:")
		for _, t := range tags {
			fmt.Fprintf(w, "  %s = %s\n", t.Name, t.Value)
		}
	}

	for i := 0; i < in.VideoStreams(); i++ {
		fmt.Fprintf(w, "Video %d:  %s%s\n", i, in.VideoStreamName(i), activeMark(i == in.ActiveVideoStream()))
	}
	if in.VideoStreams() > 0 {
		f := in.VideoFrameTemplate()
		num, den := in.VideoFrameRate()
		fmt.Fprintf(w, "Layout:   %s, view %dx%d, %d/%d fps\n",
			media.StereoLayoutString(f.StereoLayout, f.StereoLayoutSwap), f.Width, f.Height, num, den)
	}
	for i := 0; i < in.AudioStreams(); i++ {
		fmt.Fprintf(w, "Audio %d:  %s%s\n", i, in.AudioStreamName(i), activeMark(i == in.ActiveAudioStream()))
	}
	for i := 0; i < in.SubtitleStreams(); i++ {
		fmt.Fprintf(w, "Subs %d:   %s%s\n", i, in.SubtitleStreamName(i), activeMark(i == in.ActiveSubtitleStream()))
	}
}

func activeMark(active bool) string {
	if active {
		return " (active)"
	}
	return ""
}

func formatTime(us int64) string {
	if us == media.NoTime {
		return "unknown"
	}
	return (time.Duration(us) * time.Microsecond).String()
}
