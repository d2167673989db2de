package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zsiec/stereoscope/internal/config"
	"github.com/zsiec/stereoscope/internal/decode"
	"github.com/zsiec/stereoscope/internal/decode/libav"
	"github.com/zsiec/stereoscope/internal/demux"
	"github.com/zsiec/stereoscope/internal/ingest"
)

var version = "dev"

var (
	configPath string
	debugFlag  bool
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:           "stereoscope",
	Short:         "Open, inspect and play stereoscopic 3D video",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if debugFlag || os.Getenv("DEBUG") != "" {
			cfg.Debug = true
		}
		setupLogging(cfg.Debug)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the stereoscope version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), "stereoscope", version)
		return nil
	},
	DisableFlagsInUseLine: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "debug logging, including FFmpeg's")
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.AddCommand(probeCmd, playCmd, listenCmd, versionCmd)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("stereoscope failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	libav.SetLogLevel(debug)
}

// newOpener returns the decode engine: FFmpeg with closed caption and
// frame packing inspection. registry may be nil.
func newOpener(registry *ingest.Registry) decode.Opener {
	var sources libav.Sources
	if registry != nil {
		sources = registry
	}
	av := libav.NewOpener(sources, nil)
	av.Threads = cfg.VideoThreads
	return demux.NewOpener(av, nil)
}
