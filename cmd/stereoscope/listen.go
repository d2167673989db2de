package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/stereoscope/internal/api"
	"github.com/zsiec/stereoscope/internal/decode"
	"github.com/zsiec/stereoscope/internal/decode/libav"
	"github.com/zsiec/stereoscope/internal/ingest"
	"github.com/zsiec/stereoscope/internal/ingest/srt"
	"github.com/zsiec/stereoscope/internal/input"
	"github.com/zsiec/stereoscope/internal/media"
	"github.com/zsiec/stereoscope/internal/player"
	"github.com/zsiec/stereoscope/internal/session"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Accept live SRT streams and play each one",
	Long: "Listen for SRT publishers, pull the configured remote sources, and run\n" +
		"a headless playback session for every stream received. Sessions are\n" +
		"controlled through the HTTP API.",
	Args: cobra.NoArgs,
	RunE: runListen,
}

var (
	listenSRTAddr string
	listenAPIAddr string
)

func init() {
	f := listenCmd.Flags()
	f.StringVar(&listenSRTAddr, "srt-addr", "", "SRT listen address; overrides the config")
	f.StringVar(&listenAPIAddr, "api-addr", "", `HTTP API listen address, "" to disable; overrides the config`)
}

func runListen(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("srt-addr") {
		cfg.SRTAddr = listenSRTAddr
	}
	if cmd.Flags().Changed("api-addr") {
		cfg.APIAddr = listenAPIAddr
	}
	ctx := cmd.Context()
	log := slog.Default()

	manager := session.NewManager(log)
	var opener decode.Opener
	registry := ingest.NewRegistry(func(st *ingest.Stream) {
		handleStream(ctx, st, opener, manager, log)
	})
	opener = newOpener(registry)

	srtServer := srt.NewServer(cfg.SRTAddr, registry, log)
	srtCaller := srt.NewCaller(registry, log)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srtServer.Start(ctx)
	})

	if cfg.APIAddr != "" {
		apiServer, err := api.NewServer(api.Config{
			Addr:     cfg.APIAddr,
			Sessions: manager,
			Registry: registry,
			Pulls:    srtCaller,
		}, log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return apiServer.Start(ctx)
		})
	}

	for _, req := range cfg.Pulls {
		g.Go(func() error {
			if err := srtCaller.Pull(ctx, req); err != nil {
				log.Error("SRT pull failed", "address", req.Address, "stream_key", req.StreamKey, "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		manager.StopAll()
		return nil
	})

	slog.Info("stereoscope listening", "version", version, "srt", cfg.SRTAddr, "api", cfg.APIAddr)
	return g.Wait()
}

// handleStream plays one ingested stream until it ends or the listener
// shuts down. A reconnect under the same key replaces the running session.
func handleStream(ctx context.Context, st *ingest.Stream, opener decode.Opener, manager *session.Manager, log *slog.Logger) {
	log = log.With("stream", st.Key)

	if old, ok := manager.ByKey(st.Key); ok {
		old.Stop()
		select {
		case <-old.Done():
		case <-ctx.Done():
			return
		}
	}

	// The input sees EOF when the transport disconnects.
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := input.New(opener, log)
	if err := in.Open(sctx, []string{libav.IngestScheme + st.Key}, media.DeviceRequest{}); err != nil {
		log.Error("opening stream failed", "error", err)
		return
	}
	defer in.Close()

	if err := applyLayout(in, cfg); err != nil {
		log.Warn("keeping detected stereo layout", "error", err)
	}

	p := player.New(in, &player.Counter{}, audioDevice(), log)
	p.SetTick(cfg.Tick)

	sess, ok := manager.Create(st.Key, p, cancel)
	if !ok {
		return
	}
	defer manager.Remove(sess.ID)

	log.Info("playing stream", "session", sess.ID, "input", in.ID())
	if err := p.Run(sctx); err != nil {
		log.Error("playback failed", "session", sess.ID, "error", err)
	}
	log.Info("stream playback ended", "session", sess.ID, "stats", p.Snapshot(), "ingest", st.Stats())
}
