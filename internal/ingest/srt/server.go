package srt

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/stereoscope/internal/ingest"
)

// Server is an SRT listener for publishers. Every accepted connection
// becomes a registry stream; two publishers named "<pair>/left" and
// "<pair>/right" are announced as the views of one stereo pair.
type Server struct {
	addr     string
	registry *ingest.Registry
	log      *slog.Logger
}

// NewServer returns a server for addr that feeds registry. A nil log
// means slog.Default().
func NewServer(addr string, registry *ingest.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{addr: addr, registry: registry, log: log.With("component", "srt-server")}
}

// Start listens on the server address and serves publishers until ctx is
// cancelled. Stream ids that do not ask to publish are rejected during the
// handshake.
func (s *Server) Start(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", s.addr, err)
	}
	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		reason := rejectReason(req.StreamID)
		if reason != 0 {
			s.log.Warn("publisher rejected", "stream_id", req.StreamID, "remote", req.RemoteAddr, "reason", reason)
		}
		return reason
	})
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()
	s.log.Info("listening", "addr", s.addr)

	for {
		conn, err := l.Accept()
		switch {
		case err == nil:
			go s.publish(ctx, conn, conn.StreamID(), conn.RemoteAddr().String())
		case ctx.Err() != nil:
			return nil
		default:
			s.log.Warn("accept error", "error", err)
		}
	}
}

// publish registers the stream named by streamID and copies conn into it
// until the connection ends.
func (s *Server) publish(ctx context.Context, conn io.ReadCloser, streamID, remote string) {
	p, err := parseStreamID(streamID)
	if err != nil {
		s.log.Warn("publisher dropped", "stream_id", streamID, "remote", remote, "error", err)
		conn.Close()
		return
	}

	if p.Eye == "" {
		s.log.Info("publish", "stream_key", p.Key, "remote", remote)
	} else {
		s.log.Info("publish", "stream_key", p.Key, "remote", remote, "pair", p.Pair, "eye", p.Eye)
		if _, ok := s.registry.Get(p.partner()); ok {
			left, right := p.Key, p.partner()
			if p.Eye == "right" {
				left, right = right, left
			}
			s.log.Info("stereo pair ready", "pair", p.Pair,
				"left", ingestURL(left), "right", ingestURL(right))
		}
	}
	pump(ctx, conn, s.registry, p.Key, remote, s.log)
}

func ingestURL(key string) string {
	return "ingest://" + key
}
