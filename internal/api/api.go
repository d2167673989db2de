// Package api serves the JSON control API of a running listener: playback
// sessions, their player commands, ingested streams and SRT pulls.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/zsiec/stereoscope/internal/ingest"
	"github.com/zsiec/stereoscope/internal/ingest/srt"
	"github.com/zsiec/stereoscope/internal/media"
	"github.com/zsiec/stereoscope/internal/player"
	"github.com/zsiec/stereoscope/internal/session"
)

// Puller starts and stops SRT pulls. It is implemented by *srt.Caller.
type Puller interface {
	Pull(ctx context.Context, req srt.PullRequest) error
	Stop(streamKey string) error
	ActivePulls() []srt.PullRequest
}

// Config holds the dependencies of a Server. Registry and Pulls may be nil.
type Config struct {
	Addr     string
	Sessions *session.Manager
	Registry *ingest.Registry
	Pulls    Puller
}

// Server is the HTTP control API.
type Server struct {
	log    *slog.Logger
	config Config

	// ctx outlives requests; pulls started over the API run on it.
	ctx context.Context
}

// NewServer returns an API server. If log is nil, slog.Default() is used.
func NewServer(config Config, log *slog.Logger) (*Server, error) {
	if config.Sessions == nil {
		return nil, errors.New("api: Sessions is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:    log.With("component", "api"),
		config: config,
		ctx:    context.Background(),
	}, nil
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleStopSession)
	mux.HandleFunc("POST /api/sessions/{id}/commands", s.handleCommand)
	mux.HandleFunc("GET /api/streams", s.handleListStreams)
	mux.HandleFunc("GET /api/srt-pull", s.handleSRTPullList)
	mux.HandleFunc("POST /api/srt-pull", s.handleSRTPullCreate)
	mux.HandleFunc("DELETE /api/srt-pull", s.handleSRTPullStop)
	return corsMiddleware(mux)
}

// Start serves the API on config.Addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.ctx = ctx
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("API server listening", "addr", s.config.Addr)

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) || ctx.Err() != nil {
		return nil
	}
	return err
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.config.Sessions.List()
	resp := make([]session.Info, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, sess.Info())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := s.config.Sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
	}
	return sess, ok
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, sess.Info())
	}
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping", "id": sess.ID})
}

// commandRequest is the body of POST /api/sessions/{id}/commands. Pos is
// in seconds; Layout is a stereo layout name such as "left-right-half".
type commandRequest struct {
	Type     string  `json:"type"`
	Pos      float64 `json:"pos,omitempty"`
	Relative bool    `json:"relative,omitempty"`
	Layout   string  `json:"layout,omitempty"`
}

func (req commandRequest) command() (player.Command, error) {
	typ, err := player.ParseCommandType(req.Type)
	if err != nil {
		return player.Command{}, err
	}
	c := player.Command{
		Type:     typ,
		Pos:      int64(req.Pos * 1e6),
		Relative: req.Relative,
	}
	if typ == player.CmdSetStereoLayout {
		if c.Layout, c.Swap, err = media.ParseStereoLayout(req.Layout); err != nil {
			return player.Command{}, err
		}
	}
	return c, nil
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := req.command()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !sess.Send(c) {
		writeError(w, http.StatusServiceUnavailable, "player is busy")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "command": c.Type.String()})
}

// StreamInfo describes an ingested stream.
type StreamInfo struct {
	Key     string       `json:"key"`
	Format  string       `json:"format"`
	Stats   ingest.Stats `json:"stats"`
	Session string       `json:"session,omitempty"`
}

func (s *Server) handleListStreams(w http.ResponseWriter, _ *http.Request) {
	resp := make([]StreamInfo, 0)
	if s.config.Registry != nil {
		for _, key := range s.config.Registry.Keys() {
			st, ok := s.config.Registry.Get(key)
			if !ok {
				continue
			}
			info := StreamInfo{Key: key, Format: st.Format.String(), Stats: st.Stats()}
			if sess, ok := s.config.Sessions.ByKey(key); ok {
				info.Session = sess.ID
			}
			resp = append(resp, info)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SECURITY: the pull endpoint dials arbitrary addresses. Expose the API to
// operators only.
func (s *Server) handleSRTPullList(w http.ResponseWriter, _ *http.Request) {
	if s.config.Pulls == nil {
		writeJSON(w, http.StatusOK, []srt.PullRequest{})
		return
	}
	writeJSON(w, http.StatusOK, s.config.Pulls.ActivePulls())
}

func (s *Server) handleSRTPullCreate(w http.ResponseWriter, r *http.Request) {
	if s.config.Pulls == nil {
		writeError(w, http.StatusNotImplemented, "SRT pull not configured")
		return
	}
	var req srt.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" || req.StreamKey == "" {
		writeError(w, http.StatusBadRequest, "address and streamKey are required")
		return
	}
	if err := s.config.Pulls.Pull(s.ctx, req); err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, srt.ErrPullActive) {
			code = http.StatusConflict
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "pulling", "streamKey": req.StreamKey})
}

func (s *Server) handleSRTPullStop(w http.ResponseWriter, r *http.Request) {
	if s.config.Pulls == nil {
		writeError(w, http.StatusNotImplemented, "SRT pull not configured")
		return
	}
	streamKey := r.URL.Query().Get("streamKey")
	if streamKey == "" {
		writeError(w, http.StatusBadRequest, "streamKey query parameter required")
		return
	}
	if err := s.config.Pulls.Stop(streamKey); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "streamKey": streamKey})
}
