// Package session tracks the playback sessions that are running, e.g. one
// per live stream accepted by the SRT listener.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/stereoscope/internal/player"
)

// Playback is the running player behind a session.
type Playback interface {
	Snapshot() player.Snapshot
	Send(c player.Command) bool
}

// Session is one running playback.
type Session struct {
	ID        string
	Key       string
	StartedAt time.Time

	playback Playback
	cancel   context.CancelFunc
	done   chan struct{}
}

// Done is closed when the session is removed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop cancels the session's context.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Info is a listing entry.
type Info struct {
	ID        string          `json:"id"`
	Key       string          `json:"key"`
	StartedAt time.Time       `json:"startedAt"`
	Stats     player.Snapshot `json:"stats"`
}

// Info returns the session's listing entry with current stats.
func (s *Session) Info() Info {
	i := Info{ID: s.ID, Key: s.Key, StartedAt: s.StartedAt}
	if s.playback != nil {
		i.Stats = s.playback.Snapshot()
	}
	return i
}

// Send forwards a command to the session's player. It returns false if
// there is no player or its queue is full.
func (s *Session) Send(c player.Command) bool {
	if s.playback == nil {
		return false
	}
	return s.playback.Send(c)
}

// Manager manages the lifecycle of running sessions. Keys are unique: a
// second session for a key that is already playing is rejected.
type Manager struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
	keys     map[string]string
}

// NewManager creates a new session manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "session-manager"),
		sessions: make(map[string]*Session),
		keys:     make(map[string]string),
	}
}

// Create registers a new session for key. p, if not nil, is the player
// and cancel stops the session. It returns the session and true if
// created, or nil and false if key already has a session.
func (m *Manager) Create(key string, p Playback, cancel context.CancelFunc) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[key]; ok {
		m.log.Warn("session already exists, rejecting duplicate", "key", key)
		return nil, false
	}

	s := &Session{
		ID:        uuid.NewString(),
		Key:       key,
		StartedAt: time.Now(),
		playback:  p,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.sessions[s.ID] = s
	m.keys[key] = s.ID
	m.log.Info("session created", "id", s.ID, "key", key)
	return s, true
}

// Remove removes a session by id.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		delete(m.keys, s.Key)
	}
	m.mu.Unlock()

	if ok {
		close(s.done)
		m.log.Info("session removed", "id", id, "key", s.Key)
	}
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// ByKey returns the session playing key.
func (m *Manager) ByKey(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.keys[key]
	if !ok {
		return nil, false
	}
	return m.sessions[id], true
}

// List returns all running sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions
}

// StopAll cancels every running session.
func (m *Manager) StopAll() {
	for _, s := range m.List() {
		s.Stop()
	}
}
