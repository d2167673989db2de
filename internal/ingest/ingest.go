// Package ingest is the rendezvous between live transports such as SRT and
// the media pipeline. Transports register a stream under a key and write
// the received container bytes into it; the decode backend opens
// "ingest://<key>" and reads them back.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClaimed is returned when a second reader asks for a stream that is
// already being read. A pipe has exactly one consumer.
var ErrClaimed = errors.New("ingest: stream already has a reader")

// errReaderGone is seen by the transport when the reader closed the stream.
var errReaderGone = errors.New("ingest: reader closed the stream")

// InputFormat identifies the container format of an ingested stream.
type InputFormat int

// Supported ingest container formats.
const (
	FormatMPEGTS InputFormat = iota
)

// String returns the FFmpeg demuxer name of the format.
func (f InputFormat) String() string {
	switch f {
	case FormatMPEGTS:
		return "mpegts"
	default:
		return ""
	}
}

// Stats captures connection-level metrics of a stream.
type Stats struct {
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	BytesConsumed int64  `json:"bytesConsumed"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// Stream is one live source. Bytes written by the transport are read by a
// single consumer.
type Stream struct {
	Key       string
	StartedAt time.Time
	Format    InputFormat
	input     *io.PipeReader
	pw        *io.PipeWriter
	done      chan struct{}
	claimed   atomic.Bool

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	bytesConsumed atomic.Int64
	remoteAddr    atomic.Value
}

// RecordRead increments the byte and read counters, called by the
// transport after each successful socket read.
func (s *Stream) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
}

// SetRemoteAddr stores the remote address of the connection for
// diagnostics.
func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Done is closed when the stream is unregistered.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Stats returns a snapshot of the stream's metrics.
func (s *Stream) Stats() Stats {
	addr, _ := s.remoteAddr.Load().(string)
	return Stats{
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		BytesConsumed: s.bytesConsumed.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// reader is the consumer side handed out by OpenSource.
type reader struct {
	s *Stream
}

func (r reader) Read(p []byte) (int, error) {
	n, err := r.s.input.Read(p)
	r.s.bytesConsumed.Add(int64(n))
	return n, err
}

// Close makes further writes by the transport fail, which ends the
// connection.
func (r reader) Close() error {
	return r.s.input.CloseWithError(errReaderGone)
}

// Registry tracks live streams by key and notifies onStream of new ones.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream
	changed chan struct{}

	onStream func(s *Stream)
}

// NewRegistry creates a Registry. The onStream callback, if not nil, is
// invoked asynchronously whenever a stream is registered.
func NewRegistry(onStream func(s *Stream)) *Registry {
	return &Registry{
		streams:  make(map[string]*Stream),
		changed:  make(chan struct{}),
		onStream: onStream,
	}
}

// Register creates a stream with the given key and format, returning the
// Stream and the Writer the transport should write into. A stream that
// was registered under the same key before is ended.
func (r *Registry) Register(key string, format InputFormat) (*Stream, io.Writer) {
	pr, pw := io.Pipe()

	stream := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		Format:    format,
		input:     pr,
		pw:        pw,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	old := r.streams[key]
	r.streams[key] = stream
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()

	if old != nil {
		old.end()
	}
	if r.onStream != nil {
		go r.onStream(stream)
	}

	return stream, pw
}

func (s *Stream) end() {
	s.pw.Close()
	close(s.done)
}

// Unregister removes a stream by key, closing its pipe and signaling Done.
func (r *Registry) Unregister(key string) {
	r.unregister(key, nil)
}

// UnregisterStream removes s if it is still the stream registered under
// its key. Transports use it so that a reconnect under the same key is not
// torn down by the old connection's cleanup.
func (r *Registry) UnregisterStream(s *Stream) {
	r.unregister(s.Key, s)
}

func (r *Registry) unregister(key string, want *Stream) {
	r.mu.Lock()
	stream, ok := r.streams[key]
	if ok && (want == nil || stream == want) {
		delete(r.streams, key)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		stream.end()
	}
}

// Get returns the Stream for the given key, or false if not found.
func (r *Registry) Get(key string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}

// Keys returns the keys of all registered streams.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.streams))
	for k := range r.streams {
		keys = append(keys, k)
	}
	return keys
}

// Wait returns the stream registered under key, blocking until a
// transport registers it or ctx ends.
func (r *Registry) Wait(ctx context.Context, key string) (*Stream, error) {
	for {
		r.mu.RLock()
		s, ok := r.streams[key]
		changed := r.changed
		r.mu.RUnlock()
		if ok {
			return s, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for ingest stream %q: %w", key, ctx.Err())
		}
	}
}

// OpenSource waits for the stream registered under key and claims its
// reader. It returns the reader and the FFmpeg name of the container
// format.
func (r *Registry) OpenSource(ctx context.Context, key string) (io.ReadCloser, string, error) {
	s, err := r.Wait(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if !s.claimed.CompareAndSwap(false, true) {
		return nil, "", fmt.Errorf("%w: %q", ErrClaimed, key)
	}
	return reader{s: s}, s.Format.String(), nil
}
