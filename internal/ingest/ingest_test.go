package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	stream, w := r.Register("test-stream", FormatMPEGTS)

	if stream.Key != "test-stream" {
		t.Fatalf("got key %q, want %q", stream.Key, "test-stream")
	}
	if stream.Format != FormatMPEGTS {
		t.Fatalf("got format %d, want %d", stream.Format, FormatMPEGTS)
	}
	if w == nil {
		t.Fatal("writer is nil")
	}

	got, ok := r.Get("test-stream")
	if !ok {
		t.Fatal("Get returned false for registered stream")
	}
	if got != stream {
		t.Fatal("Get returned different stream pointer")
	}
	if keys := r.Keys(); len(keys) != 1 || keys[0] != "test-stream" {
		t.Fatalf("Keys: got %v, want [test-stream]", keys)
	}
}

func TestRegistryGetMissing(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatal("Get returned true for missing stream")
	}
}

func TestRegistryUnregister(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	stream, _ := r.Register("stream1", FormatMPEGTS)
	r.Unregister("stream1")

	if _, ok := r.Get("stream1"); ok {
		t.Fatal("stream still found after Unregister")
	}
	select {
	case <-stream.Done():
	default:
		t.Fatal("Done not closed after Unregister")
	}

	// Missing keys are ignored.
	r.Unregister("nonexistent")
}

func TestRegistryUnregisterClosesPipe(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	stream, _ := r.Register("stream1", FormatMPEGTS)
	r.Unregister("stream1")

	buf := make([]byte, 1)
	if _, err := stream.input.Read(buf); err != io.EOF {
		t.Fatalf("expected EOF after Unregister, got %v", err)
	}
}

func TestRegistryReRegisterEndsOldStream(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	old, _ := r.Register("cam", FormatMPEGTS)
	cur, _ := r.Register("cam", FormatMPEGTS)

	select {
	case <-old.Done():
	default:
		t.Fatal("old stream not ended")
	}

	// The old connection's cleanup must not remove the new stream.
	r.UnregisterStream(old)
	if got, ok := r.Get("cam"); !ok || got != cur {
		t.Fatal("UnregisterStream removed the newer stream")
	}
	r.UnregisterStream(cur)
	if _, ok := r.Get("cam"); ok {
		t.Fatal("stream still found after UnregisterStream")
	}
}

func TestRegistryOnStreamCallback(t *testing.T) {
	t.Parallel()

	got := make(chan *Stream, 1)
	r := NewRegistry(func(s *Stream) { got <- s })
	want, _ := r.Register("cb-stream", FormatMPEGTS)

	select {
	case s := <-got:
		if s != want {
			t.Fatalf("callback got stream %q, want %q", s.Key, want.Key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onStream callback not called within timeout")
	}
}

func TestRegistryWait(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	res := make(chan *Stream, 1)
	go func() {
		s, err := r.Wait(context.Background(), "late")
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
		res <- s
	}()

	// Unrelated registrations wake the waiter without satisfying it.
	r.Register("other", FormatMPEGTS)
	want, _ := r.Register("late", FormatMPEGTS)

	select {
	case s := <-res:
		if s != want {
			t.Fatal("Wait returned a different stream")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Register")
	}
}

func TestRegistryWaitCancelled(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := r.Wait(ctx, "never"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
}

func TestOpenSource(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	stream, w := r.Register("cam1", FormatMPEGTS)

	src, format, err := r.OpenSource(context.Background(), "cam1")
	if err != nil {
		t.Fatalf("OpenSource: %v", err)
	}
	if format != "mpegts" {
		t.Errorf("format: got %q, want mpegts", format)
	}

	go w.Write([]byte("0123456789"))
	buf := make([]byte, 10)
	if _, err := io.ReadFull(src, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := stream.Stats().BytesConsumed; got != 10 {
		t.Errorf("BytesConsumed: got %d, want 10", got)
	}

	if _, _, err := r.OpenSource(context.Background(), "cam1"); !errors.Is(err, ErrClaimed) {
		t.Errorf("second OpenSource: got %v, want ErrClaimed", err)
	}

	// Closing the reader fails the transport's next write.
	src.Close()
	if _, err := w.Write([]byte("x")); !errors.Is(err, errReaderGone) {
		t.Errorf("write after reader close: got %v, want errReaderGone", err)
	}
}

func TestStreamRecordRead(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	stream, _ := r.Register("s1", FormatMPEGTS)

	stream.RecordRead(100)
	stream.RecordRead(200)

	stats := stream.Stats()
	if stats.BytesReceived != 300 {
		t.Fatalf("BytesReceived = %d, want 300", stats.BytesReceived)
	}
	if stats.ReadCount != 2 {
		t.Fatalf("ReadCount = %d, want 2", stats.ReadCount)
	}
}

func TestStreamSetRemoteAddr(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	stream, _ := r.Register("s1", FormatMPEGTS)
	stream.SetRemoteAddr("192.168.1.1:5000")

	if got := stream.Stats().RemoteAddr; got != "192.168.1.1:5000" {
		t.Fatalf("RemoteAddr = %q, want %q", got, "192.168.1.1:5000")
	}
}

func TestStreamStatsUptime(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	stream, _ := r.Register("s1", FormatMPEGTS)

	time.Sleep(10 * time.Millisecond)

	stats := stream.Stats()
	if stats.UptimeMs < 10 {
		t.Fatalf("UptimeMs = %d, expected at least 10", stats.UptimeMs)
	}
	if stats.ConnectedAt == 0 {
		t.Fatal("ConnectedAt is zero")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "stream-" + string(rune('A'+n%26))
			s, _ := r.Register(key, FormatMPEGTS)
			r.Get(key)
			r.UnregisterStream(s)
		}(i)
	}

	wg.Wait()
}
