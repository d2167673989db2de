package srt

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/zsiec/stereoscope/internal/ingest"
)

// srtReadBufferSize is the read buffer for SRT socket reads.
// 1316 bytes = 7 MPEG-TS packets (188 * 7), the standard SRT payload size.
const srtReadBufferSize = 1316 * 10

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

// pump copies conn into the registry under key until the connection ends,
// ctx is cancelled or the reader goes away, then unregisters the stream.
func pump(ctx context.Context, conn io.ReadCloser, registry *ingest.Registry, key, remote string, log *slog.Logger) {
	stream, writer := registry.Register(key, ingest.FormatMPEGTS)
	stream.SetRemoteAddr(remote)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, srtReadBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			stream.RecordRead(n)
			if _, werr := writer.Write(buf[:n]); werr != nil {
				log.Debug("pipe write error", "stream_key", key, "error", werr)
				break
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Debug("read error", "stream_key", key, "error", err)
			}
			break
		}
	}

	stats := stream.Stats()
	registry.UnregisterStream(stream)
	log.Info("connection closed", "stream_key", key,
		"bytes", stats.BytesReceived, "reads", stats.ReadCount,
		"consumed", stats.BytesConsumed, "uptime_ms", stats.UptimeMs)
}
