package libav

import (
	"errors"
	"io"

	"github.com/asticode/go-astiav"
)

// ioBufferSize is the AVIO buffer for ingest sources, a multiple of the
// 188 byte MPEG-TS packet.
const ioBufferSize = 188 * 7 * 32

// readFunc adapts a live byte stream to an AVIO read callback. A short read
// is fine, FFmpeg keeps calling until its buffer is filled or EOF.
func readFunc(r io.Reader) astiav.IOContextReadFunc {
	return func(b []byte) (int, error) {
		n, err := r.Read(b)
		if n > 0 {
			return n, nil
		}
		if err == nil {
			return 0, nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
			return 0, astiav.ErrEof
		}
		return 0, err
	}
}
