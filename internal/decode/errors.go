package decode

import "errors"

// Sentinel errors returned by Session implementations and by the media
// layers built on them. End of stream is reported as io.EOF.
var (
	// ErrOpen wraps every failure that aborts opening an input.
	ErrOpen = errors.New("decode: cannot open input")

	// ErrUnsupported reports a codec, channel layout or sample format the
	// pipeline refuses to handle. It is always wrapped together with ErrOpen.
	ErrUnsupported = errors.New("decode: unsupported format")

	// ErrDecode reports a corrupt packet. Callers skip the packet.
	ErrDecode = errors.New("decode: corrupt data")

	// ErrSeek reports a rejected seek. Playback continues from wherever the
	// next read lands.
	ErrSeek = errors.New("decode: seek failed")

	// ErrAgain means the decoder needs another packet before it can return
	// output.
	ErrAgain = errors.New("decode: need more input")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("decode: session closed")
)
