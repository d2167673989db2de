package audioclock

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/stereoscope/internal/media"
)

// Buffer protocol of the output: NumBuffers buffers of BufferSize bytes
// are queued on the device. BufferSize is a multiple of every supported
// sample frame size.
const (
	NumBuffers = 3
	BufferSize = 20160 * 2
)

// ErrNotStarted is returned by operations that need a started output.
var ErrNotStarted = errors.New("audioclock: output not started")

// Device is an audio sink with a queue of buffers, modelled on OpenAL
// sources.
type Device interface {
	// Queue appends a buffer of interleaved samples in the format of b.
	Queue(data []byte, b media.AudioBlob) error
	// Unqueue releases the oldest processed buffer.
	Unqueue() error
	// Processed returns the number of queued buffers that finished playing.
	Processed() int
	// SampleOffset returns the playback position in sample frames,
	// counted from the start of the oldest queued buffer.
	SampleOffset() int
	Playing() bool
	Play() error
	Pause() error
	Stop() error
}

type bufferFormat struct {
	frameSize int
	rate      int
}

// Output drives a Device with fixed size buffers and derives the playback
// clock from the device position.
type Output struct {
	log   *slog.Logger
	dev   Device
	clock *Clock

	mu       sync.Mutex
	started  bool
	pastTime int64
	formats  []bufferFormat
}

// NewOutput returns an output for dev. now is the wall clock used for
// timestamp extrapolation; nil means time.Now.
func NewOutput(dev Device, now func() time.Time, log *slog.Logger) *Output {
	if log == nil {
		log = slog.Default()
	}
	return &Output{
		log:   log.With("component", "audio-output"),
		dev:   dev,
		clock: NewClock(now),
	}
}

// RequiredInitialDataSize returns the number of bytes Data needs before
// Start.
func (o *Output) RequiredInitialDataSize() int {
	return NumBuffers * BufferSize
}

// RequiredUpdateDataSize returns the number of bytes Data needs each time
// Status reports that the device wants more.
func (o *Output) RequiredUpdateDataSize() int {
	return BufferSize
}

// Data hands audio to the device. Before Start the blob must hold
// RequiredInitialDataSize bytes, afterwards RequiredUpdateDataSize bytes.
func (o *Output) Data(b media.AudioBlob) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if b.FrameSize() <= 0 || b.Rate <= 0 {
		return fmt.Errorf("audio output: invalid format %s", b.FormatName())
	}
	f := bufferFormat{frameSize: b.FrameSize(), rate: b.Rate}

	if !o.started {
		if len(b.Data) != NumBuffers*BufferSize {
			return fmt.Errorf("audio output: initial data: got %d bytes, want %d", len(b.Data), NumBuffers*BufferSize)
		}
		o.formats = o.formats[:0]
		for i := 0; i < NumBuffers; i++ {
			if err := o.dev.Queue(b.Data[i*BufferSize:(i+1)*BufferSize], b); err != nil {
				return fmt.Errorf("audio output: queue initial buffer: %w", err)
			}
			o.formats = append(o.formats, f)
		}
		o.log.Debug("buffered initial data", "bytes", len(b.Data), "format", b.FormatName())
		return nil
	}

	if len(b.Data) == 0 {
		return nil
	}
	if len(b.Data) != BufferSize {
		return fmt.Errorf("audio output: update data: got %d bytes, want %d", len(b.Data), BufferSize)
	}
	if err := o.dev.Unqueue(); err != nil {
		return fmt.Errorf("audio output: unqueue: %w", err)
	}
	if err := o.dev.Queue(b.Data, b); err != nil {
		return fmt.Errorf("audio output: queue: %w", err)
	}
	done := o.formats[0]
	o.pastTime += int64(BufferSize/done.frameSize) * 1_000_000 / int64(done.rate)
	o.formats = append(o.formats[1:], f)
	return nil
}

// Start begins playback of the initial data and starts a new clock
// segment at zero.
func (o *Output) Start() (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.formats) == 0 {
		return 0, fmt.Errorf("audio output: start without initial data")
	}
	if err := o.dev.Play(); err != nil {
		return 0, fmt.Errorf("audio output: play: %w", err)
	}
	o.started = true
	o.pastTime = 0
	o.clock.Restart(0)
	o.log.Debug("started")
	return 0, nil
}

// Status returns the smoothed playback time in microseconds and whether
// the device has a processed buffer to refill. A device that ran dry while
// buffers are pending is restarted. Before Start it reports media.NoTime
// and that data is needed.
func (o *Output) Status() (int64, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return media.NoTime, true, nil
	}

	needData := o.dev.Processed() > 0
	if !needData && !o.dev.Playing() {
		o.log.Warn("audio underrun, restarting device")
		if err := o.dev.Play(); err != nil {
			return media.NoTime, needData, fmt.Errorf("audio output: restart: %w", err)
		}
	}

	head := o.formats[0]
	ts := int64(o.dev.SampleOffset())*1_000_000/int64(head.rate) + o.pastTime
	return o.clock.Report(ts), needData, nil
}

// Pause pauses the device.
func (o *Output) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return ErrNotStarted
	}
	return o.dev.Pause()
}

// Unpause resumes the device. The clock keeps its reported value.
func (o *Output) Unpause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return ErrNotStarted
	}
	if err := o.dev.Play(); err != nil {
		return err
	}
	head := o.formats[0]
	o.clock.Reset(int64(o.dev.SampleOffset())*1_000_000/int64(head.rate) + o.pastTime)
	return nil
}

// Stop stops the device and drops queued data. A new Data/Start cycle is
// needed afterwards.
func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = false
	o.formats = o.formats[:0]
	o.pastTime = 0
	return o.dev.Stop()
}
