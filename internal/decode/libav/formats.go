package libav

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/stereoscope/internal/decode"
	"github.com/zsiec/stereoscope/internal/media"
)

// IngestScheme prefixes URLs that name a live source of the ingest registry.
const IngestScheme = "ingest://"

var pixelFormats = map[astiav.PixelFormat]decode.PixelFormat{
	astiav.PixelFormatYuv444P:     decode.PixelFormatYUV444P,
	astiav.PixelFormatYuv422P:     decode.PixelFormatYUV422P,
	astiav.PixelFormatYuv420P:     decode.PixelFormatYUV420P,
	astiav.PixelFormatYuv444P10Le: decode.PixelFormatYUV444P10,
	astiav.PixelFormatYuv422P10Le: decode.PixelFormatYUV422P10,
	astiav.PixelFormatYuv420P10Le: decode.PixelFormatYUV420P10,
	astiav.PixelFormatYuvj444P:    decode.PixelFormatYUVJ444P,
	astiav.PixelFormatYuvj422P:    decode.PixelFormatYUVJ422P,
	astiav.PixelFormatYuvj420P:    decode.PixelFormatYUVJ420P,
}

var sampleFormats = map[astiav.SampleFormat]decode.SampleFormat{
	astiav.SampleFormatU8:   decode.SampleFormatU8,
	astiav.SampleFormatU8P:  decode.SampleFormatU8P,
	astiav.SampleFormatS16:  decode.SampleFormatS16,
	astiav.SampleFormatS16P: decode.SampleFormatS16P,
	astiav.SampleFormatS32:  decode.SampleFormatS32,
	astiav.SampleFormatS32P: decode.SampleFormatS32P,
	astiav.SampleFormatFlt:  decode.SampleFormatFlt,
	astiav.SampleFormatFltp: decode.SampleFormatFltP,
	astiav.SampleFormatDbl:  decode.SampleFormatDbl,
	astiav.SampleFormatDblp: decode.SampleFormatDblP,
}

func pixelFormat(f astiav.PixelFormat) decode.PixelFormat {
	if p, ok := pixelFormats[f]; ok {
		return p
	}
	return decode.PixelFormatOther
}

func sampleFormat(f astiav.SampleFormat) decode.SampleFormat {
	if s, ok := sampleFormats[f]; ok {
		return s
	}
	return decode.SampleFormatOther
}

func chromaLocation(l astiav.ChromaLocation) media.ChromaLocation {
	switch l {
	case astiav.ChromaLocationLeft:
		return media.Left
	case astiav.ChromaLocationTopleft:
		return media.TopLeft
	default:
		return media.Center
	}
}

// subtitleFormat reports how packets of a subtitle codec are turned into
// text. Bitmap codecs are not supported.
func subtitleFormat(codec string) (media.SubtitleFormat, bool) {
	switch codec {
	case "subrip", "srt", "text", "webvtt", "mov_text":
		return media.SubtitleText, true
	case "ass", "ssa":
		return media.SubtitleASS, true
	default:
		return 0, false
	}
}

// subtitleText extracts the event text carried by a subtitle packet.
func subtitleText(codec string, data []byte) string {
	if codec == "mov_text" {
		// tx3g samples start with a 16-bit text length.
		if len(data) < 2 {
			return ""
		}
		n := int(data[0])<<8 | int(data[1])
		data = data[2:]
		if n < len(data) {
			data = data[:n]
		}
	}
	data = bytes.TrimRight(data, "\x00")
	return strings.TrimRight(string(data), "\r\n")
}

// planeLayout returns the line sizes and row counts of the planes of a
// tightly packed picture.
func planeLayout(f decode.PixelFormat, width, height int) (lines, rows [3]int) {
	bps := 1
	switch f {
	case decode.PixelFormatYUV444P10, decode.PixelFormatYUV422P10, decode.PixelFormatYUV420P10:
		bps = 2
	case decode.PixelFormatOther:
		// BGRA after conversion.
		return [3]int{4 * width}, [3]int{height}
	}

	cw, ch := width, height
	switch f {
	case decode.PixelFormatYUV422P, decode.PixelFormatYUV422P10, decode.PixelFormatYUVJ422P:
		cw = (width + 1) / 2
	case decode.PixelFormatYUV420P, decode.PixelFormatYUV420P10, decode.PixelFormatYUVJ420P:
		cw = (width + 1) / 2
		ch = (height + 1) / 2
	}
	return [3]int{bps * width, bps * cw, bps * cw}, [3]int{height, ch, ch}
}

// splitPlanes cuts a tightly packed picture buffer into its planes.
func splitPlanes(buf []byte, lines, rows [3]int) ([3][]byte, error) {
	var planes [3][]byte
	off := 0
	for i := range planes {
		n := lines[i] * rows[i]
		if n == 0 {
			continue
		}
		if off+n > len(buf) {
			return planes, fmt.Errorf("picture buffer too short: %d bytes, plane %d needs %d", len(buf), i, off+n)
		}
		planes[i] = buf[off : off+n : off+n]
		off += n
	}
	return planes, nil
}

// deviceInput returns the FFmpeg input format, device URL and options for a
// capture device request. A non-empty url overrides the default device.
func deviceInput(dev media.DeviceRequest, url string) (format, device string, opts map[string]string) {
	opts = make(map[string]string)
	switch dev.Device {
	case media.Firewire:
		format, device = "iec61883", "auto"
	case media.X11:
		format = "x11grab"
		device = os.Getenv("DISPLAY")
		if device == "" {
			device = ":0.0"
		}
	default:
		format, device = "v4l2", "/dev/video0"
	}
	if url != "" {
		device = url
	}

	if dev.Width > 0 && dev.Height > 0 {
		opts["video_size"] = fmt.Sprintf("%dx%d", dev.Width, dev.Height)
	}
	if dev.FrameRateNum > 0 && dev.FrameRateDen > 0 {
		opts["framerate"] = fmt.Sprintf("%d/%d", dev.FrameRateNum, dev.FrameRateDen)
	}
	if dev.RequestMJPEG && dev.Device == media.SysDefault {
		opts["input_format"] = "mjpeg"
	}
	return format, device, opts
}

// liveURL reports whether a URL names a real-time network source.
func liveURL(url string) bool {
	for _, p := range []string{IngestScheme, "srt://", "udp://", "rtp://", "rtsp://", "rtmp://", "tcp://"} {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}

func ingestKey(url string) (string, bool) {
	if !strings.HasPrefix(url, IngestScheme) {
		return "", false
	}
	return strings.TrimPrefix(url, IngestScheme), true
}

func dictionaryMap(d *astiav.Dictionary) map[string]string {
	m := make(map[string]string)
	if d == nil {
		return m
	}
	var e *astiav.DictionaryEntry
	for {
		e = d.Get("", e, astiav.NewDictionaryFlags(astiav.DictionaryFlagIgnoreSuffix))
		if e == nil {
			return m
		}
		m[e.Key()] = e.Value()
	}
}
