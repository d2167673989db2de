package demux

import "fmt"

// SEIFramePacking is the frame_packing_arrangement SEI payload type, the
// same in H.264 and H.265.
const SEIFramePacking = 45

// SEIMessage is one payload of an SEI NAL unit, with emulation prevention
// removed.
type SEIMessage struct {
	Type    int
	Payload []byte
}

// SEIMessages returns the payloads of an SEI NAL unit. headerSize is 1 for
// H.264 and 2 for H.265. Parsing stops at the RBSP trailing bits or at the
// first truncated message.
func SEIMessages(nal []byte, headerSize int) []SEIMessage {
	if len(nal) <= headerSize {
		return nil
	}
	rbsp := removeEmulationPrevention(nal[headerSize:])

	var msgs []SEIMessage
	i := 0
	for i < len(rbsp) && rbsp[i] != 0x80 {
		payloadType := 0
		for i < len(rbsp) && rbsp[i] == 0xFF {
			payloadType += 255
			i++
		}
		if i >= len(rbsp) {
			break
		}
		payloadType += int(rbsp[i])
		i++

		size := 0
		for i < len(rbsp) && rbsp[i] == 0xFF {
			size += 255
			i++
		}
		if i >= len(rbsp) {
			break
		}
		size += int(rbsp[i])
		i++

		if i+size > len(rbsp) {
			break
		}
		msgs = append(msgs, SEIMessage{Type: payloadType, Payload: rbsp[i : i+size]})
		i += size
	}
	return msgs
}

// Frame packing arrangement types (H.264 D.2.26).
const (
	FramePackingCheckerboard = 0
	FramePackingColumns      = 1
	FramePackingRows         = 2
	FramePackingSideBySide   = 3
	FramePackingTopBottom    = 4
	FramePackingTemporal     = 5
	FramePacking2D           = 6
)

// FramePacking is a decoded frame_packing_arrangement SEI message.
type FramePacking struct {
	ID     uint
	Cancel bool
	Type   int
	// ContentInterpretation is 1 when frame 0 is the left view and 2 when
	// it is the right view; 0 leaves it unspecified.
	ContentInterpretation int
}

// ParseFramePacking decodes the leading fields of a frame packing
// arrangement payload.
func ParseFramePacking(payload []byte) (FramePacking, error) {
	br := &bitReader{data: payload}
	var fp FramePacking

	id, err := br.readUE()
	if err != nil {
		return fp, fmt.Errorf("frame packing id: %w", err)
	}
	fp.ID = id
	cancel, err := br.readBit()
	if err != nil {
		return fp, fmt.Errorf("frame packing cancel flag: %w", err)
	}
	if cancel == 1 {
		fp.Cancel = true
		return fp, nil
	}
	typ, err := br.readBits(7)
	if err != nil {
		return fp, fmt.Errorf("frame packing type: %w", err)
	}
	fp.Type = int(typ)
	if _, err := br.readBit(); err != nil { // quincunx_sampling_flag
		return fp, fmt.Errorf("frame packing quincunx flag: %w", err)
	}
	ci, err := br.readBits(6)
	if err != nil {
		return fp, fmt.Errorf("frame packing content interpretation: %w", err)
	}
	fp.ContentInterpretation = int(ci)
	return fp, nil
}

// StereoMode returns the equivalent Matroska stereo_mode value, or "" when
// the arrangement has none.
func (fp FramePacking) StereoMode() string {
	if fp.Cancel {
		return ""
	}
	rightFirst := fp.ContentInterpretation == 2
	pick := func(lr, rl string) string {
		if rightFirst {
			return rl
		}
		return lr
	}
	switch fp.Type {
	case FramePackingSideBySide:
		return pick("left_right", "right_left")
	case FramePackingTopBottom:
		return pick("top_bottom", "bottom_top")
	case FramePackingRows:
		return pick("row_interleaved_lr", "row_interleaved_rl")
	case FramePackingTemporal:
		return pick("block_lr", "block_rl")
	case FramePacking2D:
		return "mono"
	default:
		return ""
	}
}

// FramePackingMode scans the SEI NAL units of a packet for a frame packing
// arrangement and returns its stereo mode.
func FramePackingMode(units []NALUnit, hevc bool) (string, bool) {
	for _, u := range units {
		headerSize := 1
		if hevc {
			if u.Type != HEVCNALSEIPrefix {
				continue
			}
			headerSize = 2
		} else if u.Type != NALTypeSEI {
			continue
		}
		for _, m := range SEIMessages(u.Data, headerSize) {
			if m.Type != SEIFramePacking {
				continue
			}
			fp, err := ParseFramePacking(m.Payload)
			if err != nil {
				continue
			}
			return fp.StereoMode(), true
		}
	}
	return "", false
}
