package demux

import (
	"encoding/binary"
	"errors"
)

// H.264 NAL unit types (ITU-T H.264 Table 7-1).
const (
	NALTypeSlice = 1
	NALTypeIDR   = 5
	NALTypeSEI   = 6
	NALTypeSPS   = 7
	NALTypePPS   = 8
)

// H.265 NAL unit types (ITU-T H.265 Table 7-1).
const (
	HEVCNALBlaWLP    = 16
	HEVCNALIDRWRadl  = 19
	HEVCNALIDRNlp    = 20
	HEVCNALCraNut    = 21
	HEVCNALVPS       = 32
	HEVCNALSPS       = 33
	HEVCNALPPS       = 34
	HEVCNALAUD       = 35
	HEVCNALSEIPrefix = 39
)

var errShortData = errors.New("demux: data too short")

// NALUnit is one H.264 or H.265 NAL unit.
type NALUnit struct {
	Type byte   // 5 bit H.264 or 6 bit H.265 type
	Data []byte // NAL header and payload, without start code or length
}

// HEVCNALType extracts the type from the first byte of an H.265 NAL header:
// forbidden(1) | type(6) | layer_id_high(1).
func HEVCNALType(firstByte byte) byte {
	return (firstByte >> 1) & 0x3F
}

func h264Type(d []byte) byte { return d[0] & 0x1F }
func hevcType(d []byte) byte { return HEVCNALType(d[0]) }

// IsKeyframe reports whether an H.264 NAL type is an IDR slice.
func IsKeyframe(nalType byte) bool {
	return nalType == NALTypeIDR
}

// IsHEVCKeyframe reports whether an H.265 NAL type is a random access point
// (BLA, IDR or CRA).
func IsHEVCKeyframe(nalType byte) bool {
	return nalType >= HEVCNALBlaWLP && nalType <= HEVCNALCraNut
}

// parseAnnexB splits an Annex B byte stream on 3 and 4 byte start codes.
// minNALBytes is the NAL header size of the codec.
func parseAnnexB(data []byte, minNALBytes int, nalType func([]byte) byte) []NALUnit {
	n := len(data)
	if n < 4 {
		return nil
	}

	type startCode struct{ start, payload int }
	var codes []startCode
	for i := 0; i < n-2; {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				codes = append(codes, startCode{i, i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				codes = append(codes, startCode{i, i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	var units []NALUnit
	for idx, sc := range codes {
		end := n
		if idx+1 < len(codes) {
			end = codes[idx+1].start
		}
		if end-sc.payload < minNALBytes {
			continue
		}
		nal := data[sc.payload:end]
		units = append(units, NALUnit{Type: nalType(nal), Data: nal})
	}
	return units
}

// ParseAnnexB splits an H.264 Annex B byte stream into NAL units.
func ParseAnnexB(data []byte) []NALUnit {
	return parseAnnexB(data, 1, h264Type)
}

// ParseAnnexBHEVC splits an H.265 Annex B byte stream into NAL units.
func ParseAnnexBHEVC(data []byte) []NALUnit {
	return parseAnnexB(data, 2, hevcType)
}

// ParseLengthPrefixed splits an AVCC/HVCC packet, where each NAL unit is
// preceded by a big endian length of lengthSize bytes (1, 2 or 4). A
// truncated unit ends the packet.
func ParseLengthPrefixed(data []byte, lengthSize int, hevc bool) ([]NALUnit, error) {
	if lengthSize != 1 && lengthSize != 2 && lengthSize != 4 {
		return nil, errors.New("demux: invalid NAL length size")
	}
	minNALBytes, nalType := 1, h264Type
	if hevc {
		minNALBytes, nalType = 2, hevcType
	}

	var units []NALUnit
	for len(data) > 0 {
		if len(data) < lengthSize {
			return units, errShortData
		}
		var size int
		switch lengthSize {
		case 1:
			size = int(data[0])
		case 2:
			size = int(binary.BigEndian.Uint16(data))
		case 4:
			size = int(binary.BigEndian.Uint32(data))
		}
		data = data[lengthSize:]
		if size > len(data) {
			return units, errShortData
		}
		if size >= minNALBytes {
			units = append(units, NALUnit{Type: nalType(data[:size]), Data: data[:size]})
		}
		data = data[size:]
	}
	return units, nil
}

// IsAnnexB reports whether a packet starts with a start code.
func IsAnnexB(data []byte) bool {
	if len(data) >= 3 && data[0] == 0 && data[1] == 0 && data[2] == 1 {
		return true
	}
	return len(data) >= 4 && data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 1
}

// ParsePacket splits a video packet in either framing. Packets that do not
// start with a start code are taken as 4 byte length prefixed.
func ParsePacket(data []byte, hevc bool) []NALUnit {
	if IsAnnexB(data) {
		if hevc {
			return ParseAnnexBHEVC(data)
		}
		return ParseAnnexB(data)
	}
	units, _ := ParseLengthPrefixed(data, 4, hevc)
	return units
}

// removeEmulationPrevention converts a NAL payload to its RBSP by dropping
// the 0x03 byte of every 00 00 03 sequence.
func removeEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 3 &&
			(i+3 >= len(data) || data[i+3] <= 3) {
			out = append(out, 0, 0)
			i += 2
			continue
		}
		out = append(out, data[i])
	}
	return out
}

type bitReader struct {
	data []byte
	pos  int
	bit  int
}

func (br *bitReader) readBit() (uint, error) {
	if br.pos >= len(br.data) {
		return 0, errShortData
	}
	v := uint(br.data[br.pos]>>(7-br.bit)) & 1
	br.bit++
	if br.bit == 8 {
		br.bit = 0
		br.pos++
	}
	return v, nil
}

func (br *bitReader) readBits(n int) (uint, error) {
	var v uint
	for i := 0; i < n; i++ {
		b, err := br.readBit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | b
	}
	return v, nil
}

// readUE reads an Exp-Golomb coded unsigned value.
func (br *bitReader) readUE() (uint, error) {
	zeros := 0
	for {
		b, err := br.readBit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > 31 {
			return 0, errShortData
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	suffix, err := br.readBits(zeros)
	if err != nil {
		return 0, err
	}
	return 1<<zeros - 1 + suffix, nil
}
