package demux

import (
	"testing"
)

func TestParseAnnexB(t *testing.T) {
	t.Parallel()
	data := []byte{
		// SPS
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xE0, 0x1E,
		// PPS
		0x00, 0x00, 0x00, 0x01, 0x68, 0xCE, 0x38, 0x80,
		// IDR
		0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00, 0xFF, 0xFE,
	}

	nalus := ParseAnnexB(data)
	if len(nalus) != 3 {
		t.Fatalf("expected 3 NAL units, got %d", len(nalus))
	}
	wantTypes := []byte{NALTypeSPS, NALTypePPS, NALTypeIDR}
	for i, want := range wantTypes {
		if nalus[i].Type != want {
			t.Errorf("NALU[%d]: got type %d, want %d", i, nalus[i].Type, want)
		}
	}
	if !IsKeyframe(nalus[2].Type) {
		t.Error("IsKeyframe returned false for IDR")
	}
	if IsKeyframe(nalus[0].Type) {
		t.Error("IsKeyframe returned true for SPS")
	}
}

func TestParseAnnexBEmpty(t *testing.T) {
	t.Parallel()
	if nalus := ParseAnnexB(nil); nalus != nil {
		t.Errorf("expected nil for empty input, got %d units", len(nalus))
	}
	if nalus := ParseAnnexB([]byte{0x00, 0x01}); nalus != nil {
		t.Errorf("expected nil for too-short input, got %d units", len(nalus))
	}
}

func TestParseAnnexBTrailingZeroAbsorbedByStartCode(t *testing.T) {
	t.Parallel()
	// The zero before 00 00 01 belongs to a 4 byte start code.
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x06, 0xAA, 0xBB, 0x00,
		0x00, 0x00, 0x01, 0x41, 0x9A,
	}

	nalus := ParseAnnexB(data)
	if len(nalus) != 2 {
		t.Fatalf("expected 2 NAL units, got %d", len(nalus))
	}
	if nalus[0].Type != NALTypeSEI {
		t.Errorf("expected SEI (6), got %d", nalus[0].Type)
	}
	if len(nalus[0].Data) != 3 {
		t.Errorf("SEI data length: got %d, want 3", len(nalus[0].Data))
	}
	if nalus[1].Type != NALTypeSlice {
		t.Errorf("expected Slice (1), got %d", nalus[1].Type)
	}
}

func TestParseAnnexBMixed3And4ByteStartCodes(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42,
		0x00, 0x00, 0x01, 0x68, 0xCE,
		0x00, 0x00, 0x00, 0x01, 0x06, 0xFF, 0xFE,
		0x00, 0x00, 0x01, 0x65, 0x88,
	}

	nalus := ParseAnnexB(data)
	if len(nalus) != 4 {
		t.Fatalf("expected 4 NAL units, got %d", len(nalus))
	}
	wantTypes := []byte{NALTypeSPS, NALTypePPS, NALTypeSEI, NALTypeIDR}
	for i, want := range wantTypes {
		if nalus[i].Type != want {
			t.Errorf("NALU[%d]: got type %d, want %d", i, nalus[i].Type, want)
		}
	}
	if len(nalus[2].Data) != 3 {
		t.Errorf("SEI data length: got %d, want 3", len(nalus[2].Data))
	}
}

func TestHEVCNALType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		firstByte byte
		want      byte
	}{
		{"VPS (32)", 0x40, HEVCNALVPS},
		{"SPS (33)", 0x42, HEVCNALSPS},
		{"PPS (34)", 0x44, HEVCNALPPS},
		{"IDR_W_RADL (19)", 0x26, HEVCNALIDRWRadl},
		{"IDR_N_LP (20)", 0x28, HEVCNALIDRNlp},
		{"CRA (21)", 0x2A, HEVCNALCraNut},
		{"BLA_W_LP (16)", 0x20, HEVCNALBlaWLP},
		{"TRAIL_R (1)", 0x02, 1},
		{"SEI_PREFIX (39)", 0x4E, HEVCNALSEIPrefix},
		{"AUD (35)", 0x46, HEVCNALAUD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := HEVCNALType(tt.firstByte); got != tt.want {
				t.Errorf("HEVCNALType(0x%02X) = %d, want %d", tt.firstByte, got, tt.want)
			}
		})
	}
}

func TestIsHEVCKeyframe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		nalType byte
		want    bool
	}{
		{HEVCNALBlaWLP, true},
		{HEVCNALIDRWRadl, true},
		{HEVCNALIDRNlp, true},
		{HEVCNALCraNut, true},
		{0, false},
		{1, false},
		{HEVCNALVPS, false},
		{HEVCNALSEIPrefix, false},
	}
	for _, tt := range tests {
		if got := IsHEVCKeyframe(tt.nalType); got != tt.want {
			t.Errorf("IsHEVCKeyframe(%d) = %v, want %v", tt.nalType, got, tt.want)
		}
	}
}

func TestParseAnnexBHEVC(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x40, 0x01, 0xAA, 0xBB,
		0x00, 0x00, 0x00, 0x01, 0x42, 0x01, 0xCC, 0xDD,
		0x00, 0x00, 0x01, 0x44, 0x01, 0xEE,
		0x00, 0x00, 0x00, 0x01, 0x26, 0x01, 0xFF, 0x00, 0x11,
	}

	nalus := ParseAnnexBHEVC(data)
	if len(nalus) != 4 {
		t.Fatalf("expected 4 NAL units, got %d", len(nalus))
	}
	wantTypes := []byte{HEVCNALVPS, HEVCNALSPS, HEVCNALPPS, HEVCNALIDRWRadl}
	for i, want := range wantTypes {
		if nalus[i].Type != want {
			t.Errorf("NALU[%d]: got type %d, want %d", i, nalus[i].Type, want)
		}
	}
}

func TestParseLengthPrefixed(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x02, 0x67, 0x42,
		0x00, 0x00, 0x00, 0x03, 0x65, 0x88, 0x84,
	}
	nalus, err := ParseLengthPrefixed(data, 4, false)
	if err != nil {
		t.Fatalf("ParseLengthPrefixed: %v", err)
	}
	if len(nalus) != 2 || nalus[0].Type != NALTypeSPS || nalus[1].Type != NALTypeIDR {
		t.Fatalf("units: got %+v", nalus)
	}
	if len(nalus[1].Data) != 3 {
		t.Errorf("IDR length: got %d, want 3", len(nalus[1].Data))
	}

	// A truncated unit ends the packet; the complete units are kept.
	nalus, err = ParseLengthPrefixed(append(data, 0x00, 0x00, 0x00, 0x09, 0x41), 4, false)
	if err == nil {
		t.Error("truncated packet: expected error")
	}
	if len(nalus) != 2 {
		t.Errorf("truncated packet: got %d units, want 2", len(nalus))
	}

	if _, err := ParseLengthPrefixed(data, 3, false); err == nil {
		t.Error("length size 3: expected error")
	}

	two := []byte{0x00, 0x03, 0x4E, 0x01, 0x05}
	nalus, err = ParseLengthPrefixed(two, 2, true)
	if err != nil || len(nalus) != 1 || nalus[0].Type != HEVCNALSEIPrefix {
		t.Errorf("HEVC 2 byte lengths: got %+v, %v", nalus, err)
	}
}

func TestParsePacketFraming(t *testing.T) {
	t.Parallel()
	annexB := []byte{0x00, 0x00, 0x01, 0x65, 0x88}
	avcc := []byte{0x00, 0x00, 0x00, 0x02, 0x65, 0x88}
	for name, data := range map[string][]byte{"annex b": annexB, "avcc": avcc} {
		nalus := ParsePacket(data, false)
		if len(nalus) != 1 || nalus[0].Type != NALTypeIDR {
			t.Errorf("%s: got %+v, want one IDR", name, nalus)
		}
	}
}

func TestRemoveEmulationPrevention(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want []byte
	}{
		{[]byte{0x00, 0x00, 0x03, 0x01}, []byte{0x00, 0x00, 0x01}},
		{[]byte{0x00, 0x00, 0x03}, []byte{0x00, 0x00}},
		{[]byte{0x00, 0x00, 0x03, 0x04}, []byte{0x00, 0x00, 0x03, 0x04}},
		{[]byte{0x12, 0x34}, []byte{0x12, 0x34}},
	}
	for _, tt := range tests {
		got := removeEmulationPrevention(tt.in)
		if string(got) != string(tt.want) {
			t.Errorf("removeEmulationPrevention(% X): got % X, want % X", tt.in, got, tt.want)
		}
	}
}

func TestReadUE(t *testing.T) {
	t.Parallel()
	// 1 | 010 | 011 | 00100 | 0 (padding) -> 0, 1, 2, 3
	br := &bitReader{data: []byte{0xA6, 0x40}}
	for want := uint(0); want < 4; want++ {
		got, err := br.readUE()
		if err != nil {
			t.Fatalf("readUE %d: %v", want, err)
		}
		if got != want {
			t.Errorf("readUE: got %d, want %d", got, want)
		}
	}
	if _, err := br.readBits(16); err == nil {
		t.Error("reading past the end: expected error")
	}
}
