package demux

import "testing"

// seiNAL builds an H.264 SEI NAL unit with one frame packing message.
func seiNAL(payload ...byte) []byte {
	nal := []byte{0x06, SEIFramePacking, byte(len(payload))}
	nal = append(nal, payload...)
	return append(nal, 0x80)
}

func TestSEIMessages(t *testing.T) {
	t.Parallel()
	nal := []byte{
		0x06,
		0x05, 0x02, 0xAA, 0xBB, // user_data_unregistered, 2 bytes
		0xFF, 0x2E, 0x01, 0x00, // type 255+46, 1 byte
		0x80,
	}
	msgs := SEIMessages(nal, 1)
	if len(msgs) != 2 {
		t.Fatalf("messages: got %d, want 2", len(msgs))
	}
	if msgs[0].Type != 5 || len(msgs[0].Payload) != 2 {
		t.Errorf("message 0: got %+v", msgs[0])
	}
	if msgs[1].Type != 301 || len(msgs[1].Payload) != 1 {
		t.Errorf("message 1: got %+v", msgs[1])
	}

	// A message longer than the NAL unit is dropped.
	if msgs := SEIMessages([]byte{0x06, 0x05, 0x09, 0xAA}, 1); len(msgs) != 0 {
		t.Errorf("truncated: got %d messages, want 0", len(msgs))
	}
}

func TestParseFramePacking(t *testing.T) {
	t.Parallel()
	// id ue(0) | cancel 0 | type(7) | quincunx 0 | content_interpretation(6)
	tests := []struct {
		name    string
		payload []byte
		want    string
	}{
		{"side by side, left first", []byte{0x81, 0x81}, "left_right"},
		{"side by side, right first", []byte{0x81, 0x82}, "right_left"},
		{"top bottom", []byte{0x82, 0x01}, "top_bottom"},
		{"top bottom, right first", []byte{0x82, 0x02}, "bottom_top"},
		{"row interleaved", []byte{0x81, 0x01}, "row_interleaved_lr"},
		{"temporal", []byte{0x82, 0x81}, "block_lr"},
		{"2d", []byte{0x83, 0x01}, "mono"},
		{"checkerboard", []byte{0x80, 0x01}, ""},
		{"cancel", []byte{0xC0}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fp, err := ParseFramePacking(tt.payload)
			if err != nil {
				t.Fatalf("ParseFramePacking: %v", err)
			}
			if got := fp.StereoMode(); got != tt.want {
				t.Errorf("StereoMode: got %q, want %q (%+v)", got, tt.want, fp)
			}
		})
	}

	if _, err := ParseFramePacking([]byte{0x81}); err == nil {
		t.Error("short payload: expected error")
	}
}

func TestFramePackingMode(t *testing.T) {
	t.Parallel()
	units := []NALUnit{
		{Type: NALTypeSPS, Data: []byte{0x67, 0x42}},
		{Type: NALTypeSEI, Data: seiNAL(0x82, 0x01)},
	}
	mode, ok := FramePackingMode(units, false)
	if !ok || mode != "top_bottom" {
		t.Errorf("H.264: got %q/%v, want top_bottom/true", mode, ok)
	}

	hevc := append([]byte{0x4E, 0x01}, seiNAL(0x81, 0x81)[1:]...)
	mode, ok = FramePackingMode([]NALUnit{{Type: HEVCNALSEIPrefix, Data: hevc}}, true)
	if !ok || mode != "left_right" {
		t.Errorf("H.265: got %q/%v, want left_right/true", mode, ok)
	}

	if _, ok := FramePackingMode(units[:1], false); ok {
		t.Error("no SEI: expected no frame packing")
	}
}

func TestCaptionDecoderIgnoresOtherSEI(t *testing.T) {
	t.Parallel()
	d := NewCaptionDecoder()
	units := []NALUnit{{Type: NALTypeSEI, Data: seiNAL(0x81, 0x81)}}
	if got := d.Feed(units, false, 0); len(got) != 0 {
		t.Errorf("captions from frame packing SEI: got %+v", got)
	}
	d.Reset()
	if got := d.Feed(nil, false, 0); len(got) != 0 {
		t.Errorf("captions from empty packet: got %+v", got)
	}
}
