package demux

import (
	"github.com/zsiec/ccx"
)

// Caption is the display text of one caption channel after an update.
// Channels 1-4 are CEA-608 CC1-CC4, channels 7-12 are CEA-708 services 1-6.
type Caption struct {
	PTS     int64
	Channel int
	Text    string
}

// CaptionDecoder turns the caption data carried in video SEI messages into
// caption text. It keeps decoder state across packets and must see the
// packets of one stream in decode order.
type CaptionDecoder struct {
	cea608 map[int]*ccx.CEA608Decoder
	cea708 map[int]*ccx.CEA708Service
	dtvcc  []byte

	// CEA-608 control codes are sent twice; the repeat is dropped.
	frames      int
	lastCtrl    [2][2]byte
	lastWasCtrl [2]bool
	lastCtrlAt  [2]int
}

// NewCaptionDecoder returns a decoder for CC1-CC4 and services 1-6.
func NewCaptionDecoder() *CaptionDecoder {
	d := &CaptionDecoder{}
	d.Reset()
	return d
}

// Reset drops all caption state, e.g. after a seek.
func (d *CaptionDecoder) Reset() {
	d.cea608 = make(map[int]*ccx.CEA608Decoder, 4)
	for ch := 1; ch <= 4; ch++ {
		d.cea608[ch] = ccx.NewCEA608Decoder()
	}
	d.cea708 = make(map[int]*ccx.CEA708Service, 6)
	for svc := 1; svc <= 6; svc++ {
		d.cea708[svc] = ccx.NewCEA708Service()
	}
	d.dtvcc = d.dtvcc[:0]
	d.frames = 0
	d.lastWasCtrl = [2]bool{}
}

// Feed decodes the caption data in the NAL units of one video packet and
// returns the channels whose text changed.
func (d *CaptionDecoder) Feed(units []NALUnit, hevc bool, pts int64) []Caption {
	d.frames++
	var out []Caption
	for _, u := range units {
		if hevc {
			if u.Type != HEVCNALSEIPrefix || len(u.Data) <= 2 {
				continue
			}
		} else if u.Type != NALTypeSEI {
			continue
		}
		out = d.feedSEI(u.Data, pts, out)
	}
	return out
}

func (d *CaptionDecoder) feedSEI(sei []byte, pts int64, out []Caption) []Caption {
	cd := ccx.ExtractCaptions(sei)
	if cd == nil {
		return out
	}

	for _, pair := range cd.CC608Pairs {
		cc1, cc2 := pair.Data[0], pair.Data[1]
		f := pair.Field
		if f != 0 && f != 1 {
			continue
		}
		if cc1 >= 0x10 && cc1 <= 0x1F {
			cp := [2]byte{cc1, cc2}
			if d.lastWasCtrl[f] && d.lastCtrl[f] == cp && d.frames-d.lastCtrlAt[f] <= 2 {
				d.lastWasCtrl[f] = false
				continue
			}
			d.lastCtrl[f] = cp
			d.lastWasCtrl[f] = true
			d.lastCtrlAt[f] = d.frames
		} else {
			d.lastWasCtrl[f] = false
		}

		dec := d.cea608[pair.Channel]
		if dec == nil {
			continue
		}
		if text := dec.Decode(cc1, cc2); text != "" {
			out = append(out, Caption{PTS: pts, Channel: pair.Channel, Text: text})
		}
	}

	for _, t := range cd.DTVCC {
		if t.Start {
			out = d.drainDTVCC(pts, out)
			d.dtvcc = d.dtvcc[:0]
		}
		d.dtvcc = append(d.dtvcc, t.Data[0], t.Data[1])
	}
	return out
}

func (d *CaptionDecoder) drainDTVCC(pts int64, out []Caption) []Caption {
	if len(d.dtvcc) < 1 {
		return out
	}
	size := ccx.DTVCCPacketSize(d.dtvcc[0])
	if len(d.dtvcc) < size {
		return out
	}
	for _, block := range ccx.ParseDTVCCPacket(d.dtvcc[:size]) {
		svc := d.cea708[block.ServiceNum]
		if svc == nil || !svc.ProcessBlock(block.Data) {
			continue
		}
		if text := svc.DisplayText(); text != "" {
			out = append(out, Caption{PTS: pts, Channel: block.ServiceNum + 6, Text: text})
		}
	}
	d.dtvcc = d.dtvcc[size:]
	return out
}
