// Package demux looks into H.264 and H.265 elementary streams. It splits
// packets into NAL units in Annex B or length prefixed framing, decodes the
// frame packing arrangement SEI that marks stereoscopic video, and extracts
// CEA-608/708 closed captions.
//
// [Inspector] applies both to a [decode.Session]: the frame packing of the
// first video packets becomes a stereo layout hint, and captions are
// exposed as an additional text subtitle stream.
package demux
