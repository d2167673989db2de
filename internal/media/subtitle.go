package media

// SubtitleFormat is the encoding of subtitle content.
type SubtitleFormat int

const (
	SubtitleText SubtitleFormat = iota // plain UTF-8 text
	SubtitleASS                        // an ASS/SSA dialogue line
)

func (s SubtitleFormat) String() string {
	if s == SubtitleASS {
		return "ass"
	}
	return "text"
}

// SubtitleBox is one subtitle event. Start and stop times are in
// microseconds; Stop is NoTime when the event lasts until the next one.
type SubtitleBox struct {
	Language string
	Format   SubtitleFormat
	Str      string

	PresentationStart int64
	PresentationStop  int64
}

// NewSubtitleBox returns an empty box.
func NewSubtitleBox() SubtitleBox {
	return SubtitleBox{PresentationStart: NoTime, PresentationStop: NoTime}
}

// Valid reports whether the box carries an event.
func (s *SubtitleBox) Valid() bool {
	return s.PresentationStart != NoTime
}

// FormatInfo returns the language, or "unknown".
func (s *SubtitleBox) FormatInfo() string {
	if s.Language == "" {
		return "unknown"
	}
	return s.Language
}
