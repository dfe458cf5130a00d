package rforge

// Mode selects which wire encoding the Multiplexer routes to.
type Mode int

const (
	// AutoDetect chooses binary or text per chunk, peeking each call's
	// first two bytes (spec.md §9: a per-chunk decision, not sticky).
	AutoDetect Mode = iota
	Binary
	Text
)

// Multiplexer selects between the binary and text parsers by mode or
// auto-detection and exposes a single feed/pop/build surface (spec.md §4.D).
// Both parsers are held concretely; no heap indirection is required
// (spec.md §9).
type Multiplexer struct {
	mode   Mode
	binary BinaryParser
	text   TextParser
}

// NewMultiplexer returns a Multiplexer starting in AutoDetect mode.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{mode: AutoDetect}
}

// Mode returns the current routing mode.
func (m *Multiplexer) Mode() Mode { return m.mode }

// SetMode changes the routing mode, resetting both parsers.
func (m *Multiplexer) SetMode(mode Mode) {
	m.mode = mode
	m.binary.Reset()
	m.text.Reset()
}

// detect inspects a chunk's leading bytes to choose an encoding. Ambiguous
// chunks that do not start with the binary SOF are routed to the text
// parser for this call; a later call may re-decide.
func detect(chunk []byte) Mode {
	if len(chunk) >= 2 && chunk[0] == sof0 && chunk[1] == sof1 {
		return Binary
	}
	return Text
}

// Feed routes chunk to the active parser for this call.
func (m *Multiplexer) Feed(chunk []byte) {
	active := m.mode
	if active == AutoDetect {
		active = detect(chunk)
	}
	if active == Binary {
		m.binary.Feed(chunk)
	} else {
		m.text.Feed(chunk)
	}
}

// TryPopFrame returns the oldest queued frame from the parser matching the
// current fixed mode; in AutoDetect it prefers a binary frame, falling back
// to a text frame.
func (m *Multiplexer) TryPopFrame() (Frame, bool) {
	switch m.mode {
	case Binary:
		return m.binary.TryPopFrame()
	case Text:
		return m.text.TryPopFrame()
	default:
		if fr, ok := m.binary.TryPopFrame(); ok {
			return fr, true
		}
		return m.text.TryPopFrame()
	}
}

// BuildCommand routes to the parser matching the current mode; in
// AutoDetect the binary encoder is the default.
func (m *Multiplexer) BuildCommand(cmd CommandId, payload []byte) ([]byte, error) {
	if m.mode == Text {
		return m.text.BuildCommand(cmd, payload)
	}
	return m.binary.BuildCommand(cmd, payload)
}

// Reset clears both parsers' buffers, queues, and error counters.
func (m *Multiplexer) Reset() {
	m.binary.Reset()
	m.text.Reset()
}

// CRCErrorCount reports the binary parser's monotone framing-error counter.
func (m *Multiplexer) CRCErrorCount() int { return m.binary.CRCErrorCount() }
