package rforge

import "bytes"

// TextParser accumulates bytes and emits one StreamData Frame per
// newline-delimited line, matching the legacy VOFA-compatible wire format
// described in spec.md §4.C.
type TextParser struct {
	buf   bytes.Buffer
	queue []Frame
}

// NewTextParser returns an empty parser.
func NewTextParser() *TextParser { return &TextParser{} }

// Feed appends bytes and drains every complete (newline-terminated) line
// into the ready queue. Leading/trailing whitespace is trimmed; empty lines
// are skipped.
func (p *TextParser) Feed(data []byte) {
	p.buf.Write(data)
	for {
		buf := p.buf.Bytes()
		end := bytes.IndexByte(buf, '\n')
		if end < 0 {
			return
		}
		line := bytes.TrimSpace(buf[:end])
		p.buf.Next(end + 1)
		if len(line) == 0 {
			continue
		}
		payload := make([]byte, len(line))
		copy(payload, line)
		p.queue = append(p.queue, Frame{Cmd: StreamData, Seq: 0, Payload: payload})
	}
}

// TryPopFrame removes and returns the oldest queued frame.
func (p *TextParser) TryPopFrame() (Frame, bool) {
	if len(p.queue) == 0 {
		return Frame{}, false
	}
	fr := p.queue[0]
	p.queue = p.queue[1:]
	return fr, true
}

// BuildCommand ignores cmd and appends a trailing newline to payload, per
// the text wire format's unidirectional, command-less framing.
func (p *TextParser) BuildCommand(_ CommandId, payload []byte) ([]byte, error) {
	out := make([]byte, len(payload)+1)
	copy(out, payload)
	out[len(payload)] = '\n'
	return out, nil
}

// Reset clears the buffer and queue.
func (p *TextParser) Reset() {
	p.buf.Reset()
	p.queue = nil
}
