package rforge

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/rforge/acquisitiond/internal/crc16"
)

const (
	sof0 = 0xAA
	sof1 = 0x55

	headerSize  = 8 // SOF0,SOF1,version,cmd,seq(2),payload_len(2)
	trailerSize = 2 // crc16, little-endian
	version     = 0x01
)

// compactBuffer reclaims a bytes.Buffer's backing array once it has grown
// large relative to its unread contents, mirroring the teacher's
// serial.CompactBuffer helper so sustained garbage on the wire cannot pin an
// ever-growing allocation.
func compactBuffer(b *bytes.Buffer) {
	data := b.Bytes()
	if len(data) < 1024 {
		return
	}
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
	}
}

// BinaryParser decodes the framed binary protocol described in spec.md §4.B.
// It resynchronises after corruption by advancing one byte at a time past a
// rejected start-of-frame rather than skipping a whole frame's worth of
// bytes, so a spurious SOF inside a corrupted payload cannot cause a real
// frame that follows it to be swallowed.
type BinaryParser struct {
	buf           bytes.Buffer
	queue         []Frame
	crcErrorCount int
}

// NewBinaryParser returns an empty parser.
func NewBinaryParser() *BinaryParser { return &BinaryParser{} }

var sofMarker = []byte{sof0, sof1}

// Feed appends bytes to the internal buffer and drains as many complete
// frames as possible into the ready queue. Never blocks; never fails.
func (p *BinaryParser) Feed(data []byte) {
	p.buf.Write(data)
	for {
		compactBuffer(&p.buf)
		buf := p.buf.Bytes()

		i := bytes.Index(buf, sofMarker)
		if i < 0 {
			// No SOF found. Keep a possible dangling 0xAA in case the next
			// feed supplies the matching 0x55.
			if len(buf) > 1 {
				last := buf[len(buf)-1]
				p.buf.Reset()
				if last == sof0 {
					_ = p.buf.WriteByte(last)
				}
			}
			return
		}
		if i > 0 {
			p.buf.Next(i)
			continue
		}

		if len(buf) < headerSize {
			return
		}
		payloadLen := int(binary.LittleEndian.Uint16(buf[6:8]))
		if payloadLen > MaxPayloadLen {
			p.crcErrorCount++
			p.buf.Next(1)
			continue
		}

		total := headerSize + payloadLen + trailerSize
		if len(buf) < total {
			return
		}

		crcInput := buf[2 : headerSize+payloadLen]
		expect := binary.LittleEndian.Uint16(buf[headerSize+payloadLen : total])
		actual := crc16.ComputeDefault(crcInput)
		if expect != actual {
			p.crcErrorCount++
			p.buf.Next(1)
			continue
		}

		payload := make([]byte, payloadLen)
		copy(payload, buf[headerSize:headerSize+payloadLen])
		p.queue = append(p.queue, Frame{
			Cmd:     CommandId(buf[3]),
			Seq:     binary.LittleEndian.Uint16(buf[4:6]),
			Payload: payload,
		})
		p.buf.Next(total)
	}
}

// TryPopFrame removes and returns the oldest queued frame.
func (p *BinaryParser) TryPopFrame() (Frame, bool) {
	if len(p.queue) == 0 {
		return Frame{}, false
	}
	fr := p.queue[0]
	p.queue = p.queue[1:]
	return fr, true
}

// BuildCommand constructs a packet with version=1, seq=0, and a computed
// CRC. It returns an error rather than truncating when payload exceeds
// MaxPayloadLen (spec.md §7, "programmer error").
func (p *BinaryParser) BuildCommand(cmd CommandId, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("rforge: payload length %d exceeds max %d", len(payload), MaxPayloadLen)
	}
	out := make([]byte, headerSize+len(payload)+trailerSize)
	out[0] = sof0
	out[1] = sof1
	out[2] = version
	out[3] = byte(cmd)
	binary.LittleEndian.PutUint16(out[4:6], 0) // seq
	binary.LittleEndian.PutUint16(out[6:8], uint16(len(payload)))
	copy(out[headerSize:], payload)
	crc := crc16.ComputeDefault(out[2 : headerSize+len(payload)])
	binary.LittleEndian.PutUint16(out[headerSize+len(payload):], crc)
	return out, nil
}

// Reset clears the buffer, queue, and error counter.
func (p *BinaryParser) Reset() {
	p.buf.Reset()
	p.queue = nil
	p.crcErrorCount = 0
}

// CRCErrorCount returns the monotone count of framing errors observed.
func (p *BinaryParser) CRCErrorCount() int { return p.crcErrorCount }
