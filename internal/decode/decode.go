package decode

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rforge/acquisitiond/internal/events"
	"github.com/rforge/acquisitiond/internal/metrics"
	"github.com/rforge/acquisitiond/internal/rforge"
)

// DefaultMaxFrames is the bounded ring's default capacity (spec.md invariant 3).
const DefaultMaxFrames = 4096

const sampleRecordSize = 6 // u16 channel_id | f32 value

// Decoder subscribes to frame-decoded events and publishes data-frame-ready
// events. The ring is guarded by a mutex only because recent_frames may be
// called from a presentation-layer goroutine (spec.md §6's out-of-scope
// consumers); the decode itself runs exclusively on the I/O goroutine, per
// spec.md §5.
type Decoder struct {
	mu       sync.Mutex
	ring     []DataFrame
	maxFrame int
	next     int // next write index, wraps
	count    int // number of valid entries

	nowFunc func() time.Time
}

// New returns a Decoder with the given ring capacity (0 selects
// DefaultMaxFrames).
func New(maxFrames int) *Decoder {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	return &Decoder{
		ring:     make([]DataFrame, maxFrames),
		maxFrame: maxFrames,
		nowFunc:  time.Now,
	}
}

// Decode turns a StreamData Frame into a DataFrame following spec.md
// invariant 4: payloads with length >= 8 and (len-8) mod 6 == 0 are binary
// sample arrays, everything else is ASCII comma-separated floats. Returns
// ok=false if the frame isn't StreamData or (for text) no token parsed.
func Decode(fr rforge.Frame, now func() time.Time) (DataFrame, bool) {
	if fr.Cmd != rforge.StreamData {
		return DataFrame{}, false
	}
	payload := fr.Payload
	if len(payload) >= 8 && (len(payload)-8)%sampleRecordSize == 0 {
		return decodeBinary(payload), true
	}
	return decodeText(payload, now)
}

func decodeBinary(payload []byte) DataFrame {
	ts := binary.LittleEndian.Uint64(payload[:8])
	rest := payload[8:]
	n := len(rest) / sampleRecordSize
	channels := make([]ChannelValue, 0, n)
	for i := 0; i < n; i++ {
		off := i * sampleRecordSize
		chID := binary.LittleEndian.Uint16(rest[off : off+2])
		bits := binary.LittleEndian.Uint32(rest[off+2 : off+6])
		val := math.Float32frombits(bits)
		channels = append(channels, ChannelValue{ChannelID: chID, Value: float64(val)})
	}
	return DataFrame{TimestampUS: ts, Channels: channels}
}

// decodeText parses a comma-separated line of decimal floats, assigning
// channel ids 0,1,2,... in order. Tokens that fail to parse are skipped;
// "nan" (any case) parses to math.NaN() via strconv.ParseFloat and is kept,
// matching the reference Qt implementation's toDouble/split behavior
// (see SPEC_FULL.md §9). If no token parses, the frame is dropped.
func decodeText(payload []byte, now func() time.Time) (DataFrame, bool) {
	if now == nil {
		now = time.Now
	}
	tokens := strings.Split(string(payload), ",")
	channels := make([]ChannelValue, 0, len(tokens))
	id := uint16(0)
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		channels = append(channels, ChannelValue{ChannelID: id, Value: v})
		id++
	}
	if len(channels) == 0 {
		return DataFrame{}, false
	}
	return DataFrame{TimestampUS: uint64(now().UnixMicro()), Channels: channels}, true
}

// Feed decodes fr and, on success, appends the result to the bounded ring
// and publishes it on bus (if non-nil). Intended to be registered as
// bus.OnFrameDecoded(d.Feed) by the dispatcher wiring.
func (d *Decoder) Feed(fr rforge.Frame, bus *events.Bus) {
	df, ok := Decode(fr, d.nowFunc)
	if !ok {
		if fr.Cmd == rforge.StreamData {
			metrics.IncDroppedPayloads()
		}
		return
	}
	d.push(df)
	if bus != nil {
		bus.PublishDataFrameReady(df)
	}
}

func (d *Decoder) push(df DataFrame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == d.maxFrame {
		metrics.IncRingEvictions()
	} else {
		d.count++
	}
	d.ring[d.next] = df
	d.next = (d.next + 1) % d.maxFrame
}

// RecentFrames returns up to max most-recently-decoded frames, oldest first.
func (d *Decoder) RecentFrames(max int) []DataFrame {
	d.mu.Lock()
	defer d.mu.Unlock()
	if max <= 0 || max > d.count {
		max = d.count
	}
	out := make([]DataFrame, max)
	// oldest retained entry is at (next - count) mod maxFrame; we want the
	// last `max` entries, i.e. starting at (next - max) mod maxFrame.
	start := (d.next - max + d.maxFrame) % d.maxFrame
	for i := 0; i < max; i++ {
		out[i] = d.ring[(start+i)%d.maxFrame]
	}
	return out
}

// Count returns the number of frames currently held in the ring.
func (d *Decoder) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}
