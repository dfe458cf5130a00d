package decode

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/rforge/acquisitiond/internal/events"
	"github.com/rforge/acquisitiond/internal/rforge"
)

func fixedNow() time.Time { return time.UnixMicro(5000000) }

// TestS5BinarySampleDecode matches spec.md S5.
func TestS5BinarySampleDecode(t *testing.T) {
	payload := make([]byte, 8+2*6)
	binary.LittleEndian.PutUint64(payload[0:8], 1000)
	binary.LittleEndian.PutUint16(payload[8:10], 0)
	binary.LittleEndian.PutUint32(payload[10:14], math.Float32bits(1.5))
	binary.LittleEndian.PutUint16(payload[14:16], 1)
	binary.LittleEndian.PutUint32(payload[16:20], math.Float32bits(-2.25))

	df, ok := Decode(rforge.Frame{Cmd: rforge.StreamData, Payload: payload}, fixedNow)
	if !ok {
		t.Fatal("expected decode ok")
	}
	if df.TimestampUS != 1000 {
		t.Fatalf("timestamp = %d, want 1000", df.TimestampUS)
	}
	if len(df.Channels) != 2 || df.Channels[0] != (ChannelValue{0, 1.5}) || df.Channels[1] != (ChannelValue{1, -2.25}) {
		t.Fatalf("channels = %v", df.Channels)
	}
}

// TestS6TextDecodeAcceptsNaN matches spec.md S6 (NaN tokens accepted).
func TestS6TextDecodeAcceptsNaN(t *testing.T) {
	df, ok := Decode(rforge.Frame{Cmd: rforge.StreamData, Payload: []byte("nan, 3.14, oops, 7\n")}, fixedNow)
	if !ok {
		t.Fatal("expected decode ok")
	}
	if len(df.Channels) != 3 {
		t.Fatalf("got %d channels, want 3: %v", len(df.Channels), df.Channels)
	}
	if !math.IsNaN(df.Channels[0].Value) {
		t.Fatalf("channel 0 = %v, want NaN", df.Channels[0].Value)
	}
	if df.Channels[1] != (ChannelValue{1, 3.14}) {
		t.Fatalf("channel 1 = %v, want {1 3.14}", df.Channels[1])
	}
	if df.Channels[2] != (ChannelValue{2, 7.0}) {
		t.Fatalf("channel 2 = %v, want {2 7}", df.Channels[2])
	}
}

func TestTextDecodeBasicOrdering(t *testing.T) {
	df, ok := Decode(rforge.Frame{Cmd: rforge.StreamData, Payload: []byte("1.0,2.5,-3\n")}, fixedNow)
	if !ok {
		t.Fatal("expected decode ok")
	}
	want := []ChannelValue{{0, 1.0}, {1, 2.5}, {2, -3.0}}
	if len(df.Channels) != len(want) {
		t.Fatalf("got %v, want %v", df.Channels, want)
	}
	for i := range want {
		if df.Channels[i] != want[i] {
			t.Fatalf("channel %d = %v, want %v", i, df.Channels[i], want[i])
		}
	}
}

func TestTextDecodeTrailingCommaDropsEmptyToken(t *testing.T) {
	df, ok := Decode(rforge.Frame{Cmd: rforge.StreamData, Payload: []byte("1.0,2.0,\n")}, fixedNow)
	if !ok {
		t.Fatal("expected decode ok")
	}
	if len(df.Channels) != 2 {
		t.Fatalf("got %d channels, want 2 (trailing empty token dropped): %v", len(df.Channels), df.Channels)
	}
}

func TestTextDecodeAllTokensUnparsableDrops(t *testing.T) {
	_, ok := Decode(rforge.Frame{Cmd: rforge.StreamData, Payload: []byte("oops,nope\n")}, fixedNow)
	if ok {
		t.Fatal("expected decode to report dropped frame when no token parses")
	}
}

func TestNonStreamDataFrameNotDecoded(t *testing.T) {
	_, ok := Decode(rforge.Frame{Cmd: rforge.Ping, Payload: nil}, fixedNow)
	if ok {
		t.Fatal("expected non-StreamData frame to be rejected")
	}
}

// TestRingBound matches spec.md invariant 3 / testable property 5.
func TestRingBound(t *testing.T) {
	d := New(4096)
	for i := 0; i < 5000; i++ {
		d.push(DataFrame{TimestampUS: uint64(i)})
	}
	if d.Count() > DefaultMaxFrames {
		t.Fatalf("ring holds %d frames, want <= %d", d.Count(), DefaultMaxFrames)
	}
}

func TestRingFIFOEviction(t *testing.T) {
	d := New(4)
	for i := 0; i < 6; i++ {
		d.push(DataFrame{TimestampUS: uint64(i)})
	}
	recent := d.RecentFrames(4)
	want := []uint64{2, 3, 4, 5}
	if len(recent) != len(want) {
		t.Fatalf("got %d frames, want %d", len(recent), len(want))
	}
	for i, w := range want {
		if recent[i].TimestampUS != w {
			t.Fatalf("recent[%d].TimestampUS = %d, want %d", i, recent[i].TimestampUS, w)
		}
	}
}

func TestRecentFramesOrderedOldestFirst(t *testing.T) {
	d := New(10)
	for i := 0; i < 3; i++ {
		d.push(DataFrame{TimestampUS: uint64(i)})
	}
	recent := d.RecentFrames(2)
	if recent[0].TimestampUS != 1 || recent[1].TimestampUS != 2 {
		t.Fatalf("got %v, want [1, 2]", recent)
	}
}

func TestFeedPublishesDataFrameReady(t *testing.T) {
	d := New(10)
	var got DataFrame
	calls := 0
	bus := events.New()
	bus.OnDataFrameReady(func(v any) {
		calls++
		got = v.(DataFrame)
	})
	d.Feed(rforge.Frame{Cmd: rforge.StreamData, Payload: []byte("1,2\n")}, bus)
	if calls != 1 {
		t.Fatalf("bus called %d times, want 1", calls)
	}
	if len(got.Channels) != 2 {
		t.Fatalf("published frame channels = %v", got.Channels)
	}
}
