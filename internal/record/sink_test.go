package record

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rforge/acquisitiond/internal/decode"
)

func TestStartWritesMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.bin")
	s := New()
	if !s.Start(path) {
		t.Fatal("Start returned false")
	}
	defer s.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw[:4], Magic[:]) {
		t.Fatalf("magic = %v, want %v", raw[:4], Magic)
	}
}

func TestAppendChunkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.bin")
	s := New()
	if !s.Start(path) {
		t.Fatal("Start returned false")
	}
	chunk := RecordChunk{StartTS: 100, EndTS: 200, PackedSamples: []byte{1, 2, 3, 4}}
	if !s.AppendChunk(chunk) {
		t.Fatal("AppendChunk returned false")
	}
	s.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	body := raw[4:]
	if len(body) != 20+4 {
		t.Fatalf("body len = %d, want 24", len(body))
	}
	if got := binary.LittleEndian.Uint64(body[0:8]); got != 100 {
		t.Fatalf("start_ts = %d, want 100", got)
	}
	if got := binary.LittleEndian.Uint64(body[8:16]); got != 200 {
		t.Fatalf("end_ts = %d, want 200", got)
	}
	if got := binary.LittleEndian.Uint32(body[16:20]); got != 4 {
		t.Fatalf("length = %d, want 4", got)
	}
	if !bytes.Equal(body[20:24], []byte{1, 2, 3, 4}) {
		t.Fatalf("samples = %v, want [1 2 3 4]", body[20:24])
	}
}

// TestStartTruncatesOnReopen matches spec.md §3's "re-opening truncates and
// re-writes the magic".
func TestStartTruncatesOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.bin")
	s := New()
	s.Start(path)
	s.AppendChunk(RecordChunk{StartTS: 1, EndTS: 2, PackedSamples: []byte{0xAA, 0xBB, 0xCC}})
	s.Close()

	s2 := New()
	if !s2.Start(path) {
		t.Fatal("re-Start returned false")
	}
	s2.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 4 {
		t.Fatalf("file len after truncate-reopen = %d, want 4 (magic only)", len(raw))
	}
}

func TestAppendChunkFailsWhenNotStarted(t *testing.T) {
	s := New()
	if s.AppendChunk(RecordChunk{}) {
		t.Fatal("expected AppendChunk to fail on unopened sink")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New()
	s.Start(filepath.Join(t.TempDir(), "rec.bin"))
	s.Close()
	s.Close() // must not panic
}

func TestExportCSV(t *testing.T) {
	frames := []decode.DataFrame{
		{TimestampUS: 1000, Channels: []decode.ChannelValue{{ChannelID: 0, Value: 1.5}, {ChannelID: 1, Value: -2.25}}},
		{TimestampUS: 2000, Channels: []decode.ChannelValue{{ChannelID: 0, Value: 3}}},
	}
	var buf bytes.Buffer
	if err := ExportCSV(&buf, frames); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if lines[0] != "timestamp_us,channel_id,value" {
		t.Fatalf("header = %q", lines[0])
	}
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4 (header + 3 rows): %v", len(lines), lines)
	}
	if lines[1] != "1000,0,1.5" {
		t.Fatalf("row 1 = %q", lines[1])
	}
	if lines[2] != "1000,1,-2.25" {
		t.Fatalf("row 2 = %q", lines[2])
	}
	if lines[3] != "2000,0,3" {
		t.Fatalf("row 3 = %q", lines[3])
	}
}
