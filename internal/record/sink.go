package record

import (
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/rforge/acquisitiond/internal/decode"
	"github.com/rforge/acquisitiond/internal/metrics"
)

// Sink owns an exclusive record file handle, following spec.md §5's
// "the record file is owned exclusively by the Record Sink" and the
// Closed -> Open(path) -> Closed lifecycle of spec.md §3.
type Sink struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// New returns a Sink with no file open.
func New() *Sink { return &Sink{} }

// Start closes any previously open file, truncate-opens path, and writes
// the magic. Returns false (with no error propagated beyond the bool, per
// spec.md §7) if the open or the magic write failed.
func (s *Sink) Start(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		metrics.IncError(metrics.ErrRecordWrite)
		return false
	}
	if _, err := f.Write(Magic[:]); err != nil {
		metrics.IncError(metrics.ErrRecordWrite)
		_ = f.Close()
		return false
	}
	if err := f.Sync(); err != nil {
		metrics.IncError(metrics.ErrRecordWrite)
		_ = f.Close()
		return false
	}
	s.file = f
	s.path = path
	return true
}

// AppendChunk writes start_ts, end_ts, sample_bytes_len, and the sample
// bytes, then flushes. Returns false on any short write or flush failure,
// leaving the file open per spec.md §4.H so the caller may decide to stop.
func (s *Sink) AppendChunk(chunk RecordChunk) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return false
	}
	var hdr [20]byte
	binary.LittleEndian.PutUint64(hdr[0:8], chunk.StartTS)
	binary.LittleEndian.PutUint64(hdr[8:16], chunk.EndTS)
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(len(chunk.PackedSamples)))

	if n, err := s.file.Write(hdr[:]); err != nil || n != len(hdr) {
		metrics.IncError(metrics.ErrRecordWrite)
		return false
	}
	if len(chunk.PackedSamples) > 0 {
		if n, err := s.file.Write(chunk.PackedSamples); err != nil || n != len(chunk.PackedSamples) {
			metrics.IncError(metrics.ErrRecordWrite)
			return false
		}
	}
	if err := s.file.Sync(); err != nil {
		metrics.IncError(metrics.ErrRecordWrite)
		return false
	}
	metrics.IncRecordsWritten()
	return true
}

// Close closes the underlying file, if any, transitioning the sink to
// Closed. Idempotent.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Sink) closeLocked() {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
		s.path = ""
	}
}

// Path returns the currently open path, or "" if closed.
func (s *Sink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// ExportCSV writes a "timestamp_us,channel_id,value" header followed by one
// line per (frame, channel), using strconv.FormatFloat('g', -1, 64) for
// round-trippable values, the Go-idiomatic equivalent of RecordEngine's
// QTextStream-based exporter (SPEC_FULL.md §4.H).
func ExportCSV(w io.Writer, frames []decode.DataFrame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp_us", "channel_id", "value"}); err != nil {
		return fmt.Errorf("record: csv header: %w", err)
	}
	for _, fr := range frames {
		ts := strconv.FormatUint(fr.TimestampUS, 10)
		for _, ch := range fr.Channels {
			row := []string{
				ts,
				strconv.FormatUint(uint64(ch.ChannelID), 10),
				strconv.FormatFloat(ch.Value, 'g', -1, 64),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("record: csv row: %w", err)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("record: csv flush: %w", err)
	}
	return nil
}
