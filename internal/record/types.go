// Package record implements the Record Sink (spec.md §4.H): an append-only
// log writer with a fixed magic and typed chunks, plus a CSV exporter.
// Grounded on original_source's src/core/RecordEngine.cpp (magic + chunk
// stream, flush after every append) and on the teacher's little-endian
// encoding/binary usage throughout internal/cnl/codec.go.
package record

// Magic is the 4-byte record file header (spec.md §3 invariant 5, §6).
var Magic = [4]byte{'R', 'F', 'R', '1'}

// RecordChunk is one persisted unit in the record file (spec.md §3).
type RecordChunk struct {
	StartTS       uint64
	EndTS         uint64
	PackedSamples []byte
}
