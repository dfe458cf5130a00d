// Package decode implements the Data Decoder (spec.md §4.F): it turns
// StreamData payloads into timestamped channel samples and keeps a bounded
// ring of recently decoded frames. Grounded on original_source's
// src/core/DataEngine.cpp (binary-vs-ASCII branch on payload length,
// little-endian u64/u16/f32 decode) with the bounded ring adapted from the
// teacher's hub.Hub.Snapshot bounded-buffer idiom.
package decode

// ChannelValue is one (channel_id, value) sample within a DataFrame.
type ChannelValue struct {
	ChannelID uint16
	Value     float64
}

// DataFrame is the result of decoding a StreamData payload (spec.md §3).
type DataFrame struct {
	TimestampUS uint64
	Channels    []ChannelValue
}
