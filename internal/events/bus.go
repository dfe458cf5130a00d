// Package events implements the minimal publish/subscribe surface spec.md
// §4.I calls for: frame-decoded, data-frame-ready, state-changed, and
// error-occurred streams, fanned out to subscribers in registration order on
// the publisher's own call stack. Grounded on the teacher's internal/hub/hub.go
// (registration under sync.RWMutex, Snapshot-before-fanout so callbacks never
// run while holding the lock) generalized from a single CAN-frame broadcast
// channel to four typed callback lists.
package events

import (
	"sync"

	"github.com/rforge/acquisitiond/internal/rforge"
	"github.com/rforge/acquisitiond/internal/transport"
)

// FrameHandler observes every decoded Frame, regardless of command.
type FrameHandler func(rforge.Frame)

// StateHandler observes transport connection-state transitions.
type StateHandler func(transport.State)

// ErrorHandler observes transport and other surfaced errors.
type ErrorHandler func(error)

// Bus is a single-threaded-cooperative observer registry. Per spec.md §5,
// subscribers must not re-enter the bus from their own callback; the bus
// does not defend against this mechanically.
type Bus struct {
	mu            sync.RWMutex
	frameSubs     []FrameHandler
	stateSubs     []StateHandler
	errSubs       []ErrorHandler
	dataFrameSubs []func(any) // decode.DataFrame, passed as any via OnDataFrameReady to avoid an import cycle
}

// New returns an empty Bus.
func New() *Bus { return &Bus{} }

// OnFrameDecoded registers a callback invoked for every frame the
// multiplexer produces, in registration order.
func (b *Bus) OnFrameDecoded(h FrameHandler) {
	b.mu.Lock()
	b.frameSubs = append(b.frameSubs, h)
	b.mu.Unlock()
}

// OnStateChanged registers a callback invoked on each connection-state
// transition, forwarded verbatim from the transport.
func (b *Bus) OnStateChanged(h StateHandler) {
	b.mu.Lock()
	b.stateSubs = append(b.stateSubs, h)
	b.mu.Unlock()
}

// OnError registers a callback invoked for every surfaced transport or file
// I/O error.
func (b *Bus) OnError(h ErrorHandler) {
	b.mu.Lock()
	b.errSubs = append(b.errSubs, h)
	b.mu.Unlock()
}

// OnDataFrameReady registers a callback invoked whenever the decoder
// publishes a new DataFrame. The handler receives it as `any` (decode.DataFrame)
// to avoid internal/events depending on internal/decode.
func (b *Bus) OnDataFrameReady(h func(any)) {
	b.mu.Lock()
	b.dataFrameSubs = append(b.dataFrameSubs, h)
	b.mu.Unlock()
}

func (b *Bus) snapshotFrame() []FrameHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]FrameHandler, len(b.frameSubs))
	copy(out, b.frameSubs)
	return out
}

func (b *Bus) snapshotState() []StateHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]StateHandler, len(b.stateSubs))
	copy(out, b.stateSubs)
	return out
}

func (b *Bus) snapshotErr() []ErrorHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ErrorHandler, len(b.errSubs))
	copy(out, b.errSubs)
	return out
}

func (b *Bus) snapshotDataFrame() []func(any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]func(any), len(b.dataFrameSubs))
	copy(out, b.dataFrameSubs)
	return out
}

// PublishFrameDecoded fans a decoded Frame out to every subscriber, in
// registration order, outside the registration lock.
func (b *Bus) PublishFrameDecoded(fr rforge.Frame) {
	for _, h := range b.snapshotFrame() {
		h(fr)
	}
}

// PublishStateChanged fans a connection-state transition out to every
// subscriber.
func (b *Bus) PublishStateChanged(s transport.State) {
	for _, h := range b.snapshotState() {
		h(s)
	}
}

// PublishError fans a surfaced error out to every subscriber.
func (b *Bus) PublishError(err error) {
	for _, h := range b.snapshotErr() {
		h(err)
	}
}

// PublishDataFrameReady fans a newly decoded DataFrame out to every
// subscriber.
func (b *Bus) PublishDataFrameReady(df any) {
	for _, h := range b.snapshotDataFrame() {
		h(df)
	}
}
