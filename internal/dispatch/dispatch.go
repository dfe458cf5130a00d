// Package dispatch implements the Frame Dispatcher (spec.md §4.E): it owns
// the connection layer, reacting to the transport's data-ready notification
// by reading available bytes, feeding the parser multiplexer, and draining
// decoded frames onto the event bus. Grounded on the teacher's
// cmd/can-server/backend_serial.go RX loop (read into scratch buffer, feed
// codec, drain frames, backoff on read error) and on original_source's
// src/core/ConnectionManager.cpp (read bytesAvailable, feed parser, drain
// tryPopFrame in a loop, emit frame-decoded).
package dispatch

import (
	"errors"

	"github.com/rforge/acquisitiond/internal/events"
	"github.com/rforge/acquisitiond/internal/logging"
	"github.com/rforge/acquisitiond/internal/metrics"
	"github.com/rforge/acquisitiond/internal/rforge"
	"github.com/rforge/acquisitiond/internal/transport"
)

const scratchBufSize = 4096

// ErrTransportClosed names the no-open-transport condition. SendCommand does
// not return it; it reports that case as false.
var ErrTransportClosed = errors.New("dispatch: transport closed")

// Dispatcher is the single I/O-goroutine owner of the parser multiplexer
// (spec.md §5): it is driven exclusively by Run, which must be called from
// one goroutine only.
type Dispatcher struct {
	transport transport.Transport
	mux       *rforge.Multiplexer
	bus       *events.Bus
	scratch   []byte
}

// New constructs a Dispatcher over the given transport, multiplexer, and
// event bus.
func New(t transport.Transport, mux *rforge.Multiplexer, bus *events.Bus) *Dispatcher {
	return &Dispatcher{
		transport: t,
		mux:       mux,
		bus:       bus,
		scratch:   make([]byte, scratchBufSize),
	}
}

// Run blocks, reacting to the transport's DataReady/Errors/StateChanges
// channels until stop is closed. It must run on the dispatcher's own
// goroutine (the "I/O goroutine" of spec.md §5); it never spawns background
// work of its own.
func (d *Dispatcher) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-d.transport.DataReady():
			d.drainTransport()
		case err := <-d.transport.Errors():
			logging.L().Warn("transport_error", "error", err)
			metrics.IncError(metrics.ErrTransportRead)
			d.bus.PublishError(err)
		case s := <-d.transport.StateChanges():
			logging.L().Info("transport_state", "state", s.String())
			d.bus.PublishStateChanged(s)
		}
	}
}

// drainTransport reads everything currently available, feeds the
// multiplexer, and drains every ready frame onto the bus. It is also the
// entry point tests use to drive the dispatcher synchronously.
func (d *Dispatcher) drainTransport() {
	for {
		n, err := d.transport.Read(d.scratch)
		if n > 0 {
			metrics.AddBytesRead(n)
			crcBefore := d.mux.CRCErrorCount()
			d.mux.Feed(d.scratch[:n])
			for i := d.mux.CRCErrorCount() - crcBefore; i > 0; i-- {
				metrics.IncCRCErrors()
			}
			d.drainFrames()
		}
		if err != nil || n == 0 {
			return
		}
	}
}

func (d *Dispatcher) drainFrames() {
	for {
		fr, ok := d.mux.TryPopFrame()
		if !ok {
			return
		}
		metrics.IncFramesDecoded()
		d.bus.PublishFrameDecoded(fr)
	}
}

// SendCommand builds a packet via the multiplexer and writes it atomically
// to the transport, returning false if the transport is closed or the write
// is short (spec.md §4.E), mirroring original_source's
// ConnectionManager::sendCommand short-write check.
func (d *Dispatcher) SendCommand(cmd rforge.CommandId, payload []byte) bool {
	if !d.transport.IsOpen() {
		return false
	}
	wire, err := d.mux.BuildCommand(cmd, payload)
	if err != nil {
		return false
	}
	n, err := d.transport.Write(wire)
	if err != nil || n != len(wire) {
		return false
	}
	metrics.IncCommandsSent()
	return true
}
