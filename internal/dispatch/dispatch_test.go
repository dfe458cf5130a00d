package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rforge/acquisitiond/internal/events"
	"github.com/rforge/acquisitiond/internal/rforge"
	"github.com/rforge/acquisitiond/internal/transport"
)

// fakeTransport implements transport.Transport with an in-memory byte queue,
// following the teacher's backend_test.go fakeSerialPort pattern.
type fakeTransport struct {
	mu      sync.Mutex
	pending []byte
	open    bool
	written [][]byte
	dataCh  chan struct{}
	errCh   chan error
	stateCh chan transport.State
	shortN  int // if > 0, Write reports this many bytes written instead of len(p)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		open:    true,
		dataCh:  make(chan struct{}, 1),
		errCh:   make(chan error, 1),
		stateCh: make(chan transport.State, 1),
	}
}

func (f *fakeTransport) Open(transport.Config) error { f.open = true; return nil }
func (f *fakeTransport) Close() error                { f.open = false; return nil }
func (f *fakeTransport) IsOpen() bool                { return f.open }

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	f.written = append(f.written, cp)
	if f.shortN > 0 {
		return f.shortN, nil
	}
	return len(p), nil
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *fakeTransport) BytesAvailable() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeTransport) push(b []byte) {
	f.mu.Lock()
	f.pending = append(f.pending, b...)
	f.mu.Unlock()
	select {
	case f.dataCh <- struct{}{}:
	default:
	}
}

func (f *fakeTransport) DataReady() <-chan struct{}           { return f.dataCh }
func (f *fakeTransport) Errors() <-chan error                 { return f.errCh }
func (f *fakeTransport) StateChanges() <-chan transport.State { return f.stateCh }

func TestDrainTransportPublishesFrames(t *testing.T) {
	ft := newFakeTransport()
	mux := rforge.NewMultiplexer()
	bus := events.New()

	var got []rforge.Frame
	bus.OnFrameDecoded(func(fr rforge.Frame) { got = append(got, fr) })

	d := New(ft, mux, bus)

	wire, _ := mux.BuildCommand(rforge.Ping, nil)
	ft.push(wire)
	d.drainTransport()

	if len(got) != 1 || got[0].Cmd != rforge.Ping {
		t.Fatalf("got %v, want one Ping frame", got)
	}
}

func TestRunForwardsErrorsAndState(t *testing.T) {
	ft := newFakeTransport()
	mux := rforge.NewMultiplexer()
	bus := events.New()

	var gotErr error
	var gotState transport.State = -1
	bus.OnError(func(err error) { gotErr = err })
	bus.OnStateChanged(func(s transport.State) { gotState = s })

	d := New(ft, mux, bus)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() { d.Run(stop); close(done) }()

	want := errors.New("boom")
	ft.errCh <- want
	ft.stateCh <- transport.Error

	deadline := time.After(time.Second)
	for gotErr == nil || gotState != transport.Error {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for forwarded error/state")
		case <-time.After(time.Millisecond):
		}
	}
	close(stop)
	<-done

	if !errors.Is(gotErr, want) {
		t.Fatalf("gotErr = %v, want %v", gotErr, want)
	}
}

func TestSendCommandFailsWhenTransportClosed(t *testing.T) {
	ft := newFakeTransport()
	ft.open = false
	d := New(ft, rforge.NewMultiplexer(), events.New())
	if d.SendCommand(rforge.Ping, nil) {
		t.Fatal("expected SendCommand to fail on closed transport")
	}
}

func TestSendCommandFailsOnShortWrite(t *testing.T) {
	ft := newFakeTransport()
	ft.shortN = 1
	d := New(ft, rforge.NewMultiplexer(), events.New())
	if d.SendCommand(rforge.Ping, []byte("xy")) {
		t.Fatal("expected SendCommand to fail on short write")
	}
}

func TestSendCommandSucceeds(t *testing.T) {
	ft := newFakeTransport()
	d := New(ft, rforge.NewMultiplexer(), events.New())
	if !d.SendCommand(rforge.Ping, nil) {
		t.Fatal("expected SendCommand to succeed")
	}
	if len(ft.written) != 1 {
		t.Fatalf("got %d writes, want 1", len(ft.written))
	}
}
