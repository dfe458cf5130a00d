package transport

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/rforge/acquisitiond/internal/logging"
)

const (
	readBufSize = 4096
	// largeBufferReclaimThreshold is the capacity above which the
	// accumulation buffer is discarded and reallocated once fully drained,
	// bounding memory growth after a burst of line noise (grounded on the
	// teacher's backend_serial.go largeBufferReclaimThreshold).
	largeBufferReclaimThreshold = 16 * 1024
	rxBackoffMin                = 20 * time.Millisecond
	rxBackoffMax                = 500 * time.Millisecond
)

// Port abstracts tarm/serial.Port for testability, following the teacher's
// internal/serial/port.go.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// openPort is a seam for tests to substitute a fake Port.
var openPort = func(cfg Config, readTimeout time.Duration) (Port, error) {
	sc := &serial.Config{
		Name:        cfg.PortName,
		Baud:        cfg.BaudRate,
		ReadTimeout: readTimeout,
		Size:        byte(cfg.DataBits),
	}
	if cfg.StopBits == 2 {
		sc.StopBits = serial.Stop2
	} else {
		sc.StopBits = serial.Stop1
	}
	switch cfg.Parity {
	case 0:
		sc.Parity = serial.ParityNone
	default:
		sc.Parity = serial.ParityOdd
	}
	return serial.OpenPort(sc)
}

// SerialTransport implements Transport over a serial port. A single
// read-ahead goroutine blocks in Port.Read (spec.md §5: the only
// permissible blocking background work) and marshals a non-blocking,
// coalescing "data ready" notification back to the owning goroutine,
// following the teacher's backend_serial.go RX loop.
type SerialTransport struct {
	readTimeout time.Duration

	mu   sync.Mutex
	port Port
	acc  bytes.Buffer
	open bool

	dataReady chan struct{}
	errCh     chan error
	stateCh   chan State

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSerialTransport returns an unopened transport. readTimeout bounds each
// blocking Port.Read call so the read-ahead goroutine can observe stop.
func NewSerialTransport(readTimeout time.Duration) *SerialTransport {
	if readTimeout <= 0 {
		readTimeout = 50 * time.Millisecond
	}
	return &SerialTransport{
		readTimeout: readTimeout,
		dataReady:   make(chan struct{}, 1),
		errCh:       make(chan error, 4),
		stateCh:     make(chan State, 4),
	}
}

func (t *SerialTransport) notifyState(s State) {
	select {
	case t.stateCh <- s:
	default:
	}
}

func (t *SerialTransport) notifyError(err error) {
	select {
	case t.errCh <- err:
	default:
	}
}

func (t *SerialTransport) notifyDataReady() {
	select {
	case t.dataReady <- struct{}{}:
	default:
	}
}

// Open starts the serial port and its read-ahead goroutine.
func (t *SerialTransport) Open(cfg Config) error {
	t.mu.Lock()
	if t.open {
		t.mu.Unlock()
		_ = t.Close()
		t.mu.Lock()
	}
	t.notifyState(Connecting)
	port, err := openPort(cfg, t.readTimeout)
	if err != nil {
		t.mu.Unlock()
		t.notifyError(err)
		t.notifyState(Error)
		return err
	}
	t.port = port
	t.open = true
	t.acc.Reset()
	t.stop = make(chan struct{})
	t.mu.Unlock()

	t.notifyState(Connected)
	t.wg.Add(1)
	go t.readLoop(t.stop)
	return nil
}

// Close stops the read-ahead goroutine and closes the underlying port.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return nil
	}
	t.open = false
	port := t.port
	stop := t.stop
	t.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	var err error
	if port != nil {
		err = port.Close()
	}
	t.wg.Wait()
	t.notifyState(Disconnected)
	return err
}

// IsOpen reports whether the transport is currently open.
func (t *SerialTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Write writes directly to the port; it is the caller's responsibility to
// serialize writes with the read-ahead goroutine's reads (tarm/serial
// supports concurrent read/write on the same handle).
func (t *SerialTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	port := t.port
	open := t.open
	t.mu.Unlock()
	if !open || port == nil {
		return 0, errors.New("transport: not open")
	}
	return port.Write(p)
}

// Read drains up to len(p) bytes from the accumulated read-ahead buffer.
func (t *SerialTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.acc.Read(p)
	if t.acc.Len() == 0 && t.acc.Cap() > largeBufferReclaimThreshold {
		t.acc = bytes.Buffer{}
	}
	return n, err
}

// BytesAvailable reports how many bytes are currently buffered and ready to
// Read.
func (t *SerialTransport) BytesAvailable() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acc.Len()
}

func (t *SerialTransport) DataReady() <-chan struct{} { return t.dataReady }
func (t *SerialTransport) Errors() <-chan error       { return t.errCh }
func (t *SerialTransport) StateChanges() <-chan State { return t.stateCh }

func (t *SerialTransport) readLoop(stop chan struct{}) {
	defer t.wg.Done()
	buf := make([]byte, readBufSize)
	backoff := rxBackoffMin
	for {
		select {
		case <-stop:
			return
		default:
		}
		t.mu.Lock()
		port := t.port
		t.mu.Unlock()
		if port == nil {
			return
		}
		n, err := port.Read(buf)
		if n > 0 {
			t.mu.Lock()
			t.acc.Write(buf[:n])
			t.mu.Unlock()
			t.notifyDataReady()
			backoff = rxBackoffMin
		}
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			var perr *os.PathError
			if errors.As(err, &perr) {
				t.notifyError(err)
				t.notifyState(Error)
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				continue // transient, e.g. read timeout with no data
			}
			logging.L().Warn("serial_read_error", "error", err, "backoff", backoff)
			t.notifyError(err)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > rxBackoffMax {
				backoff = rxBackoffMax
			}
		}
	}
}
