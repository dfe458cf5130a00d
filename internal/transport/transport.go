// Package transport defines the byte-pipe contract the core ingestion
// pipeline consumes (spec.md §6) and a concrete serial-port adapter.
package transport

// Config mirrors spec.md §6's transport configuration.
type Config struct {
	PortName string
	BaudRate int // default 921600
	DataBits int // default 8
	StopBits int // 1 or 2
	Parity   int // 0 = none
}

// DefaultConfig returns a Config with the documented defaults, overriding
// only the port name.
func DefaultConfig(portName string) Config {
	return Config{PortName: portName, BaudRate: 921600, DataBits: 8, StopBits: 1, Parity: 0}
}

// State is the connection lifecycle state forwarded verbatim from the
// transport to subscribers (spec.md §4.I).
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Transport is the byte-pipe contract consumed by internal/dispatch. Real
// callers drive it from a single goroutine; DataReady/Errors/StateChanges
// are the asynchronous notification channels a read-ahead goroutine (or any
// other backend) uses to signal the owning goroutine without blocking it.
type Transport interface {
	Open(cfg Config) error
	Close() error
	IsOpen() bool
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	BytesAvailable() int

	// DataReady fires (non-blocking, coalescing) whenever new bytes have
	// been buffered and are available to Read.
	DataReady() <-chan struct{}
	// Errors carries transport-level I/O failures (spec.md §7).
	Errors() <-chan error
	// StateChanges carries ConnectionState transitions verbatim.
	StateChanges() <-chan State
}
