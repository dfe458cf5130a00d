package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rforge/acquisitiond/internal/logging"
	"github.com/rforge/acquisitiond/internal/metrics"
	"github.com/rforge/acquisitiond/internal/rforge"
	"github.com/rforge/acquisitiond/internal/transport"
)

const (
	defaultHandshakeTimeout = 3 * time.Second
	defaultClientBuf        = 256
	defaultTxQueueSize      = 256
)

// encoder builds outbound wire frames. BuildCommand is a pure function of
// its arguments (it never mutates parser state), so a single shared instance
// is safe for concurrent callers.
var encoder = rforge.NewBinaryParser()

// Server accepts viewer connections, performs the telemetry handshake, and
// fans decoded frames out to each client over internal/transport.AsyncTx,
// following the teacher's internal/server.Server generalized from CAN
// frames to rforge.Frame.
type Server struct {
	mu   sync.RWMutex
	addr string

	Hub              *Hub
	HandshakeTimeout time.Duration

	listener  net.Listener
	readyOnce sync.Once
	readyCh   chan struct{}
	logger    *slog.Logger

	clientsMu sync.Mutex
	clients   map[*Client]net.Conn

	wg sync.WaitGroup
}

// NewServer returns a Server listening at addr (":0" picks an ephemeral
// port) backed by hub.
func NewServer(addr string, hub *Hub) *Server {
	if addr == "" {
		addr = ":0"
	}
	return &Server{
		addr:             addr,
		Hub:              hub,
		HandshakeTimeout: defaultHandshakeTimeout,
		readyCh:          make(chan struct{}),
		logger:           logging.L(),
		clients:          make(map[*Client]net.Conn),
	}
}

// Addr returns the listener's bound address once Serve has started it.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Ready is closed once the listener is accepting connections.
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Serve accepts clients until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		return wrap
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.listener = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("remote_listen", "addr", s.Addr())

	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			wrap := fmt.Errorf("%w: %v", ErrAccept, err)
			metrics.IncError(mapErrToMetric(wrap))
			return wrap
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	if err := Handshake(ctx, conn, s.HandshakeTimeout); err != nil {
		wrap := fmt.Errorf("%w: %v", ErrHandshake, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.logger.Warn("remote_handshake_failed", "remote", conn.RemoteAddr().String(), "error", wrap)
		_ = conn.Close()
		return
	}

	bufSize := defaultClientBuf
	if s.Hub != nil && s.Hub.OutBufSize > 0 {
		bufSize = s.Hub.OutBufSize
	}
	cl := &Client{Out: make(chan rforge.Frame, bufSize), Closed: make(chan struct{})}
	if s.Hub != nil {
		s.Hub.Add(cl)
	}
	s.clientsMu.Lock()
	s.clients[cl] = conn
	s.clientsMu.Unlock()
	s.logger.Info("remote_client_connected", "remote", conn.RemoteAddr().String())

	s.wg.Add(1)
	go s.writeLoop(ctx, conn, cl)
	s.readLoop(conn, cl)
}

// writeLoop funnels cl.Out through an AsyncTx so a slow viewer cannot block
// decoding (SPEC_FULL.md's "remote/mirror" design note).
func (s *Server) writeLoop(ctx context.Context, conn net.Conn, cl *Client) {
	defer s.wg.Done()
	defer func() {
		_ = conn.Close()
		if s.Hub != nil {
			s.Hub.Remove(cl)
		}
		s.clientsMu.Lock()
		delete(s.clients, cl)
		s.clientsMu.Unlock()
		s.logger.Info("remote_client_disconnected", "remote", conn.RemoteAddr().String())
	}()

	tx := transport.NewAsyncTx(ctx, defaultTxQueueSize, func(fr rforge.Frame) error {
		wire, err := encoder.BuildCommand(fr.Cmd, fr.Payload)
		if err != nil {
			return err
		}
		_, err = conn.Write(wire)
		return err
	}, transport.Hooks{
		OnError: func(err error) {
			wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
			metrics.IncError(mapErrToMetric(wrap))
		},
		OnDrop: func() error {
			metrics.IncRemoteDropped()
			return nil
		},
	})
	defer tx.Close()

	for {
		select {
		case fr := <-cl.Out:
			_ = tx.SendFrame(fr)
		case <-cl.Closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// readLoop discards client input; its only purpose is detecting
// disconnects, since the telemetry mirror is receive-only from the viewer's
// perspective.
func (s *Server) readLoop(conn net.Conn, cl *Client) {
	_, _ = io.Copy(io.Discard, conn)
	cl.Close()
}

// Shutdown closes the listener and every open client connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.clientsMu.Lock()
	for cl, conn := range s.clients {
		_ = conn.Close()
		if s.Hub != nil {
			s.Hub.Remove(cl)
		}
		delete(s.clients, cl)
	}
	s.clientsMu.Unlock()

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
