// Package remote implements the supplemented TCP telemetry mirror
// (SPEC_FULL.md "Supplemented component — Remote telemetry mirror"): an
// optional out-of-process fan-out of decoded frames so a viewer can watch
// the stream without linking against the daemon. Grounded on the teacher's
// TCP hub (internal/hub, internal/server) and cannelloni handshake
// (internal/cnl/handshake.go), generalized from CAN frames to rforge.Frame.
package remote

import (
	"sync"

	"github.com/rforge/acquisitiond/internal/logging"
	"github.com/rforge/acquisitiond/internal/metrics"
	"github.com/rforge/acquisitiond/internal/rforge"
)

// BackpressurePolicy selects what happens when a client's outbound buffer is
// full, mirroring the teacher's hub.BackpressurePolicy.
type BackpressurePolicy int

const (
	PolicyDrop BackpressurePolicy = iota
	PolicyKick
)

// Client is one connected telemetry viewer's outbound queue.
type Client struct {
	Out       chan rforge.Frame
	Closed    chan struct{}
	closeOnce sync.Once
}

// Close signals the client is closed (idempotent).
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Closed) })
}

// Hub fans decoded frames out to every registered client, following the
// teacher's internal/hub.Hub registration-under-RWMutex + Snapshot-before-
// fanout idiom.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

// New creates an empty Hub with default settings.
func New() *Hub { return &Hub{clients: make(map[*Client]struct{})} }

// Add registers a client with the hub.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	prev := len(h.clients)
	h.clients[c] = struct{}{}
	cur := len(h.clients)
	h.mu.Unlock()
	metrics.SetRemoteClients(cur)
	if prev == 0 && cur == 1 {
		logging.L().Info("remote_clients_first_connected")
	}
}

// Remove unregisters a client; safe to call multiple times.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	if existed {
		delete(h.clients, c)
	}
	cur := len(h.clients)
	h.mu.Unlock()
	select {
	case <-c.Closed:
	default:
		c.Close()
	}
	metrics.SetRemoteClients(cur)
	if existed && cur == 0 {
		logging.L().Info("remote_clients_last_disconnected")
	}
}

// Broadcast sends a frame to all connected clients honoring the
// backpressure policy.
func (h *Hub) Broadcast(fr rforge.Frame) {
	for _, c := range h.Snapshot() {
		select {
		case c.Out <- fr:
		default:
			if h.Policy == PolicyKick {
				metrics.IncRemoteKicked()
				c.Close()
			} else {
				metrics.IncRemoteDropped()
			}
		}
	}
}

// Snapshot returns a slice copy of current clients (read-only use).
func (h *Hub) Snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// Count returns the number of active clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
