// Package hub coordinates client registration, message broadcast, and
// eviction of dead connections via the Hub type.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Tyrowin/echochamber/internal/metrics"
)

var (
	// ErrEndpointClosed is returned by an Endpoint that no longer accepts messages.
	ErrEndpointClosed = errors.New("endpoint closed")
	// ErrSlowConsumer is returned by an Endpoint whose send buffer is full.
	ErrSlowConsumer = errors.New("endpoint send buffer full")
	// ErrHubClosed is returned by Register after Shutdown.
	ErrHubClosed = errors.New("hub closed")
)

// ClientID identifies one registered connection.
type ClientID string

// Endpoint is the output side of a client connection.
//
// Send must not block indefinitely: it enqueues the text for asynchronous
// delivery and reports ErrEndpointClosed or ErrSlowConsumer when it cannot.
// Close must be idempotent.
type Endpoint interface {
	Send(text string) error
	Close() error
}

// Handle is the registry's record of a live client.
type Handle struct {
	ID           ClientID
	RegisteredAt time.Time
	endpoint     Endpoint
}

// BroadcastResult reports the outcome of a single Broadcast call.
type BroadcastResult struct {
	Delivered int
	Evicted   int
}

// Hub manages the set of registered client endpoints and fans messages out
// to them. All methods are safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[ClientID]*Handle
	closed  bool

	// dispatch serializes snapshot-and-send so every recipient observes
	// distinct broadcasts in the same relative order.
	dispatch sync.Mutex

	clock  clockwork.Clock
	logger *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock sets the clock used for registration timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(h *Hub) { h.clock = clock }
}

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// New creates an empty Hub ready to accept registrations.
func New(opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[ClientID]*Handle),
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register inserts endpoint under id. An existing entry with the same id is
// replaced (last registration wins) and its endpoint is closed.
func (h *Hub) Register(id ClientID, endpoint Endpoint) (*Handle, error) {
	if endpoint == nil {
		return nil, fmt.Errorf("register %s: nil endpoint", id)
	}

	handle := &Handle{ID: id, RegisteredAt: h.clock.Now(), endpoint: endpoint}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	prev, replaced := h.clients[id]
	h.clients[id] = handle
	count := len(h.clients)
	h.mu.Unlock()

	if replaced {
		h.logger.Warn("Client re-registered; closing previous endpoint", "client_id", id)
		if prev.endpoint != endpoint {
			h.closeEndpoint(prev)
		}
	} else {
		metrics.ConnectedClients.Inc()
	}

	h.logger.Info("Client registered", "client_id", id, "total_clients", count)
	return handle, nil
}

// Unregister removes id from the registry and closes its endpoint. It is a
// no-op when id is not registered and reports whether anything was removed.
func (h *Hub) Unregister(id ClientID) bool {
	h.mu.Lock()
	handle, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return false
	}

	metrics.ConnectedClients.Dec()
	h.closeEndpoint(handle)
	h.logger.Info("Client unregistered", "client_id", id, "total_clients", count)
	return true
}

// Broadcast delivers text to every client registered when the call starts.
// Endpoints that fail to accept the message are evicted; the remaining
// recipients are unaffected. After Shutdown it delivers nothing.
func (h *Hub) Broadcast(text string) BroadcastResult {
	h.dispatch.Lock()
	defer h.dispatch.Unlock()

	if h.isClosed() {
		return BroadcastResult{}
	}

	metrics.BroadcastsTotal.Inc()

	var result BroadcastResult
	for _, handle := range h.snapshot() {
		if err := handle.endpoint.Send(text); err != nil {
			h.evict(handle, err)
			result.Evicted++
			metrics.DeliveriesTotal.WithLabelValues(metrics.ResultEvicted).Inc()
			continue
		}
		result.Delivered++
		metrics.DeliveriesTotal.WithLabelValues(metrics.ResultDelivered).Inc()
	}

	h.logger.Debug("Broadcast dispatched", "delivered", result.Delivered, "evicted", result.Evicted)
	return result
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Contains reports whether id is currently registered.
func (h *Hub) Contains(id ClientID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

// IDs returns the identifiers currently registered, in no particular order.
func (h *Hub) IDs() []ClientID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]ClientID, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown closes every registered endpoint, empties the registry and makes
// further Register and Broadcast calls no-ops. Endpoint Close never blocks,
// so every removed endpoint is closed even when ctx is already done.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.logger.Info("Shutting down hub")

	h.mu.Lock()
	h.closed = true
	handles := make([]*Handle, 0, len(h.clients))
	for id, handle := range h.clients {
		handles = append(handles, handle)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	for _, handle := range handles {
		metrics.ConnectedClients.Dec()
		h.closeEndpoint(handle)
	}

	if err := ctx.Err(); err != nil {
		h.logger.Warn("Hub shutdown finished after deadline", "closed_clients", len(handles), "error", err)
		return err
	}

	h.logger.Info("Hub shutdown completed", "closed_clients", len(handles))
	return nil
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// snapshot returns the handles registered at the time of the call.
func (h *Hub) snapshot() []*Handle {
	h.mu.RLock()
	defer h.mu.RUnlock()

	handles := make([]*Handle, 0, len(h.clients))
	for _, handle := range h.clients {
		handles = append(handles, handle)
	}
	return handles
}

// evict removes handle if it is still the registered entry for its id.
// A newer registration under the same id is left alone.
func (h *Hub) evict(handle *Handle, cause error) {
	h.mu.Lock()
	current, ok := h.clients[handle.ID]
	removed := ok && current == handle
	if removed {
		delete(h.clients, handle.ID)
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.closeEndpoint(handle)
	if removed {
		metrics.ConnectedClients.Dec()
		h.logger.Info("Client evicted after failed delivery", "client_id", handle.ID, "error", cause, "total_clients", count)
	}
}

func (h *Hub) closeEndpoint(handle *Handle) {
	if err := handle.endpoint.Close(); err != nil && !errors.Is(err, ErrEndpointClosed) {
		h.logger.Warn("Error closing client endpoint", "client_id", handle.ID, "error", err)
	}
}
