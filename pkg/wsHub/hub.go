package ws

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/metrics"
)

var ErrEmptyConn = errors.New("connection is empty")

// Hub keeps exactly one live channel per (kind, id)
type Hub struct {
	clients map[Key]*Conn
	l       logger.Logger
	mu      sync.RWMutex
}

func NewHub(l logger.Logger) *Hub {
	return &Hub{
		clients: make(map[Key]*Conn),
		l:       l,
	}
}

// Connect registers conn. An existing channel for the same key is replaced and closed.
func (h *Hub) Connect(conn *Conn) error {
	if conn == nil {
		return ErrEmptyConn
	}

	h.mu.Lock()
	existing, ok := h.clients[conn.key]
	h.clients[conn.key] = conn
	count := h.countLocked(conn.key.Kind)
	h.mu.Unlock()

	metrics.WebSocketConnectionsGauge.WithLabelValues(conn.key.Kind.String()).Set(float64(count))

	if ok && existing != conn {
		ctx := wrap.WithAction(context.Background(), types.ActionWSConnect)
		h.l.Warn(ctx, "replacing existing connection", "key", conn.key.String())
		if err := existing.Close(); err != nil {
			h.l.Warn(ctx, "failed to close replaced connection", "key", conn.key.String(), "error", err.Error())
		}
	}

	return nil
}

// Disconnect removes conn only if it is still the registered channel for its key.
// It always closes conn.
func (h *Hub) Disconnect(conn *Conn) bool {
	if conn == nil {
		return false
	}
	removed := h.evict(conn.key, conn)
	_ = conn.Close()
	return removed
}

// Remove drops and closes whatever channel is registered for key
func (h *Hub) Remove(key Key) bool {
	h.mu.RLock()
	conn, ok := h.clients[key]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.Disconnect(conn)
}

// Send delivers msg at most once. Without a registered channel it is a no-op.
// A failed write evicts the channel and the error is returned for logging only.
func (h *Hub) Send(key Key, msg any) error {
	h.mu.RLock()
	conn, ok := h.clients[key]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	if err := conn.Send(msg); err != nil {
		h.evict(key, conn)
		_ = conn.Close()
		ctx := wrap.WithAction(context.Background(), types.ActionWSDisconnect)
		h.l.Warn(ctx, "evicted connection after failed send", "key", key.String(), "error", err.Error())
		return err
	}
	return nil
}

// Broadcast sends msg to every channel of kind except the excluded ids.
// It returns the number of successful deliveries.
func (h *Hub) Broadcast(kind types.ActorKind, msg any, exclude ...int64) int {
	delivered := 0
	for _, key := range h.keys(kind) {
		if slices.Contains(exclude, key.ID) {
			continue
		}
		if h.Send(key, msg) == nil {
			delivered++
		}
	}
	return delivered
}

// PingAll sends msg to every channel and returns how many were evicted
func (h *Hub) PingAll(msg any) int {
	evicted := 0
	for _, kind := range types.ActorKinds {
		for _, key := range h.keys(kind) {
			if h.Send(key, msg) != nil {
				evicted++
			}
		}
	}
	return evicted
}

func (h *Hub) IsConnected(key Key) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[key]
	return ok
}

// Count returns the number of live channels of kind
func (h *Hub) Count(kind types.ActorKind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked(kind)
}

// Counts returns live channels per kind
func (h *Hub) Counts() map[types.ActorKind]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[types.ActorKind]int, len(types.ActorKinds))
	for _, kind := range types.ActorKinds {
		out[kind] = 0
	}
	for key := range h.clients {
		out[key.Kind]++
	}
	return out
}

// Close closes every registered channel
func (h *Hub) Close() {
	ctx := wrap.WithAction(context.Background(), "hub_close")

	h.mu.Lock()
	clients := make([]*Conn, 0, len(h.clients))
	for _, conn := range h.clients {
		clients = append(clients, conn)
	}
	h.clients = make(map[Key]*Conn)
	h.mu.Unlock()

	for _, conn := range clients {
		_ = conn.Close()
	}
	for _, kind := range types.ActorKinds {
		metrics.WebSocketConnectionsGauge.WithLabelValues(kind.String()).Set(0)
	}

	h.l.Info(ctx, "all websocket connections closed", "count", len(clients))
}

func (h *Hub) evict(key Key, conn *Conn) bool {
	h.mu.Lock()
	current, ok := h.clients[key]
	if !ok || current != conn {
		h.mu.Unlock()
		return false
	}
	delete(h.clients, key)
	count := h.countLocked(key.Kind)
	h.mu.Unlock()

	metrics.WebSocketConnectionsGauge.WithLabelValues(key.Kind.String()).Set(float64(count))
	return true
}

func (h *Hub) keys(kind types.ActorKind) []Key {
	h.mu.RLock()
	defer h.mu.RUnlock()

	keys := make([]Key, 0, len(h.clients))
	for key := range h.clients {
		if key.Kind == kind {
			keys = append(keys, key)
		}
	}
	return keys
}

func (h *Hub) countLocked(kind types.ActorKind) int {
	n := 0
	for key := range h.clients {
		if key.Kind == kind {
			n++
		}
	}
	return n
}
