// Package hub tracks which users currently hold an open live connection.
package hub

import (
	"errors"
	"sync"
)

// ErrNotConnected is returned when delivery is attempted to a user with
// no registered connection.
var ErrNotConnected = errors.New("user not connected")

// Conn is the minimal interface the hub needs from a live connection:
// the ability to push a frame to the connected client and to close it.
type Conn interface {
	Send(v any) error
	Close() error
}

// Hub maps user ids to their single active connection. A user holds at
// most one entry; a new registration displaces the previous one.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{conns: make(map[string]Conn)}
}

// Register records the connection for userID, replacing any prior entry.
// The displaced connection is returned so the caller can close it; the
// hub itself never closes what it displaces.
func (h *Hub) Register(userID string, c Conn) Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.conns[userID]
	h.conns[userID] = c
	return prev
}

// Unregister removes the mapping for userID, but only while c is still
// the registered handle. A disconnect of a displaced connection must not
// evict its successor. Reports whether an entry was removed.
func (h *Hub) Unregister(userID string, c Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[userID] != c {
		return false
	}
	delete(h.conns, userID)
	return true
}

// Lookup returns the live connection for userID, if any.
func (h *Hub) Lookup(userID string) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[userID]
	return c, ok
}

// Online reports whether userID has a registered connection.
func (h *Hub) Online(userID string) bool {
	_, ok := h.Lookup(userID)
	return ok
}

// SendToUser delivers v to the user's live connection. Returns
// ErrNotConnected when the user is offline; a failed send unregisters
// the broken connection so it is not retried.
func (h *Hub) SendToUser(userID string, v any) error {
	c, ok := h.Lookup(userID)
	if !ok {
		return ErrNotConnected
	}

	if err := c.Send(v); err != nil {
		h.Unregister(userID, c)
		return err
	}
	return nil
}

// Each calls fn for every registered connection. The registry is
// snapshotted first so fn may register or unregister without deadlock.
func (h *Hub) Each(fn func(userID string, c Conn)) {
	h.mu.RLock()
	snapshot := make(map[string]Conn, len(h.conns))
	for id, c := range h.conns {
		snapshot[id] = c
	}
	h.mu.RUnlock()

	for id, c := range snapshot {
		fn(id, c)
	}
}

// Close closes and removes every registered connection. Called on
// process shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]Conn)
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
