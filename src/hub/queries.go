package hub

import (
	"github.com/vinneth/chathub/src/types"
)

// Handle registers a handler for an inbound frame type. Handlers run
// inside the hub's serialized dispatch loop.
func (h *Hub) Handle(frameType string, handler types.FrameHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[frameType] = handler
}

// OnOnline registers a callback fired when a user's first connection
// registers. Callbacks run on their own goroutine and must not be
// assumed to complete before the triggering register returns.
func (h *Hub) OnOnline(cb func(userID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onOnline = append(h.onOnline, cb)
}

// OnOffline registers a callback fired when a user's last connection
// unregisters.
func (h *Hub) OnOffline(cb func(userID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onOffline = append(h.onOffline, cb)
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// OnlineUsers returns the ids of all users with at least one live connection.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.users))
	for id := range h.users {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnlineUserCount returns the number of distinct online users.
func (h *Hub) OnlineUserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// ClientInfo returns info for a connection, or nil if unknown.
func (h *Hub) ClientInfo(connID string) *types.ClientInfo {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	info := c.Info()
	return &info
}
