package hub

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vinneth/chathub/src/types"
)

// MembershipResolver resolves current conversation membership.
// Defined here to avoid circular imports with the storage package.
type MembershipResolver interface {
	ConversationMembers(ctx context.Context, conversationID string) ([]string, error)
}

// Hub is the single in-process authority for live-connection membership
// and event fan-out. All registry mutation goes through the Run loop;
// fan-out never blocks on one slow connection.
type Hub struct {
	clients map[string]*Client            // conn id -> client
	users   map[string]map[string]*Client // user id -> conn id -> client

	register   chan *Client
	unregister chan *Client
	incoming   chan inbound

	handlers  map[string]types.FrameHandler
	onOnline  []func(userID string)
	onOffline []func(userID string)

	members MembershipResolver
	mu      sync.RWMutex
	logger  zerolog.Logger
	done    chan struct{}
	stop    sync.Once
}

type inbound struct {
	from  types.Peer
	frame types.Frame
}

// New creates a hub. The resolver backs conversation broadcasts.
func New(logger zerolog.Logger, members MembershipResolver) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		users:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan inbound, 256),
		handlers:   make(map[string]types.FrameHandler),
		members:    members,
		logger:     logger.With().Str("component", "hub").Logger(),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case in := <-h.incoming:
			h.dispatch(in.from, in.frame)
		case <-h.done:
			return
		}
	}
}

// Stop halts the event loop and closes every live connection.
func (h *Hub) Stop() {
	h.stop.Do(func() { close(h.done) })

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
	h.logger.Info().Int("connections", len(clients)).Msg("hub stopped")
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ingest hands an inbound frame to the dispatch loop.
func (h *Hub) ingest(from types.Peer, frame types.Frame) {
	select {
	case h.incoming <- inbound{from: from, frame: frame}:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	set := h.users[c.UserID]
	first := len(set) == 0
	if set == nil {
		set = make(map[string]*Client)
		h.users[c.UserID] = set
	}
	set[c.ID] = c
	h.mu.Unlock()

	h.logger.Info().Str("conn_id", c.ID).Str("user_id", c.UserID).Msg("connection registered")

	if first {
		go h.fireOnline(c.UserID)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)

	last := false
	if set, ok := h.users[c.UserID]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.users, c.UserID)
			last = true
		}
	}
	h.mu.Unlock()

	c.Close()
	h.logger.Info().Str("conn_id", c.ID).Str("user_id", c.UserID).Msg("connection unregistered")

	if last {
		go h.fireOffline(c.UserID)
	}
}

func (h *Hub) dispatch(from types.Peer, frame types.Frame) {
	h.mu.RLock()
	handler, ok := h.handlers[frame.Type]
	h.mu.RUnlock()

	if !ok {
		h.logger.Debug().Str("type", frame.Type).Msg("no handler, dropping frame")
		return
	}
	if err := handler(from, frame); err != nil {
		h.logger.Warn().Err(err).
			Str("type", frame.Type).
			Str("user_id", from.UserID).
			Msg("frame handler error")
	}
}

// deliver enqueues encoded data on one client, force-closing it when the
// outbound queue is saturated so one slow consumer never stalls fan-out.
func (h *Hub) deliver(c *Client, data []byte) {
	if c.enqueue(data) {
		return
	}
	h.logger.Warn().Str("conn_id", c.ID).Str("user_id", c.UserID).
		Msg("send queue full, closing connection")
	c.Close()
	go h.Unregister(c)
}

// SendToConn sends a frame to one specific connection.
func (h *Hub) SendToConn(connID string, frame types.Frame) bool {
	data, err := frame.Encode()
	if err != nil {
		return false
	}
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	h.deliver(c, data)
	return true
}

// SendToUser fans a frame out to all of a user's live connections.
// A no-op for offline users; offline delivery is out of scope.
func (h *Hub) SendToUser(userID string, frame types.Frame) {
	h.SendToUsers([]string{userID}, frame)
}

// SendToUsers fans a frame out to every live connection of the given
// users. The frame is encoded once.
func (h *Hub) SendToUsers(userIDs []string, frame types.Frame) {
	data, err := frame.Encode()
	if err != nil {
		h.logger.Error().Err(err).Str("type", frame.Type).Msg("frame encode failed")
		return
	}

	var targets []*Client
	h.mu.RLock()
	for _, userID := range userIDs {
		for _, c := range h.users[userID] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, data)
	}
}

// BroadcastToConversation resolves current membership and fans out to
// every member except excludeUserID (pass "" to include everyone).
func (h *Hub) BroadcastToConversation(ctx context.Context, conversationID string, frame types.Frame, excludeUserID string) error {
	members, err := h.members.ConversationMembers(ctx, conversationID)
	if err != nil {
		return err
	}
	targets := members[:0]
	for _, m := range members {
		if m != excludeUserID {
			targets = append(targets, m)
		}
	}
	h.SendToUsers(targets, frame)
	return nil
}

func (h *Hub) fireOnline(userID string) {
	h.mu.RLock()
	cbs := h.onOnline
	h.mu.RUnlock()
	for _, cb := range cbs {
		cb(userID)
	}
}

func (h *Hub) fireOffline(userID string) {
	h.mu.RLock()
	cbs := h.onOffline
	h.mu.RUnlock()
	for _, cb := range cbs {
		cb(userID)
	}
}
