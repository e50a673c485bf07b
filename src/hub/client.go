package hub

import (
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/vinneth/chathub/src/types"
)

const (
	// writeWait is the time allowed to write one frame to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed without any inbound traffic before
	// the connection is considered dead.
	pongWait = 60 * time.Second

	// pingPeriod is the keepalive probe interval; must be below pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps one inbound frame.
	maxMessageSize = 4096

	// sendQueueSize bounds the outbound queue. A connection that lets
	// the queue fill up is treated as unresponsive and closed.
	sendQueueSize = 256
)

// Client owns one WebSocket connection for one authenticated user.
// The hub holds weak references to clients; the transport itself is
// owned and closed by the client's pumps.
type Client struct {
	ID     string
	UserID string

	conn        types.Conn
	hub         *Hub
	send        chan []byte
	connectedAt time.Time
	logger      zerolog.Logger

	mu           sync.Mutex
	lastActivity time.Time
	closed       bool
	done         chan struct{}
}

// NewClient wraps an authenticated connection. The caller registers it
// with the hub and starts both pumps.
func NewClient(id, userID string, conn types.Conn, h *Hub, logger zerolog.Logger) *Client {
	now := time.Now()
	return &Client{
		ID:           id,
		UserID:       userID,
		conn:         conn,
		hub:          h,
		send:         make(chan []byte, sendQueueSize),
		connectedAt:  now,
		lastActivity: now,
		logger:       logger.With().Str("conn_id", id).Str("user_id", userID).Logger(),
		done:         make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.ClientInfo{
		ID:           c.ID,
		UserID:       c.UserID,
		ConnectedAt:  c.connectedAt,
		LastActivity: c.lastActivity,
	}
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// ReadPump reads frames from the connection and hands them to the hub.
// It blocks until the connection dies and then triggers the single
// unregister for this client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.touch()
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		frame, err := types.DecodeFrame(data)
		if err != nil || frame.Type == "" {
			// Malformed frames are dropped, not fatal.
			c.logger.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.hub.ingest(types.Peer{ConnID: c.ID, UserID: c.UserID}, frame)
	}
}

// WritePump drains the outbound queue to the wire and sends keepalive
// probes. It owns the connection close on the write side.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}

// Close signals both pumps to stop. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// enqueue attempts a non-blocking send. False means the outbound queue
// is saturated and the client must be force-closed.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
