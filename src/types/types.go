package types

import (
	"encoding/json"
	"time"
)

// Inbound frame types.
const (
	EventPing        = "ping"
	EventMessageSend = "message:send"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
	EventMessageRead = "message:read"
)

// Outbound frame types.
const (
	EventPong           = "pong"
	EventMessageSent    = "message:sent"
	EventMessageNew     = "message:new"
	EventMessageStatus  = "message:status"
	EventUserTyping     = "user:typing"
	EventUserTypingStop = "user:typing_stop"
	EventUserOnline     = "user:online"
	EventUserOffline    = "user:offline"
	EventGroupCreated   = "group:created"
	EventGroupUpdated   = "group:updated"
	EventMemberAdded    = "group:member_added"
	EventMemberRemoved  = "group:member_removed"
	EventError          = "error"
)

// Frame is one JSON message on the wire: a type tag plus a payload object.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame builds a frame with the payload serialized in place.
func NewFrame(eventType string, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Type: eventType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: eventType, Payload: raw}, nil
}

// Encode serializes the frame for the wire.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame parses a raw inbound frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Peer identifies the connection an inbound frame arrived on.
type Peer struct {
	ConnID string
	UserID string
}

// FrameHandler processes one inbound frame inside the hub's dispatch loop.
type FrameHandler func(from Peer, frame Frame) error

// Conn abstracts a WebSocket connection for testability.
// *websocket.Conn from fasthttp/websocket satisfies it directly.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// ClientInfo holds metadata about a connected client.
type ClientInfo struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}
