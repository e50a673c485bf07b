package tests

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vinneth/chathub/src/hub"
	"github.com/vinneth/chathub/src/types"
)

// mockConn implements types.Conn without a real WebSocket.
type mockConn struct {
	mu       sync.Mutex
	written  [][]byte
	reads    chan []byte
	stall    chan struct{} // non-nil blocks writes until closed
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		reads:    make(chan []byte, 16),
		closedCh: make(chan struct{}),
	}
}

func newStalledConn() *mockConn {
	c := newMockConn()
	c.stall = make(chan struct{})
	return c
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-m.reads:
		return 1, data, nil
	case <-m.closedCh:
		return 0, nil, errors.New("connection closed")
	}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	if m.stall != nil {
		select {
		case <-m.stall:
		case <-m.closedCh:
			return errors.New("connection closed")
		}
	}
	if messageType != 1 { // record text frames only
		return nil
	}
	m.mu.Lock()
	m.written = append(m.written, append([]byte(nil), data...))
	m.mu.Unlock()
	return nil
}

func (m *mockConn) SetReadDeadline(time.Time) error   { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error  { return nil }
func (m *mockConn) SetReadLimit(int64)                {}
func (m *mockConn) SetPongHandler(func(string) error) {}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

// frames decodes everything written to the connection so far.
func (m *mockConn) frames(t *testing.T) []types.Frame {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Frame, 0, len(m.written))
	for _, data := range m.written {
		f, err := types.DecodeFrame(data)
		if err != nil {
			t.Fatalf("wrote undecodable frame: %v", err)
		}
		out = append(out, f)
	}
	return out
}

func (m *mockConn) framesOfType(t *testing.T, frameType string) []types.Frame {
	t.Helper()
	var out []types.Frame
	for _, f := range m.frames(t) {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

// stubResolver is an in-memory conversation membership table.
type stubResolver struct {
	mu      sync.Mutex
	members map[string][]string
}

func newStubResolver() *stubResolver {
	return &stubResolver{members: make(map[string][]string)}
}

func (r *stubResolver) set(conversationID string, members ...string) {
	r.mu.Lock()
	r.members[conversationID] = members
	r.mu.Unlock()
}

func (r *stubResolver) ConversationMembers(_ context.Context, conversationID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.members[conversationID]
	if !ok {
		return nil, errors.New("conversation not found")
	}
	return append([]string(nil), members...), nil
}

func newTestHub(t *testing.T) (*hub.Hub, *stubResolver) {
	t.Helper()
	resolver := newStubResolver()
	h := hub.New(zerolog.Nop(), resolver)
	go h.Run()
	t.Cleanup(h.Stop)
	return h, resolver
}

// connect registers a client with running pumps over a mock connection.
func connect(t *testing.T, h *hub.Hub, connID, userID string) (*hub.Client, *mockConn) {
	t.Helper()
	conn := newMockConn()
	client := hub.NewClient(connID, userID, conn, h, zerolog.Nop())
	h.Register(client)
	go client.WritePump()
	go client.ReadPump()
	waitFor(t, func() bool { return h.ClientInfo(connID) != nil })
	return client, conn
}

// waitFor polls until cond holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func mustPayload[T any](t *testing.T, f types.Frame) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(f.Payload, &v); err != nil {
		t.Fatalf("decode %s payload: %v", f.Type, err)
	}
	return v
}
