package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinneth/chathub/src/hub"
	"github.com/vinneth/chathub/src/pipeline"
	"github.com/vinneth/chathub/src/storage"
	"github.com/vinneth/chathub/src/types"
)

// fakeStore is an in-memory stand-in for the storage layer. It backs
// both the pipeline and the hub's membership resolution.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]*types.User
	convs     map[string]*types.Conversation
	msgs      map[string]*types.ChatMessage
	caughtUp  []string // "<conversation>/<reader>" per catch-up call
	failWrite bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]*types.User),
		convs: make(map[string]*types.Conversation),
		msgs:  make(map[string]*types.ChatMessage),
	}
}

func (s *fakeStore) addUser(id string, contacts ...string) {
	s.mu.Lock()
	s.users[id] = &types.User{ID: id, Name: "name-" + id, Contacts: contacts}
	s.mu.Unlock()
}

func (s *fakeStore) addConversation(id string, members ...string) {
	s.mu.Lock()
	s.convs[id] = &types.Conversation{ID: id, Type: types.ConversationPrivate, Members: members}
	s.mu.Unlock()
}

func (s *fakeStore) ConversationMembers(_ context.Context, conversationID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]string(nil), conv.Members...), nil
}

func (s *fakeStore) IsMember(_ context.Context, conversationID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return false, nil
	}
	return conv.IsMember(userID), nil
}

func (s *fakeStore) CreateMessage(_ context.Context, msg *types.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite {
		return errors.New("write failed")
	}
	msg.ID = uuid.New().String()
	msg.Status = types.StatusSent
	msg.ReadBy = []string{msg.SenderID}
	msg.CreatedAt = time.Now().UTC()
	stored := *msg
	s.msgs[msg.ID] = &stored
	return nil
}

func (s *fakeStore) FindMessageByID(_ context.Context, id string) (*types.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.msgs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

func (s *fakeStore) MarkMessageAsRead(_ context.Context, messageID, readerID string) (*types.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.msgs[messageID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if readerID != msg.SenderID {
		msg.ReadBy = append(msg.ReadBy, readerID)
		if msg.Status.Before(types.StatusRead) {
			msg.Status = types.StatusRead
		}
	}
	copied := *msg
	return &copied, nil
}

func (s *fakeStore) MarkConversationAsRead(_ context.Context, conversationID, readerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caughtUp = append(s.caughtUp, conversationID+"/"+readerID)
	return nil
}

func (s *fakeStore) FindUserByID(_ context.Context, id string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func newTestPipeline(t *testing.T) (*hub.Hub, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	h := hub.New(zerolog.Nop(), store)
	pipeline.New(h, store, time.Second, zerolog.Nop()).Register()
	go h.Run()
	t.Cleanup(h.Stop)
	return h, store
}

func sendFrame(t *testing.T, conn *mockConn, eventType string, payload any) {
	t.Helper()
	frame, err := types.NewFrame(eventType, payload)
	require.NoError(t, err)
	data, err := frame.Encode()
	require.NoError(t, err)
	conn.reads <- data
}

func TestPingAnswersOnSameConnection(t *testing.T) {
	h, _ := newTestPipeline(t)
	_, c1 := connect(t, h, "conn-1", "alice")
	_, c2 := connect(t, h, "conn-2", "alice")

	sendFrame(t, c1, types.EventPing, nil)

	waitFor(t, func() bool { return len(c1.framesOfType(t, types.EventPong)) == 1 })
	assert.Empty(t, c2.framesOfType(t, types.EventPong))
}

func TestMessageSendAcksSenderAndNotifiesMembers(t *testing.T) {
	h, store := newTestPipeline(t)
	store.addUser("alice")
	store.addUser("bob")
	store.addConversation("conv-1", "alice", "bob")

	_, aliceConn := connect(t, h, "conn-a", "alice")
	_, bobConn := connect(t, h, "conn-b", "bob")

	sendFrame(t, aliceConn, types.EventMessageSend, types.MessageSendPayload{
		ConversationID: "conv-1",
		Content:        "hello bob",
		TempID:         "tmp-42",
	})

	waitFor(t, func() bool { return len(aliceConn.framesOfType(t, types.EventMessageSent)) == 1 })
	ack := mustPayload[types.MessageSentPayload](t, aliceConn.framesOfType(t, types.EventMessageSent)[0])
	assert.Equal(t, "tmp-42", ack.TempID)
	assert.NotEmpty(t, ack.MessageID)
	assert.Equal(t, types.StatusSent, ack.Status)

	waitFor(t, func() bool { return len(bobConn.framesOfType(t, types.EventMessageNew)) == 1 })
	incoming := mustPayload[types.MessageNewPayload](t, bobConn.framesOfType(t, types.EventMessageNew)[0])
	assert.Equal(t, ack.MessageID, incoming.Message.ID)
	assert.Equal(t, "hello bob", incoming.Message.Content)
	assert.Equal(t, "alice", incoming.Message.SenderID)
	require.NotNil(t, incoming.Sender)
	assert.Equal(t, "name-alice", incoming.Sender.Name)
	assert.True(t, incoming.Sender.IsOnline)

	// the sender never receives its own broadcast
	assert.Empty(t, aliceConn.framesOfType(t, types.EventMessageNew))
}

func TestMessageSendFromNonMemberDropped(t *testing.T) {
	h, store := newTestPipeline(t)
	store.addConversation("conv-1", "alice", "bob")

	_, malloryConn := connect(t, h, "conn-m", "mallory")
	_, bobConn := connect(t, h, "conn-b", "bob")

	sendFrame(t, malloryConn, types.EventMessageSend, types.MessageSendPayload{
		ConversationID: "conv-1",
		Content:        "sneaky",
	})

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, malloryConn.frames(t))
	assert.Empty(t, bobConn.frames(t))
	store.mu.Lock()
	assert.Empty(t, store.msgs)
	store.mu.Unlock()
}

func TestMessageSendEmptyContentRejected(t *testing.T) {
	h, store := newTestPipeline(t)
	store.addConversation("conv-1", "alice", "bob")

	_, aliceConn := connect(t, h, "conn-a", "alice")

	sendFrame(t, aliceConn, types.EventMessageSend, types.MessageSendPayload{
		ConversationID: "conv-1",
	})

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, aliceConn.frames(t))
	store.mu.Lock()
	assert.Empty(t, store.msgs)
	store.mu.Unlock()
}

func TestMessageSendPersistFailureProducesNoFrames(t *testing.T) {
	h, store := newTestPipeline(t)
	store.addConversation("conv-1", "alice", "bob")
	store.failWrite = true

	_, aliceConn := connect(t, h, "conn-a", "alice")
	_, bobConn := connect(t, h, "conn-b", "bob")

	sendFrame(t, aliceConn, types.EventMessageSend, types.MessageSendPayload{
		ConversationID: "conv-1",
		Content:        "doomed",
	})

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, aliceConn.frames(t))
	assert.Empty(t, bobConn.frames(t))
}

func TestTypingRelayedToOtherMembers(t *testing.T) {
	h, store := newTestPipeline(t)
	store.addConversation("conv-1", "alice", "bob")

	_, aliceConn := connect(t, h, "conn-a", "alice")
	_, bobConn := connect(t, h, "conn-b", "bob")

	sendFrame(t, aliceConn, types.EventTypingStart, types.TypingPayload{ConversationID: "conv-1"})
	waitFor(t, func() bool { return len(bobConn.framesOfType(t, types.EventUserTyping)) == 1 })
	typing := mustPayload[types.TypingEventPayload](t, bobConn.framesOfType(t, types.EventUserTyping)[0])
	assert.Equal(t, "alice", typing.UserID)
	assert.Equal(t, "conv-1", typing.ConversationID)

	sendFrame(t, aliceConn, types.EventTypingStop, types.TypingPayload{ConversationID: "conv-1"})
	waitFor(t, func() bool { return len(bobConn.framesOfType(t, types.EventUserTypingStop)) == 1 })

	assert.Empty(t, aliceConn.framesOfType(t, types.EventUserTyping))
}

func TestReadReceiptNotifiesSender(t *testing.T) {
	h, store := newTestPipeline(t)
	store.addConversation("conv-1", "alice", "bob")

	msg := &types.ChatMessage{ConversationID: "conv-1", SenderID: "alice", Content: "seen yet?"}
	require.NoError(t, store.CreateMessage(context.Background(), msg))

	_, aliceConn := connect(t, h, "conn-a", "alice")
	_, bobConn := connect(t, h, "conn-b", "bob")

	sendFrame(t, bobConn, types.EventMessageRead, types.MessageReadPayload{
		ConversationID: "conv-1",
		MessageID:      msg.ID,
	})

	waitFor(t, func() bool { return len(aliceConn.framesOfType(t, types.EventMessageStatus)) == 1 })
	status := mustPayload[types.MessageStatusPayload](t, aliceConn.framesOfType(t, types.EventMessageStatus)[0])
	assert.Equal(t, msg.ID, status.MessageID)
	assert.Equal(t, types.StatusRead, status.Status)
	assert.Equal(t, "bob", status.ReadBy)

	stored, err := store.FindMessageByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRead, stored.Status)
	assert.Contains(t, stored.ReadBy, "bob")
}

func TestSenderSelfReadProducesNoNotification(t *testing.T) {
	h, store := newTestPipeline(t)
	store.addConversation("conv-1", "alice", "bob")

	msg := &types.ChatMessage{ConversationID: "conv-1", SenderID: "alice", Content: "mine"}
	require.NoError(t, store.CreateMessage(context.Background(), msg))

	_, aliceConn := connect(t, h, "conn-a", "alice")

	sendFrame(t, aliceConn, types.EventMessageRead, types.MessageReadPayload{
		ConversationID: "conv-1",
		MessageID:      msg.ID,
	})

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, aliceConn.framesOfType(t, types.EventMessageStatus))

	stored, err := store.FindMessageByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSent, stored.Status)
}

func TestConversationCatchupIsSilent(t *testing.T) {
	h, store := newTestPipeline(t)
	store.addConversation("conv-1", "alice", "bob")

	msg := &types.ChatMessage{ConversationID: "conv-1", SenderID: "alice", Content: "backlog"}
	require.NoError(t, store.CreateMessage(context.Background(), msg))

	_, aliceConn := connect(t, h, "conn-a", "alice")
	_, bobConn := connect(t, h, "conn-b", "bob")

	sendFrame(t, bobConn, types.EventMessageRead, types.MessageReadPayload{ConversationID: "conv-1"})

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.caughtUp) == 1
	})
	store.mu.Lock()
	assert.Equal(t, "conv-1/bob", store.caughtUp[0])
	store.mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, aliceConn.framesOfType(t, types.EventMessageStatus))
	assert.Empty(t, bobConn.framesOfType(t, types.EventMessageStatus))
}
