package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/vinneth/chathub/src/hub"
	"github.com/vinneth/chathub/src/storage"
	"github.com/vinneth/chathub/src/types"
)

// Store is the slice of the storage collaborator the pipeline needs.
type Store interface {
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
	CreateMessage(ctx context.Context, msg *types.ChatMessage) error
	FindMessageByID(ctx context.Context, id string) (*types.ChatMessage, error)
	MarkMessageAsRead(ctx context.Context, messageID, readerID string) (*types.ChatMessage, error)
	MarkConversationAsRead(ctx context.Context, conversationID, readerID string) error
	FindUserByID(ctx context.Context, id string) (*types.User, error)
}

// Pipeline validates, persists, and fans out inbound chat events. Its
// handlers run inside the hub's serialized dispatch, so persistence and
// broadcast of one message appear atomic relative to other events on
// the same conversation.
type Pipeline struct {
	hub      *hub.Hub
	store    Store
	validate *validator.Validate
	timeout  time.Duration
	logger   zerolog.Logger
}

func New(h *hub.Hub, store Store, timeout time.Duration, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		hub:      h,
		store:    store,
		validate: validator.New(),
		timeout:  timeout,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// Register wires the pipeline's handlers into the hub.
func (p *Pipeline) Register() {
	p.hub.Handle(types.EventPing, p.handlePing)
	p.hub.Handle(types.EventMessageSend, p.handleSend)
	p.hub.Handle(types.EventTypingStart, p.typingHandler(true))
	p.hub.Handle(types.EventTypingStop, p.typingHandler(false))
	p.hub.Handle(types.EventMessageRead, p.handleRead)
}

func (p *Pipeline) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), p.timeout)
}

func (p *Pipeline) decode(frame types.Frame, out any) error {
	if err := json.Unmarshal(frame.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", frame.Type, err)
	}
	if err := p.validate.Struct(out); err != nil {
		return fmt.Errorf("invalid %s payload: %w", frame.Type, err)
	}
	return nil
}

func (p *Pipeline) handlePing(from types.Peer, _ types.Frame) error {
	pong, err := types.NewFrame(types.EventPong, nil)
	if err != nil {
		return err
	}
	p.hub.SendToConn(from.ConnID, pong)
	return nil
}

// handleSend persists an inbound message and fans it out. The sender
// gets message:sent with its temp id once the message is durable; the
// other members get message:new. A persistence failure produces nothing
// on the wire, so the missing ack is the client's failure signal.
func (p *Pipeline) handleSend(from types.Peer, frame types.Frame) error {
	var payload types.MessageSendPayload
	if err := p.decode(frame, &payload); err != nil {
		return err
	}

	ctx, cancel := p.ctx()
	defer cancel()

	member, err := p.store.IsMember(ctx, payload.ConversationID, from.UserID)
	if err != nil {
		return err
	}
	if !member {
		// Not authorized; drop silently.
		p.logger.Debug().Str("user_id", from.UserID).
			Str("conversation_id", payload.ConversationID).
			Msg("message:send from non-member dropped")
		return nil
	}

	msg := &types.ChatMessage{
		ConversationID: payload.ConversationID,
		SenderID:       from.UserID,
		Content:        payload.Content,
	}
	if err := p.store.CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	ack, err := types.NewFrame(types.EventMessageSent, types.MessageSentPayload{
		TempID:    payload.TempID,
		MessageID: msg.ID,
		Status:    msg.Status,
	})
	if err != nil {
		return err
	}
	p.hub.SendToConn(from.ConnID, ack)

	sender := p.senderPublic(ctx, from.UserID)
	broadcast, err := types.NewFrame(types.EventMessageNew, types.MessageNewPayload{
		Message: *msg,
		Sender:  sender,
	})
	if err != nil {
		return err
	}
	return p.hub.BroadcastToConversation(ctx, payload.ConversationID, broadcast, from.UserID)
}

func (p *Pipeline) senderPublic(ctx context.Context, userID string) *types.UserPublic {
	u, err := p.store.FindUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn().Err(err).Str("user_id", userID).Msg("sender lookup failed")
		}
		return nil
	}
	public := u.Public(p.hub.IsOnline(userID))
	return &public
}

func (p *Pipeline) typingHandler(typing bool) types.FrameHandler {
	eventType := types.EventUserTypingStop
	if typing {
		eventType = types.EventUserTyping
	}
	return func(from types.Peer, frame types.Frame) error {
		var payload types.TypingPayload
		if err := p.decode(frame, &payload); err != nil {
			return err
		}

		ctx, cancel := p.ctx()
		defer cancel()

		member, err := p.store.IsMember(ctx, payload.ConversationID, from.UserID)
		if err != nil {
			return err
		}
		if !member {
			return nil
		}

		out, err := types.NewFrame(eventType, types.TypingEventPayload{
			ConversationID: payload.ConversationID,
			UserID:         from.UserID,
		})
		if err != nil {
			return err
		}
		return p.hub.BroadcastToConversation(ctx, payload.ConversationID, out, from.UserID)
	}
}

// handleRead processes read receipts. With a message id the specific
// message transitions to read and the original sender is notified; with
// no message id the whole conversation is caught up without per-message
// notifications.
func (p *Pipeline) handleRead(from types.Peer, frame types.Frame) error {
	var payload types.MessageReadPayload
	if err := p.decode(frame, &payload); err != nil {
		return err
	}

	ctx, cancel := p.ctx()
	defer cancel()

	member, err := p.store.IsMember(ctx, payload.ConversationID, from.UserID)
	if err != nil {
		return err
	}
	if !member {
		return nil
	}

	if payload.MessageID == "" {
		return p.store.MarkConversationAsRead(ctx, payload.ConversationID, from.UserID)
	}

	msg, err := p.store.MarkMessageAsRead(ctx, payload.MessageID, from.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if msg.SenderID == from.UserID {
		return nil
	}

	status, err := types.NewFrame(types.EventMessageStatus, types.MessageStatusPayload{
		MessageID: msg.ID,
		Status:    msg.Status,
		ReadBy:    from.UserID,
	})
	if err != nil {
		return err
	}
	p.hub.SendToUser(msg.SenderID, status)
	return nil
}
