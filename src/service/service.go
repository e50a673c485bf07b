package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vinneth/chathub/src/hub"
	"github.com/vinneth/chathub/src/storage"
	"github.com/vinneth/chathub/src/types"
)

var ErrNotAdmin = errors.New("only the group admin may do this")

// Service is the high-level API the external CRUD layer calls into:
// group lifecycle with real-time fan-out, direct sends, and hub stats.
type Service struct {
	hub     *hub.Hub
	store   *storage.Store
	timeout time.Duration
	logger  zerolog.Logger
}

func New(h *hub.Hub, store *storage.Store, timeout time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		hub:     h,
		store:   store,
		timeout: timeout,
		logger:  logger.With().Str("component", "service").Logger(),
	}
}

func (s *Service) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

// CreateGroup creates a group conversation with the actor as admin and
// notifies every other member with group:created.
func (s *Service) CreateGroup(ctx context.Context, actorID, name, icon string, memberIDs []string) (*types.Conversation, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	conv, err := s.store.CreateGroup(ctx, name, icon, actorID, memberIDs)
	if err != nil {
		return nil, err
	}
	s.notifyGroup(conv, types.EventGroupCreated, actorID)
	return conv, nil
}

// UpdateGroup updates group name/icon. Admin only.
func (s *Service) UpdateGroup(ctx context.Context, actorID, conversationID, name, icon string) (*types.Conversation, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	if err := s.requireAdmin(ctx, conversationID, actorID); err != nil {
		return nil, err
	}
	conv, err := s.store.UpdateGroup(ctx, conversationID, name, icon)
	if err != nil {
		return nil, err
	}
	s.notifyGroup(conv, types.EventGroupUpdated, actorID)
	return conv, nil
}

// AddMember adds a user to a group and notifies current members,
// including the newcomer. Admin only.
func (s *Service) AddMember(ctx context.Context, actorID, conversationID, userID string) (*types.Conversation, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	if err := s.requireAdmin(ctx, conversationID, actorID); err != nil {
		return nil, err
	}
	if _, err := s.store.FindUserByID(ctx, userID); err != nil {
		return nil, err
	}
	conv, err := s.store.AddGroupMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	s.notifyMembership(conv, types.EventMemberAdded, userID, actorID)
	return conv, nil
}

// RemoveMember removes a user from a group. Admin only; the admin
// themselves can never be removed. The removed user is notified too.
func (s *Service) RemoveMember(ctx context.Context, actorID, conversationID, userID string) (*types.Conversation, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	if err := s.requireAdmin(ctx, conversationID, actorID); err != nil {
		return nil, err
	}
	conv, err := s.store.RemoveGroupMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	s.notifyMembership(conv, types.EventMemberRemoved, userID, actorID)
	frame, err := types.NewFrame(types.EventMemberRemoved, types.MembershipPayload{
		ConversationID: conv.ID,
		UserID:         userID,
	})
	if err == nil {
		s.hub.SendToUser(userID, frame)
	}
	return conv, nil
}

// GetOrCreatePrivateConversation exposes the idempotent pair lookup.
func (s *Service) GetOrCreatePrivateConversation(ctx context.Context, userA, userB string) (*types.Conversation, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return s.store.GetOrCreatePrivateConversation(ctx, userA, userB)
}

// History returns up to limit recent messages of a conversation in
// chronological order. Members only.
func (s *Service) History(ctx context.Context, actorID, conversationID string, limit int) ([]types.ChatMessage, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	member, err := s.store.IsMember(ctx, conversationID, actorID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, storage.ErrNotFound
	}
	return s.store.Messages(ctx, conversationID, limit)
}

// UnreadCount counts messages the actor has not read in a conversation.
func (s *Service) UnreadCount(ctx context.Context, actorID, conversationID string) (int, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return s.store.UnreadCount(ctx, conversationID, actorID)
}

// SendToUser pushes one frame to all of a user's live connections.
func (s *Service) SendToUser(userID string, eventType string, payload any) error {
	frame, err := types.NewFrame(eventType, payload)
	if err != nil {
		return err
	}
	s.hub.SendToUser(userID, frame)
	return nil
}

// Stats describes the hub's current load for the info endpoint.
type Stats struct {
	Connections int `json:"connections"`
	OnlineUsers int `json:"online_users"`
}

func (s *Service) Stats() Stats {
	return Stats{
		Connections: s.hub.ClientCount(),
		OnlineUsers: s.hub.OnlineUserCount(),
	}
}

func (s *Service) requireAdmin(ctx context.Context, conversationID, actorID string) error {
	conv, err := s.store.FindConversationByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Admin != actorID {
		return ErrNotAdmin
	}
	return nil
}

func (s *Service) notifyGroup(conv *types.Conversation, eventType, excludeUserID string) {
	frame, err := types.NewFrame(eventType, types.GroupPayload{Group: *conv})
	if err != nil {
		s.logger.Error().Err(err).Str("type", eventType).Msg("group frame encode failed")
		return
	}
	targets := lo.Without(conv.Members, excludeUserID)
	s.hub.SendToUsers(targets, frame)
}

func (s *Service) notifyMembership(conv *types.Conversation, eventType, userID, excludeUserID string) {
	frame, err := types.NewFrame(eventType, types.MembershipPayload{
		ConversationID: conv.ID,
		UserID:         userID,
	})
	if err != nil {
		return
	}
	targets := lo.Without(conv.Members, excludeUserID)
	s.hub.SendToUsers(targets, frame)
}
