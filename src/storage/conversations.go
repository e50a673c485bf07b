package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/vinneth/chathub/src/types"
)

// FindConversationByID returns the conversation record, or ErrNotFound.
func (s *Store) FindConversationByID(ctx context.Context, id string) (*types.Conversation, error) {
	var c types.Conversation
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, convKey(id), &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ConversationMembers returns the current member set of a conversation.
func (s *Store) ConversationMembers(ctx context.Context, id string) ([]string, error) {
	c, err := s.FindConversationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Members, nil
}

// IsMember reports whether the user belongs to the conversation.
func (s *Store) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	c, err := s.FindConversationByID(ctx, conversationID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.IsMember(userID), nil
}

// GetOrCreatePrivateConversation finds the private conversation for an
// unordered user pair, creating it when absent. The pair index lookup
// and the insert run in one transaction, so concurrent callers converge
// on a single record.
func (s *Store) GetOrCreatePrivateConversation(ctx context.Context, userA, userB string) (*types.Conversation, error) {
	var conv types.Conversation
	err := s.update(ctx, func(txn *badger.Txn) error {
		var existingID string
		err := getJSON(txn, pairKey(userA, userB), &existingID)
		if err == nil {
			return getJSON(txn, convKey(existingID), &conv)
		}
		if err != ErrNotFound {
			return err
		}

		now := time.Now().UTC()
		conv = types.Conversation{
			ID:        uuid.New().String(),
			Type:      types.ConversationPrivate,
			Members:   []string{userA, userB},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := setJSON(txn, convKey(conv.ID), &conv); err != nil {
			return err
		}
		return setJSON(txn, pairKey(userA, userB), conv.ID)
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateGroup creates a group conversation. The creator becomes admin
// and is always a member; duplicate member ids are collapsed.
func (s *Store) CreateGroup(ctx context.Context, name, icon, adminID string, memberIDs []string) (*types.Conversation, error) {
	members := lo.Uniq(append([]string{adminID}, memberIDs...))
	if len(members) < 2 {
		return nil, errors.New("group needs at least one member beyond the creator")
	}

	now := time.Now().UTC()
	conv := &types.Conversation{
		ID:        uuid.New().String(),
		Type:      types.ConversationGroup,
		Members:   members,
		GroupName: name,
		GroupIcon: icon,
		Admin:     adminID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, convKey(conv.ID), conv)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// UpdateGroup updates group name and icon; empty fields are left unchanged.
func (s *Store) UpdateGroup(ctx context.Context, conversationID, name, icon string) (*types.Conversation, error) {
	var conv types.Conversation
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, convKey(conversationID), &conv); err != nil {
			return err
		}
		if conv.Type != types.ConversationGroup {
			return ErrNotGroup
		}
		if name != "" {
			conv.GroupName = name
		}
		if icon != "" {
			conv.GroupIcon = icon
		}
		conv.UpdatedAt = time.Now().UTC()
		return setJSON(txn, convKey(conversationID), &conv)
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// AddGroupMember adds a user to a group; a no-op when already a member.
func (s *Store) AddGroupMember(ctx context.Context, conversationID, userID string) (*types.Conversation, error) {
	var conv types.Conversation
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, convKey(conversationID), &conv); err != nil {
			return err
		}
		if conv.Type != types.ConversationGroup {
			return ErrNotGroup
		}
		if conv.IsMember(userID) {
			return nil
		}
		conv.Members = append(conv.Members, userID)
		conv.UpdatedAt = time.Now().UTC()
		return setJSON(txn, convKey(conversationID), &conv)
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// RemoveGroupMember removes a user from a group. The admin must remain
// a member, so removing the admin fails with ErrAdminRemoval.
func (s *Store) RemoveGroupMember(ctx context.Context, conversationID, userID string) (*types.Conversation, error) {
	var conv types.Conversation
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, convKey(conversationID), &conv); err != nil {
			return err
		}
		if conv.Type != types.ConversationGroup {
			return ErrNotGroup
		}
		if userID == conv.Admin {
			return ErrAdminRemoval
		}
		conv.Members = lo.Without(conv.Members, userID)
		conv.UpdatedAt = time.Now().UTC()
		return setJSON(txn, convKey(conversationID), &conv)
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
