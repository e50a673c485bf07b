package storage

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/vinneth/chathub/src/types"
)

// CreateMessage persists a new message with status sent and the sender
// as its only reader, and bumps the conversation's updated_at. The
// message id is assigned here; it is distinct from any client temp id.
func (s *Store) CreateMessage(ctx context.Context, msg *types.ChatMessage) error {
	msg.ID = uuid.New().String()
	msg.Status = types.StatusSent
	msg.ReadBy = []string{msg.SenderID}
	msg.CreatedAt = time.Now().UTC()

	key := msgKey(msg.ConversationID, msg.CreatedAt, msg.ID)
	return s.update(ctx, func(txn *badger.Txn) error {
		var conv types.Conversation
		if err := getJSON(txn, convKey(msg.ConversationID), &conv); err != nil {
			return err
		}
		if err := setJSON(txn, key, msg); err != nil {
			return err
		}
		if err := txn.Set(msgIdxKey(msg.ID), key); err != nil {
			return err
		}
		conv.UpdatedAt = msg.CreatedAt
		return setJSON(txn, convKey(msg.ConversationID), &conv)
	})
}

// FindMessageByID returns a message via the id index, or ErrNotFound.
func (s *Store) FindMessageByID(ctx context.Context, id string) (*types.ChatMessage, error) {
	var msg types.ChatMessage
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(msgIdxKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var key []byte
		if err := item.Value(func(val []byte) error {
			key = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, key, &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkMessageAsRead records that readerID has read the message and
// transitions its status to read. Status never regresses; a sender
// reading their own message is a no-op. Returns the updated message.
func (s *Store) MarkMessageAsRead(ctx context.Context, messageID, readerID string) (*types.ChatMessage, error) {
	var msg types.ChatMessage
	err := s.update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(msgIdxKey(messageID))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var key []byte
		if err := item.Value(func(val []byte) error {
			key = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		if err := getJSON(txn, key, &msg); err != nil {
			return err
		}
		if msg.SenderID == readerID {
			return nil
		}
		changed := false
		if !lo.Contains(msg.ReadBy, readerID) {
			msg.ReadBy = append(msg.ReadBy, readerID)
			changed = true
		}
		if msg.Status.Before(types.StatusRead) {
			msg.Status = types.StatusRead
			changed = true
		}
		if !changed {
			return nil
		}
		return setJSON(txn, key, &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkConversationAsRead adds readerID to the reader set of every
// message in the conversation authored by others. Conversation-level
// catch-up does not emit per-message notifications, so per-message
// status is left to targeted read receipts.
func (s *Store) MarkConversationAsRead(ctx context.Context, conversationID, readerID string) error {
	prefix := msgPrefix(conversationID)
	return s.update(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		type pending struct {
			key []byte
			msg types.ChatMessage
		}
		var updates []pending
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var msg types.ChatMessage
			if err := item.Value(func(val []byte) error {
				return decodeJSON(val, &msg)
			}); err != nil {
				return err
			}
			if msg.SenderID == readerID || lo.Contains(msg.ReadBy, readerID) {
				continue
			}
			msg.ReadBy = append(msg.ReadBy, readerID)
			updates = append(updates, pending{key: item.KeyCopy(nil), msg: msg})
		}
		for _, u := range updates {
			if err := setJSON(txn, u.key, &u.msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateMessageStatus advances a message's delivery status. Regressions
// are ignored so read never reverts to sent or delivered.
func (s *Store) UpdateMessageStatus(ctx context.Context, messageID string, status types.MessageStatus) (*types.ChatMessage, error) {
	var msg types.ChatMessage
	err := s.update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(msgIdxKey(messageID))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var key []byte
		if err := item.Value(func(val []byte) error {
			key = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		if err := getJSON(txn, key, &msg); err != nil {
			return err
		}
		if !msg.Status.Before(status) {
			return nil
		}
		msg.Status = status
		return setJSON(txn, key, &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Messages returns up to limit most recent messages of a conversation
// in chronological order.
func (s *Store) Messages(ctx context.Context, conversationID string, limit int) ([]types.ChatMessage, error) {
	prefix := msgPrefix(conversationID)
	var messages []types.ChatMessage
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the newest key for this conversation, then walk back.
		seek := append(append([]byte(nil), prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			var msg types.ChatMessage
			if err := it.Item().Value(func(val []byte) error {
				return decodeJSON(val, &msg)
			}); err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	lo.Reverse(messages)
	return messages, nil
}

// UnreadCount counts messages in a conversation authored by others that
// the user has not read.
func (s *Store) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	prefix := msgPrefix(conversationID)
	count := 0
	err := s.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg types.ChatMessage
			if err := it.Item().Value(func(val []byte) error {
				return decodeJSON(val, &msg)
			}); err != nil {
				return err
			}
			if msg.SenderID != userID && !lo.Contains(msg.ReadBy, userID) {
				count++
			}
		}
		return nil
	})
	return count, err
}
