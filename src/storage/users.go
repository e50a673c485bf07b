package storage

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/vinneth/chathub/src/types"
)

// CreateUser persists a new user, assigning an id when absent.
func (s *Store) CreateUser(ctx context.Context, u *types.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.CreatedAt = time.Now().UTC()
	if u.Contacts == nil {
		u.Contacts = []string{}
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, userKey(u.ID), u)
	})
}

// FindUserByID returns the user record, or ErrNotFound.
func (s *Store) FindUserByID(ctx context.Context, id string) (*types.User, error) {
	var u types.User
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AddContact adds contactID to the user's contact list. Both users must exist.
func (s *Store) AddContact(ctx context.Context, userID, contactID string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var contact types.User
		if err := getJSON(txn, userKey(contactID), &contact); err != nil {
			return err
		}
		var u types.User
		if err := getJSON(txn, userKey(userID), &u); err != nil {
			return err
		}
		if lo.Contains(u.Contacts, contactID) {
			return nil
		}
		u.Contacts = append(u.Contacts, contactID)
		return setJSON(txn, userKey(userID), &u)
	})
}

// RemoveContact removes contactID from the user's contact list.
func (s *Store) RemoveContact(ctx context.Context, userID, contactID string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var u types.User
		if err := getJSON(txn, userKey(userID), &u); err != nil {
			return err
		}
		u.Contacts = lo.Without(u.Contacts, contactID)
		return setJSON(txn, userKey(userID), &u)
	})
}

// GetContacts resolves the user's contact list to user records.
// Dangling contact ids are skipped.
func (s *Store) GetContacts(ctx context.Context, userID string) ([]types.User, error) {
	u, err := s.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	contacts := make([]types.User, 0, len(u.Contacts))
	err = s.view(ctx, func(txn *badger.Txn) error {
		for _, id := range u.Contacts {
			var contact types.User
			if err := getJSON(txn, userKey(id), &contact); err != nil {
				if err == ErrNotFound {
					continue
				}
				return err
			}
			contacts = append(contacts, contact)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contacts, nil
}
