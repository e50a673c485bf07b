package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrAdminRemoval is returned when a caller tries to remove a group's
	// admin; the admin must always remain a member.
	ErrAdminRemoval = errors.New("group admin cannot be removed")

	// ErrNotGroup is returned for group operations on a private conversation.
	ErrNotGroup = errors.New("conversation is not a group")
)

// Store is the Badger-backed storage collaborator for users,
// conversations, and messages.
//
// Key layout:
//
//	user:<id>                       user record
//	conv:<id>                       conversation record
//	convpair:<minID>:<maxID>        private pair index -> conversation id
//	msg:<convID>:<nanos %019d>:<id> message record, chronologically sorted
//	msgidx:<id>                     message id index -> full message key
type Store struct {
	db     *badger.DB
	logger zerolog.Logger
}

func New(db *badger.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("component", "storage").Logger()}
}

func userKey(id string) []byte   { return []byte("user:" + id) }
func convKey(id string) []byte   { return []byte("conv:" + id) }
func msgIdxKey(id string) []byte { return []byte("msgidx:" + id) }

func pairKey(a, b string) []byte {
	if a > b {
		a, b = b, a
	}
	return []byte("convpair:" + a + ":" + b)
}

// Zero-padded nanos keep messages lexicographically sorted by time; the
// trailing id disambiguates same-nanosecond writes.
func msgKey(conversationID string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversationID, at.UnixNano(), id))
}

func msgPrefix(conversationID string) []byte {
	return []byte("msg:" + conversationID + ":")
}

// update runs a read-modify-write transaction, retrying on optimistic
// conflict. Badger's serializable transactions make find-or-create
// sequences atomic, which is what keeps private-pair creation idempotent
// under concurrency.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func decodeJSON(val []byte, out any) error {
	return json.Unmarshal(val, out)
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}
