package storage

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vinneth/chathub/src/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, zerolog.Nop())
}

func seedUser(t *testing.T, s *Store, id string) *types.User {
	t.Helper()
	u := &types.User{ID: id, Email: id + "@example.com", Name: "name-" + id}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedPrivate(t *testing.T, s *Store, a, b string) *types.Conversation {
	t.Helper()
	conv, err := s.GetOrCreatePrivateConversation(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}
