package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"crewmate/internal/store"
	"crewmate/internal/store/postgres"
)

func openTestStore(t *testing.T) *postgres.DocumentStore {
	t.Helper()
	dsn := os.Getenv("CREWMATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CREWMATE_TEST_POSTGRES_DSN not set")
	}
	s, err := postgres.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresDocumentStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	code := "T" + uuid.NewString()[:8]

	_, err := s.Get(ctx, store.RoomPath(code))
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Set(ctx, store.RoomPath(code), store.Data{"status": "lobby", "day": 1}))
	require.NoError(t, s.Update(ctx, store.RoomPath(code), store.Data{"day": 2}))
	got, err := s.Get(ctx, store.RoomPath(code))
	require.NoError(t, err)
	require.Equal(t, "lobby", got["status"])
	require.EqualValues(t, 2, got["day"])

	require.NoError(t, s.Set(ctx, store.PlayerPath(code, "b"), store.Data{"name": "bea"}))
	require.NoError(t, s.Set(ctx, store.PlayerPath(code, "a"), store.Data{"name": "ann"}))
	docs, err := s.List(ctx, store.RoomCollection(code, store.CollectionPlayers))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "a", docs[0].ID)

	n, err := s.Increment(ctx, store.GameStatePath(code), "version", 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	for _, path := range []string{
		store.RoomPath(code),
		store.PlayerPath(code, "a"),
		store.PlayerPath(code, "b"),
		store.GameStatePath(code),
	} {
		require.NoError(t, s.Delete(ctx, path))
	}
}
