package app_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crewmate/internal/app"
	"crewmate/internal/domain"
	"crewmate/internal/store"
)

func TestCreateRoom(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)

	require.Len(t, f.code, app.DefaultRoomCodeLength)
	for _, r := range f.code {
		require.True(t, strings.ContainsRune(app.RoomCodeChars, r), "unexpected %q", r)
	}

	room := f.room()
	require.Equal(t, domain.RoomLobby, room.Status)
	require.Equal(t, f.hostID, room.HostID)
	require.Equal(t, 1, room.Day)

	state := f.state()
	require.Equal(t, domain.PhaseLobby, state.Phase)
	require.EqualValues(t, 0, state.Version)

	settings, err := f.host().Settings(f.ctx)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultSettings(), settings)

	host := f.playerByID(f.hostID)
	require.True(t, host.IsHost)
	require.Equal(t, "Host", host.Name)

	_, _, err = f.hub.CreateRoom(f.ctx, "   ")
	require.ErrorIs(t, err, domain.ErrEmptyName)
}

func TestJoinRoom(t *testing.T) {
	t.Parallel()

	t.Run("unknown_room", func(t *testing.T) {
		f := newFixture(t, 1)
		_, err := f.hub.JoinRoom(f.ctx, "NOPE00", "Ann")
		require.ErrorIs(t, err, domain.ErrRoomNotFound)
	})

	t.Run("empty_name", func(t *testing.T) {
		f := newFixture(t, 1)
		_, err := f.hub.JoinRoom(f.ctx, f.code, "")
		require.ErrorIs(t, err, domain.ErrEmptyName)
	})

	t.Run("full", func(t *testing.T) {
		f := newFixture(t, 4, withMaxPlayers(4))
		_, err := f.hub.JoinRoom(f.ctx, f.code, "Late")
		require.ErrorIs(t, err, domain.ErrGameFull)
	})

	t.Run("started", func(t *testing.T) {
		f := newFixture(t, 4)
		require.NoError(t, f.host().StartGame(f.ctx))
		_, err := f.hub.JoinRoom(f.ctx, f.code, "Late")
		require.ErrorIs(t, err, domain.ErrGameAlreadyStarted)
	})

	t.Run("closed", func(t *testing.T) {
		f := newFixture(t, 2)
		require.NoError(t, f.host().CloseRoom(f.ctx))
		_, err := f.hub.JoinRoom(f.ctx, f.code, "Late")
		require.ErrorIs(t, err, domain.ErrRoomClosed)

		exists, err := f.hub.RoomExists(f.ctx, f.code)
		require.NoError(t, err)
		require.False(t, exists)
	})
}

func TestGetRoomInfo(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 3)

	info, err := f.hub.GetRoomInfo(f.ctx, f.code)
	require.NoError(t, err)
	require.Equal(t, f.code, info.Code)
	require.Equal(t, f.hostID, info.HostID)
	require.Equal(t, domain.PhaseLobby, info.Phase)
	require.Len(t, info.Players, 3)

	exists, err := f.hub.RoomExists(f.ctx, f.code)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = f.hub.RoomExists(f.ctx, "NOPE00")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = f.hub.GetRoomInfo(f.ctx, "NOPE00")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestCleanupPurgesIdleRooms(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4, func(cfg *app.HubConfig) {
		cfg.StaleRoomAfter = time.Millisecond
	})
	require.NoError(t, f.host().StartGame(f.ctx))
	time.Sleep(5 * time.Millisecond)

	f.hub.CleanupStaleRooms(f.ctx)

	exists, err := f.hub.RoomExists(f.ctx, f.code)
	require.NoError(t, err)
	require.False(t, exists)
	players, err := f.docs.List(f.ctx, store.RoomCollection(f.code, store.CollectionPlayers))
	require.NoError(t, err)
	require.Empty(t, players)
}

func TestCleanupKeepsConnectedRooms(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4, func(cfg *app.HubConfig) {
		cfg.StaleRoomAfter = time.Millisecond
	})
	_, err := f.hub.OpenSession(f.ctx, f.code, &fakeClient{playerID: f.ids[1]})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	f.hub.CleanupStaleRooms(f.ctx)

	exists, err := f.hub.RoomExists(f.ctx, f.code)
	require.NoError(t, err)
	require.True(t, exists)
}
