package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crewmate/internal/app"
	"crewmate/internal/domain"
	"crewmate/internal/store"
	"crewmate/internal/store/memory"
)

// keepOrder deals the role deck without shuffling.
type keepOrder struct{}

func (keepOrder) Shuffle(int, func(i, j int)) {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	docs   *memory.DocumentStore
	eph    *memory.EphemeralStore
	hub    *app.Hub
	code   string
	hostID string
	ids    []string // every player, host first

	mu      sync.Mutex
	engines map[string]*app.Engine
}

type fixtureOption func(*app.HubConfig)

func withTick(d time.Duration) fixtureOption {
	return func(cfg *app.HubConfig) {
		cfg.Session.Engine.TickInterval = d
	}
}

func withMaxPlayers(n int) fixtureOption {
	return func(cfg *app.HubConfig) {
		cfg.MaxPlayers = n
	}
}

func withSync(guard, stale time.Duration) fixtureOption {
	return func(cfg *app.HubConfig) {
		cfg.Session.Sync = app.SyncConfig{GuardInterval: guard, StaleAfter: stale}
	}
}

// newFixture creates a room with a host and players-1 guests.
func newFixture(t *testing.T, players int, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := app.HubConfig{
		Session: app.SessionConfig{
			Engine: app.EngineConfig{
				MinPlayers:   4,
				TickInterval: time.Hour,
				Shuffler:     keepOrder{},
			},
			PresenceInterval: time.Hour,
		},
		MaxPlayers: 15,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	docs := memory.NewDocumentStore()
	eph := memory.NewEphemeralStore()
	hub := app.NewHub(docs, eph, cfg, discardLogger())

	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		docs:    docs,
		eph:     eph,
		hub:     hub,
		engines: make(map[string]*app.Engine),
	}
	t.Cleanup(func() {
		f.mu.Lock()
		for _, e := range f.engines {
			e.Close()
		}
		f.mu.Unlock()
		hub.Close()
		docs.Close()
		eph.Close()
	})

	room, host, err := hub.CreateRoom(f.ctx, "Host")
	require.NoError(t, err)
	f.code = room.Code
	f.hostID = host.ID
	f.ids = append(f.ids, host.ID)

	for i := 1; i < players; i++ {
		p, err := hub.JoinRoom(f.ctx, f.code, "Guest")
		require.NoError(t, err)
		f.ids = append(f.ids, p.ID)
	}
	return f
}

// engine returns the cached engine acting as playerID.
func (f *fixture) engine(playerID string) *app.Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.engines[playerID]; ok {
		return e
	}
	e := f.hub.Engine(f.code, playerID)
	f.engines[playerID] = e
	return e
}

func (f *fixture) host() *app.Engine {
	return f.engine(f.hostID)
}

func (f *fixture) state() domain.GameState {
	f.t.Helper()
	state, err := f.host().CurrentState(f.ctx)
	require.NoError(f.t, err)
	return state
}

func (f *fixture) room() *domain.Room {
	f.t.Helper()
	room, err := f.host().Room(f.ctx)
	require.NoError(f.t, err)
	return room
}

func (f *fixture) setRoles(roles map[domain.Role]int) {
	f.t.Helper()
	settings := domain.DefaultSettings()
	settings.Roles = roles
	require.NoError(f.t, f.host().UpdateSettings(f.ctx, settings))
}

// byRole returns the ids of players holding role, in roster order.
func (f *fixture) byRole(role domain.Role) []string {
	f.t.Helper()
	players, err := f.host().Players(f.ctx)
	require.NoError(f.t, err)
	ids := make([]string, 0)
	for _, p := range players {
		if p.Role == role {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (f *fixture) playerByID(id string) domain.Player {
	f.t.Helper()
	players, err := f.host().Players(f.ctx)
	require.NoError(f.t, err)
	for _, p := range players {
		if p.ID == id {
			return p
		}
	}
	f.t.Fatalf("player %s not found", id)
	return domain.Player{}
}

// startAndConfirm starts the game and has everyone confirm their role.
func (f *fixture) startAndConfirm() {
	f.t.Helper()
	require.NoError(f.t, f.host().StartGame(f.ctx))
	require.Equal(f.t, domain.PhaseRoleReveal, f.state().Phase)
	for _, id := range f.ids {
		require.NoError(f.t, f.engine(id).ConfirmRole(f.ctx))
	}
	require.NoError(f.t, f.host().CheckAllRolesConfirmed(f.ctx))
	require.Equal(f.t, domain.PhaseMeetingDiscussion, f.state().Phase)
}

// vote has every voter vote for target, then runs the host's check.
func (f *fixture) vote(votes map[string]string) {
	f.t.Helper()
	for voter, target := range votes {
		require.NoError(f.t, f.engine(voter).CastVote(f.ctx, target))
	}
	require.NoError(f.t, f.host().CheckAllVoted(f.ctx))
}

// fakeClient records every event a session pushes.
type fakeClient struct {
	playerID string

	mu     sync.Mutex
	events []*domain.GameEvent
	closed bool
}

func (c *fakeClient) Send(message interface{}) error {
	event, ok := message.(*domain.GameEvent)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *fakeClient) GetPlayerID() string {
	return c.playerID
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) ofType(eventType domain.EventType) []*domain.GameEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	matched := make([]*domain.GameEvent, 0)
	for _, e := range c.events {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

// lastPhase returns the phase of the newest STATE_CHANGED event.
func (c *fakeClient) lastPhase() domain.Phase {
	events := c.ofType(domain.EventStateChanged)
	if len(events) == 0 {
		return ""
	}
	payload, ok := events[len(events)-1].Payload.(*domain.StatePayload)
	if !ok {
		return ""
	}
	return payload.State.Phase
}

// lossyStore drops every push notification for the game state record, as a
// client with a broken listener would see it.
type lossyStore struct {
	store.DocumentStore
}

func (s lossyStore) Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (store.CancelFunc, error) {
	return func() {}, nil
}

// failingDeletes refuses every delete, as a store with a flaky backend would.
type failingDeletes struct {
	store.DocumentStore
}

func (s failingDeletes) Delete(ctx context.Context, path string) error {
	return errors.New("delete unavailable")
}
