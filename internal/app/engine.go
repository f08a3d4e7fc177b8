package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"crewmate/internal/domain"
	"crewmate/internal/store"
	"crewmate/internal/timer"
)

// Identity tells the engine who is calling
type Identity interface {
	CurrentUserID() string
}

// UserID is an Identity fixed to one player id.
type UserID string

// CurrentUserID returns the id
func (u UserID) CurrentUserID() string {
	return string(u)
}

// EngineConfig tunes an Engine
type EngineConfig struct {
	// MinPlayers is the smallest roster StartGame accepts.
	MinPlayers int
	// TickInterval is the length of one countdown step.
	TickInterval time.Duration
	// Shuffler permutes role decks; nil uses domain.DefaultShuffler.
	Shuffler domain.Shuffler
}

// Engine drives one room's phase machine on behalf of one player. Every
// mutating host operation is a no-op unless that player is the room's host.
type Engine struct {
	code     string
	docs     store.DocumentStore
	eph      store.EphemeralStore
	identity Identity
	cfg      EngineConfig
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// mu serializes host operations and guards countdown.
	mu        sync.Mutex
	countdown *timer.Countdown
}

// NewEngine creates an engine for a room as seen by identity.
func NewEngine(
	code string,
	docs store.DocumentStore,
	eph store.EphemeralStore,
	identity Identity,
	cfg EngineConfig,
	logger *slog.Logger,
) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Shuffler == nil {
		cfg.Shuffler = domain.DefaultShuffler
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		code:     code,
		docs:     docs,
		eph:      eph,
		identity: identity,
		cfg:      cfg,
		logger:   logger.With("roomCode", code, "playerID", identity.CurrentUserID()),
		now:      func() time.Time { return time.Now().UTC() },
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RoomCode returns the room this engine drives
func (e *Engine) RoomCode() string {
	return e.code
}

// Close stops the running countdown and waits for its goroutine. It does not
// touch stored state and must not be called from a countdown callback.
func (e *Engine) Close() {
	e.mu.Lock()
	c := e.countdown
	e.stopCountdown()
	e.mu.Unlock()
	e.cancel()
	if c != nil {
		<-c.Done()
	}
}

// IsHost reports whether the engine's player currently hosts the room.
func (e *Engine) IsHost(ctx context.Context) (bool, error) {
	room, err := e.room(ctx)
	if err != nil {
		return false, err
	}
	return room.IsHost(e.identity.CurrentUserID()), nil
}

// CurrentState reads the authoritative phase record.
func (e *Engine) CurrentState(ctx context.Context) (domain.GameState, error) {
	data, err := e.docs.Get(ctx, store.GameStatePath(e.code))
	if errors.Is(err, store.ErrNotFound) {
		return domain.GameState{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.GameState{}, fmt.Errorf("read game state: %w", err)
	}
	var state domain.GameState
	if err := store.Decode(data, &state); err != nil {
		return domain.GameState{}, err
	}
	return state, nil
}

// SetPhase writes a new phase with a bumped version. It does not check the
// transition table; use it for host tooling and recovery.
func (e *Engine) SetPhase(ctx context.Context, phase domain.Phase, payload domain.Payload) error {
	return e.hostOnly(ctx, func() error {
		if !phase.Valid() {
			return domain.ErrInvalidTransition
		}
		return e.setPhase(ctx, phase, payload)
	})
}

// hostOnly runs fn under the host lock when the caller hosts an open room,
// and silently does nothing otherwise. A missing or closed room has no game
// left to drive.
func (e *Engine) hostOnly(ctx context.Context, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	room, err := e.room(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil
		}
		return err
	}
	if room.IsClosed() || !room.IsHost(e.identity.CurrentUserID()) {
		return nil
	}
	return fn()
}

// setPhase writes the phase record in one merge: the version bump rides in
// the same write as the phase so subscribers never see one without the other.
func (e *Engine) setPhase(ctx context.Context, phase domain.Phase, payload domain.Payload) error {
	data := make(store.Data, len(payload)+5)
	for k, v := range payload {
		data[k] = v
	}
	data[domain.KeyPhase] = phase
	data[domain.KeyVersion] = store.IncrementBy(1)
	data[domain.KeyTransitionID] = uuid.NewString()
	data[domain.KeyHostUID] = e.identity.CurrentUserID()
	data[domain.KeyUpdatedAt] = e.now()

	if err := e.docs.Set(ctx, store.GameStatePath(e.code), data, store.Merge()); err != nil {
		return fmt.Errorf("set phase %s: %w", phase, err)
	}
	e.logger.Info("phase changed", "phase", phase)

	e.onEnter(ctx, phase)
	return nil
}

// advance moves from one phase to the next only while the record still shows
// from. A record that already moved on makes it a no-op, which keeps every
// caller idempotent.
func (e *Engine) advance(ctx context.Context, from, to domain.Phase, payload domain.Payload) (bool, error) {
	state, err := e.CurrentState(ctx)
	if err != nil {
		return false, err
	}
	if state.Phase != from {
		return false, nil
	}
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	if err := e.setPhase(ctx, to, payload); err != nil {
		return false, err
	}
	return true, nil
}

// StartGame validates settings, deals roles and opens the role reveal.
func (e *Engine) StartGame(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		state, err := e.CurrentState(ctx)
		if err != nil {
			return err
		}
		if state.Phase != domain.PhaseLobby {
			return domain.ErrGameAlreadyStarted
		}

		players, err := e.players(ctx)
		if err != nil {
			return err
		}
		if len(players) < e.cfg.MinPlayers {
			return domain.ErrNotEnoughPlayers
		}
		settings, err := e.settings(ctx)
		if err != nil {
			return err
		}
		if err := settings.Validate(len(players)); err != nil {
			return err
		}

		ids := make([]string, len(players))
		for i, p := range players {
			ids[i] = p.ID
		}
		dealt := domain.DealRoles(ids, settings.Roles, e.cfg.Shuffler)

		e.clearCollections(ctx, store.GameCollections...)
		for _, p := range players {
			p.ResetForNewGame()
			p.Role = dealt[p.ID]
			if err := e.putPlayer(ctx, p); err != nil {
				return err
			}
		}

		if err := e.docs.Update(ctx, store.RoomPath(e.code), store.Data{
			"status": domain.RoomInGame,
			"day":    1,
		}); err != nil {
			return fmt.Errorf("start room: %w", err)
		}

		e.logger.Info("game started", "players", len(players))
		_, err = e.advance(ctx, domain.PhaseLobby, domain.PhaseRoleReveal, domain.Payload{domain.KeyDay: 1})
		return err
	})
}

// ResetGame returns the room to a fresh lobby. The phase record is
// overwritten, not merged, so nothing from the finished game survives.
func (e *Engine) ResetGame(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		e.stopCountdown()
		e.clearCollections(ctx, store.GameCollections...)
		e.deleteTimer(ctx)

		players, err := e.players(ctx)
		if err != nil {
			return err
		}
		for _, p := range players {
			p.ResetForNewGame()
			if err := e.putPlayer(ctx, p); err != nil {
				return err
			}
		}

		if err := e.docs.Update(ctx, store.RoomPath(e.code), store.Data{
			"status": domain.RoomLobby,
			"day":    1,
		}); err != nil {
			return fmt.Errorf("reset room: %w", err)
		}

		state := domain.InitialGameState(e.identity.CurrentUserID())
		state.TransitionID = uuid.NewString()
		state.UpdatedAt = e.now()
		data, err := store.Encode(state)
		if err != nil {
			return err
		}
		if err := e.docs.Set(ctx, store.GameStatePath(e.code), data); err != nil {
			return fmt.Errorf("reset game state: %w", err)
		}
		e.logger.Info("game reset")
		return nil
	})
}

// CloseRoom marks the room closed and tears down its game data. Closed is
// terminal.
func (e *Engine) CloseRoom(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		return e.closeRoom(ctx)
	})
}

func (e *Engine) closeRoom(ctx context.Context) error {
	e.stopCountdown()
	if err := e.docs.Update(ctx, store.RoomPath(e.code), store.Data{"status": domain.RoomClosed}); err != nil {
		return fmt.Errorf("close room: %w", err)
	}
	e.deleteTimer(ctx)
	e.clearCollections(ctx, append([]string{
		store.CollectionPlayers,
		store.CollectionSettings,
		store.CollectionGameState,
	}, store.GameCollections...)...)
	e.logger.Info("room closed")
	return nil
}

// UpdateSettings replaces the room settings while the room is in the lobby.
// Role totals are checked against the roster only when the game starts.
func (e *Engine) UpdateSettings(ctx context.Context, settings domain.Settings) error {
	return e.hostOnly(ctx, func() error {
		state, err := e.CurrentState(ctx)
		if err != nil {
			return err
		}
		if state.Phase != domain.PhaseLobby {
			return domain.ErrGameAlreadyStarted
		}
		for role, n := range settings.Roles {
			if !role.Valid() || n < 0 {
				return domain.ErrInvalidRole
			}
		}
		if settings.Timers.Meeting <= 0 || settings.Timers.Vote <= 0 || settings.Timers.Break <= 0 {
			return domain.ErrInvalidTimer
		}
		data, err := store.Encode(settings)
		if err != nil {
			return err
		}
		return e.docs.Set(ctx, store.SettingsPath(e.code), data)
	})
}

// Settings returns the room settings, falling back to the defaults.
func (e *Engine) Settings(ctx context.Context) (domain.Settings, error) {
	return e.settings(ctx)
}

// Players returns the current roster ordered by id.
func (e *Engine) Players(ctx context.Context) ([]domain.Player, error) {
	return e.players(ctx)
}

// Room returns the room metadata.
func (e *Engine) Room(ctx context.Context) (*domain.Room, error) {
	return e.room(ctx)
}

func (e *Engine) room(ctx context.Context) (*domain.Room, error) {
	data, err := e.docs.Get(ctx, store.RoomPath(e.code))
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read room: %w", err)
	}
	var room domain.Room
	if err := store.Decode(data, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (e *Engine) players(ctx context.Context) ([]domain.Player, error) {
	docs, err := e.docs.List(ctx, store.RoomCollection(e.code, store.CollectionPlayers))
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	players := make([]domain.Player, 0, len(docs))
	for _, doc := range docs {
		var p domain.Player
		if err := store.Decode(doc.Data, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			p.ID = doc.ID
		}
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players, nil
}

func (e *Engine) player(ctx context.Context, id string) (*domain.Player, error) {
	data, err := e.docs.Get(ctx, store.PlayerPath(e.code, id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read player: %w", err)
	}
	var p domain.Player
	if err := store.Decode(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// putPlayer writes the whole player record so cleared fields do not linger.
func (e *Engine) putPlayer(ctx context.Context, p domain.Player) error {
	data, err := store.Encode(p)
	if err != nil {
		return err
	}
	if err := e.docs.Set(ctx, store.PlayerPath(e.code, p.ID), data); err != nil {
		return fmt.Errorf("write player %s: %w", p.ID, err)
	}
	return nil
}

func (e *Engine) settings(ctx context.Context) (domain.Settings, error) {
	data, err := e.docs.Get(ctx, store.SettingsPath(e.code))
	if errors.Is(err, store.ErrNotFound) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	var settings domain.Settings
	if err := store.Decode(data, &settings); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

// clearCollections deletes every document of the given room collections in
// parallel. Failures are logged and otherwise ignored.
func (e *Engine) clearCollections(ctx context.Context, collections ...string) {
	var g errgroup.Group
	for _, name := range collections {
		collection := store.RoomCollection(e.code, name)
		docs, err := e.docs.List(ctx, collection)
		if err != nil {
			e.logger.Warn("clear collection failed", "collection", name, "error", err)
			continue
		}
		for _, doc := range docs {
			path := doc.Path
			g.Go(func() error {
				return e.docs.Delete(ctx, path)
			})
		}
	}
	if err := g.Wait(); err != nil {
		e.logger.Warn("partial clear", "error", err)
	}
}
