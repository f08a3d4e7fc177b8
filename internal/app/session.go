package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"crewmate/internal/domain"
	"crewmate/internal/store"
)

// ClientConnection represents a connected client
type ClientConnection interface {
	Send(message interface{}) error
	GetPlayerID() string
	Close() error
}

// SessionConfig tunes the parts a Session owns
type SessionConfig struct {
	Engine           EngineConfig
	Sync             SyncConfig
	PresenceInterval time.Duration
}

// Session is one player's live connection to a room. It is created when the
// player connects and closed when they disconnect or leave; everything it
// starts is torn down with it.
type Session struct {
	code     string
	playerID string
	docs     store.DocumentStore
	eph      store.EphemeralStore
	client   ClientConnection
	logger   *slog.Logger

	engine   *Engine
	sync     *Synchronizer
	presence *Presence

	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	cancels   []store.CancelFunc
	host      bool
	roleSent  bool // the current game's role went out on this session
	closeOnce sync.Once
	done      chan struct{}
}

// NewSession wires an engine, a synchronizer and a heartbeat for a player.
func NewSession(
	code string,
	client ClientConnection,
	docs store.DocumentStore,
	eph store.EphemeralStore,
	cfg SessionConfig,
	logger *slog.Logger,
) *Session {
	playerID := client.GetPlayerID()
	logger = logger.With("roomCode", code, "playerID", playerID)

	s := &Session{
		code:     code,
		playerID: playerID,
		docs:     docs,
		eph:      eph,
		client:   client,
		logger:   logger,
		engine:   NewEngine(code, docs, eph, UserID(playerID), cfg.Engine, logger),
		presence: NewPresence(eph, code, playerID, cfg.PresenceInterval, logger),
		done:     make(chan struct{}),
	}
	s.sync = NewSynchronizer(docs, code, cfg.Sync, s.onState, logger)
	return s
}

// Engine returns the session's engine
func (s *Session) Engine() *Engine {
	return s.engine
}

// PlayerID returns the player this session belongs to
func (s *Session) PlayerID() string {
	return s.playerID
}

// RoomCode returns the room code
func (s *Session) RoomCode() string {
	return s.code
}

// Done is closed once the session has been closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// IsHost reports whether the session belonged to the host when it started
func (s *Session) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// Start marks the player connected and begins pushing room state to the
// client. The host's session also watches submissions and runs the checks.
// The session outlives ctx's deadline; it runs until Close.
func (s *Session) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	room, err := s.engine.Room(s.ctx)
	if err != nil {
		return err
	}
	if room.IsClosed() {
		return domain.ErrRoomClosed
	}
	if err := s.engine.SetConnected(s.ctx, true); err != nil {
		return err
	}
	host := room.IsHost(s.playerID)

	s.mu.Lock()
	s.host = host
	s.mu.Unlock()

	subscriptions := []func() (store.CancelFunc, error){
		func() (store.CancelFunc, error) {
			return s.docs.Subscribe(s.ctx, store.RoomPath(s.code), s.onRoom)
		},
		func() (store.CancelFunc, error) {
			return s.docs.SubscribeCollection(s.ctx, store.RoomCollection(s.code, store.CollectionPlayers), s.onPlayers)
		},
		func() (store.CancelFunc, error) {
			return s.docs.SubscribeCollection(s.ctx, store.RoomCollection(s.code, store.CollectionVotes), s.onVotes)
		},
		func() (store.CancelFunc, error) {
			return s.eph.SubscribeValue(s.ctx, store.TimerKey(s.code), s.onTimer)
		},
	}
	if host {
		subscriptions = append(subscriptions, func() (store.CancelFunc, error) {
			return s.docs.SubscribeCollection(s.ctx, store.RoomCollection(s.code, store.CollectionNightActions), s.onNightActions)
		})
	}
	for _, subscribe := range subscriptions {
		cancel, err := subscribe()
		if err != nil {
			s.Close()
			return err
		}
		s.mu.Lock()
		s.cancels = append(s.cancels, cancel)
		s.mu.Unlock()
	}

	if err := s.sync.Start(s.ctx); err != nil {
		s.Close()
		return err
	}
	s.presence.Start(s.ctx)

	if host {
		if err := s.engine.Resume(s.ctx); err != nil {
			s.logger.Warn("resume failed", "error", err)
		}
	}
	s.logger.Info("session started", "host", host)
	return nil
}

// Close tears the session down and marks the player disconnected.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		cancels := s.cancels
		s.cancels = nil
		s.mu.Unlock()
		for _, cancel := range cancels {
			cancel()
		}

		s.sync.Stop()
		s.engine.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.presence.Stop(ctx)
		if err := s.engine.SetConnected(ctx, false); err != nil && !errors.Is(err, domain.ErrPlayerNotFound) {
			s.logger.Warn("mark disconnected failed", "error", err)
		}
		if s.cancel != nil {
			s.cancel()
		}
		close(s.done)
		s.logger.Info("session closed")
	})
}

// Leave removes the player from the room and closes the session.
func (s *Session) Leave(ctx context.Context) error {
	err := s.engine.Leave(ctx)
	s.Close()
	return err
}

// SubmitNightAction submits the player's night action and privately sends
// back anything the action reveals.
func (s *Session) SubmitNightAction(ctx context.Context, targetID string) error {
	reveal, err := s.engine.SubmitNightAction(ctx, targetID)
	if reveal != nil {
		s.send(domain.NewPlayerEvent(domain.EventNightReveal, s.code, s.playerID, reveal))
	}
	return err
}

// Refresh forces a pull of the phase record.
func (s *Session) Refresh(ctx context.Context) error {
	return s.sync.Refresh(ctx)
}

func (s *Session) send(event *domain.GameEvent) {
	if err := s.client.Send(event); err != nil {
		s.logger.Warn("send failed", "type", event.Type, "error", err)
	}
}

func (s *Session) onState(state domain.GameState) {
	s.send(domain.NewEvent(domain.EventStateChanged, s.code, &domain.StatePayload{State: state}))

	s.mu.Lock()
	sent := s.roleSent
	if state.Phase == domain.PhaseLobby {
		s.roleSent = false
	}
	s.mu.Unlock()

	// a reconnect mid-game has missed ROLE_REVEAL
	if state.Phase == domain.PhaseRoleReveal || (!sent && state.Phase != domain.PhaseLobby) {
		s.sendRole()
	}
}

// sendRole tells the player their role, and impostor-aligned players who
// their allies are.
func (s *Session) sendRole() {
	players, err := s.engine.Players(s.ctx)
	if err != nil {
		s.logger.Warn("role lookup failed", "error", err)
		return
	}
	roster := domain.NewRoster(players)
	me, ok := roster[s.playerID]
	if !ok || !me.HasRole() {
		return
	}

	payload := &domain.RoleAssignedPayload{Role: me.Role, Faction: me.Role.Faction()}
	if payload.Faction == domain.FactionImpostor {
		for _, p := range players {
			if p.ID != me.ID && p.Role.IsImpostor() {
				payload.Allies = append(payload.Allies, p.Name)
			}
		}
	}
	s.send(domain.NewPlayerEvent(domain.EventRoleAssigned, s.code, s.playerID, payload))

	s.mu.Lock()
	s.roleSent = true
	s.mu.Unlock()
}

func (s *Session) onRoom(snap store.Snapshot) {
	var room domain.Room
	if snap.Exists {
		if err := store.Decode(snap.Data, &room); err != nil {
			return
		}
	}
	if snap.Exists && !room.IsClosed() {
		return
	}
	s.send(domain.NewEvent(domain.EventRoomClosed, s.code, nil))
	go func() {
		s.Close()
		_ = s.client.Close()
	}()
}

func (s *Session) onPlayers(docs []store.Document) {
	payload := &domain.PlayersPayload{Players: make([]domain.PlayerInfo, 0, len(docs))}
	for _, doc := range docs {
		var p domain.Player
		if err := store.Decode(doc.Data, &p); err != nil {
			continue
		}
		if p.IsHost {
			payload.HostID = p.ID
		}
		payload.Players = append(payload.Players, p.ToInfo())
	}
	s.send(domain.NewEvent(domain.EventPlayersUpdated, s.code, payload))

	if s.IsHost() {
		if err := s.engine.CheckAllRolesConfirmed(s.ctx); err != nil {
			s.logger.Warn("role confirmation check failed", "error", err)
		}
	}
}

func (s *Session) onVotes(docs []store.Document) {
	players, err := s.engine.Players(s.ctx)
	if err != nil {
		return
	}
	living := domain.NewRoster(players).Alive()
	s.send(domain.NewEvent(domain.EventVoteProgress, s.code, &domain.VoteProgressPayload{
		VotedCount:  len(docs),
		LivingCount: len(living),
	}))

	if s.IsHost() && len(docs) > 0 {
		if err := s.engine.CheckAllVoted(s.ctx); err != nil {
			s.logger.Warn("vote check failed", "error", err)
		}
	}
}

func (s *Session) onNightActions(docs []store.Document) {
	if len(docs) == 0 {
		return
	}
	if err := s.engine.CheckSpecialActionsSubmitted(s.ctx); err != nil {
		s.logger.Warn("night check failed", "error", err)
	}
	if err := s.engine.CheckImpostorSubmitted(s.ctx); err != nil {
		s.logger.Warn("impostor check failed", "error", err)
	}
}

func (s *Session) onTimer(snap store.Snapshot) {
	if !snap.Exists {
		return
	}
	remaining, err := store.ToInt64(snap.Data["remaining"])
	if err != nil {
		return
	}
	phase, _ := snap.Data["phase"].(string)
	s.send(domain.NewEvent(domain.EventTimerTick, s.code, &domain.TimerPayload{
		Remaining: int(remaining),
		Phase:     domain.TimerPhase(phase),
	}))
}
