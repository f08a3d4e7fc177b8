package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"crewmate/internal/domain"
	"crewmate/internal/store"
)

const (
	// DefaultRoomCodeLength is the default length for room codes
	DefaultRoomCodeLength = 6

	// StaleRoomTimeout is how long before a room nobody is connected to is purged
	StaleRoomTimeout = 2 * time.Hour

	// CleanupInterval is how often stale rooms are looked for
	CleanupInterval = 10 * time.Minute
)

// RoomCodeChars are characters used for room codes (no ambiguous chars)
const RoomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// HubConfig tunes the hub
type HubConfig struct {
	Session         SessionConfig
	RoomCodeLength  int
	MaxPlayers      int
	StaleRoomAfter  time.Duration
	CleanupInterval time.Duration
}

// Hub owns the stores and the live sessions of every room.
type Hub struct {
	docs   store.DocumentStore
	eph    store.EphemeralStore
	cfg    HubConfig
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]map[string]*Session // roomCode -> playerID -> session
	rooms    map[string]time.Time           // roomCode -> last activity
	done     chan struct{}
	closed   sync.Once
}

// NewHub creates a hub and starts its cleanup loop.
func NewHub(docs store.DocumentStore, eph store.EphemeralStore, cfg HubConfig, logger *slog.Logger) *Hub {
	if cfg.RoomCodeLength <= 0 {
		cfg.RoomCodeLength = DefaultRoomCodeLength
	}
	if cfg.StaleRoomAfter <= 0 {
		cfg.StaleRoomAfter = StaleRoomTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = CleanupInterval
	}
	hub := &Hub{
		docs:     docs,
		eph:      eph,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]map[string]*Session),
		rooms:    make(map[string]time.Time),
		done:     make(chan struct{}),
	}

	go hub.cleanupLoop()

	return hub
}

// Engine returns an engine for a one-off operation by a player.
func (h *Hub) Engine(roomCode, playerID string) *Engine {
	return NewEngine(roomCode, h.docs, h.eph, UserID(playerID), h.cfg.Session.Engine, h.logger)
}

// CreateRoom creates a room with default settings and its host player.
func (h *Hub) CreateRoom(ctx context.Context, hostName string) (*domain.Room, *domain.Player, error) {
	hostName = strings.TrimSpace(hostName)
	if hostName == "" {
		return nil, nil, domain.ErrEmptyName
	}

	var code string
	for attempts := 0; attempts < 10; attempts++ {
		candidate := h.generateRoomCode()
		_, err := h.docs.Get(ctx, store.RoomPath(candidate))
		if errors.Is(err, store.ErrNotFound) {
			code = candidate
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("check room code: %w", err)
		}
	}
	if code == "" {
		return nil, nil, fmt.Errorf("failed to generate unique room code")
	}

	host := domain.NewPlayer(uuid.NewString(), hostName, true)
	host.Connected = false
	room := domain.NewRoom(code, host.ID)

	writes := []struct {
		path  string
		value any
	}{
		{store.SettingsPath(code), domain.DefaultSettings()},
		{store.GameStatePath(code), domain.InitialGameState(host.ID)},
		{store.PlayerPath(code, host.ID), host},
		{store.RoomPath(code), room},
	}
	for _, w := range writes {
		data, err := store.Encode(w.value)
		if err != nil {
			return nil, nil, err
		}
		if err := h.docs.Set(ctx, w.path, data); err != nil {
			return nil, nil, fmt.Errorf("create room: %w", err)
		}
	}

	h.touch(code)
	h.logger.Info("room created", "roomCode", code, "hostID", host.ID)
	return room, host, nil
}

// JoinRoom adds a new player to a room still in its lobby.
func (h *Hub) JoinRoom(ctx context.Context, roomCode, name string) (*domain.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrEmptyName
	}

	engine := h.Engine(roomCode, "")
	room, err := engine.Room(ctx)
	if err != nil {
		return nil, err
	}
	switch room.Status {
	case domain.RoomClosed:
		return nil, domain.ErrRoomClosed
	case domain.RoomInGame:
		return nil, domain.ErrGameAlreadyStarted
	}

	players, err := engine.Players(ctx)
	if err != nil {
		return nil, err
	}
	if h.cfg.MaxPlayers > 0 && len(players) >= h.cfg.MaxPlayers {
		return nil, domain.ErrGameFull
	}

	player := domain.NewPlayer(uuid.NewString(), name, false)
	player.Connected = false
	data, err := store.Encode(player)
	if err != nil {
		return nil, err
	}
	if err := h.docs.Set(ctx, store.PlayerPath(roomCode, player.ID), data); err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}

	h.touch(roomCode)
	h.logger.Info("player joined", "roomCode", roomCode, "playerID", player.ID)
	return player, nil
}

// RoomInfo is the public view of a room
type RoomInfo struct {
	Code     string              `json:"code"`
	Status   domain.RoomStatus   `json:"status"`
	HostID   string              `json:"hostId"`
	Day      int                 `json:"day"`
	Phase    domain.Phase        `json:"phase"`
	Players  []domain.PlayerInfo `json:"players"`
	Settings domain.Settings     `json:"settings"`
}

// GetRoomInfo returns the public view of a room.
func (h *Hub) GetRoomInfo(ctx context.Context, roomCode string) (*RoomInfo, error) {
	engine := h.Engine(roomCode, "")
	room, err := engine.Room(ctx)
	if err != nil {
		return nil, err
	}
	info := &RoomInfo{
		Code:    room.Code,
		Status:  room.Status,
		HostID:  room.HostID,
		Day:     room.Day,
		Players: make([]domain.PlayerInfo, 0),
	}
	if room.IsClosed() {
		return info, nil
	}

	if state, err := engine.CurrentState(ctx); err == nil {
		info.Phase = state.Phase
	}
	players, err := engine.Players(ctx)
	if err != nil {
		return nil, err
	}
	for i := range players {
		info.Players = append(info.Players, players[i].ToInfo())
	}
	if info.Settings, err = engine.Settings(ctx); err != nil {
		return nil, err
	}
	return info, nil
}

// RoomExists reports whether an open room has the code.
func (h *Hub) RoomExists(ctx context.Context, roomCode string) (bool, error) {
	room, err := h.Engine(roomCode, "").Room(ctx)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !room.IsClosed(), nil
}

// OpenSession starts a session for a player's new connection. An older
// session of the same player is closed first.
func (h *Hub) OpenSession(ctx context.Context, roomCode string, client ClientConnection) (*Session, error) {
	playerID := client.GetPlayerID()
	session := NewSession(roomCode, client, h.docs, h.eph, h.cfg.Session, h.logger)

	h.mu.Lock()
	previous := h.sessions[roomCode][playerID]
	if h.sessions[roomCode] == nil {
		h.sessions[roomCode] = make(map[string]*Session)
	}
	h.sessions[roomCode][playerID] = session
	h.rooms[roomCode] = time.Now()
	h.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	if err := session.Start(ctx); err != nil {
		h.CloseSession(session)
		return nil, err
	}

	// sessions also close themselves when their room closes
	go func() {
		<-session.Done()
		h.forget(session)
	}()
	return session, nil
}

// CloseSession closes a session and forgets it.
func (h *Hub) CloseSession(session *Session) {
	h.forget(session)
	session.Close()
}

func (h *Hub) forget(session *Session) {
	h.mu.Lock()
	if players, ok := h.sessions[session.RoomCode()]; ok && players[session.PlayerID()] == session {
		delete(players, session.PlayerID())
		if len(players) == 0 {
			delete(h.sessions, session.RoomCode())
		}
	}
	h.rooms[session.RoomCode()] = time.Now()
	h.mu.Unlock()
}

// GetSessionCount returns the number of rooms with live sessions
func (h *Hub) GetSessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// GetTotalPlayerCount returns the number of connected players across rooms
func (h *Hub) GetTotalPlayerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, players := range h.sessions {
		total += len(players)
	}
	return total
}

// Close shuts down the hub and all sessions
func (h *Hub) Close() {
	h.closed.Do(func() {
		close(h.done)
	})

	h.mu.Lock()
	all := make([]*Session, 0)
	for _, players := range h.sessions {
		for _, session := range players {
			all = append(all, session)
		}
	}
	h.sessions = make(map[string]map[string]*Session)
	h.mu.Unlock()

	for _, session := range all {
		session.Close()
	}
}

func (h *Hub) touch(roomCode string) {
	h.mu.Lock()
	h.rooms[roomCode] = time.Now()
	h.mu.Unlock()
}

// generateRoomCode generates a random room code
func (h *Hub) generateRoomCode() string {
	b := make([]byte, h.cfg.RoomCodeLength)
	_, _ = rand.Read(b)

	code := make([]byte, h.cfg.RoomCodeLength)
	for i := range code {
		code[i] = RoomCodeChars[int(b[i])%len(RoomCodeChars)]
	}

	return string(code)
}

// cleanupLoop periodically purges stale rooms
func (h *Hub) cleanupLoop() {
	ticker := time.NewTicker(h.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.cleanupStaleRooms(context.Background())
		}
	}
}

// cleanupStaleRooms purges rooms nobody has been connected to for too long
func (h *Hub) cleanupStaleRooms(ctx context.Context) {
	now := time.Now()

	h.mu.Lock()
	stale := make([]string, 0)
	for roomCode, lastActive := range h.rooms {
		if len(h.sessions[roomCode]) == 0 && now.Sub(lastActive) > h.cfg.StaleRoomAfter {
			stale = append(stale, roomCode)
			delete(h.rooms, roomCode)
		}
	}
	h.mu.Unlock()

	for _, roomCode := range stale {
		h.purgeRoom(ctx, roomCode)
		h.logger.Info("stale room cleaned up", "roomCode", roomCode)
	}
}

// purgeRoom deletes every stored document of a room. Failures are logged.
func (h *Hub) purgeRoom(ctx context.Context, roomCode string) {
	var g errgroup.Group
	collections := append([]string{
		store.CollectionPlayers,
		store.CollectionSettings,
		store.CollectionGameState,
	}, store.GameCollections...)
	for _, name := range collections {
		collection := store.RoomCollection(roomCode, name)
		g.Go(func() error {
			docs, err := h.docs.List(ctx, collection)
			if err != nil {
				return err
			}
			for _, doc := range docs {
				if err := h.docs.Delete(ctx, doc.Path); err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		return h.eph.DeleteValue(ctx, store.TimerKey(roomCode))
	})
	if err := g.Wait(); err != nil {
		h.logger.Warn("partial room purge", "roomCode", roomCode, "error", err)
	}
	if err := h.docs.Delete(ctx, store.RoomPath(roomCode)); err != nil {
		h.logger.Warn("room delete failed", "roomCode", roomCode, "error", err)
	}
}
