package domain

import "time"

// EventType represents the type of game event
type EventType string

const (
	EventStateChanged   EventType = "STATE_CHANGED"
	EventPlayersUpdated EventType = "PLAYERS_UPDATED"
	EventRoleAssigned   EventType = "ROLE_ASSIGNED"
	EventTimerTick      EventType = "TIMER_TICK"
	EventNightReveal    EventType = "NIGHT_REVEAL"
	EventVoteProgress   EventType = "VOTE_PROGRESS"
	EventRoomClosed     EventType = "ROOM_CLOSED"
)

// GameEvent represents an event that occurred in the game
type GameEvent struct {
	Type      EventType   `json:"type"`
	RoomCode  string      `json:"roomCode"`
	PlayerID  string      `json:"playerId,omitempty"` // If event is player-specific
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent creates a new game event
func NewEvent(eventType EventType, roomCode string, payload interface{}) *GameEvent {
	return &GameEvent{
		Type:      eventType,
		RoomCode:  roomCode,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// NewPlayerEvent creates a new player-specific game event
func NewPlayerEvent(eventType EventType, roomCode, playerID string, payload interface{}) *GameEvent {
	return &GameEvent{
		Type:      eventType,
		RoomCode:  roomCode,
		PlayerID:  playerID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Payload types for different events

// StatePayload is sent whenever a client applies a new authoritative record
type StatePayload struct {
	State GameState `json:"state"`
}

// PlayersPayload is sent when the roster changes
type PlayersPayload struct {
	Players []PlayerInfo `json:"players"`
	HostID  string       `json:"hostId"`
}

// RoleAssignedPayload is sent to each player with their role
type RoleAssignedPayload struct {
	Role    Role    `json:"role"`
	Faction Faction `json:"faction"`
	// Allies lists fellow impostor-faction players; only set for that faction.
	Allies []string `json:"allies,omitempty"`
}

// TimerPayload is sent on every countdown tick
type TimerPayload struct {
	Remaining int        `json:"remaining"`
	Phase     TimerPhase `json:"phase"`
}

// VoteProgressPayload is sent when a vote is cast (without revealing who)
type VoteProgressPayload struct {
	VotedCount  int `json:"votedCount"`
	LivingCount int `json:"livingCount"`
}
