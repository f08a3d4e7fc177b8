package ws

import (
	"encoding/json"
	"errors"
	"time"

	"crewmate/internal/auth"
	"crewmate/internal/domain"
	"crewmate/internal/store"
)

// MessageType represents the type of WebSocket message
type MessageType string

// Client → Server message types
const (
	MsgConfirmRole    MessageType = "confirm_role"
	MsgCastVote       MessageType = "cast_vote"
	MsgNightAction    MessageType = "night_action"
	MsgLeave          MessageType = "leave"
	MsgRefresh        MessageType = "refresh"
	MsgStartGame      MessageType = "start_game"
	MsgStartVoting    MessageType = "start_voting"
	MsgAdvance        MessageType = "advance"
	MsgResetGame      MessageType = "reset_game"
	MsgCloseRoom      MessageType = "close_room"
	MsgUpdateSettings MessageType = "update_settings"
	MsgPing           MessageType = "ping"
)

// Server → Client message types. Game events are sent as domain.GameEvent
// and carry their own upper-case type.
const (
	MsgConnected MessageType = "connected"
	MsgError     MessageType = "error"
	MsgPong      MessageType = "pong"
)

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage represents a message from server to client
type ServerMessage struct {
	Type      MessageType `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// NewServerMessage creates a new server message with current timestamp
func NewServerMessage(msgType MessageType, payload interface{}) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Client message payloads

// TargetPayload is the payload for cast_vote and night_action messages
type TargetPayload struct {
	TargetPlayerID string `json:"targetPlayerId"`
}

// SettingsPayload is the payload for update_settings message
type SettingsPayload struct {
	Settings domain.Settings `json:"settings"`
}

// Server message payloads

// ConnectedPayload is the payload for connected message
type ConnectedPayload struct {
	PlayerID string `json:"playerId"`
	RoomCode string `json:"roomCode"`
	IsHost   bool   `json:"isHost"`
}

// ErrorPayload is the payload for error message
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeRoomNotFound   = "ROOM_NOT_FOUND"
	ErrCodeRoomClosed     = "ROOM_CLOSED"
	ErrCodeGameFull       = "GAME_FULL"
	ErrCodeGameStarted    = "GAME_ALREADY_STARTED"
	ErrCodeInvalidAction  = "INVALID_ACTION"
	ErrCodeInvalidTarget  = "INVALID_TARGET"
	ErrCodeInvalidConfig  = "INVALID_SETTINGS"
	ErrCodeNotHost        = "NOT_HOST"
	ErrCodeAlreadyVoted   = "ALREADY_VOTED"
	ErrCodeAlreadyActed   = "ALREADY_ACTED"
	ErrCodeCannotVoteSelf = "CANNOT_VOTE_SELF"
	ErrCodePlayerDead     = "PLAYER_DEAD"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// ErrorCode maps a domain or auth error onto the code sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrPlayerNotFound):
		return ErrCodeRoomNotFound
	case errors.Is(err, domain.ErrRoomClosed):
		return ErrCodeRoomClosed
	case errors.Is(err, domain.ErrGameFull):
		return ErrCodeGameFull
	case errors.Is(err, domain.ErrGameAlreadyStarted):
		return ErrCodeGameStarted
	case errors.Is(err, domain.ErrNotHost):
		return ErrCodeNotHost
	case errors.Is(err, domain.ErrAlreadyVoted):
		return ErrCodeAlreadyVoted
	case errors.Is(err, domain.ErrAlreadyActed):
		return ErrCodeAlreadyActed
	case errors.Is(err, domain.ErrCannotVoteSelf):
		return ErrCodeCannotVoteSelf
	case errors.Is(err, domain.ErrPlayerDead):
		return ErrCodePlayerDead
	case errors.Is(err, domain.ErrInvalidTargetID):
		return ErrCodeInvalidTarget
	case errors.Is(err, domain.ErrNotEnoughPlayers),
		errors.Is(err, domain.ErrRoleCountMismatch),
		errors.Is(err, domain.ErrNoImpostor),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrInvalidTimer),
		errors.Is(err, domain.ErrEmptyName):
		return ErrCodeInvalidConfig
	case errors.Is(err, domain.ErrInvalidPhase),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNoNightAction):
		return ErrCodeInvalidAction
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return ErrCodeUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeRoomNotFound
	}
	return ErrCodeInternalError
}
