package domain

import "errors"

// Domain errors
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomClosed         = errors.New("room is closed")
	ErrGameFull           = errors.New("game is full")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
	ErrRoleCountMismatch  = errors.New("role counts do not match player count")
	ErrNoImpostor         = errors.New("at least one impostor is required")
	ErrInvalidRole        = errors.New("unknown role")
	ErrInvalidTimer       = errors.New("timer durations must be positive")
	ErrAlreadyVoted       = errors.New("already voted this round")
	ErrAlreadyActed       = errors.New("night action already submitted")
	ErrInvalidPhase       = errors.New("invalid action for current phase")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrPlayerDead         = errors.New("dead players cannot act")
	ErrNotHost            = errors.New("only host can perform this action")
	ErrCannotVoteSelf     = errors.New("cannot vote for yourself")
	ErrInvalidTransition  = errors.New("invalid phase transition")
	ErrInvalidTargetID    = errors.New("invalid target")
	ErrNoNightAction      = errors.New("role has no night action")
	ErrEmptyName          = errors.New("name cannot be empty")
)
