package domain

import "time"

// Timers holds the countdown durations in seconds
type Timers struct {
	Meeting int `json:"meeting"`
	Vote    int `json:"vote"`
	Break   int `json:"break"`
}

// Duration returns the configured duration for a timed phase.
func (t Timers) Duration(phase TimerPhase) time.Duration {
	switch phase {
	case TimerMeeting:
		return time.Duration(t.Meeting) * time.Second
	case TimerVoting:
		return time.Duration(t.Vote) * time.Second
	case TimerBreak:
		return time.Duration(t.Break) * time.Second
	}
	return 0
}

// Settings holds the host-configured game parameters
type Settings struct {
	Roles  map[Role]int `json:"roles"`
	Timers Timers       `json:"timers"`
}

// DefaultSettings returns the settings a new room starts with
func DefaultSettings() Settings {
	return Settings{
		Roles: map[Role]int{
			RoleImpostor: 1,
			RoleEngineer: 1,
			RoleDoctor:   1,
			RoleCitizen:  1,
		},
		Timers: Timers{
			Meeting: 120,
			Vote:    60,
			Break:   10,
		},
	}
}

// TotalRoles returns the sum of all configured role counts.
func (s Settings) TotalRoles() int {
	total := 0
	for _, n := range s.Roles {
		total += n
	}
	return total
}

// Validate checks the settings against the number of players about to play.
func (s Settings) Validate(playerCount int) error {
	for role, n := range s.Roles {
		if !role.Valid() || n < 0 {
			return ErrInvalidRole
		}
	}
	if s.Timers.Meeting <= 0 || s.Timers.Vote <= 0 || s.Timers.Break <= 0 {
		return ErrInvalidTimer
	}
	if s.Roles[RoleImpostor] < 1 {
		return ErrNoImpostor
	}
	if s.TotalRoles() != playerCount {
		return ErrRoleCountMismatch
	}
	return nil
}
