package domain

import "time"

// LeftPlayerName is shown in place of a player whose record no longer exists.
const LeftPlayerName = "(left the game)"

// Player represents a player in a room
type Player struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	IsHost            bool      `json:"isHost"`
	IsAlive           bool      `json:"isAlive"`
	Role              Role      `json:"role"` // empty until roles are assigned
	RoleReadConfirmed bool      `json:"roleReadConfirmed"`
	Connected         bool      `json:"connected"`
	JoinedAt          time.Time `json:"joinedAt"`
}

// NewPlayer creates a new player with the given ID and name
func NewPlayer(id, name string, isHost bool) *Player {
	return &Player{
		ID:        id,
		Name:      name,
		IsHost:    isHost,
		IsAlive:   true,
		Connected: true,
		JoinedAt:  time.Now().UTC(),
	}
}

// ResetForNewGame resets the player's per-game state
func (p *Player) ResetForNewGame() {
	p.IsAlive = true
	p.Role = ""
	p.RoleReadConfirmed = false
}

// HasRole reports whether a role has been assigned.
func (p *Player) HasRole() bool {
	return p.Role != ""
}

// PlayerInfo is a safe view of player data (hides role from other players)
type PlayerInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	IsHost            bool   `json:"isHost"`
	IsAlive           bool   `json:"isAlive"`
	RoleReadConfirmed bool   `json:"roleReadConfirmed"`
	Connected         bool   `json:"connected"`
}

// ToInfo converts a Player to PlayerInfo (without role)
func (p *Player) ToInfo() PlayerInfo {
	return PlayerInfo{
		ID:                p.ID,
		Name:              p.Name,
		IsHost:            p.IsHost,
		IsAlive:           p.IsAlive,
		RoleReadConfirmed: p.RoleReadConfirmed,
		Connected:         p.Connected,
	}
}

// Roster indexes players by ID.
type Roster map[string]Player

// NewRoster builds a roster from a player list.
func NewRoster(players []Player) Roster {
	roster := make(Roster, len(players))
	for _, p := range players {
		roster[p.ID] = p
	}
	return roster
}

// Alive returns the living players.
func (r Roster) Alive() []Player {
	alive := make([]Player, 0, len(r))
	for _, p := range r {
		if p.IsAlive {
			alive = append(alive, p)
		}
	}
	return alive
}

// NameOf returns the player's name, or the placeholder for a missing record.
func (r Roster) NameOf(id string) string {
	if p, ok := r[id]; ok {
		return p.Name
	}
	return LeftPlayerName
}
