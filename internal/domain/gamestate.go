package domain

import "time"

// Payload keys written next to the phase. Clients must only read the keys
// documented for the phase they are in; older keys may linger after a merge.
const (
	KeyPhase        = "phase"
	KeyVersion      = "version"
	KeyTransitionID = "transitionId"
	KeyHostUID      = "hostUid"
	KeyUpdatedAt    = "updatedAt"
	KeyDay          = "day"
	KeyOutcome      = "outcome" // VOTE_RESULT
	KeyTiedIDs      = "tiedIds" // VOTE_RESULT on tie
	KeyKilled       = "killed"  // VOTE_RESULT on kill
	KeyResults      = "results" // VOTE_RESULT
	KeyVictims      = "victims" // MORNING_ANNOUNCEMENT
	KeyWinner       = "winner"  // VOTE_RESULT, MORNING_ANNOUNCEMENT, GAME_RESULT
	KeyRoles        = "roles"   // GAME_RESULT
)

// GameState is the single authoritative phase record of a room
type GameState struct {
	Phase        Phase     `json:"phase"`
	Version      int64     `json:"version"`
	TransitionID string    `json:"transitionId"`
	HostUID      string    `json:"hostUid"`
	UpdatedAt    time.Time `json:"updatedAt"`

	Day     int             `json:"day,omitempty"`
	Outcome VoteOutcome     `json:"outcome,omitempty"`
	TiedIDs []string        `json:"tiedIds,omitempty"`
	Killed  *Victim         `json:"killed,omitempty"`
	Results []VoteResult    `json:"results,omitempty"`
	Victims []Victim        `json:"victims,omitempty"`
	Winner  Faction         `json:"winner,omitempty"`
	Roles   map[string]Role `json:"roles,omitempty"`
}

// InitialGameState is the record a room is seeded with and reset to.
func InitialGameState(hostID string) GameState {
	return GameState{
		Phase:   PhaseLobby,
		Version: 0,
		HostUID: hostID,
	}
}

// HasWinner reports whether the record carries a decided winner.
func (s GameState) HasWinner() bool {
	return s.Winner != ""
}

// Payload is the phase-specific part of a phase write.
type Payload map[string]any

// VoteResultPayload describes the outcome of a voting round, with the
// per-target breakdown of who voted for whom.
func VoteResultPayload(day int, tally Tally, results []VoteResult, killed *Victim, winner Faction) Payload {
	if results == nil {
		results = []VoteResult{}
	}
	payload := Payload{
		KeyDay:     day,
		KeyOutcome: tally.Outcome,
		KeyTiedIDs: []string{},
		KeyKilled:  nil,
		KeyResults: results,
		KeyWinner:  winner,
	}
	if tally.Outcome == OutcomeTie {
		payload[KeyTiedIDs] = tally.Targets
	}
	if killed != nil {
		payload[KeyKilled] = *killed
	}
	return payload
}

// MorningPayload describes the result of a night.
func MorningPayload(day int, victims []Victim, winner Faction) Payload {
	if victims == nil {
		victims = []Victim{}
	}
	return Payload{
		KeyDay:     day,
		KeyVictims: victims,
		KeyWinner:  winner,
	}
}

// GameResultPayload reveals the winner and every role.
func GameResultPayload(winner Faction, players []Player) Payload {
	roles := make(map[string]Role, len(players))
	for _, p := range players {
		roles[p.ID] = p.Role
	}
	return Payload{
		KeyWinner: winner,
		KeyRoles:  roles,
	}
}
