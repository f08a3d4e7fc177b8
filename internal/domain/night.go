package domain

import (
	"sort"
	"time"
)

// NightAction is one role's submission for the current night
type NightAction struct {
	ActorID     string    `json:"actorId"`
	Type        Role      `json:"type"`
	TargetID    string    `json:"targetId"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// DeathCause records why a player died
type DeathCause string

const (
	CauseVote     DeathCause = "vote"
	CauseImpostor DeathCause = "impostor"
	CauseBugDeath DeathCause = "bug_death"
)

// DeathLogEntry is written once per victim
type DeathLogEntry struct {
	Cause DeathCause `json:"cause"`
	Day   int        `json:"day"`
	Role  Role       `json:"role"`
}

// Victim is a player killed by a vote or during a night
type Victim struct {
	PlayerID string     `json:"playerId"`
	Name     string     `json:"name"`
	Role     Role       `json:"role"`
	Cause    DeathCause `json:"cause"`
}

// NightResult is the outcome of resolving one night
type NightResult struct {
	Victims []Victim `json:"victims"`

	// ImpostorTargetID is the binding impostor pick, empty when none was made.
	ImpostorTargetID string `json:"impostorTargetId,omitempty"`
	Protected        bool   `json:"protected"`
	BugImmune        bool   `json:"bugImmune"`
}

// IsVictim reports whether id already died this night.
func (r NightResult) IsVictim(id string) bool {
	for _, v := range r.Victims {
		if v.PlayerID == id {
			return true
		}
	}
	return false
}

// sortedActions orders actions by submission time, actor ID breaking ties.
func sortedActions(actions []NightAction) []NightAction {
	sorted := make([]NightAction, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].SubmittedAt.Equal(sorted[j].SubmittedAt) {
			return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt)
		}
		return sorted[i].ActorID < sorted[j].ActorID
	})
	return sorted
}

// BindingImpostorAction returns the earliest impostor submission. Later
// submissions from other impostors are ignored.
func BindingImpostorAction(actions []NightAction) (NightAction, bool) {
	for _, action := range sortedActions(actions) {
		if action.Type.IsImpostor() && action.TargetID != "" {
			return action, true
		}
	}
	return NightAction{}, false
}

// ResolveNight turns the night's actions into victims. Resolution order is
// fixed: engineer checks, impostor pick, impostor kill, doctor (never kills).
func ResolveNight(actions []NightAction, roster Roster) NightResult {
	result := NightResult{Victims: make([]Victim, 0)}
	ordered := sortedActions(actions)

	for _, action := range ordered {
		if action.Type != RoleEngineer {
			continue
		}
		target, ok := roster[action.TargetID]
		if !ok || !target.IsAlive || target.Role != RoleBug || result.IsVictim(target.ID) {
			continue
		}
		result.Victims = append(result.Victims, Victim{
			PlayerID: target.ID,
			Name:     target.Name,
			Role:     target.Role,
			Cause:    CauseBugDeath,
		})
	}

	kill, ok := BindingImpostorAction(ordered)
	if !ok {
		return result
	}
	result.ImpostorTargetID = kill.TargetID

	target, ok := roster[kill.TargetID]
	if !ok || !target.IsAlive || result.IsVictim(target.ID) {
		return result
	}
	for _, action := range ordered {
		if action.Type == RoleFallenAngel && action.TargetID == target.ID {
			result.Protected = true
			return result
		}
	}
	if target.Role == RoleBug {
		result.BugImmune = true
		return result
	}
	result.Victims = append(result.Victims, Victim{
		PlayerID: target.ID,
		Name:     target.Name,
		Role:     target.Role,
		Cause:    CauseImpostor,
	})
	return result
}

// NightReveal is the private information a special role learns from its action
type NightReveal struct {
	ActorID    string `json:"actorId"`
	Type       Role   `json:"type"`
	TargetID   string `json:"targetId"`
	TargetName string `json:"targetName"`

	// IsBug is set for engineer checks.
	IsBug bool `json:"isBug,omitempty"`
	// TargetRole is set for doctor checks of a dead player.
	TargetRole Role `json:"targetRole,omitempty"`
}

// RevealFor computes what the actor learns from its action. Only engineers
// and doctors learn anything.
func RevealFor(action NightAction, roster Roster) (NightReveal, bool) {
	target, ok := roster[action.TargetID]
	reveal := NightReveal{
		ActorID:    action.ActorID,
		Type:       action.Type,
		TargetID:   action.TargetID,
		TargetName: roster.NameOf(action.TargetID),
	}
	switch action.Type {
	case RoleEngineer:
		if !ok {
			return NightReveal{}, false
		}
		reveal.IsBug = target.Role == RoleBug
		return reveal, true
	case RoleDoctor:
		if !ok || target.IsAlive {
			return NightReveal{}, false
		}
		reveal.TargetRole = target.Role
		return reveal, true
	}
	return NightReveal{}, false
}
