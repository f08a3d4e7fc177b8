package domain

// Phase represents the current phase of a game
type Phase string

const (
	PhaseLobby               Phase = "LOBBY"                // Waiting for players to join
	PhaseRoleReveal          Phase = "ROLE_REVEAL"          // Players read their role and confirm
	PhaseMeetingDiscussion   Phase = "MEETING_DISCUSSION"   // Daytime discussion, timed
	PhaseVoting              Phase = "VOTING"               // Living players vote, timed
	PhaseVoteResult          Phase = "VOTE_RESULT"          // Tie or elimination is shown
	PhaseBreak               Phase = "BREAK"                // Short pause before night, timed
	PhaseNightSpecial        Phase = "NIGHT_SPECIAL"        // Engineer, doctor and fallen angel act
	PhaseNightImpostor       Phase = "NIGHT_IMPOSTOR"       // Impostors pick a victim
	PhaseMorningAnnouncement Phase = "MORNING_ANNOUNCEMENT" // Night victims are announced
	PhaseGameResult          Phase = "GAME_RESULT"          // Winner is shown until reset
)

// transitions is the complete host-driven transition table. Reset back to
// LOBBY is not a transition; it overwrites the record.
var transitions = map[Phase][]Phase{
	PhaseLobby:               {PhaseRoleReveal},
	PhaseRoleReveal:          {PhaseMeetingDiscussion},
	PhaseMeetingDiscussion:   {PhaseVoting},
	PhaseVoting:              {PhaseVoteResult},
	PhaseVoteResult:          {PhaseMeetingDiscussion, PhaseBreak, PhaseGameResult},
	PhaseBreak:               {PhaseNightSpecial},
	PhaseNightSpecial:        {PhaseNightImpostor},
	PhaseNightImpostor:       {PhaseMorningAnnouncement},
	PhaseMorningAnnouncement: {PhaseMeetingDiscussion, PhaseGameResult},
	PhaseGameResult:          {},
}

// Phases returns every phase in game order.
func Phases() []Phase {
	return []Phase{
		PhaseLobby,
		PhaseRoleReveal,
		PhaseMeetingDiscussion,
		PhaseVoting,
		PhaseVoteResult,
		PhaseBreak,
		PhaseNightSpecial,
		PhaseNightImpostor,
		PhaseMorningAnnouncement,
		PhaseGameResult,
	}
}

// String returns the string representation of the phase
func (p Phase) String() string {
	return string(p)
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	_, ok := transitions[p]
	return ok
}

// IsTerminal reports whether the phase only exits through a reset.
func (p Phase) IsTerminal() bool {
	return p == PhaseGameResult
}

// IsNight reports whether the phase belongs to the night sequence.
func (p Phase) IsNight() bool {
	return p == PhaseNightSpecial || p == PhaseNightImpostor
}

// CanTransitionTo checks if a transition from current phase to target phase is valid
func (p Phase) CanTransitionTo(target Phase) bool {
	for _, phase := range transitions[p] {
		if phase == target {
			return true
		}
	}
	return false
}

// TimerPhase is the countdown label attached to timed phases.
type TimerPhase string

const (
	TimerMeeting TimerPhase = "meeting"
	TimerVoting  TimerPhase = "voting"
	TimerBreak   TimerPhase = "break"
)

// TimerPhase returns the countdown that runs while p is active, if any.
func (p Phase) TimerPhase() (TimerPhase, bool) {
	switch p {
	case PhaseMeetingDiscussion:
		return TimerMeeting, true
	case PhaseVoting:
		return TimerVoting, true
	case PhaseBreak:
		return TimerBreak, true
	}
	return "", false
}
