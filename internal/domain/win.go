package domain

// FactionCount is the living head count used by the win check
type FactionCount struct {
	Impostors    int `json:"impostors"`
	NonImpostors int `json:"nonImpostors"`
	Bugs         int `json:"bugs"`
}

// CountLiving counts living players for the win check. Only the impostor role
// itself counts as an impostor; every other role except the bug counts
// against it. Players without a role are ignored.
func CountLiving(players []Player) FactionCount {
	var count FactionCount
	for _, p := range players {
		if !p.IsAlive || !p.HasRole() {
			continue
		}
		switch {
		case p.Role.IsImpostor():
			count.Impostors++
		case p.Role == RoleBug:
			count.Bugs++
		default:
			count.NonImpostors++
		}
	}
	return count
}

// EvaluateWinner decides whether the game is over. A living bug takes the
// win from whichever faction met its condition.
func EvaluateWinner(players []Player) (Faction, bool) {
	count := CountLiving(players)

	var winner Faction
	switch {
	case count.Impostors == 0:
		winner = FactionCitizen
	case count.Impostors >= count.NonImpostors:
		winner = FactionImpostor
	default:
		return "", false
	}

	if count.Bugs > 0 {
		return FactionBug, true
	}
	return winner, true
}
