package domain

import "math/rand"

// Shuffler is the permutation source used for role decks. *rand.Rand
// satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

type globalShuffler struct{}

func (globalShuffler) Shuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}

// DefaultShuffler uses the package-level math/rand source.
var DefaultShuffler Shuffler = globalShuffler{}

// roleOrder fixes the expansion order of the deck before shuffling.
var roleOrder = Roles()

// AssignRoles expands role counts into a deck of exactly playerCount roles.
// Missing slots are filled with citizens; extra roles are dropped from the end.
func AssignRoles(playerCount int, roleCounts map[Role]int) []Role {
	if playerCount <= 0 {
		return []Role{}
	}

	deck := make([]Role, 0, playerCount)
	// Impostors first so truncation drops them last.
	ordered := append([]Role{RoleImpostor}, roleOrder...)
	seen := make(map[Role]bool, len(ordered))
	for _, role := range ordered {
		if seen[role] {
			continue
		}
		seen[role] = true
		for i := 0; i < roleCounts[role]; i++ {
			deck = append(deck, role)
		}
	}

	for len(deck) < playerCount {
		deck = append(deck, RoleCitizen)
	}
	return deck[:playerCount]
}

// ShuffleRoles permutes roles in place with a Fisher-Yates shuffle and
// returns them. Role i goes to player i.
func ShuffleRoles(roles []Role, s Shuffler) []Role {
	if s == nil {
		s = DefaultShuffler
	}
	s.Shuffle(len(roles), func(i, j int) {
		roles[i], roles[j] = roles[j], roles[i]
	})
	return roles
}

// DealRoles assigns a freshly shuffled deck to players in order.
func DealRoles(playerIDs []string, roleCounts map[Role]int, s Shuffler) map[string]Role {
	deck := ShuffleRoles(AssignRoles(len(playerIDs), roleCounts), s)
	dealt := make(map[string]Role, len(playerIDs))
	for i, id := range playerIDs {
		dealt[id] = deck[i]
	}
	return dealt
}
