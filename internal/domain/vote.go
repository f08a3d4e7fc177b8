package domain

import (
	"sort"
	"time"
)

// Vote represents a vote cast by a player
type Vote struct {
	VoterID   string    `json:"voterId"`
	TargetID  string    `json:"targetId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewVote creates a new vote
func NewVote(voterID, targetID string) *Vote {
	return &Vote{
		VoterID:   voterID,
		TargetID:  targetID,
		Timestamp: time.Now().UTC(),
	}
}

// VoteHistoryEntry is one archived vote from a round that ended with a kill
type VoteHistoryEntry struct {
	Day      int    `json:"day"`
	VoterID  string `json:"voterId"`
	TargetID string `json:"targetId"`
}

// VoteOutcome is the result kind of a voting round
type VoteOutcome string

const (
	OutcomeKilled  VoteOutcome = "killed"
	OutcomeTie     VoteOutcome = "tie"
	OutcomeNoVotes VoteOutcome = "no_votes"
)

// Tally is the counted result of one voting round
type Tally struct {
	Counts  map[string]int `json:"counts"`
	Max     int            `json:"max"`
	Targets []string       `json:"targets"` // every target holding Max votes, sorted
	Outcome VoteOutcome    `json:"outcome"`
}

// KilledID returns the eliminated player when the round produced a kill.
func (t Tally) KilledID() (string, bool) {
	if t.Outcome != OutcomeKilled {
		return "", false
	}
	return t.Targets[0], true
}

// TallyVotes counts votes (voter ID -> target ID) and finds the plurality.
func TallyVotes(votes map[string]string) Tally {
	counts := make(map[string]int)
	for _, targetID := range votes {
		if targetID == "" {
			continue
		}
		counts[targetID]++
	}

	maxVotes := 0
	targets := make([]string, 0)
	for targetID, count := range counts {
		switch {
		case count > maxVotes:
			maxVotes = count
			targets = []string{targetID}
		case count == maxVotes:
			targets = append(targets, targetID)
		}
	}
	sort.Strings(targets)

	tally := Tally{
		Counts:  counts,
		Max:     maxVotes,
		Targets: targets,
	}
	switch len(targets) {
	case 0:
		tally.Outcome = OutcomeNoVotes
	case 1:
		tally.Outcome = OutcomeKilled
	default:
		tally.Outcome = OutcomeTie
	}
	return tally
}

// VoteResult represents the voting results for display
type VoteResult struct {
	PlayerID  string   `json:"playerId"`
	Name      string   `json:"name"`
	VoteCount int      `json:"voteCount"`
	VotedBy   []string `json:"votedBy"` // names of voters
}

// Results builds the per-target display rows, most votes first.
func (t Tally) Results(votes map[string]string, roster Roster) []VoteResult {
	voters := make(map[string][]string)
	for voterID, targetID := range votes {
		voters[targetID] = append(voters[targetID], roster.NameOf(voterID))
	}

	results := make([]VoteResult, 0, len(t.Counts))
	for targetID, count := range t.Counts {
		names := voters[targetID]
		sort.Strings(names)
		results = append(results, VoteResult{
			PlayerID:  targetID,
			Name:      roster.NameOf(targetID),
			VoteCount: count,
			VotedBy:   names,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].VoteCount != results[j].VoteCount {
			return results[i].VoteCount > results[j].VoteCount
		}
		return results[i].PlayerID < results[j].PlayerID
	})
	return results
}
