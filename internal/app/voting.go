package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"crewmate/internal/domain"
	"crewmate/internal/store"
)

// StartVoting ends the discussion and opens a fresh voting round.
func (e *Engine) StartVoting(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		return e.startVoting(ctx)
	})
}

func (e *Engine) startVoting(ctx context.Context) error {
	state, err := e.CurrentState(ctx)
	if err != nil || state.Phase != domain.PhaseMeetingDiscussion {
		return err
	}
	e.clearCollections(ctx, store.CollectionVotes)
	_, err = e.advance(ctx, domain.PhaseMeetingDiscussion, domain.PhaseVoting, domain.Payload{domain.KeyDay: state.Day})
	return err
}

// CheckAllVoted resolves the round once every living player has voted.
func (e *Engine) CheckAllVoted(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		return e.checkAllVoted(ctx)
	})
}

func (e *Engine) checkAllVoted(ctx context.Context) error {
	state, err := e.CurrentState(ctx)
	if err != nil || state.Phase != domain.PhaseVoting {
		return err
	}
	players, err := e.players(ctx)
	if err != nil {
		return err
	}
	votes, err := e.votes(ctx)
	if err != nil {
		return err
	}
	for _, p := range domain.NewRoster(players).Alive() {
		if _, ok := votes[p.ID]; !ok {
			return nil
		}
	}
	return e.resolveVoting(ctx)
}

// ResolveVoting tallies the round and publishes the result.
func (e *Engine) ResolveVoting(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		return e.resolveVoting(ctx)
	})
}

func (e *Engine) resolveVoting(ctx context.Context) error {
	state, err := e.CurrentState(ctx)
	if err != nil || state.Phase != domain.PhaseVoting {
		return err
	}
	room, err := e.room(ctx)
	if err != nil {
		return err
	}
	players, err := e.players(ctx)
	if err != nil {
		return err
	}
	votes, err := e.votes(ctx)
	if err != nil {
		return err
	}

	roster := domain.NewRoster(players)
	tally := domain.TallyVotes(votes)
	results := tally.Results(votes, roster)

	var killed *domain.Victim
	if id, ok := tally.KilledID(); ok {
		victim, err := e.killPlayer(ctx, roster, id, domain.CauseVote, room.Day)
		if err != nil {
			return err
		}
		killed = &victim
		e.archiveVotes(ctx, votes, room.Day)
		e.clearCollections(ctx, store.CollectionVotes)
	}

	var winner domain.Faction
	if killed != nil {
		winner, _ = domain.EvaluateWinner(rosterList(roster))
	}

	e.logger.Info("voting resolved", "outcome", tally.Outcome, "targets", tally.Targets, "winner", winner)
	_, err = e.advance(ctx, domain.PhaseVoting, domain.PhaseVoteResult,
		domain.VoteResultPayload(room.Day, tally, results, killed, winner))
	return err
}

// ContinueFromVoteResult leaves the result screen: a winner ends the game, a
// kill leads into the break, anything else repeats the discussion.
func (e *Engine) ContinueFromVoteResult(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		return e.continueFromVoteResult(ctx)
	})
}

func (e *Engine) continueFromVoteResult(ctx context.Context) error {
	state, err := e.CurrentState(ctx)
	if err != nil || state.Phase != domain.PhaseVoteResult {
		return err
	}
	switch {
	case state.HasWinner():
		return e.finishGame(ctx, domain.PhaseVoteResult, state.Winner)
	case state.Outcome == domain.OutcomeKilled:
		_, err = e.advance(ctx, domain.PhaseVoteResult, domain.PhaseBreak, domain.Payload{domain.KeyDay: state.Day})
	default:
		e.clearCollections(ctx, store.CollectionVotes)
		_, err = e.advance(ctx, domain.PhaseVoteResult, domain.PhaseMeetingDiscussion, domain.Payload{domain.KeyDay: state.Day})
	}
	return err
}

func (e *Engine) votes(ctx context.Context) (map[string]string, error) {
	docs, err := e.docs.List(ctx, store.RoomCollection(e.code, store.CollectionVotes))
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	votes := make(map[string]string, len(docs))
	for _, doc := range docs {
		var v domain.Vote
		if err := store.Decode(doc.Data, &v); err != nil {
			return nil, err
		}
		votes[doc.ID] = v.TargetID
	}
	return votes, nil
}

// archiveVotes copies the round's votes into the vote history. Failures are
// logged; the round is already decided.
func (e *Engine) archiveVotes(ctx context.Context, votes map[string]string, day int) {
	for voterID, targetID := range votes {
		data, err := store.Encode(domain.VoteHistoryEntry{Day: day, VoterID: voterID, TargetID: targetID})
		if err == nil {
			err = e.docs.Set(ctx, store.RoomDoc(e.code, store.CollectionVoteHistory, uuid.NewString()), data)
		}
		if err != nil {
			e.logger.Warn("archive vote failed", "voterID", voterID, "error", err)
		}
	}
}

// killPlayer marks a player dead and logs the death. A player whose record
// is gone is still reported, under the placeholder name. roster is updated
// in place.
func (e *Engine) killPlayer(ctx context.Context, roster domain.Roster, id string, cause domain.DeathCause, day int) (domain.Victim, error) {
	p, ok := roster[id]
	if !ok {
		e.logger.Warn("killed player has left", "victimID", id)
		return domain.Victim{PlayerID: id, Name: domain.LeftPlayerName, Cause: cause}, nil
	}

	p.IsAlive = false
	roster[id] = p
	if err := e.docs.Update(ctx, store.PlayerPath(e.code, id), store.Data{"isAlive": false}); err != nil {
		e.logger.Warn("mark player dead failed", "victimID", id, "error", err)
	}

	entry, err := store.Encode(domain.DeathLogEntry{Cause: cause, Day: day, Role: p.Role})
	if err != nil {
		return domain.Victim{}, err
	}
	if err := e.docs.Set(ctx, store.RoomDoc(e.code, store.CollectionDeathLog, id), entry); err != nil {
		e.logger.Warn("death log failed", "victimID", id, "error", err)
	}
	return domain.Victim{PlayerID: id, Name: p.Name, Role: p.Role, Cause: cause}, nil
}

func rosterList(roster domain.Roster) []domain.Player {
	players := make([]domain.Player, 0, len(roster))
	for _, p := range roster {
		players = append(players, p)
	}
	return players
}
