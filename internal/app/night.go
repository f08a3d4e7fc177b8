package app

import (
	"context"
	"fmt"

	"crewmate/internal/domain"
	"crewmate/internal/store"
)

// StartNight ends the break. Night actions of the previous night are cleared
// first.
func (e *Engine) StartNight(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		return e.startNight(ctx)
	})
}

func (e *Engine) startNight(ctx context.Context) error {
	state, err := e.CurrentState(ctx)
	if err != nil || state.Phase != domain.PhaseBreak {
		return err
	}
	e.clearCollections(ctx, store.CollectionNightActions)
	_, err = e.advance(ctx, domain.PhaseBreak, domain.PhaseNightSpecial, domain.Payload{domain.KeyDay: state.Day})
	return err
}

// CheckSpecialActionsSubmitted hands the night to the impostors once every
// living engineer, doctor and fallen angel has acted. A doctor counts only
// while a dead player is left to examine.
func (e *Engine) CheckSpecialActionsSubmitted(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		return e.checkSpecialActionsSubmitted(ctx)
	})
}

func (e *Engine) checkSpecialActionsSubmitted(ctx context.Context) error {
	state, err := e.CurrentState(ctx)
	if err != nil || state.Phase != domain.PhaseNightSpecial {
		return err
	}
	players, err := e.players(ctx)
	if err != nil {
		return err
	}
	actions, err := e.nightActions(ctx)
	if err != nil {
		return err
	}
	submitted := make(map[string]bool, len(actions))
	for _, a := range actions {
		submitted[a.ActorID] = true
	}
	alive := domain.NewRoster(players).Alive()
	// the doctor examines the dead; with no dead record left there is nothing
	// to submit
	bodies := len(alive) < len(players)
	for _, p := range alive {
		if !p.Role.IsSpecialNightActor() || submitted[p.ID] {
			continue
		}
		if p.Role == domain.RoleDoctor && !bodies {
			continue
		}
		return nil
	}
	_, err = e.advance(ctx, domain.PhaseNightSpecial, domain.PhaseNightImpostor, domain.Payload{domain.KeyDay: state.Day})
	return err
}

// CheckImpostorSubmitted resolves the night as soon as a living impostor has
// picked a target. With several impostors the first pick is binding.
func (e *Engine) CheckImpostorSubmitted(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		return e.checkImpostorSubmitted(ctx)
	})
}

func (e *Engine) checkImpostorSubmitted(ctx context.Context) error {
	state, err := e.CurrentState(ctx)
	if err != nil || state.Phase != domain.PhaseNightImpostor {
		return err
	}
	players, err := e.players(ctx)
	if err != nil {
		return err
	}
	actions, err := e.nightActions(ctx)
	if err != nil {
		return err
	}
	roster := domain.NewRoster(players)
	for _, a := range actions {
		actor, ok := roster[a.ActorID]
		if a.Type.IsImpostor() && ok && actor.IsAlive && actor.Role.IsImpostor() {
			return e.resolveNight(ctx)
		}
	}
	return nil
}

// ResolveNight applies the night's actions and announces the morning.
func (e *Engine) ResolveNight(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		return e.resolveNight(ctx)
	})
}

func (e *Engine) resolveNight(ctx context.Context) error {
	state, err := e.CurrentState(ctx)
	if err != nil || state.Phase != domain.PhaseNightImpostor {
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
	actions, err := e.nightActions(ctx)
	if err != nil {
		return err
	}

	roster := domain.NewRoster(players)
	result := domain.ResolveNight(actions, roster)

	victims := make([]domain.Victim, 0, len(result.Victims))
	for _, v := range result.Victims {
		victim, err := e.killPlayer(ctx, roster, v.PlayerID, v.Cause, room.Day)
		if err != nil {
			return err
		}
		victims = append(victims, victim)
	}

	if err := e.docs.Update(ctx, store.RoomPath(e.code), store.Data{"day": store.IncrementBy(1)}); err != nil {
		return fmt.Errorf("advance day: %w", err)
	}
	day := room.Day + 1

	var winner domain.Faction
	if len(victims) > 0 {
		winner, _ = domain.EvaluateWinner(rosterList(roster))
	}

	e.logger.Info("night resolved",
		"victims", len(victims),
		"protected", result.Protected,
		"bugImmune", result.BugImmune,
		"winner", winner,
	)
	_, err = e.advance(ctx, domain.PhaseNightImpostor, domain.PhaseMorningAnnouncement,
		domain.MorningPayload(day, victims, winner))
	return err
}

// ContinueFromMorning ends the game on a winner or opens the day's meeting.
func (e *Engine) ContinueFromMorning(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		return e.continueFromMorning(ctx)
	})
}

func (e *Engine) continueFromMorning(ctx context.Context) error {
	state, err := e.CurrentState(ctx)
	if err != nil || state.Phase != domain.PhaseMorningAnnouncement {
		return err
	}
	if state.HasWinner() {
		return e.finishGame(ctx, domain.PhaseMorningAnnouncement, state.Winner)
	}
	_, err = e.advance(ctx, domain.PhaseMorningAnnouncement, domain.PhaseMeetingDiscussion, domain.Payload{domain.KeyDay: state.Day})
	return err
}

func (e *Engine) finishGame(ctx context.Context, from domain.Phase, winner domain.Faction) error {
	players, err := e.players(ctx)
	if err != nil {
		return err
	}
	e.logger.Info("game over", "winner", winner)
	_, err = e.advance(ctx, from, domain.PhaseGameResult, domain.GameResultPayload(winner, players))
	return err
}

func (e *Engine) nightActions(ctx context.Context) ([]domain.NightAction, error) {
	docs, err := e.docs.List(ctx, store.RoomCollection(e.code, store.CollectionNightActions))
	if err != nil {
		return nil, fmt.Errorf("list night actions: %w", err)
	}
	actions := make([]domain.NightAction, 0, len(docs))
	for _, doc := range docs {
		var a domain.NightAction
		if err := store.Decode(doc.Data, &a); err != nil {
			return nil, err
		}
		if a.ActorID == "" {
			a.ActorID = doc.ID
		}
		actions = append(actions, a)
	}
	return actions, nil
}
