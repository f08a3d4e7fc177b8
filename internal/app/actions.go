package app

import (
	"context"
	"errors"
	"fmt"

	"crewmate/internal/domain"
	"crewmate/internal/store"
)

// Player actions write only the acting player's own documents. Each one then
// runs the matching aggregation check; for anyone but the host that check is
// a no-op, and the host's own watchers cover the rest.

// ConfirmRole records that the player has read their role.
func (e *Engine) ConfirmRole(ctx context.Context) error {
	state, err := e.CurrentState(ctx)
	if err != nil {
		return err
	}
	if state.Phase != domain.PhaseRoleReveal {
		return domain.ErrInvalidPhase
	}
	id := e.identity.CurrentUserID()
	if _, err := e.player(ctx, id); err != nil {
		return err
	}
	if err := e.docs.Update(ctx, store.PlayerPath(e.code, id), store.Data{"roleReadConfirmed": true}); err != nil {
		return fmt.Errorf("confirm role: %w", err)
	}
	return e.CheckAllRolesConfirmed(ctx)
}

// CastVote records the player's vote for this round.
func (e *Engine) CastVote(ctx context.Context, targetID string) error {
	state, err := e.CurrentState(ctx)
	if err != nil {
		return err
	}
	if state.Phase != domain.PhaseVoting {
		return domain.ErrInvalidPhase
	}

	voterID := e.identity.CurrentUserID()
	voter, err := e.player(ctx, voterID)
	if err != nil {
		return err
	}
	if !voter.IsAlive {
		return domain.ErrPlayerDead
	}
	if targetID == voterID {
		return domain.ErrCannotVoteSelf
	}
	target, err := e.player(ctx, targetID)
	if errors.Is(err, domain.ErrPlayerNotFound) {
		return domain.ErrInvalidTargetID
	}
	if err != nil {
		return err
	}
	if !target.IsAlive {
		return domain.ErrInvalidTargetID
	}

	path := store.RoomDoc(e.code, store.CollectionVotes, voterID)
	if _, err := e.docs.Get(ctx, path); err == nil {
		return domain.ErrAlreadyVoted
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("read vote: %w", err)
	}

	data, err := store.Encode(domain.NewVote(voterID, targetID))
	if err != nil {
		return err
	}
	if err := e.docs.Set(ctx, path, data); err != nil {
		return fmt.Errorf("cast vote: %w", err)
	}
	return e.CheckAllVoted(ctx)
}

// SubmitNightAction records the player's action for the current night and
// returns what the player learns from it, if anything.
func (e *Engine) SubmitNightAction(ctx context.Context, targetID string) (*domain.NightReveal, error) {
	state, err := e.CurrentState(ctx)
	if err != nil {
		return nil, err
	}
	if !state.Phase.IsNight() {
		return nil, domain.ErrInvalidPhase
	}

	actorID := e.identity.CurrentUserID()
	actor, err := e.player(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAlive {
		return nil, domain.ErrPlayerDead
	}
	phase, ok := actor.Role.NightPhase()
	if !ok {
		return nil, domain.ErrNoNightAction
	}
	if state.Phase != phase {
		return nil, domain.ErrInvalidPhase
	}
	if targetID == actorID {
		return nil, domain.ErrInvalidTargetID
	}

	players, err := e.players(ctx)
	if err != nil {
		return nil, err
	}
	roster := domain.NewRoster(players)
	target, ok := roster[targetID]
	if !ok {
		return nil, domain.ErrInvalidTargetID
	}
	// the doctor examines the dead; everyone else acts on the living
	if (actor.Role == domain.RoleDoctor) == target.IsAlive {
		return nil, domain.ErrInvalidTargetID
	}

	path := store.RoomDoc(e.code, store.CollectionNightActions, actorID)
	if _, err := e.docs.Get(ctx, path); err == nil {
		return nil, domain.ErrAlreadyActed
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("read night action: %w", err)
	}

	action := domain.NightAction{
		ActorID:     actorID,
		Type:        actor.Role,
		TargetID:    targetID,
		SubmittedAt: e.now(),
	}
	data, err := store.Encode(action)
	if err != nil {
		return nil, err
	}
	if err := e.docs.Set(ctx, path, data); err != nil {
		return nil, fmt.Errorf("submit night action: %w", err)
	}

	var reveal *domain.NightReveal
	if r, ok := domain.RevealFor(action, roster); ok {
		reveal = &r
	}

	if phase == domain.PhaseNightSpecial {
		err = e.CheckSpecialActionsSubmitted(ctx)
	} else {
		err = e.CheckImpostorSubmitted(ctx)
	}
	return reveal, err
}

// Leave removes the player from the room. The host leaving closes the room.
func (e *Engine) Leave(ctx context.Context) error {
	host, err := e.IsHost(ctx)
	if err != nil {
		return err
	}
	if host {
		return e.CloseRoom(ctx)
	}

	id := e.identity.CurrentUserID()
	if err := e.docs.Delete(ctx, store.PlayerPath(e.code, id)); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	if err := e.eph.DeleteValue(ctx, store.PresenceKey(e.code, id)); err != nil {
		e.logger.Warn("delete presence failed", "error", err)
	}
	e.logger.Info("player left")
	return nil
}

// SetConnected flips the player's connected flag.
func (e *Engine) SetConnected(ctx context.Context, connected bool) error {
	err := e.docs.Update(ctx, store.PlayerPath(e.code, e.identity.CurrentUserID()), store.Data{"connected": connected})
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrPlayerNotFound
	}
	return err
}
