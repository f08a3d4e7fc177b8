package app

import (
	"context"

	"crewmate/internal/domain"
)

// CheckAllRolesConfirmed opens the first meeting once every player has read
// their role.
func (e *Engine) CheckAllRolesConfirmed(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		return e.checkAllRolesConfirmed(ctx)
	})
}

func (e *Engine) checkAllRolesConfirmed(ctx context.Context) error {
	state, err := e.CurrentState(ctx)
	if err != nil || state.Phase != domain.PhaseRoleReveal {
		return err
	}
	players, err := e.players(ctx)
	if err != nil {
		return err
	}
	if len(players) == 0 {
		return nil
	}
	for _, p := range players {
		if !p.RoleReadConfirmed {
			return nil
		}
	}
	return e.startMeeting(ctx)
}

func (e *Engine) startMeeting(ctx context.Context) error {
	state, err := e.CurrentState(ctx)
	if err != nil || state.Phase != domain.PhaseRoleReveal {
		return err
	}
	_, err = e.advance(ctx, domain.PhaseRoleReveal, domain.PhaseMeetingDiscussion, domain.Payload{domain.KeyDay: state.Day})
	return err
}

// Advance is the host's "next" control: it applies whatever the current
// phase would do on its own once everyone acted or its timer ran out.
func (e *Engine) Advance(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		state, err := e.CurrentState(ctx)
		if err != nil {
			return err
		}
		e.stopCountdown()

		switch state.Phase {
		case domain.PhaseRoleReveal:
			return e.startMeeting(ctx)
		case domain.PhaseMeetingDiscussion:
			return e.startVoting(ctx)
		case domain.PhaseVoting:
			return e.resolveVoting(ctx)
		case domain.PhaseVoteResult:
			return e.continueFromVoteResult(ctx)
		case domain.PhaseBreak:
			return e.startNight(ctx)
		case domain.PhaseNightSpecial:
			_, err := e.advance(ctx, domain.PhaseNightSpecial, domain.PhaseNightImpostor, domain.Payload{domain.KeyDay: state.Day})
			return err
		case domain.PhaseNightImpostor:
			return e.resolveNight(ctx)
		case domain.PhaseMorningAnnouncement:
			return e.continueFromMorning(ctx)
		case domain.PhaseLobby, domain.PhaseGameResult:
			return domain.ErrInvalidPhase
		}
		return domain.ErrInvalidPhase
	})
}
