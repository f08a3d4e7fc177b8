package app

import (
	"context"
	"errors"

	"crewmate/internal/domain"
	"crewmate/internal/store"
	"crewmate/internal/timer"
)

// timeoutAction returns what the host does when the countdown of a timed
// phase runs out.
func (e *Engine) timeoutAction(phase domain.Phase) (func(context.Context) error, bool) {
	switch phase {
	case domain.PhaseMeetingDiscussion:
		return e.startVoting, true
	case domain.PhaseVoting:
		return e.resolveVoting, true
	case domain.PhaseBreak:
		return e.startNight, true
	}
	return nil, false
}

// onEnter runs the side effects of entering a phase. Caller holds e.mu.
func (e *Engine) onEnter(ctx context.Context, phase domain.Phase) {
	e.stopCountdown()

	label, timed := phase.TimerPhase()
	if !timed {
		e.deleteTimer(ctx)
		if phase == domain.PhaseNightSpecial {
			// a night without living special roles moves straight on
			if err := e.checkSpecialActionsSubmitted(ctx); err != nil {
				e.logger.Warn("night check failed", "error", err)
			}
		}
		return
	}

	settings, err := e.settings(ctx)
	if err != nil {
		e.logger.Warn("timer settings unavailable", "error", err)
		settings = domain.DefaultSettings()
	}
	seconds := int(settings.Timers.Duration(label).Seconds())
	e.startCountdown(phase, label, seconds)
}

// startCountdown runs a countdown for phase. Caller holds e.mu.
func (e *Engine) startCountdown(phase domain.Phase, label domain.TimerPhase, seconds int) {
	var c *timer.Countdown
	ready := make(chan struct{})
	c = timer.Start(seconds, e.cfg.TickInterval,
		func(remaining int) {
			err := e.eph.SetValue(e.ctx, store.TimerKey(e.code), store.Data{
				"remaining": remaining,
				"phase":     label,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Warn("timer tick failed", "error", err)
			}
		},
		func() {
			<-ready
			e.expire(c, phase)
		},
	)
	e.countdown = c
	close(ready)
}

// expire applies the timeout action of phase exactly once. The countdown has
// already marked itself stopped, and a countdown that is no longer current
// does nothing.
func (e *Engine) expire(c *timer.Countdown, phase domain.Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.countdown != c {
		return
	}
	e.countdown = nil

	ctx := e.ctx
	if ctx.Err() != nil {
		return
	}
	state, err := e.CurrentState(ctx)
	if err != nil || state.Phase != phase {
		return
	}
	action, ok := e.timeoutAction(phase)
	if !ok {
		return
	}
	e.logger.Info("timer expired", "phase", phase)
	if err := action(ctx); err != nil {
		e.logger.Error("timeout action failed", "phase", phase, "error", err)
	}
}

// stopCountdown cancels the running countdown. Caller holds e.mu.
func (e *Engine) stopCountdown() {
	if e.countdown != nil {
		e.countdown.Stop()
		e.countdown = nil
	}
}

func (e *Engine) deleteTimer(ctx context.Context) {
	if err := e.eph.DeleteValue(ctx, store.TimerKey(e.code)); err != nil {
		e.logger.Warn("delete timer failed", "error", err)
	}
}

// Resume restarts the countdown of the current phase after the host's
// session was recreated. The stored remaining time is reused when it belongs
// to the same phase.
func (e *Engine) Resume(ctx context.Context) error {
	return e.hostOnly(ctx, func() error {
		state, err := e.CurrentState(ctx)
		if err != nil {
			return err
		}
		label, timed := state.Phase.TimerPhase()
		if !timed {
			if state.Phase == domain.PhaseNightSpecial {
				return e.checkSpecialActionsSubmitted(ctx)
			}
			return nil
		}

		settings, err := e.settings(ctx)
		if err != nil {
			return err
		}
		seconds := int(settings.Timers.Duration(label).Seconds())
		if value, err := e.eph.GetValue(ctx, store.TimerKey(e.code)); err == nil && value["phase"] == string(label) {
			if remaining, err := store.ToInt64(value["remaining"]); err == nil && remaining > 0 {
				seconds = int(remaining)
			}
		}
		e.stopCountdown()
		e.startCountdown(state.Phase, label, seconds)
		return nil
	})
}
