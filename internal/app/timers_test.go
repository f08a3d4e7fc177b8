package app_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crewmate/internal/domain"
	"crewmate/internal/store"
)

func shortTimers(f *fixture, meeting, vote, brk int) {
	f.t.Helper()
	settings := domain.DefaultSettings()
	settings.Timers = domain.Timers{Meeting: meeting, Vote: vote, Break: brk}
	require.NoError(f.t, f.host().UpdateSettings(f.ctx, settings))
}

func TestTimersDriveTimedPhases(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4, withTick(5*time.Millisecond))
	shortTimers(f, 20, 2, 2)
	f.startAndConfirm()

	require.Eventually(t, func() bool {
		return f.state().Phase == domain.PhaseVoteResult
	}, 2*time.Second, 5*time.Millisecond)

	state := f.state()
	require.Equal(t, domain.OutcomeNoVotes, state.Outcome)

	// the result screen is untimed
	require.Eventually(t, func() bool {
		_, err := f.eph.GetValue(f.ctx, store.TimerKey(f.code))
		return errors.Is(err, store.ErrNotFound)
	}, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool {
		return f.state().Phase != domain.PhaseVoteResult
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestTimerTicksAreWritten(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4)
	f.startAndConfirm()

	value, err := f.eph.GetValue(f.ctx, store.TimerKey(f.code))
	require.NoError(t, err)
	require.Equal(t, string(domain.TimerMeeting), value["phase"])
	remaining, err := store.ToInt64(value["remaining"])
	require.NoError(t, err)
	require.EqualValues(t, domain.DefaultSettings().Timers.Meeting, remaining)
}

func TestBreakTimerStartsNight(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4, withTick(5*time.Millisecond))
	shortTimers(f, 500, 500, 2)
	f.startAndConfirm()

	imp := f.byRole(domain.RoleImpostor)[0]
	eng := f.byRole(domain.RoleEngineer)[0]
	doc := f.byRole(domain.RoleDoctor)[0]
	cit := f.byRole(domain.RoleCitizen)[0]

	require.NoError(t, f.host().StartVoting(f.ctx))
	f.vote(map[string]string{imp: cit, eng: cit, doc: cit, cit: imp})
	require.NoError(t, f.host().ContinueFromVoteResult(f.ctx))
	require.Equal(t, domain.PhaseBreak, f.state().Phase)

	require.Eventually(t, func() bool {
		return f.state().Phase == domain.PhaseNightSpecial
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManualAdvanceCancelsCountdown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4, withTick(5*time.Millisecond))
	shortTimers(f, 4, 500, 500)
	f.startAndConfirm()

	require.NoError(t, f.host().Advance(f.ctx))
	require.Equal(t, domain.PhaseVoting, f.state().Phase)
	version := f.state().Version

	// the meeting countdown would have expired by now
	require.Never(t, func() bool {
		return f.state().Version != version
	}, 100*time.Millisecond, 5*time.Millisecond)
}

func TestResumeRestartsCountdown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4, withTick(5*time.Millisecond))
	shortTimers(f, 500, 500, 500)
	f.startAndConfirm()

	// the host's session goes away
	f.host().Close()
	f.mu.Lock()
	delete(f.engines, f.hostID)
	f.mu.Unlock()

	require.NoError(t, f.eph.SetValue(f.ctx, store.TimerKey(f.code), store.Data{
		"remaining": 2,
		"phase":     string(domain.TimerMeeting),
	}))

	require.NoError(t, f.host().Resume(f.ctx))
	require.Eventually(t, func() bool {
		return f.state().Phase != domain.PhaseMeetingDiscussion
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, domain.PhaseVoting, f.state().Phase)
}
