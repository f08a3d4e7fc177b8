package app_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crewmate/internal/app"
	"crewmate/internal/domain"
	"crewmate/internal/store"
)

func TestFullGameCitizensWin(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	f.setRoles(map[domain.Role]int{
		domain.RoleImpostor: 1,
		domain.RoleEngineer: 1,
		domain.RoleDoctor:   1,
		domain.RoleCitizen:  2,
	})
	f.startAndConfirm()

	imp := f.byRole(domain.RoleImpostor)[0]
	eng := f.byRole(domain.RoleEngineer)[0]
	doc := f.byRole(domain.RoleDoctor)[0]
	citizens := f.byRole(domain.RoleCitizen)
	require.Len(t, citizens, 2)
	c0, c1 := citizens[0], citizens[1]

	require.ErrorIs(t, f.engine(c0).CastVote(f.ctx, imp), domain.ErrInvalidPhase)
	_, err := f.engine(c1).SubmitNightAction(f.ctx, imp)
	require.ErrorIs(t, err, domain.ErrInvalidPhase)

	// day 1: the town eliminates a citizen
	require.NoError(t, f.host().StartVoting(f.ctx))
	require.Equal(t, domain.PhaseVoting, f.state().Phase)
	require.ErrorIs(t, f.engine(c0).CastVote(f.ctx, c0), domain.ErrCannotVoteSelf)
	f.vote(map[string]string{imp: c0, eng: c0, doc: c0, c1: c0, c0: imp})

	state := f.state()
	require.Equal(t, domain.PhaseVoteResult, state.Phase)
	require.Equal(t, domain.OutcomeKilled, state.Outcome)
	require.NotNil(t, state.Killed)
	require.Equal(t, c0, state.Killed.PlayerID)
	require.Equal(t, domain.RoleCitizen, state.Killed.Role)
	require.False(t, state.HasWinner())
	require.False(t, f.playerByID(c0).IsAlive)
	require.Len(t, state.Results, 2)
	require.Equal(t, c0, state.Results[0].PlayerID)
	require.Equal(t, 4, state.Results[0].VoteCount)
	require.Len(t, state.Results[0].VotedBy, 4)
	require.Equal(t, imp, state.Results[1].PlayerID)
	require.Equal(t, 1, state.Results[1].VoteCount)

	history, err := f.docs.List(f.ctx, store.RoomCollection(f.code, store.CollectionVoteHistory))
	require.NoError(t, err)
	require.Len(t, history, 5)
	votes, err := f.docs.List(f.ctx, store.RoomCollection(f.code, store.CollectionVotes))
	require.NoError(t, err)
	require.Empty(t, votes)
	deaths, err := f.docs.List(f.ctx, store.RoomCollection(f.code, store.CollectionDeathLog))
	require.NoError(t, err)
	require.Len(t, deaths, 1)

	require.NoError(t, f.host().ContinueFromVoteResult(f.ctx))
	require.Equal(t, domain.PhaseBreak, f.state().Phase)
	require.NoError(t, f.host().StartNight(f.ctx))
	require.Equal(t, domain.PhaseNightSpecial, f.state().Phase)

	// night 1
	_, err = f.engine(c1).SubmitNightAction(f.ctx, imp)
	require.ErrorIs(t, err, domain.ErrNoNightAction)
	_, err = f.engine(imp).SubmitNightAction(f.ctx, c1)
	require.ErrorIs(t, err, domain.ErrInvalidPhase)
	_, err = f.engine(eng).SubmitNightAction(f.ctx, c0)
	require.ErrorIs(t, err, domain.ErrInvalidTargetID)
	_, err = f.engine(doc).SubmitNightAction(f.ctx, c1)
	require.ErrorIs(t, err, domain.ErrInvalidTargetID)

	reveal, err := f.engine(eng).SubmitNightAction(f.ctx, imp)
	require.NoError(t, err)
	require.NotNil(t, reveal)
	require.False(t, reveal.IsBug)
	_, err = f.engine(eng).SubmitNightAction(f.ctx, doc)
	require.ErrorIs(t, err, domain.ErrAlreadyActed)

	reveal, err = f.engine(doc).SubmitNightAction(f.ctx, c0)
	require.NoError(t, err)
	require.NotNil(t, reveal)
	require.Equal(t, domain.RoleCitizen, reveal.TargetRole)

	require.NoError(t, f.host().CheckSpecialActionsSubmitted(f.ctx))
	require.Equal(t, domain.PhaseNightImpostor, f.state().Phase)

	reveal, err = f.engine(imp).SubmitNightAction(f.ctx, c1)
	require.NoError(t, err)
	require.Nil(t, reveal)
	require.NoError(t, f.host().CheckImpostorSubmitted(f.ctx))

	state = f.state()
	require.Equal(t, domain.PhaseMorningAnnouncement, state.Phase)
	require.Equal(t, 2, state.Day)
	require.Len(t, state.Victims, 1)
	require.Equal(t, c1, state.Victims[0].PlayerID)
	require.Equal(t, domain.CauseImpostor, state.Victims[0].Cause)
	require.False(t, state.HasWinner())
	require.Equal(t, 2, f.room().Day)

	require.NoError(t, f.host().ContinueFromMorning(f.ctx))
	state = f.state()
	require.Equal(t, domain.PhaseMeetingDiscussion, state.Phase)
	require.Equal(t, 2, state.Day)

	// day 2: the impostor is caught
	require.NoError(t, f.host().StartVoting(f.ctx))
	require.ErrorIs(t, f.engine(c0).CastVote(f.ctx, imp), domain.ErrPlayerDead)
	require.ErrorIs(t, f.engine(eng).CastVote(f.ctx, c1), domain.ErrInvalidTargetID)
	require.NoError(t, f.engine(eng).CastVote(f.ctx, imp))
	require.ErrorIs(t, f.engine(eng).CastVote(f.ctx, doc), domain.ErrAlreadyVoted)
	f.vote(map[string]string{doc: imp, imp: eng})

	state = f.state()
	require.Equal(t, domain.PhaseVoteResult, state.Phase)
	require.Equal(t, imp, state.Killed.PlayerID)
	require.Equal(t, domain.FactionCitizen, state.Winner)

	require.NoError(t, f.host().ContinueFromVoteResult(f.ctx))
	state = f.state()
	require.Equal(t, domain.PhaseGameResult, state.Phase)
	require.Equal(t, domain.FactionCitizen, state.Winner)
	require.Len(t, state.Roles, 5)
	require.Equal(t, domain.RoleImpostor, state.Roles[imp])
}

func TestFullGameImpostorWins(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4)
	f.startAndConfirm()

	imp := f.byRole(domain.RoleImpostor)[0]
	eng := f.byRole(domain.RoleEngineer)[0]
	doc := f.byRole(domain.RoleDoctor)[0]
	cit := f.byRole(domain.RoleCitizen)[0]

	require.NoError(t, f.host().StartVoting(f.ctx))
	f.vote(map[string]string{imp: cit, eng: cit, doc: cit, cit: imp})
	require.Equal(t, cit, f.state().Killed.PlayerID)

	require.NoError(t, f.host().ContinueFromVoteResult(f.ctx))
	require.NoError(t, f.host().StartNight(f.ctx))
	_, err := f.engine(eng).SubmitNightAction(f.ctx, doc)
	require.NoError(t, err)
	_, err = f.engine(doc).SubmitNightAction(f.ctx, cit)
	require.NoError(t, err)
	require.NoError(t, f.host().CheckSpecialActionsSubmitted(f.ctx))

	_, err = f.engine(imp).SubmitNightAction(f.ctx, eng)
	require.NoError(t, err)
	require.NoError(t, f.host().CheckImpostorSubmitted(f.ctx))

	state := f.state()
	require.Equal(t, domain.PhaseMorningAnnouncement, state.Phase)
	require.Equal(t, domain.FactionImpostor, state.Winner)

	require.NoError(t, f.host().ContinueFromMorning(f.ctx))
	state = f.state()
	require.Equal(t, domain.PhaseGameResult, state.Phase)
	require.Equal(t, domain.FactionImpostor, state.Winner)
}

func TestTieRepeatsDiscussion(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4)
	f.startAndConfirm()

	require.NoError(t, f.host().StartVoting(f.ctx))
	a, b, c, d := f.ids[0], f.ids[1], f.ids[2], f.ids[3]
	f.vote(map[string]string{a: c, b: c, c: a, d: a})

	state := f.state()
	require.Equal(t, domain.PhaseVoteResult, state.Phase)
	require.Equal(t, domain.OutcomeTie, state.Outcome)
	require.ElementsMatch(t, []string{a, c}, state.TiedIDs)
	require.Nil(t, state.Killed)

	require.NoError(t, f.host().ContinueFromVoteResult(f.ctx))
	state = f.state()
	require.Equal(t, domain.PhaseMeetingDiscussion, state.Phase)
	require.Equal(t, 1, state.Day)

	votes, err := f.docs.List(f.ctx, store.RoomCollection(f.code, store.CollectionVotes))
	require.NoError(t, err)
	require.Empty(t, votes)
	for _, id := range f.ids {
		require.True(t, f.playerByID(id).IsAlive)
	}
}

func TestAdvanceWithoutVotes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4)
	f.startAndConfirm()

	require.NoError(t, f.host().Advance(f.ctx))
	require.Equal(t, domain.PhaseVoting, f.state().Phase)
	require.NoError(t, f.host().Advance(f.ctx))

	state := f.state()
	require.Equal(t, domain.PhaseVoteResult, state.Phase)
	require.Equal(t, domain.OutcomeNoVotes, state.Outcome)

	require.NoError(t, f.host().Advance(f.ctx))
	require.Equal(t, domain.PhaseMeetingDiscussion, f.state().Phase)
}

func TestAdvanceRejectedOutsideGame(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4)
	require.ErrorIs(t, f.host().Advance(f.ctx), domain.ErrInvalidPhase)
}

func TestVersionIncreasesByOnePerTransition(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4)
	require.EqualValues(t, 0, f.state().Version)

	f.startAndConfirm()
	require.EqualValues(t, 2, f.state().Version)

	seen := map[string]bool{f.state().TransitionID: true}
	last := f.state().Version
	for i := 0; i < 3; i++ {
		require.NoError(t, f.host().Advance(f.ctx))
		state := f.state()
		require.Equal(t, last+1, state.Version)
		require.False(t, seen[state.TransitionID], "transition id reused")
		require.Equal(t, f.hostID, state.HostUID)
		seen[state.TransitionID] = true
		last = state.Version
	}
}

func TestChecksAreIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4)
	f.startAndConfirm()
	version := f.state().Version

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- f.host().CheckAllRolesConfirmed(f.ctx)
		}()
		go func() {
			defer wg.Done()
			errs <- f.host().CheckAllVoted(f.ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, version, f.state().Version)
	require.Equal(t, domain.PhaseMeetingDiscussion, f.state().Phase)

	require.NoError(t, f.host().StartVoting(f.ctx))
	require.NoError(t, f.host().StartVoting(f.ctx))
	require.Equal(t, version+1, f.state().Version)
}

func TestNonHostCannotDriveTheGame(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4)
	guest := f.engine(f.ids[1])

	require.NoError(t, guest.StartGame(f.ctx))
	require.NoError(t, guest.SetPhase(f.ctx, domain.PhaseMeetingDiscussion, nil))
	require.NoError(t, guest.CloseRoom(f.ctx))

	state := f.state()
	require.Equal(t, domain.PhaseLobby, state.Phase)
	require.EqualValues(t, 0, state.Version)
	require.Equal(t, domain.RoomLobby, f.room().Status)

	host, err := guest.IsHost(f.ctx)
	require.NoError(t, err)
	require.False(t, host)
}

func TestStartGameValidation(t *testing.T) {
	t.Parallel()

	t.Run("not_enough_players", func(t *testing.T) {
		f := newFixture(t, 3)
		require.ErrorIs(t, f.host().StartGame(f.ctx), domain.ErrNotEnoughPlayers)
	})

	t.Run("role_count_mismatch", func(t *testing.T) {
		f := newFixture(t, 4)
		f.setRoles(map[domain.Role]int{domain.RoleImpostor: 1, domain.RoleCitizen: 1})
		require.ErrorIs(t, f.host().StartGame(f.ctx), domain.ErrRoleCountMismatch)
		require.Equal(t, domain.PhaseLobby, f.state().Phase)
	})

	t.Run("no_impostor", func(t *testing.T) {
		f := newFixture(t, 4)
		f.setRoles(map[domain.Role]int{domain.RoleCitizen: 4})
		require.ErrorIs(t, f.host().StartGame(f.ctx), domain.ErrNoImpostor)
	})

	t.Run("already_started", func(t *testing.T) {
		f := newFixture(t, 4)
		require.NoError(t, f.host().StartGame(f.ctx))
		require.ErrorIs(t, f.host().StartGame(f.ctx), domain.ErrGameAlreadyStarted)
		require.ErrorIs(t, f.host().UpdateSettings(f.ctx, domain.DefaultSettings()), domain.ErrGameAlreadyStarted)
	})

	t.Run("bad_settings", func(t *testing.T) {
		f := newFixture(t, 4)
		settings := domain.DefaultSettings()
		settings.Timers.Vote = 0
		require.ErrorIs(t, f.host().UpdateSettings(f.ctx, settings), domain.ErrInvalidTimer)
		settings = domain.DefaultSettings()
		settings.Roles["wizard"] = 1
		require.ErrorIs(t, f.host().UpdateSettings(f.ctx, settings), domain.ErrInvalidRole)
	})
}

func TestStartGameDealsRoles(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4)
	require.NoError(t, f.host().StartGame(f.ctx))

	room := f.room()
	require.Equal(t, domain.RoomInGame, room.Status)
	require.Equal(t, 1, room.Day)
	require.Len(t, f.byRole(domain.RoleImpostor), 1)
	require.Len(t, f.byRole(domain.RoleEngineer), 1)
	require.Len(t, f.byRole(domain.RoleDoctor), 1)
	require.Len(t, f.byRole(domain.RoleCitizen), 1)
	require.Equal(t, 1, f.state().Day)
}

func TestResetGame(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4)
	f.startAndConfirm()
	require.NoError(t, f.host().StartVoting(f.ctx))
	a, b, c, d := f.ids[0], f.ids[1], f.ids[2], f.ids[3]
	f.vote(map[string]string{a: d, b: d, c: d, d: a})
	require.False(t, f.playerByID(d).IsAlive)

	require.NoError(t, f.host().ResetGame(f.ctx))

	state := f.state()
	require.Equal(t, domain.PhaseLobby, state.Phase)
	require.EqualValues(t, 0, state.Version)
	require.Nil(t, state.Killed)
	require.Empty(t, state.Outcome)
	require.NotEmpty(t, state.TransitionID)

	room := f.room()
	require.Equal(t, domain.RoomLobby, room.Status)
	require.Equal(t, 1, room.Day)
	for _, id := range f.ids {
		p := f.playerByID(id)
		require.True(t, p.IsAlive)
		require.False(t, p.HasRole())
		require.False(t, p.RoleReadConfirmed)
	}
	for _, collection := range store.GameCollections {
		docs, err := f.docs.List(f.ctx, store.RoomCollection(f.code, collection))
		require.NoError(t, err)
		require.Empty(t, docs, collection)
	}
	_, err := f.eph.GetValue(f.ctx, store.TimerKey(f.code))
	require.ErrorIs(t, err, store.ErrNotFound)

	f.startAndConfirm()
	require.EqualValues(t, 2, f.state().Version)
}

func TestLeaveAndCloseRoom(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4)

	require.NoError(t, f.engine(f.ids[3]).Leave(f.ctx))
	players, err := f.host().Players(f.ctx)
	require.NoError(t, err)
	require.Len(t, players, 3)

	require.NoError(t, f.host().Leave(f.ctx))
	require.Equal(t, domain.RoomClosed, f.room().Status)
	players, err = f.host().Players(f.ctx)
	require.NoError(t, err)
	require.Empty(t, players)

	_, err = f.host().CurrentState(f.ctx)
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestVoteTargetLeavesBeforeTheTally(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	f.setRoles(map[domain.Role]int{
		domain.RoleImpostor: 1,
		domain.RoleDoctor:   1,
		domain.RoleCitizen:  3,
	})
	f.startAndConfirm()

	imp := f.byRole(domain.RoleImpostor)[0]
	var target, survivor string
	for _, id := range f.byRole(domain.RoleCitizen) {
		switch {
		case id != f.hostID && target == "":
			target = id
		case survivor == "":
			survivor = id
		}
	}

	require.NoError(t, f.host().StartVoting(f.ctx))
	for _, id := range f.ids {
		if id != target {
			require.NoError(t, f.engine(id).CastVote(f.ctx, target))
		}
	}
	require.Equal(t, domain.PhaseVoting, f.state().Phase)

	require.NoError(t, f.engine(target).Leave(f.ctx))
	require.NoError(t, f.host().CheckAllVoted(f.ctx))

	state := f.state()
	require.Equal(t, domain.PhaseVoteResult, state.Phase)
	require.Equal(t, domain.OutcomeKilled, state.Outcome)
	require.NotNil(t, state.Killed)
	require.Equal(t, target, state.Killed.PlayerID)
	require.Equal(t, domain.LeftPlayerName, state.Killed.Name)
	require.Empty(t, state.Killed.Role)
	require.False(t, state.HasWinner())
	require.Len(t, state.Results, 1)
	require.Equal(t, domain.LeftPlayerName, state.Results[0].Name)
	require.Equal(t, 4, state.Results[0].VoteCount)

	// nobody lies dead, so the doctor has nothing to examine and the night
	// goes straight to the impostor
	require.NoError(t, f.host().ContinueFromVoteResult(f.ctx))
	require.NoError(t, f.host().StartNight(f.ctx))
	require.Equal(t, domain.PhaseNightImpostor, f.state().Phase)

	_, err := f.engine(imp).SubmitNightAction(f.ctx, survivor)
	require.NoError(t, err)
	require.NoError(t, f.host().CheckImpostorSubmitted(f.ctx))

	state = f.state()
	require.Equal(t, domain.PhaseMorningAnnouncement, state.Phase)
	require.Len(t, state.Victims, 1)
	require.Equal(t, survivor, state.Victims[0].PlayerID)
}

func TestResetAndCloseSurviveFailedDeletes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4)
	f.startAndConfirm()
	require.NoError(t, f.host().StartVoting(f.ctx))

	host := app.NewEngine(f.code, failingDeletes{f.docs}, f.eph, app.UserID(f.hostID),
		app.EngineConfig{MinPlayers: 4, TickInterval: time.Hour}, discardLogger())
	defer host.Close()

	require.NoError(t, host.ResetGame(f.ctx))
	state := f.state()
	require.Equal(t, domain.PhaseLobby, state.Phase)
	require.EqualValues(t, 0, state.Version)
	require.Equal(t, domain.RoomLobby, f.room().Status)
	for _, id := range f.ids {
		p := f.playerByID(id)
		require.False(t, p.HasRole())
	}

	require.NoError(t, host.CloseRoom(f.ctx))
	require.Equal(t, domain.RoomClosed, f.room().Status)
}

func TestHostChecksAfterClose(t *testing.T) {
	t.Parallel()

	t.Run("closed_room", func(t *testing.T) {
		f := newFixture(t, 4)
		f.startAndConfirm()
		require.NoError(t, f.host().StartVoting(f.ctx))
		require.NoError(t, f.host().CloseRoom(f.ctx))

		require.NoError(t, f.host().CheckAllVoted(f.ctx))
		require.NoError(t, f.host().ResolveVoting(f.ctx))
		require.NoError(t, f.host().StartVoting(f.ctx))
		require.NoError(t, f.host().Advance(f.ctx))
		require.NoError(t, f.host().CloseRoom(f.ctx))
		require.Equal(t, domain.RoomClosed, f.room().Status)
	})

	t.Run("room_gone", func(t *testing.T) {
		f := newFixture(t, 4)
		f.startAndConfirm()
		require.NoError(t, f.docs.Delete(f.ctx, store.RoomPath(f.code)))

		require.NoError(t, f.host().CheckAllRolesConfirmed(f.ctx))
		require.NoError(t, f.host().StartVoting(f.ctx))
		require.NoError(t, f.host().Advance(f.ctx))
	})
}
