package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crewmate/internal/domain"
)

func nightRoster() domain.Roster {
	return domain.NewRoster([]domain.Player{
		{ID: "imp", Name: "Imp", Role: domain.RoleImpostor, IsAlive: true},
		{ID: "imp2", Name: "Imp Two", Role: domain.RoleImpostor, IsAlive: true},
		{ID: "eng", Name: "Eng", Role: domain.RoleEngineer, IsAlive: true},
		{ID: "doc", Name: "Doc", Role: domain.RoleDoctor, IsAlive: true},
		{ID: "angel", Name: "Angel", Role: domain.RoleFallenAngel, IsAlive: true},
		{ID: "bug", Name: "Bug", Role: domain.RoleBug, IsAlive: true},
		{ID: "cit", Name: "Cit", Role: domain.RoleCitizen, IsAlive: true},
		{ID: "dead", Name: "Dead", Role: domain.RoleGuardDuty, IsAlive: false},
	})
}

func action(actor string, role domain.Role, target string, at int) domain.NightAction {
	return domain.NightAction{
		ActorID:     actor,
		Type:        role,
		TargetID:    target,
		SubmittedAt: time.Date(2026, 10, 1, 22, 0, at, 0, time.UTC),
	}
}

func TestResolveNight(t *testing.T) {
	t.Run("engineer_kills_bug_and_impostor_kills_citizen", func(t *testing.T) {
		result := domain.ResolveNight([]domain.NightAction{
			action("imp", domain.RoleImpostor, "cit", 2),
			action("eng", domain.RoleEngineer, "bug", 1),
		}, nightRoster())

		require.Len(t, result.Victims, 2)
		require.Equal(t, "bug", result.Victims[0].PlayerID)
		require.Equal(t, domain.CauseBugDeath, result.Victims[0].Cause)
		require.Equal(t, "cit", result.Victims[1].PlayerID)
		require.Equal(t, domain.CauseImpostor, result.Victims[1].Cause)
		require.Equal(t, domain.RoleCitizen, result.Victims[1].Role)
	})

	t.Run("fallen_angel_protects_impostor_target", func(t *testing.T) {
		result := domain.ResolveNight([]domain.NightAction{
			action("angel", domain.RoleFallenAngel, "cit", 1),
			action("imp", domain.RoleImpostor, "cit", 2),
		}, nightRoster())

		require.Empty(t, result.Victims)
		require.True(t, result.Protected)
		require.Equal(t, "cit", result.ImpostorTargetID)
	})

	t.Run("protection_of_another_player_does_not_save_target", func(t *testing.T) {
		result := domain.ResolveNight([]domain.NightAction{
			action("angel", domain.RoleFallenAngel, "doc", 1),
			action("imp", domain.RoleImpostor, "cit", 2),
		}, nightRoster())

		require.Len(t, result.Victims, 1)
		require.Equal(t, "cit", result.Victims[0].PlayerID)
	})

	t.Run("impostor_cannot_kill_bug", func(t *testing.T) {
		result := domain.ResolveNight([]domain.NightAction{
			action("imp", domain.RoleImpostor, "bug", 1),
		}, nightRoster())

		require.Empty(t, result.Victims)
		require.True(t, result.BugImmune)
	})

	t.Run("earliest_impostor_submission_wins", func(t *testing.T) {
		result := domain.ResolveNight([]domain.NightAction{
			action("imp2", domain.RoleImpostor, "doc", 5),
			action("imp", domain.RoleImpostor, "cit", 3),
		}, nightRoster())

		require.Len(t, result.Victims, 1)
		require.Equal(t, "cit", result.Victims[0].PlayerID)
	})

	t.Run("bug_killed_by_engineer_is_not_killed_twice", func(t *testing.T) {
		result := domain.ResolveNight([]domain.NightAction{
			action("eng", domain.RoleEngineer, "bug", 1),
			action("imp", domain.RoleImpostor, "bug", 2),
		}, nightRoster())

		require.Len(t, result.Victims, 1)
		require.Equal(t, domain.CauseBugDeath, result.Victims[0].Cause)
	})

	t.Run("engineer_check_on_non_bug_kills_nobody", func(t *testing.T) {
		result := domain.ResolveNight([]domain.NightAction{
			action("eng", domain.RoleEngineer, "imp", 1),
			action("doc", domain.RoleDoctor, "dead", 1),
		}, nightRoster())

		require.Empty(t, result.Victims)
	})

	t.Run("dead_or_missing_targets_survive", func(t *testing.T) {
		result := domain.ResolveNight([]domain.NightAction{
			action("imp", domain.RoleImpostor, "dead", 1),
		}, nightRoster())
		require.Empty(t, result.Victims)

		result = domain.ResolveNight([]domain.NightAction{
			action("imp", domain.RoleImpostor, "ghost", 1),
		}, nightRoster())
		require.Empty(t, result.Victims)
	})
}

func TestRevealFor(t *testing.T) {
	roster := nightRoster()

	t.Run("engineer_learns_bug", func(t *testing.T) {
		reveal, ok := domain.RevealFor(action("eng", domain.RoleEngineer, "bug", 1), roster)
		require.True(t, ok)
		require.True(t, reveal.IsBug)
	})

	t.Run("engineer_learns_not_bug", func(t *testing.T) {
		reveal, ok := domain.RevealFor(action("eng", domain.RoleEngineer, "cit", 1), roster)
		require.True(t, ok)
		require.False(t, reveal.IsBug)
	})

	t.Run("doctor_learns_dead_role", func(t *testing.T) {
		reveal, ok := domain.RevealFor(action("doc", domain.RoleDoctor, "dead", 1), roster)
		require.True(t, ok)
		require.Equal(t, domain.RoleGuardDuty, reveal.TargetRole)
	})

	t.Run("doctor_learns_nothing_about_living", func(t *testing.T) {
		_, ok := domain.RevealFor(action("doc", domain.RoleDoctor, "cit", 1), roster)
		require.False(t, ok)
	})

	t.Run("impostor_learns_nothing", func(t *testing.T) {
		_, ok := domain.RevealFor(action("imp", domain.RoleImpostor, "cit", 1), roster)
		require.False(t, ok)
	})
}
