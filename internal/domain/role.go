package domain

// Role represents a player's hidden role
type Role string

const (
	RoleCitizen          Role = "citizen"
	RoleImpostor         Role = "impostor"
	RoleEngineer         Role = "engineer"
	RoleDoctor           Role = "doctor"
	RoleFallenAngel      Role = "fallen_angel"
	RoleGuardDuty        Role = "guard_duty"
	RoleImpostorFollower Role = "impostor_follower"
	RoleBug              Role = "bug"
)

// Faction groups roles that share a win condition
type Faction string

const (
	FactionCitizen  Faction = "citizen"
	FactionImpostor Faction = "impostor"
	FactionBug      Faction = "bug"
)

// Roles returns every known role.
func Roles() []Role {
	return []Role{
		RoleCitizen,
		RoleImpostor,
		RoleEngineer,
		RoleDoctor,
		RoleFallenAngel,
		RoleGuardDuty,
		RoleImpostorFollower,
		RoleBug,
	}
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

// Faction returns the win faction the role belongs to.
func (r Role) Faction() Faction {
	switch r {
	case RoleImpostor, RoleImpostorFollower:
		return FactionImpostor
	case RoleBug:
		return FactionBug
	default:
		return FactionCitizen
	}
}

// IsImpostor reports whether the role is the impostor itself. Followers share
// the faction but neither kill nor count as impostors in the win check.
func (r Role) IsImpostor() bool {
	return r == RoleImpostor
}

// IsSpecialNightActor reports whether the role acts during NIGHT_SPECIAL.
func (r Role) IsSpecialNightActor() bool {
	switch r {
	case RoleEngineer, RoleDoctor, RoleFallenAngel:
		return true
	}
	return false
}

// NightPhase returns the phase during which the role submits its night action.
func (r Role) NightPhase() (Phase, bool) {
	if r.IsSpecialNightActor() {
		return PhaseNightSpecial, true
	}
	if r.IsImpostor() {
		return PhaseNightImpostor, true
	}
	return "", false
}
