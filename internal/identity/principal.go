// Package identity turns verified token claims into the canonical Principal
// used for every authorization decision.
package identity

import (
	"strings"

	"github.com/google/uuid"
)

// Role is one of the closed set of organization roles
type Role uint8

const (
	RoleMember Role = 1 << iota
	RoleTeamLead
	RoleOrgAdmin
)

var roleNames = map[Role]string{
	RoleMember:   "MEMBER",
	RoleTeamLead: "TEAM_LEAD",
	RoleOrgAdmin: "ORG_ADMIN",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseRole maps a role name onto a Role. Matching ignores case and a ROLE_ prefix.
func ParseRole(s string) (Role, bool) {
	name := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "ROLE_")
	for r, n := range roleNames {
		if n == name {
			return r, true
		}
	}
	return 0, false
}

// RoleSet is a bitmask of roles
type RoleSet uint8

// NewRoleSet builds a set from individual roles
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s |= RoleSet(r)
	}
	return s
}

// Has reports whether r is in the set
func (s RoleSet) Has(r Role) bool {
	return s&RoleSet(r) != 0
}

// HasAny reports whether any of roles is in the set
func (s RoleSet) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Strings returns role names, highest privilege first
func (s RoleSet) Strings() []string {
	out := make([]string, 0, 3)
	for _, r := range []Role{RoleOrgAdmin, RoleTeamLead, RoleMember} {
		if s.Has(r) {
			out = append(out, r.String())
		}
	}
	return out
}

// Principal is the verified identity of the caller for one request
type Principal struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Roles  RoleSet

	teams   []uuid.UUID
	teamSet map[uuid.UUID]struct{}
}

// NewPrincipal constructs a Principal. Duplicate team ids are collapsed.
func NewPrincipal(userID, orgID uuid.UUID, roles RoleSet, teams []uuid.UUID) *Principal {
	p := &Principal{
		UserID:  userID,
		OrgID:   orgID,
		Roles:   roles,
		teamSet: make(map[uuid.UUID]struct{}, len(teams)),
	}
	for _, id := range teams {
		if _, dup := p.teamSet[id]; dup {
			continue
		}
		p.teamSet[id] = struct{}{}
		p.teams = append(p.teams, id)
	}
	return p
}

func (p *Principal) IsOrgAdmin() bool { return p.Roles.Has(RoleOrgAdmin) }

func (p *Principal) IsTeamLead() bool { return p.Roles.Has(RoleTeamLead) }

// InTeam reports whether the principal belongs to team
func (p *Principal) InTeam(team uuid.UUID) bool {
	_, ok := p.teamSet[team]
	return ok
}

// TeamIDs returns the principal's teams in claim order
func (p *Principal) TeamIDs() []uuid.UUID {
	out := make([]uuid.UUID, len(p.teams))
	copy(out, p.teams)
	return out
}

// TeamSet exposes the team membership for set intersection
func (p *Principal) TeamSet() map[uuid.UUID]struct{} {
	return p.teamSet
}
