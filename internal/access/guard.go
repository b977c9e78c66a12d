// Package access decides which principal may see which slice of analytics data.
package access

import (
	"context"
	"fmt"
	"strings"

	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/identity"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/logging"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/monitoring"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Scopes named in denials
const (
	ScopeOrg  = "organization"
	ScopeTeam = "team"
	ScopeUser = "user"
	ScopeRun  = "run"
	ScopeRole = "role"
)

// MembershipLookup resolves a user's organization and teams
type MembershipLookup interface {
	GetMembership(ctx context.Context, userID uuid.UUID) (*models.Membership, error)
}

// CanAccessOrg allows only principals of that organization
func CanAccessOrg(p *identity.Principal, orgID uuid.UUID) bool {
	return p.OrgID == orgID
}

// CanAccessTeam allows org admins and members of the team
func CanAccessTeam(p *identity.Principal, teamID uuid.UUID) bool {
	return p.IsOrgAdmin() || p.InTeam(teamID)
}

// CanAccessMember decides user access once the target's membership is known
func CanAccessMember(p *identity.Principal, target *models.Membership) bool {
	if target.OrgID != p.OrgID {
		return false
	}
	if p.IsOrgAdmin() {
		return true
	}
	return p.IsTeamLead() && target.SharesTeam(p.TeamSet())
}

// CanAccessRun allows the owner, org admins, and team leads of the run's team.
// Runs of another organization are never visible.
func CanAccessRun(p *identity.Principal, run *models.Run) bool {
	if run.OrgID != p.OrgID {
		return false
	}
	if run.UserID == p.UserID || p.IsOrgAdmin() {
		return true
	}
	return p.IsTeamLead() && run.TeamID != nil && CanAccessTeam(p, *run.TeamID)
}

// Guard turns access decisions into Forbidden errors and records denials
type Guard struct {
	members MembershipLookup
	log     zerolog.Logger
}

// NewGuard creates a guard backed by members for user lookups
func NewGuard(members MembershipLookup) *Guard {
	return &Guard{
		members: members,
		log:     logging.NewLogger("access"),
	}
}

// AuthorizeOrg returns Forbidden unless the principal belongs to orgID
func (g *Guard) AuthorizeOrg(p *identity.Principal, orgID uuid.UUID) error {
	if !CanAccessOrg(p, orgID) {
		return g.deny(p, ScopeOrg, orgID.String())
	}
	return nil
}

// AuthorizeTeam checks the team's organization, then team visibility
func (g *Guard) AuthorizeTeam(p *identity.Principal, team *models.Team) error {
	if !CanAccessOrg(p, team.OrgID) || !CanAccessTeam(p, team.ID) {
		return g.deny(p, ScopeTeam, team.ID.String())
	}
	return nil
}

// AuthorizeUser looks up the target and applies the org/team hierarchy
func (g *Guard) AuthorizeUser(ctx context.Context, p *identity.Principal, userID uuid.UUID) error {
	m, err := g.members.GetMembership(ctx, userID)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to look up membership: %w", err)
	}
	if !CanAccessMember(p, m) {
		return g.deny(p, ScopeUser, userID.String())
	}
	return nil
}

// AuthorizeRun returns Forbidden unless the principal may see run
func (g *Guard) AuthorizeRun(p *identity.Principal, run *models.Run) error {
	if !CanAccessRun(p, run) {
		return g.deny(p, ScopeRun, run.ID.String())
	}
	return nil
}

// RequireAnyRole returns Forbidden unless the principal holds one of roles
func (g *Guard) RequireAnyRole(p *identity.Principal, roles ...identity.Role) error {
	if !p.Roles.HasAny(roles...) {
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = r.String()
		}
		return g.deny(p, ScopeRole, strings.Join(names, ","))
	}
	return nil
}

func (g *Guard) deny(p *identity.Principal, scope, id string) error {
	g.log.Debug().
		Str("user_id", p.UserID.String()).
		Str("org_id", p.OrgID.String()).
		Str("scope", scope).
		Str("target", id).
		Msg("Access denied")
	monitoring.RecordAccessDenied(scope)
	return apierrors.Forbidden(scope, id)
}
