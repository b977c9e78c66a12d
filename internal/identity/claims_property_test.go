package identity

import (
	"testing"

	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"pgregory.net/rapid"
)

var externalNames = ClaimNames{
	Subject:      "oid",
	Organization: "tenant",
	Roles:        "app_roles",
	Teams:        "groups",
}

func genUUID(rt *rapid.T, label string) uuid.UUID {
	b := rapid.SliceOfN(rapid.Byte(), 16, 16).Draw(rt, label)
	id, _ := uuid.FromBytes(b)
	return id
}

func claimsFor(names ClaimNames, user, org uuid.UUID, roles []string, teams []uuid.UUID) jwt.MapClaims {
	teamVals := make([]any, len(teams))
	for i, t := range teams {
		teamVals[i] = t.String()
	}
	roleVals := make([]any, len(roles))
	for i, r := range roles {
		roleVals[i] = r
	}
	return jwt.MapClaims{
		names.Subject:      user.String(),
		names.Organization: org.String(),
		names.Roles:        roleVals,
		names.Teams:        teamVals,
	}
}

// TestProperty_Extract_RoundTrip tests that both schemes recover the claimed identity
func TestProperty_Extract_RoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		user := genUUID(rt, "user")
		org := genUUID(rt, "org")
		roles := rapid.SliceOfDistinct(rapid.SampledFrom([]string{"ORG_ADMIN", "TEAM_LEAD", "MEMBER"}), func(s string) string { return s }).Draw(rt, "roles")
		n := rapid.IntRange(0, 4).Draw(rt, "teams")
		teams := make([]uuid.UUID, n)
		for i := range teams {
			teams[i] = genUUID(rt, "team")
		}

		var scheme ClaimScheme = LocalScheme{}
		if rapid.Bool().Draw(rt, "external") {
			scheme = ExternalScheme{Mapping: externalNames}
		}

		p, err := NewExtractor(scheme).Extract(claimsFor(scheme.ClaimNames(), user, org, roles, teams))
		if err != nil {
			t.Fatalf("PROPERTY VIOLATION: valid claims rejected: %v", err)
		}
		if p.UserID != user || p.OrgID != org {
			t.Fatalf("PROPERTY VIOLATION: identity mismatch: got %s/%s", p.UserID, p.OrgID)
		}
		for _, r := range roles {
			role, _ := ParseRole(r)
			if !p.Roles.Has(role) {
				t.Fatalf("PROPERTY VIOLATION: role %s lost", r)
			}
		}
		for _, team := range teams {
			if !p.InTeam(team) {
				t.Fatalf("PROPERTY VIOLATION: team %s lost", team)
			}
		}
	})
}

// TestProperty_Extract_MissingRequiredClaim tests that any missing required claim is malformed
func TestProperty_Extract_MissingRequiredClaim(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		names := LocalScheme{}.ClaimNames()
		claims := claimsFor(names, genUUID(rt, "user"), genUUID(rt, "org"), []string{"MEMBER"}, nil)
		drop := rapid.SampledFrom([]string{names.Subject, names.Organization, names.Roles}).Draw(rt, "drop")
		delete(claims, drop)

		_, err := NewExtractor(LocalScheme{}).Extract(claims)
		if !apierrors.IsKind(err, apierrors.KindMalformedIdentity) {
			t.Fatalf("PROPERTY VIOLATION: dropping %s should be malformed, got %v", drop, err)
		}
	})
}

func TestExtract_ReservedSubjectIsReadDirectly(t *testing.T) {
	user := uuid.New()
	org := uuid.New()
	scheme := ExternalScheme{Mapping: ClaimNames{Subject: "sub", Organization: "org", Roles: "roles", Teams: "teams"}}
	claims := jwt.MapClaims{"sub": user.String(), "org": org.String(), "roles": []any{"member"}}

	p, err := NewExtractor(scheme).Extract(claims)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.UserID != user {
		t.Errorf("expected subject %s, got %s", user, p.UserID)
	}
	if !p.Roles.Has(RoleMember) {
		t.Error("lower-case role names should be accepted")
	}
	if len(p.TeamIDs()) != 0 {
		t.Error("absent teams claim should yield no teams")
	}
}

func TestExtract_IgnoresUnknownRoles(t *testing.T) {
	claims := jwt.MapClaims{
		"sub":    uuid.New().String(),
		"org_id": uuid.New().String(),
		"roles":  []any{"SUPERUSER", "ORG_ADMIN", "billing"},
	}

	p, err := NewExtractor(LocalScheme{}).Extract(claims)
	if err != nil {
		t.Fatalf("unknown role names must not fail extraction: %v", err)
	}
	if p.Roles != NewRoleSet(RoleOrgAdmin) {
		t.Errorf("expected only ORG_ADMIN, got %v", p.Roles.Strings())
	}
}

func TestExtract_CustomSubjectIgnoresReserved(t *testing.T) {
	custom := uuid.New()
	claims := jwt.MapClaims{
		"sub":       "opaque-idp-subject",
		"oid":       custom.String(),
		"tenant":    uuid.NewString(),
		"app_roles": "ORG_ADMIN",
	}

	p, err := NewExtractor(ExternalScheme{Mapping: externalNames}).Extract(claims)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.UserID != custom {
		t.Errorf("expected mapped subject %s, got %s", custom, p.UserID)
	}
	if !p.IsOrgAdmin() {
		t.Error("single-string roles claim should be accepted")
	}
}

func TestExtract_Malformed(t *testing.T) {
	org := uuid.NewString()
	user := uuid.NewString()

	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"subject not uuid", jwt.MapClaims{"sub": "alice", "org_id": org, "roles": []any{"MEMBER"}}},
		{"subject wrong type", jwt.MapClaims{"sub": 42.0, "org_id": org, "roles": []any{"MEMBER"}}},
		{"org not uuid", jwt.MapClaims{"sub": user, "org_id": "acme", "roles": []any{"MEMBER"}}},
		{"roles wrong type", jwt.MapClaims{"sub": user, "org_id": org, "roles": 7.0}},
		{"roles entry wrong type", jwt.MapClaims{"sub": user, "org_id": org, "roles": []any{"MEMBER", 1.0}}},
		{"team not uuid", jwt.MapClaims{"sub": user, "org_id": org, "roles": []any{"MEMBER"}, "teams": []any{"platform"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExtractor(LocalScheme{}).Extract(tt.claims)
			if !apierrors.IsKind(err, apierrors.KindMalformedIdentity) {
				t.Errorf("expected malformed identity, got %v", err)
			}
		})
	}
}

func TestRoleSet(t *testing.T) {
	s := NewRoleSet(RoleTeamLead, RoleMember)
	if s.Has(RoleOrgAdmin) || !s.HasAny(RoleOrgAdmin, RoleTeamLead) {
		t.Error("unexpected membership")
	}
	got := s.Strings()
	if len(got) != 2 || got[0] != "TEAM_LEAD" || got[1] != "MEMBER" {
		t.Errorf("unexpected role names %v", got)
	}
	if _, ok := ParseRole("SUPERUSER"); ok {
		t.Error("unknown roles must not parse")
	}
	if r, ok := ParseRole("ROLE_ORG_ADMIN"); !ok || r != RoleOrgAdmin {
		t.Error("ROLE_ prefix should be accepted")
	}
}
