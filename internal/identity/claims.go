package identity

import (
	"fmt"

	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SubjectClaim is the registered JWT subject claim
const SubjectClaim = "sub"

// ClaimNames maps each canonical principal field to the claim carrying it
type ClaimNames struct {
	Subject      string
	Organization string
	Roles        string
	Teams        string
}

// ClaimScheme selects the claim vocabulary of a token source
type ClaimScheme interface {
	Name() string
	ClaimNames() ClaimNames
}

// LocalScheme is the fixed vocabulary of tokens issued by this service
type LocalScheme struct{}

func (LocalScheme) Name() string { return "local" }

func (LocalScheme) ClaimNames() ClaimNames {
	return ClaimNames{
		Subject:      SubjectClaim,
		Organization: "org_id",
		Roles:        "roles",
		Teams:        "teams",
	}
}

// ExternalScheme reads claims through an identity-provider specific mapping
type ExternalScheme struct {
	Mapping ClaimNames
}

func (ExternalScheme) Name() string { return "external" }

func (s ExternalScheme) ClaimNames() ClaimNames { return s.Mapping }

// Extractor builds Principals from verified claims. The scheme's claim names
// are resolved once, at construction.
type Extractor struct {
	scheme          string
	names           ClaimNames
	reservedSubject bool
}

// NewExtractor resolves scheme into an Extractor
func NewExtractor(scheme ClaimScheme) *Extractor {
	names := scheme.ClaimNames()
	return &Extractor{
		scheme:          scheme.Name(),
		names:           names,
		reservedSubject: names.Subject == SubjectClaim,
	}
}

// Scheme names the claim scheme in use
func (e *Extractor) Scheme() string { return e.scheme }

// Extract maps claims onto a Principal. Subject, organization and roles are
// required; an absent teams claim means no team membership.
func (e *Extractor) Extract(claims jwt.MapClaims) (*Principal, error) {
	userID, err := e.subject(claims)
	if err != nil {
		return nil, err
	}

	orgStr, err := requireString(claims, e.names.Organization)
	if err != nil {
		return nil, err
	}
	orgID, err := uuid.Parse(orgStr)
	if err != nil {
		return nil, apierrors.MalformedIdentity(e.names.Organization, "not a UUID")
	}

	roleNames, ok, err := stringList(claims, e.names.Roles)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierrors.MalformedIdentity(e.names.Roles, "missing")
	}
	var roles RoleSet
	for _, name := range roleNames {
		if r, known := ParseRole(name); known {
			roles |= RoleSet(r)
		}
	}

	teamStrs, _, err := stringList(claims, e.names.Teams)
	if err != nil {
		return nil, err
	}
	teams := make([]uuid.UUID, 0, len(teamStrs))
	for _, s := range teamStrs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, apierrors.MalformedIdentity(e.names.Teams, fmt.Sprintf("entry %q is not a UUID", s))
		}
		teams = append(teams, id)
	}

	return NewPrincipal(userID, orgID, roles, teams), nil
}

func (e *Extractor) subject(claims jwt.MapClaims) (uuid.UUID, error) {
	var (
		raw string
		err error
	)
	if e.reservedSubject {
		raw, err = claims.GetSubject()
		if err != nil {
			return uuid.Nil, apierrors.MalformedIdentity(SubjectClaim, "not a string")
		}
		if raw == "" {
			return uuid.Nil, apierrors.MalformedIdentity(SubjectClaim, "missing")
		}
	} else {
		raw, err = requireString(claims, e.names.Subject)
		if err != nil {
			return uuid.Nil, err
		}
	}

	id, perr := uuid.Parse(raw)
	if perr != nil {
		return uuid.Nil, apierrors.MalformedIdentity(e.names.Subject, "not a UUID")
	}
	return id, nil
}

func requireString(claims jwt.MapClaims, name string) (string, error) {
	v, ok := claims[name]
	if !ok || v == nil {
		return "", apierrors.MalformedIdentity(name, "missing")
	}
	s, ok := v.(string)
	if !ok {
		return "", apierrors.MalformedIdentity(name, "not a string")
	}
	if s == "" {
		return "", apierrors.MalformedIdentity(name, "empty")
	}
	return s, nil
}

// stringList accepts a JSON array of strings or a single string
func stringList(claims jwt.MapClaims, name string) ([]string, bool, error) {
	v, ok := claims[name]
	if !ok || v == nil {
		return nil, false, nil
	}
	switch val := v.(type) {
	case string:
		return []string{val}, true, nil
	case []string:
		return val, true, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, true, apierrors.MalformedIdentity(name, "list entries must be strings")
			}
			out = append(out, s)
		}
		return out, true, nil
	default:
		return nil, true, apierrors.MalformedIdentity(name, "not a string list")
	}
}
