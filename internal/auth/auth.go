// Package auth implements local password login and token issuing.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/config"
	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/identity"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserStore resolves the accounts that may log in
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	ListUserTeams(ctx context.Context, userID uuid.UUID) ([]models.Team, error)
}

// Service handles authentication operations
type Service struct {
	users  UserStore
	config *config.JWTConfig
}

// NewService creates a new auth service
func NewService(users UserStore, jwtCfg *config.JWTConfig) *Service {
	return &Service{
		users:  users,
		config: jwtCfg,
	}
}

// Claims is the body of locally issued tokens. Names follow the local claim scheme.
type Claims struct {
	OrgID string   `json:"org_id"`
	Roles []string `json:"roles"`
	Teams []string `json:"teams"`
	Email string   `json:"email"`
	jwt.RegisteredClaims
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TeamRef names a team the user belongs to
type TeamRef struct {
	TeamID   uuid.UUID `json:"teamId"`
	TeamName string    `json:"teamName"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token       string    `json:"token"`
	UserID      uuid.UUID `json:"userId"`
	OrgID       uuid.UUID `json:"orgId"`
	OrgName     string    `json:"orgName"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	Teams       []TeamRef `json:"teams"`
}

// Login authenticates a user and returns a signed token
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if apierrors.IsNotFound(err) {
			// Same error as a bad password so emails cannot be probed
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, *user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	org, err := s.users.GetOrganization(ctx, user.OrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	teams, err := s.users.ListUserTeams(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load teams: %w", err)
	}

	token, err := s.IssueToken(user, teams)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	refs := make([]TeamRef, len(teams))
	for i, t := range teams {
		refs[i] = TeamRef{TeamID: t.ID, TeamName: t.Name}
	}

	return &LoginResponse{
		Token:       token,
		UserID:      user.ID,
		OrgID:       user.OrgID,
		OrgName:     org.Name,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		Teams:       refs,
	}, nil
}

// IssueToken signs an access token for user carrying its organization, role and teams
func (s *Service) IssueToken(user *models.User, teams []models.Team) (string, error) {
	now := time.Now()

	teamIDs := make([]string, len(teams))
	for i, t := range teams {
		teamIDs[i] = t.ID.String()
	}
	var roles []string
	if r, ok := identity.ParseRole(user.Role); ok {
		roles = []string{r.String()}
	}

	claims := &Claims{
		OrgID: user.OrgID.String(),
		Roles: roles,
		Teams: teamIDs,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenExpiry)),
			ID:        generateJTI(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// generateJTI generates a unique JWT ID
func generateJTI() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
