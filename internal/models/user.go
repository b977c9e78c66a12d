package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a member of an organization
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	OrgID        uuid.UUID `json:"org_id" db:"org_id"`
	Email        string    `json:"email" db:"email"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	Role         string    `json:"role" db:"role"`
	PasswordHash *string   `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Membership is the organization and team placement of a user
type Membership struct {
	UserID  uuid.UUID
	OrgID   uuid.UUID
	TeamIDs []uuid.UUID
}

// SharesTeam reports whether the membership includes any of the given teams
func (m *Membership) SharesTeam(teams map[uuid.UUID]struct{}) bool {
	for _, id := range m.TeamIDs {
		if _, ok := teams[id]; ok {
			return true
		}
	}
	return false
}
