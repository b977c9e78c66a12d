package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/analytics"
	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
	"github.com/google/uuid"
)

// Memory is an in-process store with the same read semantics as Postgres.
// It backs tests and local runs without a database.
type Memory struct {
	mu         sync.RWMutex
	orgs       map[uuid.UUID]models.Organization
	teams      map[uuid.UUID]models.Team
	users      map[uuid.UUID]models.User
	userTeams  map[uuid.UUID][]uuid.UUID
	agentTypes map[uuid.UUID][]models.AgentType
	runs       []models.Run
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		orgs:       make(map[uuid.UUID]models.Organization),
		teams:      make(map[uuid.UUID]models.Team),
		users:      make(map[uuid.UUID]models.User),
		userTeams:  make(map[uuid.UUID][]uuid.UUID),
		agentTypes: make(map[uuid.UUID][]models.AgentType),
	}
}

func (m *Memory) AddOrganization(o models.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs[o.ID] = o
}

func (m *Memory) AddTeam(t models.Team) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[t.ID] = t
}

// AddUser stores u and places it in the given teams
func (m *Memory) AddUser(u models.User, teamIDs ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.userTeams[u.ID] = append([]uuid.UUID(nil), teamIDs...)
}

func (m *Memory) AddAgentType(a models.AgentType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agentTypes[a.OrgID] = append(m.agentTypes[a.OrgID], a)
}

func (m *Memory) AddRun(r models.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
}

func matchRun(r *models.Run, f analytics.RunFilter) bool {
	if r.OrgID != f.OrgID {
		return false
	}
	if r.StartedAt.Before(f.From) || !r.StartedAt.Before(f.To) {
		return false
	}
	if f.TeamID != nil && (r.TeamID == nil || *r.TeamID != *f.TeamID) {
		return false
	}
	if f.UserID != nil && r.UserID != *f.UserID {
		return false
	}
	if f.AgentType != "" && r.AgentTypeSlug != f.AgentType {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m *Memory) match(f analytics.RunFilter) []models.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Run
	for i := range m.runs {
		if matchRun(&m.runs[i], f) {
			out = append(out, m.runs[i])
		}
	}
	return out
}

func sortRuns(runs []models.Run, newestFirst bool) {
	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i], runs[j]
		if !a.StartedAt.Equal(b.StartedAt) {
			if newestFirst {
				return a.StartedAt.After(b.StartedAt)
			}
			return a.StartedAt.Before(b.StartedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

func (m *Memory) FindRuns(_ context.Context, f analytics.RunFilter) ([]models.Run, error) {
	runs := m.match(f)
	sortRuns(runs, false)
	return runs, nil
}

func (m *Memory) FindRunsPage(_ context.Context, f analytics.RunFilter, page analytics.PageRequest) ([]models.Run, int64, error) {
	runs := m.match(f)
	sortRuns(runs, true)
	total := int64(len(runs))

	offset := page.Offset()
	if offset >= total || page.Size <= 0 {
		return []models.Run{}, total, nil
	}
	start := int(offset)
	end := start + page.Size
	if end > len(runs) {
		end = len(runs)
	}
	return runs[start:end], total, nil
}

func (m *Memory) FindRecentRuns(_ context.Context, f analytics.RunFilter, limit int) ([]models.Run, error) {
	runs := m.match(f)
	sortRuns(runs, true)
	if limit >= 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *Memory) GetRun(_ context.Context, id uuid.UUID) (*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.runs {
		if m.runs[i].ID == id {
			r := m.runs[i]
			return &r, nil
		}
	}
	return nil, apierrors.NotFound("run", id.String())
}

func (m *Memory) GetOrganization(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, apierrors.NotFound("organization", id.String())
	}
	return &o, nil
}

func (m *Memory) GetTeam(_ context.Context, id uuid.UUID) (*models.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, apierrors.NotFound("team", id.String())
	}
	return &t, nil
}

func (m *Memory) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apierrors.NotFound("user", id.String())
	}
	return &u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, apierrors.NotFound("user", email)
}

func (m *Memory) GetMembership(_ context.Context, userID uuid.UUID) (*models.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, apierrors.NotFound("user", userID.String())
	}
	return &models.Membership{
		UserID:  userID,
		OrgID:   u.OrgID,
		TeamIDs: append([]uuid.UUID(nil), m.userTeams[userID]...),
	}, nil
}

func (m *Memory) ListUserTeams(_ context.Context, userID uuid.UUID) ([]models.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var teams []models.Team
	for _, id := range m.userTeams[userID] {
		if t, ok := m.teams[id]; ok {
			teams = append(teams, t)
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

func (m *Memory) ListTeams(_ context.Context, orgID uuid.UUID) ([]models.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var teams []models.Team
	for _, t := range m.teams {
		if t.OrgID == orgID {
			teams = append(teams, t)
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

func (m *Memory) ListUsers(_ context.Context, orgID uuid.UUID) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var users []models.User
	for _, u := range m.users {
		if u.OrgID == orgID {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].DisplayName < users[j].DisplayName })
	return users, nil
}

func (m *Memory) ListAgentTypes(_ context.Context, orgID uuid.UUID) ([]models.AgentType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := append([]models.AgentType(nil), m.agentTypes[orgID]...)
	sort.Slice(types, func(i, j int) bool { return types[i].Slug < types[j].Slug })
	return types, nil
}

var (
	_ analytics.RunQuerier = (*Memory)(nil)
	_ analytics.Directory  = (*Memory)(nil)
	_ analytics.RunQuerier = (*Postgres)(nil)
	_ analytics.Directory  = (*Postgres)(nil)
)
