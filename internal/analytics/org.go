package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/identity"
	"github.com/google/uuid"
)

func (s *Service) authorizeOrg(p *identity.Principal, orgID uuid.UUID, roles ...identity.Role) error {
	if err := s.guard.AuthorizeOrg(p, orgID); err != nil {
		return err
	}
	return s.guard.RequireAnyRole(p, roles...)
}

// OrgSummary aggregates every matching run of the organization
func (s *Service) OrgSummary(ctx context.Context, p *identity.Principal, orgID uuid.UUID, q Query) (resp *SummaryResponse, err error) {
	start, scanned := time.Now(), 0
	defer func() { s.observe("org_summary", start, scanned, err) }()

	if err := s.authorizeOrg(p, orgID, identity.RoleOrgAdmin); err != nil {
		return nil, err
	}
	f, r, err := q.filter(orgID)
	if err != nil {
		return nil, err
	}
	runs, err := s.findRuns(ctx, f)
	if err != nil {
		return nil, err
	}
	scanned = len(runs)
	return NewSummaryResponse(orgID, r.Period(), Aggregate(runs)), nil
}

// OrgTimeseries buckets the organization's runs per day
func (s *Service) OrgTimeseries(ctx context.Context, p *identity.Principal, orgID uuid.UUID, q Query) (resp *TimeseriesResponse, err error) {
	start, scanned := time.Now(), 0
	defer func() { s.observe("org_timeseries", start, scanned, err) }()

	if err := s.authorizeOrg(p, orgID, identity.RoleOrgAdmin); err != nil {
		return nil, err
	}
	f, _, err := q.filter(orgID)
	if err != nil {
		return nil, err
	}
	runs, err := s.findRuns(ctx, f)
	if err != nil {
		return nil, err
	}
	scanned = len(runs)
	return &TimeseriesResponse{
		ScopeID:     orgID,
		Granularity: NormalizeGranularity(q.Granularity),
		DataPoints:  DailyBuckets(runs),
	}, nil
}

// OrgByTeam breaks the organization's runs down by team. Runs without a
// team are left out.
func (s *Service) OrgByTeam(ctx context.Context, p *identity.Principal, orgID uuid.UUID, q Query) (resp *BreakdownResponse, err error) {
	start, scanned := time.Now(), 0
	defer func() { s.observe("org_by_team", start, scanned, err) }()

	if err := s.authorizeOrg(p, orgID, identity.RoleOrgAdmin); err != nil {
		return nil, err
	}
	f, r, err := q.filter(orgID)
	if err != nil {
		return nil, err
	}
	runs, err := s.findRuns(ctx, f)
	if err != nil {
		return nil, err
	}
	scanned = len(runs)
	names, err := s.teamNames(ctx, orgID)
	if err != nil {
		return nil, err
	}
	groups := Breakdown(runs, ByTeam, IDLabels(names), ParseSortMetric(q.SortBy), q.Limit)
	return newBreakdownResponse(orgID, r.Period(), groups), nil
}

// OrgByAgentType breaks the organization's runs down by agent type
func (s *Service) OrgByAgentType(ctx context.Context, p *identity.Principal, orgID uuid.UUID, q Query) (resp *BreakdownResponse, err error) {
	start, scanned := time.Now(), 0
	defer func() { s.observe("org_by_agent_type", start, scanned, err) }()

	if err := s.authorizeOrg(p, orgID, identity.RoleOrgAdmin, identity.RoleTeamLead); err != nil {
		return nil, err
	}
	f, r, err := q.filter(orgID)
	if err != nil {
		return nil, err
	}
	runs, err := s.findRuns(ctx, f)
	if err != nil {
		return nil, err
	}
	scanned = len(runs)
	names, err := s.agentTypeNames(ctx, orgID)
	if err != nil {
		return nil, err
	}
	groups := Breakdown(runs, ByAgentType, SlugLabels(names), ParseSortMetric(q.SortBy), q.Limit)
	return newBreakdownResponse(orgID, r.Period(), groups), nil
}

// OrgTopUsers ranks the organization's users by the requested metric
func (s *Service) OrgTopUsers(ctx context.Context, p *identity.Principal, orgID uuid.UUID, q Query) (resp *TopUsersResponse, err error) {
	start, scanned := time.Now(), 0
	defer func() { s.observe("org_top_users", start, scanned, err) }()

	if err := s.authorizeOrg(p, orgID, identity.RoleOrgAdmin); err != nil {
		return nil, err
	}
	f, _, err := q.filter(orgID)
	if err != nil {
		return nil, err
	}
	runs, err := s.findRuns(ctx, f)
	if err != nil {
		return nil, err
	}
	scanned = len(runs)

	users, err := s.usersByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	teams, err := s.teamNames(ctx, orgID)
	if err != nil {
		return nil, err
	}

	// first team seen in each user's runs
	firstTeam := make(map[string]string)
	for i := range runs {
		if runs[i].TeamID == nil {
			continue
		}
		uid := runs[i].UserID.String()
		if _, seen := firstTeam[uid]; !seen {
			firstTeam[uid] = runs[i].TeamID.String()
		}
	}

	metric := ParseSortMetric(q.SortBy)
	groups := Breakdown(runs, ByUser, userLabels(users), metric, q.Limit)

	out := make([]UserMetric, 0, len(groups))
	for _, g := range groups {
		uid, _ := uuid.Parse(g.Key)
		m := UserMetric{
			UserID:      uid,
			DisplayName: g.Label,
			TeamName:    UnknownLabel,
			TotalRuns:   g.Aggregates.TotalRuns,
			TotalTokens: g.Aggregates.TotalTokens,
			TotalCost:   g.Aggregates.FormattedCost(),
		}
		if u, ok := users[g.Key]; ok {
			m.Email = u.Email
		}
		if teamID, ok := firstTeam[g.Key]; ok {
			m.TeamName = IDLabels(teams)(teamID)
		}
		out = append(out, m)
	}

	return &TopUsersResponse{ScopeID: orgID, SortBy: string(metric), Users: out}, nil
}

// OrgRuns lists the organization's runs newest first, one page at a time
func (s *Service) OrgRuns(ctx context.Context, p *identity.Principal, orgID uuid.UUID, q Query) (resp *PagedRunList, err error) {
	start, scanned := time.Now(), 0
	defer func() { s.observe("org_runs", start, scanned, err) }()

	if err := s.authorizeOrg(p, orgID, identity.RoleOrgAdmin); err != nil {
		return nil, err
	}
	f, _, err := q.filter(orgID)
	if err != nil {
		return nil, err
	}
	page := PageRequest{Page: q.Page, Size: q.Size}
	if page.Page < 0 {
		page.Page = 0
	}
	if page.Size <= 0 {
		page.Size = 1
	}

	runs, total, err := s.runs.FindRunsPage(ctx, f, page)
	if err != nil {
		return nil, fmt.Errorf("failed to query run page: %w", err)
	}
	scanned = len(runs)

	users, err := s.usersByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	teams, err := s.teamNames(ctx, orgID)
	if err != nil {
		return nil, err
	}
	types, err := s.agentTypeNames(ctx, orgID)
	if err != nil {
		return nil, err
	}
	userLabel := userLabels(users)
	teamLabel := IDLabels(teams)
	typeLabel := SlugLabels(types)

	items := make([]RunItem, 0, len(runs))
	for i := range runs {
		r := &runs[i]
		item := RunItem{
			RunID:                r.ID,
			UserID:               r.UserID,
			UserName:             userLabel(r.UserID.String()),
			TeamID:               r.TeamID,
			TeamName:             UnknownLabel,
			AgentType:            r.AgentTypeSlug,
			AgentTypeDisplayName: typeLabel(r.AgentTypeSlug),
			Status:               string(r.Status),
			StartedAt:            formatInstant(r.StartedAt),
			FinishedAt:           formatOptionalInstant(r.FinishedAt),
			DurationMs:           durationOrZero(r.DurationMs),
			TotalTokens:          r.TotalTokens,
			TotalCost:            FormatCost(r.TotalCost),
		}
		if r.TeamID != nil {
			item.TeamName = teamLabel(r.TeamID.String())
		}
		items = append(items, item)
	}

	return &PagedRunList{
		Items:         items,
		Page:          page.Page,
		TotalPages:    TotalPages(total, page.Size),
		TotalElements: total,
	}, nil
}

// TotalPages is the number of pages of size needed for total elements
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// OrgTeams lists the organization's teams to any of its members
func (s *Service) OrgTeams(ctx context.Context, p *identity.Principal, orgID uuid.UUID) ([]TeamInfo, error) {
	if err := s.guard.AuthorizeOrg(p, orgID); err != nil {
		return nil, err
	}
	teams, err := s.dir.ListTeams(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	out := make([]TeamInfo, len(teams))
	for i, t := range teams {
		out[i] = TeamInfo{TeamID: t.ID, Name: t.Name, Slug: t.Slug}
	}
	return out, nil
}

// OrgUsers lists the organization's users
func (s *Service) OrgUsers(ctx context.Context, p *identity.Principal, orgID uuid.UUID) ([]UserInfo, error) {
	if err := s.authorizeOrg(p, orgID, identity.RoleOrgAdmin); err != nil {
		return nil, err
	}
	users, err := s.dir.ListUsers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	out := make([]UserInfo, len(users))
	for i, u := range users {
		out[i] = UserInfo{UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Role: u.Role}
	}
	return out, nil
}

// OrgAgentTypes lists the organization's agent-type catalog to any of its members
func (s *Service) OrgAgentTypes(ctx context.Context, p *identity.Principal, orgID uuid.UUID) ([]AgentTypeInfo, error) {
	if err := s.guard.AuthorizeOrg(p, orgID); err != nil {
		return nil, err
	}
	types, err := s.dir.ListAgentTypes(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent types: %w", err)
	}
	out := make([]AgentTypeInfo, len(types))
	for i, at := range types {
		out[i] = AgentTypeInfo{Slug: at.Slug, DisplayName: at.DisplayName}
	}
	return out, nil
}
