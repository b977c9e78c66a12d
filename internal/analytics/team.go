package analytics

import (
	"context"
	"time"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/identity"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
	"github.com/google/uuid"
)

// resolveTeam applies the lead/admin gate, loads the team and checks scope
func (s *Service) resolveTeam(ctx context.Context, p *identity.Principal, teamID uuid.UUID) (*models.Team, error) {
	if err := s.guard.RequireAnyRole(p, identity.RoleOrgAdmin, identity.RoleTeamLead); err != nil {
		return nil, err
	}
	team, err := s.dir.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.AuthorizeTeam(p, team); err != nil {
		return nil, err
	}
	return team, nil
}

func (s *Service) teamRuns(ctx context.Context, p *identity.Principal, teamID uuid.UUID, q Query) (*models.Team, []models.Run, DateRange, error) {
	team, err := s.resolveTeam(ctx, p, teamID)
	if err != nil {
		return nil, nil, DateRange{}, err
	}
	f, r, err := q.filter(team.OrgID)
	if err != nil {
		return nil, nil, DateRange{}, err
	}
	f.TeamID = &team.ID
	runs, err := s.findRuns(ctx, f)
	if err != nil {
		return nil, nil, DateRange{}, err
	}
	return team, runs, r, nil
}

// TeamSummary aggregates the team's runs
func (s *Service) TeamSummary(ctx context.Context, p *identity.Principal, teamID uuid.UUID, q Query) (resp *SummaryResponse, err error) {
	start, scanned := time.Now(), 0
	defer func() { s.observe("team_summary", start, scanned, err) }()

	team, runs, r, err := s.teamRuns(ctx, p, teamID, q)
	if err != nil {
		return nil, err
	}
	scanned = len(runs)
	return NewSummaryResponse(team.ID, r.Period(), Aggregate(runs)), nil
}

// TeamTimeseries buckets the team's runs per day
func (s *Service) TeamTimeseries(ctx context.Context, p *identity.Principal, teamID uuid.UUID, q Query) (resp *TimeseriesResponse, err error) {
	start, scanned := time.Now(), 0
	defer func() { s.observe("team_timeseries", start, scanned, err) }()

	team, runs, _, err := s.teamRuns(ctx, p, teamID, q)
	if err != nil {
		return nil, err
	}
	scanned = len(runs)
	return &TimeseriesResponse{
		ScopeID:     team.ID,
		Granularity: NormalizeGranularity(q.Granularity),
		DataPoints:  DailyBuckets(runs),
	}, nil
}

// TeamByUser breaks the team's runs down by user
func (s *Service) TeamByUser(ctx context.Context, p *identity.Principal, teamID uuid.UUID, q Query) (resp *BreakdownResponse, err error) {
	start, scanned := time.Now(), 0
	defer func() { s.observe("team_by_user", start, scanned, err) }()

	team, runs, r, err := s.teamRuns(ctx, p, teamID, q)
	if err != nil {
		return nil, err
	}
	scanned = len(runs)
	users, err := s.usersByID(ctx, team.OrgID)
	if err != nil {
		return nil, err
	}
	groups := Breakdown(runs, ByUser, userLabels(users), ParseSortMetric(q.SortBy), q.Limit)
	return newBreakdownResponse(team.ID, r.Period(), groups), nil
}
