package analytics

import (
	"context"
	"fmt"
	"time"

	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/identity"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
	"github.com/google/uuid"
)

// resolveUser authorizes access to userID and returns its record, if known.
// A principal always reaches its own data.
func (s *Service) resolveUser(ctx context.Context, p *identity.Principal, userID uuid.UUID) (*models.User, error) {
	if userID != p.UserID {
		if err := s.guard.AuthorizeUser(ctx, p, userID); err != nil {
			return nil, err
		}
	}
	u, err := s.dir.GetUser(ctx, userID)
	if err != nil {
		if apierrors.IsNotFound(err) && userID == p.UserID {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// UserSummary aggregates one user's runs and ranks the user within the org
// by run count over the same window.
func (s *Service) UserSummary(ctx context.Context, p *identity.Principal, userID uuid.UUID, q Query) (resp *UserSummaryResponse, err error) {
	start, scanned := time.Now(), 0
	defer func() { s.observe("user_summary", start, scanned, err) }()

	u, err := s.resolveUser(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	f, r, err := q.filter(p.OrgID)
	if err != nil {
		return nil, err
	}
	f.UserID = &userID
	f.TeamID = nil
	runs, err := s.findRuns(ctx, f)
	if err != nil {
		return nil, err
	}

	orgRuns, err := s.findRuns(ctx, RunFilter{OrgID: p.OrgID, From: r.From, To: r.To})
	if err != nil {
		return nil, err
	}
	scanned = len(runs) + len(orgRuns)

	agg := Aggregate(runs)
	rank, distinct := RankUser(orgRuns, userID)

	displayName := UnknownLabel
	if u != nil {
		displayName = u.DisplayName
	}

	return &UserSummaryResponse{
		UserID:        userID,
		DisplayName:   displayName,
		Period:        r.Period(),
		TotalRuns:     agg.TotalRuns,
		SucceededRuns: agg.SucceededRuns,
		FailedRuns:    agg.FailedRuns,
		TotalTokens:   agg.TotalTokens,
		TotalCost:     agg.FormattedCost(),
		AvgDurationMs: agg.AvgDurationMs,
		TeamRank:      rank,
		TeamSize:      distinct,
	}, nil
}

// UserTimeseries buckets one user's runs per day
func (s *Service) UserTimeseries(ctx context.Context, p *identity.Principal, userID uuid.UUID, q Query) (resp *TimeseriesResponse, err error) {
	start, scanned := time.Now(), 0
	defer func() { s.observe("user_timeseries", start, scanned, err) }()

	if _, err := s.resolveUser(ctx, p, userID); err != nil {
		return nil, err
	}
	f, _, err := q.filter(p.OrgID)
	if err != nil {
		return nil, err
	}
	f.UserID = &userID
	f.TeamID = nil
	runs, err := s.findRuns(ctx, f)
	if err != nil {
		return nil, err
	}
	scanned = len(runs)
	return &TimeseriesResponse{
		ScopeID:     userID,
		Granularity: NormalizeGranularity(q.Granularity),
		DataPoints:  DailyBuckets(runs),
	}, nil
}

// UserRuns lists up to q.Limit of one user's runs, newest first
func (s *Service) UserRuns(ctx context.Context, p *identity.Principal, userID uuid.UUID, q Query) (resp *RunList, err error) {
	start, scanned := time.Now(), 0
	defer func() { s.observe("user_runs", start, scanned, err) }()

	if _, err := s.resolveUser(ctx, p, userID); err != nil {
		return nil, err
	}
	f, _, err := q.filter(p.OrgID)
	if err != nil {
		return nil, err
	}
	f.UserID = &userID
	f.TeamID = nil

	limit := q.Limit
	if limit <= 0 {
		limit = 1
	}
	runs, err := s.runs.FindRecentRuns(ctx, f, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	scanned = len(runs)

	hasMore := len(runs) > limit
	if hasMore {
		runs = runs[:limit]
	}

	types, err := s.agentTypeNames(ctx, p.OrgID)
	if err != nil {
		return nil, err
	}
	typeLabel := SlugLabels(types)

	out := make([]RunSummary, 0, len(runs))
	for i := range runs {
		r := &runs[i]
		out = append(out, RunSummary{
			RunID:                r.ID,
			AgentType:            r.AgentTypeSlug,
			AgentTypeDisplayName: typeLabel(r.AgentTypeSlug),
			Status:               string(r.Status),
			StartedAt:            formatInstant(r.StartedAt),
			FinishedAt:           formatOptionalInstant(r.FinishedAt),
			DurationMs:           durationOrZero(r.DurationMs),
			TotalTokens:          r.TotalTokens,
			TotalCost:            FormatCost(r.TotalCost),
		})
	}

	return &RunList{Runs: out, HasMore: hasMore}, nil
}

// RunDetail returns one run if the principal may see it
func (s *Service) RunDetail(ctx context.Context, p *identity.Principal, runID uuid.UUID) (resp *RunDetail, err error) {
	start := time.Now()
	defer func() { s.observe("run_detail", start, 1, err) }()

	r, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.AuthorizeRun(p, r); err != nil {
		return nil, err
	}

	types, err := s.agentTypeNames(ctx, r.OrgID)
	if err != nil {
		return nil, err
	}

	return &RunDetail{
		RunID:                r.ID,
		OrgID:                r.OrgID,
		TeamID:               r.TeamID,
		UserID:               r.UserID,
		AgentType:            r.AgentTypeSlug,
		AgentTypeDisplayName: SlugLabels(types)(r.AgentTypeSlug),
		ModelName:            r.ModelName,
		ModelVersion:         r.ModelVersion,
		Status:               string(r.Status),
		StartedAt:            formatInstant(r.StartedAt),
		FinishedAt:           formatOptionalInstant(r.FinishedAt),
		DurationMs:           durationOrZero(r.DurationMs),
		InputTokens:          r.InputTokens,
		OutputTokens:         r.OutputTokens,
		TotalTokens:          r.TotalTokens,
		InputCost:            FormatCost(r.InputCost),
		OutputCost:           FormatCost(r.OutputCost),
		TotalCost:            FormatCost(r.TotalCost),
		ErrorCategory:        r.ErrorCategory,
		ErrorMessage:         r.ErrorMessage,
	}, nil
}
