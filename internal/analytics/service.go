package analytics

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/access"
	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/logging"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/monitoring"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RunFilter selects runs of one organization inside a window. Nil or empty
// dimensions do not filter.
type RunFilter struct {
	OrgID     uuid.UUID
	TeamID    *uuid.UUID
	UserID    *uuid.UUID
	AgentType string
	Statuses  []models.RunStatus
	From      time.Time
	To        time.Time
}

// PageRequest is a zero-based page of the given size
type PageRequest struct {
	Page int
	Size int
}

// Offset is the number of rows preceding the page. It saturates at
// math.MaxInt64 rather than wrapping for huge page numbers.
func (p PageRequest) Offset() int64 {
	if p.Page <= 0 || p.Size <= 0 {
		return 0
	}
	if int64(p.Page) > math.MaxInt64/int64(p.Size) {
		return math.MaxInt64
	}
	return int64(p.Page) * int64(p.Size)
}

// RunQuerier is the record store's read interface
type RunQuerier interface {
	FindRuns(ctx context.Context, f RunFilter) ([]models.Run, error)
	FindRunsPage(ctx context.Context, f RunFilter, page PageRequest) ([]models.Run, int64, error)
	FindRecentRuns(ctx context.Context, f RunFilter, limit int) ([]models.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
}

// Directory serves reference data used to label report rows
type Directory interface {
	GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListTeams(ctx context.Context, orgID uuid.UUID) ([]models.Team, error)
	ListUsers(ctx context.Context, orgID uuid.UUID) ([]models.User, error)
	ListAgentTypes(ctx context.Context, orgID uuid.UUID) ([]models.AgentType, error)
}

// Query carries the request parameters shared by all composers. Bounds on
// Limit and Size are enforced by the caller.
type Query struct {
	From        string
	To          string
	TeamID      *uuid.UUID
	UserID      *uuid.UUID
	AgentType   string
	Statuses    []string
	Granularity string
	SortBy      string
	Limit       int
	Page        int
	Size        int
}

func (q Query) filter(orgID uuid.UUID) (RunFilter, DateRange, error) {
	r, err := ParseDateRange(q.From, q.To)
	if err != nil {
		return RunFilter{}, DateRange{}, err
	}
	f := RunFilter{
		OrgID:     orgID,
		TeamID:    q.TeamID,
		UserID:    q.UserID,
		AgentType: strings.TrimSpace(q.AgentType),
		From:      r.From,
		To:        r.To,
	}
	for _, s := range q.Statuses {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			f.Statuses = append(f.Statuses, models.RunStatus(s))
		}
	}
	return f, r, nil
}

// Service composes authorized reports from the record store
type Service struct {
	runs  RunQuerier
	dir   Directory
	guard *access.Guard
	log   zerolog.Logger
}

// NewService creates a new analytics service
func NewService(runs RunQuerier, dir Directory, guard *access.Guard) *Service {
	return &Service{
		runs:  runs,
		dir:   dir,
		guard: guard,
		log:   logging.NewLogger("analytics"),
	}
}

// observe records report metrics; call via defer with the named error result
func (s *Service) observe(report string, start time.Time, runs int, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case apierrors.IsForbidden(err):
		outcome = "forbidden"
	case apierrors.IsNotFound(err):
		outcome = "not_found"
	case apierrors.IsKind(err, apierrors.KindInvalidRange):
		outcome = "invalid_range"
	default:
		outcome = "error"
		s.log.Error().Err(err).Str("report", report).Msg("Report failed")
	}
	monitoring.RecordReport(report, outcome, runs, time.Since(start))
}

func (s *Service) findRuns(ctx context.Context, f RunFilter) ([]models.Run, error) {
	runs, err := s.runs.FindRuns(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return runs, nil
}

func (s *Service) teamNames(ctx context.Context, orgID uuid.UUID) (map[string]string, error) {
	teams, err := s.dir.ListTeams(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	names := make(map[string]string, len(teams))
	for _, t := range teams {
		names[t.ID.String()] = t.Name
	}
	return names, nil
}

func (s *Service) usersByID(ctx context.Context, orgID uuid.UUID) (map[string]models.User, error) {
	users, err := s.dir.ListUsers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID.String()] = u
	}
	return byID, nil
}

func (s *Service) agentTypeNames(ctx context.Context, orgID uuid.UUID) (map[string]string, error) {
	types, err := s.dir.ListAgentTypes(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent types: %w", err)
	}
	names := make(map[string]string, len(types))
	for _, at := range types {
		names[at.Slug] = at.DisplayName
	}
	return names, nil
}

func userLabels(users map[string]models.User) LabelFunc {
	return func(key string) string {
		if u, ok := users[key]; ok {
			return u.DisplayName
		}
		return UnknownLabel
	}
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalInstant(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatInstant(*t)
	return &s
}

func durationOrZero(d *int64) int64 {
	if d == nil {
		return 0
	}
	return *d
}
