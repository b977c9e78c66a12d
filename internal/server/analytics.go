package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/analytics"
	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/identity"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/logging"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Request bounds enforced before the analytics service is called
const (
	defaultTopN     = 10
	maxTopN         = 50
	defaultPageSize = 25
	maxPageSize     = 100
	defaultRunLimit = 50
	maxRunLimit     = 200
)

// clamp returns def when v is unset or non-positive, and max when v exceeds it
func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierrors.NewInvalidRequestError("Invalid " + name + ": must be an integer")
	}
	return v, nil
}

func uuidParam(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apierrors.NewInvalidRequestError("Invalid " + name + ": must be a UUID")
	}
	return id, nil
}

func optionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuidParam(raw, name)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// parseQuery reads the filter parameters shared by every analytics endpoint.
// Limit and Size are left raw; each handler applies its own bounds.
func parseQuery(c *gin.Context) (analytics.Query, error) {
	q := analytics.Query{
		From:        c.Query("from"),
		To:          c.Query("to"),
		AgentType:   c.Query("agent_type"),
		Granularity: c.Query("granularity"),
		SortBy:      c.Query("sort_by"),
	}
	if status := c.Query("status"); status != "" {
		q.Statuses = strings.Split(status, ",")
	}

	var err error
	if q.TeamID, err = optionalUUIDQuery(c, "team_id"); err != nil {
		return q, err
	}
	if q.UserID, err = optionalUUIDQuery(c, "user_id"); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(c, "limit"); err != nil {
		return q, err
	}
	if q.Page, err = intParam(c, "page"); err != nil {
		return q, err
	}
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Size, err = intParam(c, "size"); err != nil {
		return q, err
	}
	return q, nil
}

// scopeRequest resolves the caller, the path id named param and the query
func scopeRequest(c *gin.Context, param string) (*identity.Principal, uuid.UUID, analytics.Query, bool) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		respondError(c, apierrors.ErrUnauthorizedError)
		return nil, uuid.Nil, analytics.Query{}, false
	}

	var id uuid.UUID
	if param != "" {
		var err error
		if id, err = uuidParam(c.Param(param), param); err != nil {
			middleware.RespondError(c, err)
			return nil, uuid.Nil, analytics.Query{}, false
		}
	}

	q, err := parseQuery(c)
	if err != nil {
		middleware.RespondError(c, err)
		return nil, uuid.Nil, analytics.Query{}, false
	}
	return p, id, q, true
}

// render writes resp, or the error the service returned, and logs the outcome
// against the report name and scope id
func render(c *gin.Context, report string, scopeID uuid.UUID, resp any, err error) {
	requestID, userID := c.GetString("request_id"), c.GetString(middleware.ContextKeyUserID)
	if err != nil {
		var de *apierrors.DomainError
		if errors.As(err, &de) && de.Kind == apierrors.KindForbidden {
			logging.LogAccessDenied(requestID, userID, de.Scope, de.ID)
		}
		if apiErr := apierrors.FromError(err); apiErr.HTTPStatus >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		middleware.RespondError(c, err)
		return
	}
	logging.LogReport(&logging.ReportLogEntry{
		RequestID: requestID,
		UserID:    userID,
		Report:    report,
		ScopeID:   scopeID.String(),
		Status:    http.StatusOK,
	})
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleOrgSummary(c *gin.Context) {
	p, orgID, q, ok := scopeRequest(c, "orgId")
	if !ok {
		return
	}
	resp, err := s.analytics.OrgSummary(c.Request.Context(), p, orgID, q)
	render(c, "org_summary", orgID, resp, err)
}

func (s *APIServer) handleOrgTimeseries(c *gin.Context) {
	p, orgID, q, ok := scopeRequest(c, "orgId")
	if !ok {
		return
	}
	resp, err := s.analytics.OrgTimeseries(c.Request.Context(), p, orgID, q)
	render(c, "org_timeseries", orgID, resp, err)
}

func (s *APIServer) handleOrgByTeam(c *gin.Context) {
	p, orgID, q, ok := scopeRequest(c, "orgId")
	if !ok {
		return
	}
	q.Limit = 0
	resp, err := s.analytics.OrgByTeam(c.Request.Context(), p, orgID, q)
	render(c, "org_by_team", orgID, resp, err)
}

func (s *APIServer) handleOrgByAgentType(c *gin.Context) {
	p, orgID, q, ok := scopeRequest(c, "orgId")
	if !ok {
		return
	}
	q.Limit = 0
	resp, err := s.analytics.OrgByAgentType(c.Request.Context(), p, orgID, q)
	render(c, "org_by_agent_type", orgID, resp, err)
}

func (s *APIServer) handleOrgTopUsers(c *gin.Context) {
	p, orgID, q, ok := scopeRequest(c, "orgId")
	if !ok {
		return
	}
	q.Limit = clamp(q.Limit, defaultTopN, maxTopN)
	resp, err := s.analytics.OrgTopUsers(c.Request.Context(), p, orgID, q)
	render(c, "org_top_users", orgID, resp, err)
}

func (s *APIServer) handleOrgRuns(c *gin.Context) {
	p, orgID, q, ok := scopeRequest(c, "orgId")
	if !ok {
		return
	}
	q.Size = clamp(q.Size, defaultPageSize, maxPageSize)
	resp, err := s.analytics.OrgRuns(c.Request.Context(), p, orgID, q)
	render(c, "org_runs", orgID, resp, err)
}

func (s *APIServer) handleOrgTeams(c *gin.Context) {
	p, orgID, _, ok := scopeRequest(c, "orgId")
	if !ok {
		return
	}
	teams, err := s.analytics.OrgTeams(c.Request.Context(), p, orgID)
	render(c, "org_teams", orgID, gin.H{"teams": teams}, err)
}

func (s *APIServer) handleOrgUsers(c *gin.Context) {
	p, orgID, _, ok := scopeRequest(c, "orgId")
	if !ok {
		return
	}
	users, err := s.analytics.OrgUsers(c.Request.Context(), p, orgID)
	render(c, "org_users", orgID, gin.H{"users": users}, err)
}

func (s *APIServer) handleOrgAgentTypes(c *gin.Context) {
	p, orgID, _, ok := scopeRequest(c, "orgId")
	if !ok {
		return
	}
	types, err := s.analytics.OrgAgentTypes(c.Request.Context(), p, orgID)
	render(c, "org_agent_types", orgID, gin.H{"agent_types": types}, err)
}

func (s *APIServer) handleTeamSummary(c *gin.Context) {
	p, teamID, q, ok := scopeRequest(c, "teamId")
	if !ok {
		return
	}
	resp, err := s.analytics.TeamSummary(c.Request.Context(), p, teamID, q)
	render(c, "team_summary", teamID, resp, err)
}

func (s *APIServer) handleTeamTimeseries(c *gin.Context) {
	p, teamID, q, ok := scopeRequest(c, "teamId")
	if !ok {
		return
	}
	resp, err := s.analytics.TeamTimeseries(c.Request.Context(), p, teamID, q)
	render(c, "team_timeseries", teamID, resp, err)
}

func (s *APIServer) handleTeamByUser(c *gin.Context) {
	p, teamID, q, ok := scopeRequest(c, "teamId")
	if !ok {
		return
	}
	q.Limit = 0
	resp, err := s.analytics.TeamByUser(c.Request.Context(), p, teamID, q)
	render(c, "team_by_user", teamID, resp, err)
}

func (s *APIServer) handleMySummary(c *gin.Context) {
	p, _, q, ok := scopeRequest(c, "")
	if !ok {
		return
	}
	resp, err := s.analytics.UserSummary(c.Request.Context(), p, p.UserID, q)
	render(c, "user_summary", p.UserID, resp, err)
}

func (s *APIServer) handleMyTimeseries(c *gin.Context) {
	p, _, q, ok := scopeRequest(c, "")
	if !ok {
		return
	}
	resp, err := s.analytics.UserTimeseries(c.Request.Context(), p, p.UserID, q)
	render(c, "user_timeseries", p.UserID, resp, err)
}

func (s *APIServer) handleMyRuns(c *gin.Context) {
	p, _, q, ok := scopeRequest(c, "")
	if !ok {
		return
	}
	q.Limit = clamp(q.Limit, defaultRunLimit, maxRunLimit)
	resp, err := s.analytics.UserRuns(c.Request.Context(), p, p.UserID, q)
	render(c, "user_runs", p.UserID, resp, err)
}

func (s *APIServer) handleUserSummary(c *gin.Context) {
	p, userID, q, ok := scopeRequest(c, "userId")
	if !ok {
		return
	}
	resp, err := s.analytics.UserSummary(c.Request.Context(), p, userID, q)
	render(c, "user_summary", userID, resp, err)
}

func (s *APIServer) handleUserTimeseries(c *gin.Context) {
	p, userID, q, ok := scopeRequest(c, "userId")
	if !ok {
		return
	}
	resp, err := s.analytics.UserTimeseries(c.Request.Context(), p, userID, q)
	render(c, "user_timeseries", userID, resp, err)
}

func (s *APIServer) handleUserRuns(c *gin.Context) {
	p, userID, q, ok := scopeRequest(c, "userId")
	if !ok {
		return
	}
	q.Limit = clamp(q.Limit, defaultRunLimit, maxRunLimit)
	resp, err := s.analytics.UserRuns(c.Request.Context(), p, userID, q)
	render(c, "user_runs", userID, resp, err)
}

func (s *APIServer) handleRunDetail(c *gin.Context) {
	p, runID, _, ok := scopeRequest(c, "runId")
	if !ok {
		return
	}
	resp, err := s.analytics.RunDetail(c.Request.Context(), p, runID)
	render(c, "run_detail", runID, resp, err)
}
