package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/analytics"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/auth"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/config"
	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/logging"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/middleware"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/monitoring"
	"github.com/gin-gonic/gin"
)

// HealthChecker reports whether a backing dependency answers
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the collaborators the API server routes to
type Deps struct {
	Analytics     *analytics.Service
	Auth          *auth.Service
	Authenticator *middleware.Authenticator
	DB            HealthChecker
	// Cache is optional; an unreachable cache degrades but does not fail health
	Cache HealthChecker
}

// APIServer represents the main API server
type APIServer struct {
	config        *config.Config
	router        *gin.Engine
	analytics     *analytics.Service
	authService   *auth.Service
	authenticator *middleware.Authenticator
	db            HealthChecker
	cache         HealthChecker
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, deps Deps) *APIServer {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	srv := &APIServer{
		config:        cfg,
		router:        router,
		analytics:     deps.Analytics,
		authService:   deps.Auth,
		authenticator: deps.Authenticator,
		db:            deps.DB,
		cache:         deps.Cache,
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	s.router.NoRoute(func(c *gin.Context) { respondError(c, apierrors.ErrNotFoundError) })
	s.router.GET("/health", s.healthCheck)
	// with a dedicated metrics port the scrape endpoint lives there instead
	if m := s.config.Monitoring; m.PrometheusEnabled && m.PrometheusPort == 0 {
		s.router.GET("/metrics", monitoring.GinHandler())
	}

	v1 := s.router.Group("/api/v1")

	// Local login only exists while this service issues its own tokens
	if s.authService != nil {
		v1.POST("/auth/login", s.handleLogin)
	}

	api := v1.Group("")
	api.Use(s.authenticator.Authenticate())

	orgs := api.Group("/orgs/:orgId")
	{
		orgs.GET("/analytics/summary", s.handleOrgSummary)
		orgs.GET("/analytics/timeseries", s.handleOrgTimeseries)
		orgs.GET("/analytics/by-team", s.handleOrgByTeam)
		orgs.GET("/analytics/by-agent-type", s.handleOrgByAgentType)
		orgs.GET("/analytics/top-users", s.handleOrgTopUsers)
		orgs.GET("/runs", s.handleOrgRuns)
		orgs.GET("/teams", s.handleOrgTeams)
		orgs.GET("/users", s.handleOrgUsers)
		orgs.GET("/agent-types", s.handleOrgAgentTypes)
	}

	teams := api.Group("/teams/:teamId")
	{
		teams.GET("/analytics/summary", s.handleTeamSummary)
		teams.GET("/analytics/timeseries", s.handleTeamTimeseries)
		teams.GET("/analytics/by-user", s.handleTeamByUser)
	}

	users := api.Group("/users")
	{
		users.GET("/me/analytics/summary", s.handleMySummary)
		users.GET("/me/analytics/timeseries", s.handleMyTimeseries)
		users.GET("/me/runs", s.handleMyRuns)
		users.GET("/:userId/analytics/summary", s.handleUserSummary)
		users.GET("/:userId/analytics/timeseries", s.handleUserTimeseries)
		users.GET("/:userId/runs", s.handleUserRuns)
	}

	api.GET("/runs/:runId", s.handleRunDetail)
}

// Health check handler
func (s *APIServer) healthCheck(c *gin.Context) {
	status := gin.H{
		"status":  "healthy",
		"service": "analytics-dashboard",
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if s.cache != nil {
		status["cache"] = "ok"
		if err := s.cache.Health(ctx); err != nil {
			status["cache"] = "degraded"
		}
	}
	if s.db != nil {
		if err := s.db.Health(ctx); err != nil {
			status["status"] = "unhealthy"
			status["database"] = "unreachable"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	c.JSON(http.StatusOK, status)
}

// handleLogin handles user login
func (s *APIServer) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.authService.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			logging.LogSecurityEvent("login_failed", "", c.ClientIP(), logging.SanitizeForLog(req.Email, 64))
			respondError(c, apierrors.ErrInvalidCredentialsError)
		} else {
			logging.LogError(err, c.GetString("request_id"), "auth", "login")
			respondError(c, apierrors.FromError(err))
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	middleware.RespondError(c, err)
}
