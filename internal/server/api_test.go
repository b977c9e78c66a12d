package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/access"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/analytics"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/auth"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/config"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/middleware"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const window = "from=2024-03-01&to=2024-03-31"

type fixture struct {
	router http.Handler
	cfg    *config.Config
	auth   *auth.Service
	authn  *middleware.Authenticator
	svc    *analytics.Service
	mem    *store.Memory

	orgA, orgB            models.Organization
	platform, data        models.Team
	admin, lead, member   models.User
	member2, outsider     models.User
	memberRun, member2Run models.Run
	tokens                map[uuid.UUID]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test"},
		JWT: config.JWTConfig{
			Secret:            "test-secret-key-for-api-testing-32chars",
			AccessTokenExpiry: 15 * time.Minute,
			Issuer:            "analytics-dashboard",
		},
		Identity: config.IdentityConfig{
			Provider: config.ProviderLocal,
			Claims:   config.DefaultClaimMapping(),
		},
	}

	f := &fixture{cfg: cfg, mem: store.NewMemory(), tokens: make(map[uuid.UUID]string)}
	f.orgA = models.Organization{ID: uuid.New(), Name: "Acme", Slug: "acme"}
	f.orgB = models.Organization{ID: uuid.New(), Name: "Globex", Slug: "globex"}
	f.mem.AddOrganization(f.orgA)
	f.mem.AddOrganization(f.orgB)

	f.platform = models.Team{ID: uuid.New(), OrgID: f.orgA.ID, Name: "Platform", Slug: "platform"}
	f.data = models.Team{ID: uuid.New(), OrgID: f.orgA.ID, Name: "Data", Slug: "data"}
	f.mem.AddTeam(f.platform)
	f.mem.AddTeam(f.data)
	f.mem.AddAgentType(models.AgentType{ID: uuid.New(), OrgID: f.orgA.ID, Slug: "code-review", DisplayName: "Code Review"})

	user := func(org models.Organization, name, role string, teams ...uuid.UUID) models.User {
		u := models.User{ID: uuid.New(), OrgID: org.ID, Email: name + "@" + org.Slug + ".test", DisplayName: name, Role: role}
		f.mem.AddUser(u, teams...)
		return u
	}
	f.admin = user(f.orgA, "admin", "ORG_ADMIN")
	f.lead = user(f.orgA, "lead", "TEAM_LEAD", f.platform.ID)
	f.member = user(f.orgA, "member", "MEMBER", f.platform.ID)
	f.member2 = user(f.orgA, "member2", "MEMBER", f.data.ID)
	f.outsider = user(f.orgB, "outsider", "ORG_ADMIN")

	run := func(u models.User, team uuid.UUID, status models.RunStatus, tokens int64, cost string, day int) models.Run {
		duration := tokens
		r := models.Run{
			ID:            uuid.New(),
			OrgID:         u.OrgID,
			TeamID:        &team,
			UserID:        u.ID,
			AgentTypeSlug: "code-review",
			Status:        status,
			StartedAt:     time.Date(2024, 3, day, 10, 0, 0, 0, time.UTC),
			DurationMs:    &duration,
			InputTokens:   tokens / 2,
			OutputTokens:  tokens - tokens/2,
			TotalTokens:   tokens,
			TotalCost:     decimal.RequireFromString(cost),
		}
		f.mem.AddRun(r)
		return r
	}
	f.memberRun = run(f.member, f.platform.ID, models.RunStatusSucceeded, 1000, "0.100000", 10)
	run(f.member, f.platform.ID, models.RunStatusSucceeded, 2000, "0.200000", 11)
	f.member2Run = run(f.member2, f.data.ID, models.RunStatusFailed, 500, "0.050000", 11)

	f.auth = auth.NewService(f.mem, &cfg.JWT)
	authenticator, err := middleware.NewAuthenticator(cfg)
	require.NoError(t, err)
	f.authn = authenticator

	f.svc = analytics.NewService(f.mem, f.mem, access.NewGuard(f.mem))
	f.router = NewAPIServer(cfg, Deps{
		Analytics:     f.svc,
		Auth:          f.auth,
		Authenticator: authenticator,
	}).Router()

	for _, u := range []models.User{f.admin, f.lead, f.member, f.member2, f.outsider} {
		teams, err := f.mem.ListUserTeams(context.Background(), u.ID)
		require.NoError(t, err)
		token, err := f.auth.IssueToken(&u, teams)
		require.NoError(t, err)
		f.tokens[u.ID] = token
	}
	return f
}

func (f *fixture) get(as models.User, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token, ok := f.tokens[as.ID]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	e, _ := decode(t, w)["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestOrgSummary_ThreeRunTotals(t *testing.T) {
	f := newFixture(t)

	w := f.get(f.admin, "/api/v1/orgs/"+f.orgA.ID.String()+"/analytics/summary?"+window)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, f.orgA.ID.String(), body["scopeId"])
	assert.EqualValues(t, 3, body["totalRuns"])
	assert.EqualValues(t, 2, body["succeededRuns"])
	assert.EqualValues(t, 1, body["failedRuns"])
	assert.EqualValues(t, 3500, body["totalTokens"])
	assert.Equal(t, "0.350000", body["totalCost"])
	assert.EqualValues(t, 0.6667, body["successRate"])
	assert.Equal(t, map[string]any{"from": "2024-03-01", "to": "2024-03-31"}, body["period"])
}

func TestOrgEndpoints_AccessRules(t *testing.T) {
	f := newFixture(t)
	org := "/api/v1/orgs/" + f.orgA.ID.String()

	tests := []struct {
		name   string
		as     models.User
		path   string
		status int
		code   string
	}{
		{"admin summary", f.admin, org + "/analytics/summary?" + window, http.StatusOK, ""},
		{"member summary", f.member, org + "/analytics/summary?" + window, http.StatusForbidden, "40302"},
		{"lead summary", f.lead, org + "/analytics/summary?" + window, http.StatusForbidden, "40302"},
		{"other org admin", f.outsider, org + "/analytics/summary?" + window, http.StatusForbidden, "40301"},
		{"lead by agent type", f.lead, org + "/analytics/by-agent-type?" + window, http.StatusOK, ""},
		{"member by agent type", f.member, org + "/analytics/by-agent-type?" + window, http.StatusForbidden, "40302"},
		{"lead agent types", f.lead, org + "/agent-types", http.StatusOK, ""},
		{"lead teams", f.lead, org + "/teams", http.StatusOK, ""},
		{"member teams", f.member, org + "/teams", http.StatusOK, ""},
		{"member agent types", f.member, org + "/agent-types", http.StatusOK, ""},
		{"member users", f.member, org + "/users", http.StatusForbidden, "40302"},
		{"other org teams", f.outsider, org + "/teams", http.StatusForbidden, "40301"},
		{"admin users", f.admin, org + "/users", http.StatusOK, ""},
		{"missing dates", f.admin, org + "/analytics/summary", http.StatusBadRequest, "40003"},
		{"inverted dates", f.admin, org + "/analytics/summary?from=2024-03-31&to=2024-03-01", http.StatusOK, ""},
		{"bad org id", f.admin, "/api/v1/orgs/nope/analytics/summary?" + window, http.StatusBadRequest, "40001"},
		{"bad team filter", f.admin, org + "/analytics/summary?team_id=nope&" + window, http.StatusBadRequest, "40001"},
		{"no token", models.User{}, org + "/analytics/summary?" + window, http.StatusUnauthorized, "40100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.get(tt.as, tt.path)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, errorCode(t, w))
			}
		})
	}
}

func TestOrgByTeam_GroupsAndLabels(t *testing.T) {
	f := newFixture(t)

	w := f.get(f.admin, "/api/v1/orgs/"+f.orgA.ID.String()+"/analytics/by-team?sort_by=tokens&"+window)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	groups := decode(t, w)["groups"].([]any)
	require.Len(t, groups, 2)
	first := groups[0].(map[string]any)
	assert.Equal(t, f.platform.ID.String(), first["key"])
	assert.Equal(t, "Platform", first["label"])
	assert.EqualValues(t, 3000, first["totalTokens"])
	assert.Equal(t, "Data", groups[1].(map[string]any)["label"])
}

func TestOrgTopUsers_ClampsLimit(t *testing.T) {
	f := newFixture(t)

	w := f.get(f.admin, "/api/v1/orgs/"+f.orgA.ID.String()+"/analytics/top-users?limit=500&"+window)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "runs", body["sortBy"])
	users := body["users"].([]any)
	require.Len(t, users, 2)
	top := users[0].(map[string]any)
	assert.Equal(t, f.member.ID.String(), top["userId"])
	assert.Equal(t, "Platform", top["teamName"])
	assert.Equal(t, "member@acme.test", top["email"])

	w = f.get(f.admin, "/api/v1/orgs/"+f.orgA.ID.String()+"/analytics/top-users?limit=1&"+window)
	assert.Len(t, decode(t, w)["users"].([]any), 1)
}

func TestOrgRuns_Paging(t *testing.T) {
	f := newFixture(t)
	base := "/api/v1/orgs/" + f.orgA.ID.String() + "/runs?" + window

	w := f.get(f.admin, base+"&size=2&page=1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 1, body["page"])
	assert.EqualValues(t, 2, body["totalPages"])
	assert.EqualValues(t, 3, body["totalElements"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, f.memberRun.ID.String(), items[0].(map[string]any)["runId"])
	assert.Equal(t, "Code Review", items[0].(map[string]any)["agentTypeDisplayName"])

	w = f.get(f.admin, base+"&status=failed,cancelled")
	body = decode(t, w)
	assert.EqualValues(t, 1, body["totalElements"])

	w = f.get(f.admin, base+"&size=100&page=92233720368547759")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Empty(t, body["items"])
	assert.EqualValues(t, 3, body["totalElements"])
}

func TestTeamEndpoints_AccessRules(t *testing.T) {
	f := newFixture(t)

	w := f.get(f.lead, "/api/v1/teams/"+f.platform.ID.String()+"/analytics/summary?"+window)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, f.platform.ID.String(), body["scopeId"])
	assert.EqualValues(t, 2, body["totalRuns"])

	w = f.get(f.lead, "/api/v1/teams/"+f.data.ID.String()+"/analytics/summary?"+window)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.get(f.member, "/api/v1/teams/"+f.platform.ID.String()+"/analytics/summary?"+window)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.get(f.outsider, "/api/v1/teams/"+f.platform.ID.String()+"/analytics/by-user?"+window)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.get(f.admin, "/api/v1/teams/"+uuid.NewString()+"/analytics/summary?"+window)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "40401", errorCode(t, w))
}

func TestUserEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.get(f.member, "/api/v1/users/me/analytics/summary?"+window)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "member", body["displayName"])
	assert.EqualValues(t, 2, body["totalRuns"])
	assert.EqualValues(t, 1, body["teamRank"])
	assert.EqualValues(t, 2, body["teamSize"])

	w = f.get(f.member2, "/api/v1/users/me/analytics/summary?"+window)
	body = decode(t, w)
	assert.EqualValues(t, 2, body["teamRank"])

	w = f.get(f.lead, "/api/v1/users/me/analytics/summary?"+window)
	body = decode(t, w)
	assert.EqualValues(t, 0, body["totalRuns"])
	assert.EqualValues(t, 3, body["teamRank"])

	w = f.get(f.member, "/api/v1/users/me/runs?limit=1&"+window)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Len(t, body["runs"].([]any), 1)
	assert.Equal(t, true, body["hasMore"])
	assert.Nil(t, body["nextCursor"])

	tests := []struct {
		name   string
		as     models.User
		target uuid.UUID
		status int
	}{
		{"lead sees teammate", f.lead, f.member.ID, http.StatusOK},
		{"lead denied other team", f.lead, f.member2.ID, http.StatusForbidden},
		{"member denied peer", f.member, f.lead.ID, http.StatusForbidden},
		{"admin sees anyone", f.admin, f.member2.ID, http.StatusOK},
		{"other org admin denied", f.outsider, f.member.ID, http.StatusForbidden},
		{"member sees self by id", f.member, f.member.ID, http.StatusOK},
		{"unknown user", f.admin, uuid.New(), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.get(tt.as, "/api/v1/users/"+tt.target.String()+"/analytics/timeseries?"+window)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestRunDetail(t *testing.T) {
	f := newFixture(t)
	path := "/api/v1/runs/" + f.memberRun.ID.String()

	w := f.get(f.member, path)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "0.100000", body["totalCost"])
	assert.Equal(t, "Code Review", body["agentTypeDisplayName"])
	assert.Equal(t, "2024-03-10T10:00:00Z", body["startedAt"])

	assert.Equal(t, http.StatusOK, f.get(f.lead, path).Code)
	assert.Equal(t, http.StatusOK, f.get(f.admin, path).Code)
	assert.Equal(t, http.StatusForbidden, f.get(f.member2, path).Code)
	assert.Equal(t, http.StatusForbidden, f.get(f.outsider, path).Code)

	w = f.get(f.admin, "/api/v1/runs/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "40403", errorCode(t, w))
}

func TestLogin_TokenOpensApi(t *testing.T) {
	f := newFixture(t)
	hash, err := argon2id.CreateHash("s3cret-pass", &argon2id.Params{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	require.NoError(t, err)
	u := models.User{
		ID: uuid.New(), OrgID: f.orgA.ID, Email: "new@acme.test",
		DisplayName: "New", Role: "MEMBER", PasswordHash: &hash,
	}
	f.mem.AddUser(u, f.data.ID)

	login := func(password string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"email": u.Email, "password": password})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		return w
	}

	w := login("wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "40101", errorCode(t, w))

	w = login("s3cret-pass")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "Acme", resp["orgName"])
	assert.Equal(t, []any{map[string]any{"teamId": f.data.ID.String(), "teamName": "Data"}}, resp["teams"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me/analytics/summary?"+window, nil)
	req.Header.Set("Authorization", "Bearer "+resp["token"].(string))
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	w := f.get(f.admin, "/api/v1/nowhere")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "40400", errorCode(t, w))
}

type stubHealth struct{ err error }

func (s stubHealth) Health(context.Context) error { return s.err }

func TestHealth_Dependencies(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name       string
		db, cache  error
		wantStatus int
		wantCache  string
	}{
		{"all up", nil, nil, http.StatusOK, "ok"},
		{"cache down", nil, assert.AnError, http.StatusOK, "degraded"},
		{"database down", assert.AnError, nil, http.StatusServiceUnavailable, "ok"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewAPIServer(f.cfg, Deps{
				Analytics:     f.svc,
				Authenticator: f.authn,
				DB:            stubHealth{tc.db},
				Cache:         stubHealth{tc.cache},
			})
			w := httptest.NewRecorder()
			srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantCache, decode(t, w)["cache"])
		})
	}
}

func TestMetrics_OnlyWithoutDedicatedPort(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct {
		port int
		want int
	}{
		{0, http.StatusOK},
		{9090, http.StatusNotFound},
	} {
		cfg := *f.cfg
		cfg.Monitoring = config.MonitoringConfig{PrometheusEnabled: true, PrometheusPort: tc.port}
		srv := NewAPIServer(&cfg, Deps{Analytics: f.svc, Authenticator: f.authn})

		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, tc.want, w.Code, "port %d", tc.port)
	}
}
