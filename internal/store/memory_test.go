package store

import (
	"context"
	"testing"
	"time"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/analytics"
	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var windowStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func genRun(t *rapid.T, orgs, teams, users []uuid.UUID, label string) models.Run {
	status := rapid.SampledFrom([]models.RunStatus{
		models.RunStatusSucceeded, models.RunStatusFailed, models.RunStatusCancelled, models.RunStatusRunning,
	}).Draw(t, label+"_status")
	hour := rapid.IntRange(-48, 24*40).Draw(t, label+"_hour")
	r := models.Run{
		ID:            uuid.New(),
		OrgID:         rapid.SampledFrom(orgs).Draw(t, label+"_org"),
		UserID:        rapid.SampledFrom(users).Draw(t, label+"_user"),
		AgentTypeSlug: rapid.SampledFrom([]string{"code-review", "triage", "summarize"}).Draw(t, label+"_agent"),
		Status:        status,
		StartedAt:     windowStart.Add(time.Duration(hour) * time.Hour),
		TotalCost:     decimal.NewFromInt(int64(rapid.IntRange(0, 1000).Draw(t, label+"_cost"))).Shift(-3),
	}
	if rapid.Bool().Draw(t, label+"_hasTeam") {
		team := rapid.SampledFrom(teams).Draw(t, label+"_team")
		r.TeamID = &team
	}
	return r
}

// Property: every run returned by FindRuns matches the filter, and every
// matching run stored is returned, in start order
func TestProperty_Memory_FindRunsMatchesFilter(t *testing.T) {
	orgs := []uuid.UUID{uuid.New(), uuid.New()}
	teams := []uuid.UUID{uuid.New(), uuid.New()}
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	rapid.Check(t, func(t *rapid.T) {
		m := NewMemory()
		n := rapid.IntRange(0, 30).Draw(t, "runs")
		all := make([]models.Run, n)
		for i := range all {
			all[i] = genRun(t, orgs, teams, users, "run")
			m.AddRun(all[i])
		}

		f := analytics.RunFilter{
			OrgID: rapid.SampledFrom(orgs).Draw(t, "filterOrg"),
			From:  windowStart,
			To:    windowStart.AddDate(0, 0, 31),
		}
		if rapid.Bool().Draw(t, "byTeam") {
			team := rapid.SampledFrom(teams).Draw(t, "filterTeam")
			f.TeamID = &team
		}
		if rapid.Bool().Draw(t, "byStatus") {
			f.Statuses = []models.RunStatus{models.RunStatusFailed}
		}

		got, err := m.FindRuns(context.Background(), f)
		if err != nil {
			t.Fatalf("FindRuns failed: %v", err)
		}

		want := 0
		for i := range all {
			if matchRun(&all[i], f) {
				want++
			}
		}
		if len(got) != want {
			t.Fatalf("PROPERTY VIOLATION: expected %d runs, got %d", want, len(got))
		}
		for i := range got {
			if !matchRun(&got[i], f) {
				t.Fatalf("PROPERTY VIOLATION: run %s does not match filter", got[i].ID)
			}
			if i > 0 && got[i].StartedAt.Before(got[i-1].StartedAt) {
				t.Fatalf("PROPERTY VIOLATION: runs out of start order at %d", i)
			}
		}
	})
}

// Property: pages partition the newest-first result set
func TestProperty_Memory_PagesPartitionResults(t *testing.T) {
	org := uuid.New()
	users := []uuid.UUID{uuid.New()}

	rapid.Check(t, func(t *rapid.T) {
		m := NewMemory()
		n := rapid.IntRange(0, 40).Draw(t, "runs")
		for i := 0; i < n; i++ {
			r := genRun(t, []uuid.UUID{org}, []uuid.UUID{uuid.New()}, users, "run")
			r.StartedAt = windowStart.Add(time.Duration(i) * time.Minute)
			m.AddRun(r)
		}
		size := rapid.IntRange(1, 10).Draw(t, "size")
		f := analytics.RunFilter{OrgID: org, From: windowStart, To: windowStart.AddDate(0, 0, 1)}

		seen := 0
		var last time.Time
		for page := 0; ; page++ {
			runs, total, err := m.FindRunsPage(context.Background(), f, analytics.PageRequest{Page: page, Size: size})
			if err != nil {
				t.Fatalf("FindRunsPage failed: %v", err)
			}
			if total != int64(n) {
				t.Fatalf("PROPERTY VIOLATION: total %d, expected %d", total, n)
			}
			if len(runs) == 0 {
				break
			}
			for _, r := range runs {
				if seen > 0 && !r.StartedAt.Before(last) {
					t.Fatalf("PROPERTY VIOLATION: page %d not newest first", page)
				}
				last = r.StartedAt
				seen++
			}
		}
		if seen != n {
			t.Fatalf("PROPERTY VIOLATION: pages covered %d of %d runs", seen, n)
		}
	})
}

func TestMemory_FindRunsPage_HugePageIsEmpty(t *testing.T) {
	org := uuid.New()
	m := NewMemory()
	m.AddRun(models.Run{ID: uuid.New(), OrgID: org, UserID: uuid.New(), Status: models.RunStatusSucceeded, StartedAt: windowStart})
	f := analytics.RunFilter{OrgID: org, From: windowStart, To: windowStart.AddDate(0, 0, 1)}

	runs, total, err := m.FindRunsPage(context.Background(), f, analytics.PageRequest{Page: 92233720368547759, Size: 100})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Equal(t, int64(1), total)
}

func TestMemory_Directory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	org := uuid.New()
	team := models.Team{ID: uuid.New(), OrgID: org, Name: "Platform", Slug: "platform"}
	user := models.User{ID: uuid.New(), OrgID: org, Email: "Alice@Example.com", DisplayName: "Alice", Role: "MEMBER"}
	m.AddTeam(team)
	m.AddUser(user, team.ID)

	membership, err := m.GetMembership(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, org, membership.OrgID)
	assert.Equal(t, []uuid.UUID{team.ID}, membership.TeamIDs)

	found, err := m.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	teams, err := m.ListUserTeams(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Team{team}, teams)

	_, err = m.GetTeam(ctx, uuid.New())
	assert.True(t, apierrors.IsNotFound(err))
	_, err = m.GetMembership(ctx, uuid.New())
	assert.True(t, apierrors.IsNotFound(err))
	_, err = m.GetRun(ctx, uuid.New())
	assert.True(t, apierrors.IsNotFound(err))
}
