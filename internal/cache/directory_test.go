package cache

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource serves fixed teams and counts list calls
type countingSource struct {
	teams []models.Team
	calls atomic.Int32
}

func (s *countingSource) GetTeam(_ context.Context, id uuid.UUID) (*models.Team, error) {
	return &models.Team{ID: id}, nil
}

func (s *countingSource) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func (s *countingSource) ListTeams(_ context.Context, _ uuid.UUID) ([]models.Team, error) {
	s.calls.Add(1)
	return s.teams, nil
}

func (s *countingSource) ListUsers(_ context.Context, _ uuid.UUID) ([]models.User, error) {
	s.calls.Add(1)
	return nil, nil
}

func (s *countingSource) ListAgentTypes(_ context.Context, _ uuid.UUID) ([]models.AgentType, error) {
	s.calls.Add(1)
	return nil, nil
}

func newSource(orgID uuid.UUID) *countingSource {
	return &countingSource{teams: []models.Team{
		{ID: uuid.New(), OrgID: orgID, Name: "Platform", Slug: "platform", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}}
}

func TestDirectory_WithoutRedisPassesThrough(t *testing.T) {
	org := uuid.New()
	src := newSource(org)
	dir := NewDirectory(src, nil, time.Minute)

	for i := 0; i < 3; i++ {
		teams, err := dir.ListTeams(context.Background(), org)
		require.NoError(t, err)
		assert.Equal(t, src.teams, teams)
	}
	assert.Equal(t, int32(3), src.calls.Load())
	assert.NoError(t, dir.Invalidate(context.Background(), org))
}

func TestDirectory_UnreachableRedisFailsOpen(t *testing.T) {
	org := uuid.New()
	src := newSource(org)
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	dir := NewDirectory(src, &Redis{Client: client}, time.Minute)

	teams, err := dir.ListTeams(context.Background(), org)
	require.NoError(t, err)
	assert.Equal(t, src.teams, teams)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestDirectory_ReadThrough(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("Test redis not available")
	}
	ctx := context.Background()
	r, err := New(ctx, url)
	if err != nil {
		t.Skipf("Test redis not reachable: %v", err)
	}
	defer r.Close()

	org := uuid.New()
	src := newSource(org)
	dir := NewDirectory(src, r, time.Minute)
	defer func() { _ = dir.Invalidate(ctx, org) }()

	first, err := dir.ListTeams(ctx, org)
	require.NoError(t, err)
	second, err := dir.ListTeams(ctx, org)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load())

	require.NoError(t, dir.Invalidate(ctx, org))
	_, err = dir.ListTeams(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}
