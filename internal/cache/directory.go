package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/logging"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/monitoring"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Source is the authoritative reference-data store
type Source interface {
	GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListTeams(ctx context.Context, orgID uuid.UUID) ([]models.Team, error)
	ListUsers(ctx context.Context, orgID uuid.UUID) ([]models.User, error)
	ListAgentTypes(ctx context.Context, orgID uuid.UUID) ([]models.AgentType, error)
}

// Directory caches organization listings read from a Source. Redis failures
// fall back to the source; they never fail a read.
type Directory struct {
	source Source
	redis  *Redis
	ttl    time.Duration
	log    zerolog.Logger
}

// NewDirectory wraps source. A nil redis disables caching.
func NewDirectory(source Source, r *Redis, ttl time.Duration) *Directory {
	return &Directory{
		source: source,
		redis:  r,
		ttl:    ttl,
		log:    logging.NewLogger("cache"),
	}
}

func listKey(kind string, orgID uuid.UUID) string {
	return fmt.Sprintf("directory:%s:%s", kind, orgID)
}

// readThrough serves key from Redis or loads it, storing the result for ttl
func readThrough[T any](ctx context.Context, d *Directory, kind string, orgID uuid.UUID, load func() ([]T, error)) ([]T, error) {
	if d.redis == nil {
		return load()
	}

	key := listKey(kind, orgID)
	raw, err := d.redis.Client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var items []T
		if jerr := json.Unmarshal(raw, &items); jerr == nil {
			monitoring.RecordCacheHit(kind)
			return items, nil
		}
		d.log.Warn().Str("key", key).Msg("Discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		d.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	}
	monitoring.RecordCacheMiss(kind)

	items, err := load()
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(items); err == nil {
		if err := d.redis.Client.Set(ctx, key, raw, d.ttl).Err(); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}
	return items, nil
}

func (d *Directory) ListTeams(ctx context.Context, orgID uuid.UUID) ([]models.Team, error) {
	return readThrough(ctx, d, "teams", orgID, func() ([]models.Team, error) {
		return d.source.ListTeams(ctx, orgID)
	})
}

func (d *Directory) ListUsers(ctx context.Context, orgID uuid.UUID) ([]models.User, error) {
	return readThrough(ctx, d, "users", orgID, func() ([]models.User, error) {
		return d.source.ListUsers(ctx, orgID)
	})
}

func (d *Directory) ListAgentTypes(ctx context.Context, orgID uuid.UUID) ([]models.AgentType, error) {
	return readThrough(ctx, d, "agent_types", orgID, func() ([]models.AgentType, error) {
		return d.source.ListAgentTypes(ctx, orgID)
	})
}

// GetTeam is not cached; team lookups gate authorization
func (d *Directory) GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	return d.source.GetTeam(ctx, id)
}

func (d *Directory) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return d.source.GetUser(ctx, id)
}

// Invalidate drops every cached listing of an organization
func (d *Directory) Invalidate(ctx context.Context, orgID uuid.UUID) error {
	if d.redis == nil {
		return nil
	}
	return d.redis.Client.Del(ctx,
		listKey("teams", orgID), listKey("users", orgID), listKey("agent_types", orgID),
	).Err()
}
