// Package store serves runs and reference data from PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/analytics"
	apierrors "github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/errors"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/monitoring"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const runColumns = `id, org_id, team_id, user_id, agent_type_slug, model_name, model_version,
	status, started_at, finished_at, duration_ms, input_tokens, output_tokens, total_tokens,
	input_cost, output_cost, total_cost, error_category, error_message, created_at`

// Postgres implements the run query facade and the reference directory
type Postgres struct {
	pool         *pgxpool.Pool
	breaker      *Breaker
	queryTimeout time.Duration
}

// NewPostgres creates a store on pool. Every query runs through breaker and
// is bounded by queryTimeout when it is positive.
func NewPostgres(pool *pgxpool.Pool, breaker *Breaker, queryTimeout time.Duration) *Postgres {
	return &Postgres{
		pool:         pool,
		breaker:      breaker,
		queryTimeout: queryTimeout,
	}
}

func (s *Postgres) do(ctx context.Context, queryType string, fn func(ctx context.Context) error) error {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() { monitoring.RecordDBQuery(queryType, time.Since(start)) }()

	if s.breaker == nil {
		return fn(ctx)
	}
	return s.breaker.Do(func() error { return fn(ctx) })
}

func scanRun(row pgx.Row) (*models.Run, error) {
	var r models.Run
	var status string
	err := row.Scan(
		&r.ID, &r.OrgID, &r.TeamID, &r.UserID, &r.AgentTypeSlug, &r.ModelName, &r.ModelVersion,
		&status, &r.StartedAt, &r.FinishedAt, &r.DurationMs, &r.InputTokens, &r.OutputTokens, &r.TotalTokens,
		&r.InputCost, &r.OutputCost, &r.TotalCost, &r.ErrorCategory, &r.ErrorMessage, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = models.RunStatus(status)
	return &r, nil
}

func collectRuns(rows pgx.Rows) ([]models.Run, error) {
	defer rows.Close()
	var runs []models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// FindRuns returns every run matching f in start order
func (s *Postgres) FindRuns(ctx context.Context, f analytics.RunFilter) ([]models.Run, error) {
	where, args := buildRunWhere(f)
	query := "SELECT " + runColumns + " FROM agent_runs" + where + " ORDER BY started_at, id"

	var runs []models.Run
	err := s.do(ctx, "find_runs", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query runs: %w", err)
		}
		runs, err = collectRuns(rows)
		return err
	})
	return runs, err
}

// FindRunsPage returns one page of matching runs, newest first, and the total match count
func (s *Postgres) FindRunsPage(ctx context.Context, f analytics.RunFilter, page analytics.PageRequest) ([]models.Run, int64, error) {
	where, args := buildRunWhere(f)

	var (
		total int64
		runs  []models.Run
	)
	err := s.do(ctx, "find_runs_page", func(ctx context.Context) error {
		if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM agent_runs"+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("failed to count runs: %w", err)
		}

		pageArgs := append(args, page.Size, page.Offset())
		query := fmt.Sprintf("SELECT %s FROM agent_runs%s ORDER BY started_at DESC, id LIMIT $%d OFFSET $%d",
			runColumns, where, len(args)+1, len(args)+2)
		rows, err := s.pool.Query(ctx, query, pageArgs...)
		if err != nil {
			return fmt.Errorf("failed to query run page: %w", err)
		}
		runs, err = collectRuns(rows)
		return err
	})
	return runs, total, err
}

// FindRecentRuns returns up to limit matching runs, newest first
func (s *Postgres) FindRecentRuns(ctx context.Context, f analytics.RunFilter, limit int) ([]models.Run, error) {
	where, args := buildRunWhere(f)
	args = append(args, limit)
	query := fmt.Sprintf("SELECT %s FROM agent_runs%s ORDER BY started_at DESC, id LIMIT $%d", runColumns, where, len(args))

	var runs []models.Run
	err := s.do(ctx, "find_recent_runs", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query recent runs: %w", err)
		}
		runs, err = collectRuns(rows)
		return err
	})
	return runs, err
}

// GetRun returns a run by id
func (s *Postgres) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	var run *models.Run
	err := s.do(ctx, "get_run", func(ctx context.Context) error {
		r, err := scanRun(s.pool.QueryRow(ctx, "SELECT "+runColumns+" FROM agent_runs WHERE id = $1", id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apierrors.NotFound("run", id.String())
			}
			return fmt.Errorf("failed to get run: %w", err)
		}
		run = r
		return nil
	})
	return run, err
}

// GetOrganization returns an organization by id
func (s *Postgres) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var o models.Organization
	err := s.do(ctx, "get_organization", func(ctx context.Context) error {
		err := s.pool.QueryRow(ctx,
			"SELECT id, name, slug, created_at FROM organizations WHERE id = $1", id,
		).Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return apierrors.NotFound("organization", id.String())
		}
		if err != nil {
			return fmt.Errorf("failed to get organization: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetTeam returns a team by id
func (s *Postgres) GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	var t models.Team
	err := s.do(ctx, "get_team", func(ctx context.Context) error {
		err := s.pool.QueryRow(ctx,
			"SELECT id, org_id, name, slug, created_at FROM teams WHERE id = $1", id,
		).Scan(&t.ID, &t.OrgID, &t.Name, &t.Slug, &t.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return apierrors.NotFound("team", id.String())
		}
		if err != nil {
			return fmt.Errorf("failed to get team: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const userColumns = "id, org_id, email, display_name, role, password_hash, created_at"

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.OrgID, &u.Email, &u.DisplayName, &u.Role, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser returns a user by id
func (s *Postgres) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user *models.User
	err := s.do(ctx, "get_user", func(ctx context.Context) error {
		u, err := scanUser(s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
		if errors.Is(err, pgx.ErrNoRows) {
			return apierrors.NotFound("user", id.String())
		}
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		user = u
		return nil
	})
	return user, err
}

// GetUserByEmail returns a user by login email
func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user *models.User
	err := s.do(ctx, "get_user_by_email", func(ctx context.Context) error {
		u, err := scanUser(s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE lower(email) = lower($1)", email))
		if errors.Is(err, pgx.ErrNoRows) {
			return apierrors.NotFound("user", email)
		}
		if err != nil {
			return fmt.Errorf("failed to get user by email: %w", err)
		}
		user = u
		return nil
	})
	return user, err
}

// GetMembership returns the organization and teams of a user
func (s *Postgres) GetMembership(ctx context.Context, userID uuid.UUID) (*models.Membership, error) {
	m := &models.Membership{UserID: userID}
	err := s.do(ctx, "get_membership", func(ctx context.Context) error {
		err := s.pool.QueryRow(ctx, "SELECT org_id FROM users WHERE id = $1", userID).Scan(&m.OrgID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apierrors.NotFound("user", userID.String())
		}
		if err != nil {
			return fmt.Errorf("failed to get user organization: %w", err)
		}

		rows, err := s.pool.Query(ctx, "SELECT team_id FROM user_teams WHERE user_id = $1 ORDER BY team_id", userID)
		if err != nil {
			return fmt.Errorf("failed to query user teams: %w", err)
		}
		m.TeamIDs, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return fmt.Errorf("failed to scan user teams: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListUserTeams returns the teams a user belongs to
func (s *Postgres) ListUserTeams(ctx context.Context, userID uuid.UUID) ([]models.Team, error) {
	var teams []models.Team
	err := s.do(ctx, "list_user_teams", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT t.id, t.org_id, t.name, t.slug, t.created_at
			FROM teams t
			JOIN user_teams ut ON ut.team_id = t.id
			WHERE ut.user_id = $1
			ORDER BY t.name
		`, userID)
		if err != nil {
			return fmt.Errorf("failed to query user teams: %w", err)
		}
		teams, err = pgx.CollectRows(rows, pgx.RowToStructByPos[models.Team])
		return err
	})
	return teams, err
}

// ListTeams returns an organization's teams by name
func (s *Postgres) ListTeams(ctx context.Context, orgID uuid.UUID) ([]models.Team, error) {
	var teams []models.Team
	err := s.do(ctx, "list_teams", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx,
			"SELECT id, org_id, name, slug, created_at FROM teams WHERE org_id = $1 ORDER BY name", orgID)
		if err != nil {
			return fmt.Errorf("failed to query teams: %w", err)
		}
		teams, err = pgx.CollectRows(rows, pgx.RowToStructByPos[models.Team])
		return err
	})
	return teams, err
}

// ListUsers returns an organization's users by display name
func (s *Postgres) ListUsers(ctx context.Context, orgID uuid.UUID) ([]models.User, error) {
	var users []models.User
	err := s.do(ctx, "list_users", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx,
			"SELECT "+userColumns+" FROM users WHERE org_id = $1 ORDER BY display_name", orgID)
		if err != nil {
			return fmt.Errorf("failed to query users: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return fmt.Errorf("failed to scan user: %w", err)
			}
			users = append(users, *u)
		}
		return rows.Err()
	})
	return users, err
}

// ListAgentTypes returns an organization's agent-type catalog
func (s *Postgres) ListAgentTypes(ctx context.Context, orgID uuid.UUID) ([]models.AgentType, error) {
	var types []models.AgentType
	err := s.do(ctx, "list_agent_types", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx,
			"SELECT id, org_id, slug, display_name, created_at FROM agent_types WHERE org_id = $1 ORDER BY slug", orgID)
		if err != nil {
			return fmt.Errorf("failed to query agent types: %w", err)
		}
		types, err = pgx.CollectRows(rows, pgx.RowToStructByPos[models.AgentType])
		return err
	})
	return types, err
}
