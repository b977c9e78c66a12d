package store

import (
	"fmt"
	"strings"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/analytics"
)

// buildRunWhere renders f as a WHERE clause over agent_runs with positional args
func buildRunWhere(f analytics.RunFilter) (string, []any) {
	var conditions []string
	var args []any

	args = append(args, f.OrgID)
	conditions = append(conditions, fmt.Sprintf("org_id = $%d", len(args)))

	if !f.From.IsZero() {
		args = append(args, f.From)
		conditions = append(conditions, fmt.Sprintf("started_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conditions = append(conditions, fmt.Sprintf("started_at < $%d", len(args)))
	}
	if f.TeamID != nil {
		args = append(args, *f.TeamID)
		conditions = append(conditions, fmt.Sprintf("team_id = $%d", len(args)))
	}
	if f.UserID != nil {
		args = append(args, *f.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.AgentType != "" {
		args = append(args, f.AgentType)
		conditions = append(conditions, fmt.Sprintf("agent_type_slug = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}
