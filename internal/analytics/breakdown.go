package analytics

import (
	"sort"
	"strings"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
)

// UnknownLabel is shown for ids missing from the reference data
const UnknownLabel = "Unknown"

// SortMetric selects the ranking metric of a breakdown
type SortMetric string

const (
	SortByRuns   SortMetric = "runs"
	SortByTokens SortMetric = "tokens"
	SortByCost   SortMetric = "cost"
)

// ParseSortMetric maps a request value onto a metric, defaulting to runs
func ParseSortMetric(s string) SortMetric {
	switch m := SortMetric(strings.ToLower(strings.TrimSpace(s))); m {
	case SortByTokens, SortByCost:
		return m
	default:
		return SortByRuns
	}
}

// KeyFunc extracts a grouping key from a run; false excludes the run
type KeyFunc func(r *models.Run) (string, bool)

// ByTeam keys runs by team id. Runs without a team are excluded.
func ByTeam(r *models.Run) (string, bool) {
	if r.TeamID == nil {
		return "", false
	}
	return r.TeamID.String(), true
}

// ByAgentType keys runs by agent-type slug
func ByAgentType(r *models.Run) (string, bool) {
	if r.AgentTypeSlug == "" {
		return "", false
	}
	return r.AgentTypeSlug, true
}

// ByUser keys runs by user id
func ByUser(r *models.Run) (string, bool) {
	return r.UserID.String(), true
}

// LabelFunc resolves a group key into a display label
type LabelFunc func(key string) string

// IDLabels resolves keys from names, falling back to UnknownLabel
func IDLabels(names map[string]string) LabelFunc {
	return func(key string) string {
		if name, ok := names[key]; ok {
			return name
		}
		return UnknownLabel
	}
}

// SlugLabels resolves keys from names, falling back to the key itself
func SlugLabels(names map[string]string) LabelFunc {
	return func(key string) string {
		if name, ok := names[key]; ok {
			return name
		}
		return key
	}
}

// Group is the aggregate of one breakdown partition
type Group struct {
	Key        string
	Label      string
	Aggregates RunAggregates
}

// GroupBy partitions runs by key. Runs keep their input order within a group.
func GroupBy(runs []models.Run, key KeyFunc) map[string][]models.Run {
	groups := make(map[string][]models.Run)
	for i := range runs {
		k, ok := key(&runs[i])
		if !ok {
			continue
		}
		groups[k] = append(groups[k], runs[i])
	}
	return groups
}

// Breakdown groups runs, aggregates and labels each group, orders groups by
// metric and truncates to limit when limit > 0.
func Breakdown(runs []models.Run, key KeyFunc, label LabelFunc, metric SortMetric, limit int) []Group {
	partitions := GroupBy(runs, key)
	groups := make([]Group, 0, len(partitions))
	for k, members := range partitions {
		groups = append(groups, Group{
			Key:        k,
			Label:      label(k),
			Aggregates: Aggregate(members),
		})
	}

	SortGroups(groups, metric)

	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	return groups
}

// SortGroups orders groups by metric descending, then by key ascending
func SortGroups(groups []Group, metric SortMetric) {
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Aggregates, groups[j].Aggregates
		var c int
		switch metric {
		case SortByTokens:
			c = compareInt64(a.TotalTokens, b.TotalTokens)
		case SortByCost:
			c = a.TotalCost.Cmp(b.TotalCost)
		default:
			c = compareInt64(a.TotalRuns, b.TotalRuns)
		}
		if c != 0 {
			return c > 0
		}
		return groups[i].Key < groups[j].Key
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
