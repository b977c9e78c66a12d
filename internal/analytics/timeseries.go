package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
)

// DefaultGranularity is echoed when a request names none
const DefaultGranularity = "DAILY"

// NormalizeGranularity returns the label echoed in timeseries responses.
// Bucketing is always by UTC calendar day.
func NormalizeGranularity(s string) string {
	if strings.TrimSpace(s) == "" {
		return DefaultGranularity
	}
	return s
}

// DailyBuckets aggregates runs per UTC calendar day of StartedAt, oldest first
func DailyBuckets(runs []models.Run) []TimeseriesPoint {
	byDay := make(map[time.Time][]models.Run)
	for i := range runs {
		t := runs[i].StartedAt.UTC()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		byDay[day] = append(byDay[day], runs[i])
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	points := make([]TimeseriesPoint, 0, len(days))
	for _, d := range days {
		agg := Aggregate(byDay[d])
		points = append(points, TimeseriesPoint{
			Timestamp:     d.Format(time.RFC3339),
			TotalRuns:     agg.TotalRuns,
			SucceededRuns: agg.SucceededRuns,
			FailedRuns:    agg.FailedRuns,
			TotalTokens:   agg.TotalTokens,
			TotalCost:     agg.FormattedCost(),
			AvgDurationMs: agg.AvgDurationMs,
		})
	}
	return points
}
