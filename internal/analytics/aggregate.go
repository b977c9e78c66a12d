// Package analytics reduces run collections into summaries, time series,
// breakdowns and rankings, and composes them into scoped reports.
package analytics

import (
	"math"
	"sort"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
	"github.com/shopspring/decimal"
)

// CostScale is the number of fractional digits money is rendered with
const CostScale = 6

// RunAggregates is the statistical summary of a run collection
type RunAggregates struct {
	TotalRuns     int64
	SucceededRuns int64
	FailedRuns    int64
	CancelledRuns int64
	RunningRuns   int64

	TotalTokens  int64
	InputTokens  int64
	OutputTokens int64

	// TotalCost keeps full precision; use FormattedCost for output.
	TotalCost decimal.Decimal

	SuccessRate   float64
	AvgDurationMs int64
	P50DurationMs int64
	P95DurationMs int64
	P99DurationMs int64
}

// FormattedCost renders TotalCost with exactly six fractional digits
func (a RunAggregates) FormattedCost() string {
	return FormatCost(a.TotalCost)
}

// Aggregate reduces runs in a single classification pass plus one sort of
// the known durations.
func Aggregate(runs []models.Run) RunAggregates {
	agg := RunAggregates{TotalCost: decimal.Zero}
	durations := make([]int64, 0, len(runs))
	var durationSum int64

	for i := range runs {
		r := &runs[i]
		agg.TotalRuns++
		switch r.Status {
		case models.RunStatusSucceeded:
			agg.SucceededRuns++
		case models.RunStatusFailed:
			agg.FailedRuns++
		case models.RunStatusCancelled:
			agg.CancelledRuns++
		case models.RunStatusRunning:
			agg.RunningRuns++
		}

		agg.TotalTokens += r.TotalTokens
		agg.InputTokens += r.InputTokens
		agg.OutputTokens += r.OutputTokens
		agg.TotalCost = agg.TotalCost.Add(r.TotalCost)

		if r.DurationMs != nil {
			durations = append(durations, *r.DurationMs)
			durationSum += *r.DurationMs
		}
	}

	agg.SuccessRate = SuccessRate(agg.SucceededRuns, agg.TotalRuns)

	if n := int64(len(durations)); n > 0 {
		agg.AvgDurationMs = floorDiv(durationSum, n)
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		agg.P50DurationMs = Percentile(durations, 50)
		agg.P95DurationMs = Percentile(durations, 95)
		agg.P99DurationMs = Percentile(durations, 99)
	}

	return agg
}

// Percentile returns the nearest-rank p-th percentile of an ascending list:
// sorted[ceil(p/100*n)-1], clamped to the list bounds. It returns 0 for an
// empty list.
func Percentile(sorted []int64, p int) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	// ceil(p*n/100) in integers
	idx := (p*n+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// SuccessRate is succeeded/total rounded to four decimal places
func SuccessRate(succeeded, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(succeeded)/float64(total)*10000) / 10000
}

// FormatCost renders d with six fractional digits, rounding half away from zero
func FormatCost(d decimal.Decimal) string {
	return d.StringFixed(CostScale)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
