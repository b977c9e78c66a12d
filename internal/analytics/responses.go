package analytics

import (
	"github.com/google/uuid"
)

// Period echoes the requested calendar dates
type Period struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SummaryResponse is the aggregate of one scope over a period
type SummaryResponse struct {
	ScopeID           uuid.UUID `json:"scopeId"`
	Period            Period    `json:"period"`
	TotalRuns         int64     `json:"totalRuns"`
	SucceededRuns     int64     `json:"succeededRuns"`
	FailedRuns        int64     `json:"failedRuns"`
	CancelledRuns     int64     `json:"cancelledRuns"`
	RunningRuns       int64     `json:"runningRuns"`
	SuccessRate       float64   `json:"successRate"`
	TotalTokens       int64     `json:"totalTokens"`
	TotalInputTokens  int64     `json:"totalInputTokens"`
	TotalOutputTokens int64     `json:"totalOutputTokens"`
	TotalCost         string    `json:"totalCost"`
	AvgDurationMs     int64     `json:"avgDurationMs"`
	P50DurationMs     int64     `json:"p50DurationMs"`
	P95DurationMs     int64     `json:"p95DurationMs"`
	P99DurationMs     int64     `json:"p99DurationMs"`
}

// NewSummaryResponse shapes aggregates for a scope
func NewSummaryResponse(scopeID uuid.UUID, period Period, agg RunAggregates) *SummaryResponse {
	return &SummaryResponse{
		ScopeID:           scopeID,
		Period:            period,
		TotalRuns:         agg.TotalRuns,
		SucceededRuns:     agg.SucceededRuns,
		FailedRuns:        agg.FailedRuns,
		CancelledRuns:     agg.CancelledRuns,
		RunningRuns:       agg.RunningRuns,
		SuccessRate:       agg.SuccessRate,
		TotalTokens:       agg.TotalTokens,
		TotalInputTokens:  agg.InputTokens,
		TotalOutputTokens: agg.OutputTokens,
		TotalCost:         agg.FormattedCost(),
		AvgDurationMs:     agg.AvgDurationMs,
		P50DurationMs:     agg.P50DurationMs,
		P95DurationMs:     agg.P95DurationMs,
		P99DurationMs:     agg.P99DurationMs,
	}
}

// TimeseriesPoint is one daily bucket
type TimeseriesPoint struct {
	Timestamp     string `json:"timestamp"`
	TotalRuns     int64  `json:"totalRuns"`
	SucceededRuns int64  `json:"succeededRuns"`
	FailedRuns    int64  `json:"failedRuns"`
	TotalTokens   int64  `json:"totalTokens"`
	TotalCost     string `json:"totalCost"`
	AvgDurationMs int64  `json:"avgDurationMs"`
}

type TimeseriesResponse struct {
	ScopeID     uuid.UUID         `json:"scopeId"`
	Granularity string            `json:"granularity"`
	DataPoints  []TimeseriesPoint `json:"dataPoints"`
}

// BreakdownGroup is one labelled partition of a breakdown
type BreakdownGroup struct {
	Key           string  `json:"key"`
	Label         string  `json:"label"`
	TotalRuns     int64   `json:"totalRuns"`
	TotalTokens   int64   `json:"totalTokens"`
	TotalCost     string  `json:"totalCost"`
	SuccessRate   float64 `json:"successRate"`
	AvgDurationMs int64   `json:"avgDurationMs"`
}

type BreakdownResponse struct {
	ScopeID uuid.UUID        `json:"scopeId"`
	Period  Period           `json:"period"`
	Groups  []BreakdownGroup `json:"groups"`
}

func newBreakdownResponse(scopeID uuid.UUID, period Period, groups []Group) *BreakdownResponse {
	out := make([]BreakdownGroup, len(groups))
	for i, g := range groups {
		out[i] = BreakdownGroup{
			Key:           g.Key,
			Label:         g.Label,
			TotalRuns:     g.Aggregates.TotalRuns,
			TotalTokens:   g.Aggregates.TotalTokens,
			TotalCost:     g.Aggregates.FormattedCost(),
			SuccessRate:   g.Aggregates.SuccessRate,
			AvgDurationMs: g.Aggregates.AvgDurationMs,
		}
	}
	return &BreakdownResponse{ScopeID: scopeID, Period: period, Groups: out}
}

// UserMetric is one row of a top-N ranking
type UserMetric struct {
	UserID      uuid.UUID `json:"userId"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	TeamName    string    `json:"teamName"`
	TotalRuns   int64     `json:"totalRuns"`
	TotalTokens int64     `json:"totalTokens"`
	TotalCost   string    `json:"totalCost"`
}

type TopUsersResponse struct {
	ScopeID uuid.UUID    `json:"scopeId"`
	SortBy  string       `json:"sortBy"`
	Users   []UserMetric `json:"users"`
}

// UserSummaryResponse is a user's own totals plus their standing in the org
type UserSummaryResponse struct {
	UserID        uuid.UUID `json:"userId"`
	DisplayName   string    `json:"displayName"`
	Period        Period    `json:"period"`
	TotalRuns     int64     `json:"totalRuns"`
	SucceededRuns int64     `json:"succeededRuns"`
	FailedRuns    int64     `json:"failedRuns"`
	TotalTokens   int64     `json:"totalTokens"`
	TotalCost     string    `json:"totalCost"`
	AvgDurationMs int64     `json:"avgDurationMs"`
	TeamRank      int       `json:"teamRank"`
	// TeamSize is the number of distinct users with runs in the org window.
	TeamSize int `json:"teamSize"`
}

// RunItem is one row of the paged org run listing
type RunItem struct {
	RunID                uuid.UUID  `json:"runId"`
	UserID               uuid.UUID  `json:"userId"`
	UserName             string     `json:"userName"`
	TeamID               *uuid.UUID `json:"teamId"`
	TeamName             string     `json:"teamName"`
	AgentType            string     `json:"agentType"`
	AgentTypeDisplayName string     `json:"agentTypeDisplayName"`
	Status               string     `json:"status"`
	StartedAt            string     `json:"startedAt"`
	FinishedAt           *string    `json:"finishedAt"`
	DurationMs           int64      `json:"durationMs"`
	TotalTokens          int64      `json:"totalTokens"`
	TotalCost            string     `json:"totalCost"`
}

type PagedRunList struct {
	Items         []RunItem `json:"items"`
	Page          int       `json:"page"`
	TotalPages    int       `json:"totalPages"`
	TotalElements int64     `json:"totalElements"`
}

// RunSummary is one row of a user's run list
type RunSummary struct {
	RunID                uuid.UUID `json:"runId"`
	AgentType            string    `json:"agentType"`
	AgentTypeDisplayName string    `json:"agentTypeDisplayName"`
	Status               string    `json:"status"`
	StartedAt            string    `json:"startedAt"`
	FinishedAt           *string   `json:"finishedAt"`
	DurationMs           int64     `json:"durationMs"`
	TotalTokens          int64     `json:"totalTokens"`
	TotalCost            string    `json:"totalCost"`
}

type RunList struct {
	Runs       []RunSummary `json:"runs"`
	NextCursor *string      `json:"nextCursor"`
	HasMore    bool         `json:"hasMore"`
}

// RunDetail is every recorded fact about one run
type RunDetail struct {
	RunID                uuid.UUID  `json:"runId"`
	OrgID                uuid.UUID  `json:"orgId"`
	TeamID               *uuid.UUID `json:"teamId"`
	UserID               uuid.UUID  `json:"userId"`
	AgentType            string     `json:"agentType"`
	AgentTypeDisplayName string     `json:"agentTypeDisplayName"`
	ModelName            *string    `json:"modelName"`
	ModelVersion         *string    `json:"modelVersion"`
	Status               string     `json:"status"`
	StartedAt            string     `json:"startedAt"`
	FinishedAt           *string    `json:"finishedAt"`
	DurationMs           int64      `json:"durationMs"`
	InputTokens          int64      `json:"inputTokens"`
	OutputTokens         int64      `json:"outputTokens"`
	TotalTokens          int64      `json:"totalTokens"`
	InputCost            string     `json:"inputCost"`
	OutputCost           string     `json:"outputCost"`
	TotalCost            string     `json:"totalCost"`
	ErrorCategory        *string    `json:"errorCategory"`
	ErrorMessage         *string    `json:"errorMessage"`
}

// TeamInfo, UserInfo and AgentTypeInfo are reference-data listing rows
type TeamInfo struct {
	TeamID uuid.UUID `json:"teamId"`
	Name   string    `json:"name"`
	Slug   string    `json:"slug"`
}

type UserInfo struct {
	UserID      uuid.UUID `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
}

type AgentTypeInfo struct {
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
}
