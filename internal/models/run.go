package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RunStatus represents the lifecycle state of an agent run
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
	RunStatusRunning   RunStatus = "RUNNING"
)

// ParseRunStatus reports whether s names one of the known run statuses
func ParseRunStatus(s string) (RunStatus, bool) {
	switch st := RunStatus(s); st {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled, RunStatusRunning:
		return st, true
	}
	return "", false
}

// Run is one recorded execution of an agent. Runs are written by ingestion
// and only ever read here.
type Run struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	OrgID         uuid.UUID       `json:"org_id" db:"org_id"`
	TeamID        *uuid.UUID      `json:"team_id,omitempty" db:"team_id"`
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	AgentTypeSlug string          `json:"agent_type_slug" db:"agent_type_slug"`
	ModelName     *string         `json:"model_name,omitempty" db:"model_name"`
	ModelVersion  *string         `json:"model_version,omitempty" db:"model_version"`
	Status        RunStatus       `json:"status" db:"status"`
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
	DurationMs    *int64          `json:"duration_ms,omitempty" db:"duration_ms"`
	InputTokens   int64           `json:"input_tokens" db:"input_tokens"`
	OutputTokens  int64           `json:"output_tokens" db:"output_tokens"`
	TotalTokens   int64           `json:"total_tokens" db:"total_tokens"`
	InputCost     decimal.Decimal `json:"input_cost" db:"input_cost"`
	OutputCost    decimal.Decimal `json:"output_cost" db:"output_cost"`
	TotalCost     decimal.Decimal `json:"total_cost" db:"total_cost"`
	ErrorCategory *string         `json:"error_category,omitempty" db:"error_category"`
	ErrorMessage  *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
