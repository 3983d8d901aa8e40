package domain

import (
	"encoding/json"
	"time"
)

// Execution is one launch of an external tool and its lifecycle state.
type Execution struct {
	ID             string          `json:"execution_id"`
	Kind           ExecutionKind   `json:"kind"`
	Status         ExecutionStatus `json:"status"`
	ProjectID      string          `json:"project_id,omitempty"`
	PID            int             `json:"pid,omitempty"`
	WorkDir        string          `json:"work_dir"`
	OutputDir      string          `json:"output_dir"`
	TotalUnits     int             `json:"total_units"`
	CompletedUnits int             `json:"completed_units"`
	Stage          string          `json:"stage,omitempty"`
	Percentage     int             `json:"percentage"`
	ExitCode       *int            `json:"exit_code,omitempty"`
	Result         string          `json:"result,omitempty"`
	Stderr         string          `json:"stderr,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	Config         json.RawMessage `json:"config,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	EndedAt        *time.Time      `json:"ended_at,omitempty"`
	HeartbeatAt    *time.Time      `json:"heartbeat_at,omitempty"`
}

// Outcome carries the terminal data written when an execution finishes.
type Outcome struct {
	Status         ExecutionStatus
	ExitCode       *int
	Result         string
	Stderr         string
	ErrorMessage   string
	ElapsedSeconds float64
}

// ExecutionFilter narrows ListExecutions.
type ExecutionFilter struct {
	Kind      ExecutionKind
	Status    ExecutionStatus
	ProjectID string
	Limit     int
}

// Event represents a recorded execution event.
type Event struct {
	EventID     string          `json:"event_id"`
	ExecutionID string          `json:"execution_id"`
	Ts          int64           `json:"ts"` // Unix milliseconds
	Type        EventType       `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}
