package domain

// ProgressEventData is the payload of progress and stage_changed events.
type ProgressEventData struct {
	ExecutionID    string `json:"execution_id"`
	CompletedUnits int    `json:"completed_units,omitempty"`
	TotalUnits     int    `json:"total_units,omitempty"`
	Stage          string `json:"stage,omitempty"`
	StageLabel     string `json:"stage_label,omitempty"`
	Percentage     int    `json:"percentage"`
}

// FinishedEventData is the payload of execution_finished events.
type FinishedEventData struct {
	ExecutionID    string          `json:"execution_id"`
	Status         ExecutionStatus `json:"status"`
	ExitCode       *int            `json:"exit_code,omitempty"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	Error          string          `json:"error,omitempty"`
}

// ErrorEventData is the data for an error SSE event.
type ErrorEventData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
