// Package domain defines the core domain models for the execution orchestrator.
package domain

// ExecutionKind identifies which external tool an execution runs.
type ExecutionKind string

const (
	ExecutionKindTestRun       ExecutionKind = "test-run"
	ExecutionKindGenerationRun ExecutionKind = "generation-run"
)

// Valid reports whether k is a known execution kind.
func (k ExecutionKind) Valid() bool {
	return k == ExecutionKindTestRun || k == ExecutionKindGenerationRun
}

// ExecutionStatus represents the lifecycle status of an execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
	ExecutionStatusStopped   ExecutionStatus = "STOPPED"
	ExecutionStatusError     ExecutionStatus = "ERROR"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusStopped, ExecutionStatusError:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an allowed status change.
func CanTransition(from, to ExecutionStatus) bool {
	switch from {
	case ExecutionStatusPending:
		return to == ExecutionStatusRunning || to == ExecutionStatusError || to == ExecutionStatusFailed
	case ExecutionStatusRunning:
		return to.IsTerminal()
	}
	return false
}

// EventType represents the type of an execution event.
type EventType string

const (
	EventTypeExecutionCreated  EventType = "execution_created"
	EventTypeExecutionStarted  EventType = "execution_started"
	EventTypeProgress          EventType = "progress"
	EventTypeStageChanged      EventType = "stage_changed"
	EventTypeStopRequested     EventType = "stop_requested"
	EventTypeExecutionFinished EventType = "execution_finished"
	EventTypeIngestionFailed   EventType = "ingestion_failed"
)

// GoalStyle names the step-limit policy a profile was generated with.
type GoalStyle string

const (
	GoalStyleSteps       GoalStyle = "steps"
	GoalStyleAllAnswered GoalStyle = "all_answered"
	GoalStyleDefault     GoalStyle = "default"
)
