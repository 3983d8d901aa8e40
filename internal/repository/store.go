// Package store defines the storage interface and its SQLite implementation.
package store

import (
	"context"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

// Store defines the interface for data persistence.
//
// Status writes are conditional on the current status and report through the
// returned bool whether the row was actually changed.
type Store interface {
	// Execution operations
	CreateExecution(ctx context.Context, exec *domain.Execution) error
	GetExecution(ctx context.Context, executionID string) (*domain.Execution, error)
	ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]domain.Execution, error)
	ListActiveExecutions(ctx context.Context) ([]domain.Execution, error)
	CountActiveExecutions(ctx context.Context) (int, error)
	DeleteExecution(ctx context.Context, executionID string) (bool, error)
	MarkRunning(ctx context.Context, executionID string, pid int) (bool, error)
	Heartbeat(ctx context.Context, executionID string) (bool, error)
	StopExecution(ctx context.Context, executionID string) (bool, error)
	FinishExecution(ctx context.Context, executionID string, outcome domain.Outcome) (bool, error)
	RecordStoppedOutcome(ctx context.Context, executionID string, outcome domain.Outcome) (bool, error)
	AnnotateError(ctx context.Context, executionID, message string) error
	UpdateProgress(ctx context.Context, executionID string, completedUnits int) (bool, error)
	UpdateStage(ctx context.Context, executionID, stage string, percentage int) (bool, error)

	// Result operations
	CreateGlobalReport(ctx context.Context, report *domain.GlobalReport) error
	CreateProfileReport(ctx context.Context, report *domain.ProfileReport) error
	GetResultTree(ctx context.Context, executionID string) (*domain.ResultTree, error)
	SaveGenerationResult(ctx context.Context, result *domain.GenerationResult) error
	GetGenerationResult(ctx context.Context, executionID string) (*domain.GenerationResult, error)

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, executionID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	Close() error
}
