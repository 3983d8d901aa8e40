package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/policy"
)

// StartTestRun accepts a conversation-simulation run and launches it in the background.
func (s *Service) StartTestRun(ctx context.Context, req domain.TestRunRequest) (*domain.StartResponse, error) {
	total := req.TotalUnits
	if total <= 0 {
		total = req.Config.ExpectedConversations()
	}
	return s.start(ctx, domain.ExecutionKindTestRun, req.ProjectID, req.Config, total)
}

// StartGenerationRun accepts a chatbot-exploration run and launches it in the background.
func (s *Service) StartGenerationRun(ctx context.Context, req domain.GenerationRunRequest) (*domain.StartResponse, error) {
	return s.start(ctx, domain.ExecutionKindGenerationRun, req.ProjectID, req.Config, 0)
}

func (s *Service) start(ctx context.Context, kind domain.ExecutionKind, projectID string, cfg domain.RunConfig, totalUnits int) (*domain.StartResponse, error) {
	if err := cfg.Validate(kind); err != nil {
		return nil, err
	}
	if err := s.admit(ctx, kind, cfg); err != nil {
		return nil, err
	}

	execID := "exec_" + uuid.New().String()[:8]
	root := filepath.Join(s.config.DataDir, "executions", execID)
	workDir := filepath.Join(root, "work")
	outputDir := filepath.Join(root, "output")
	for _, dir := range []string{workDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create execution directory: %w", err)
		}
	}

	stored := cfg
	stored.APIKey = ""
	cfgJSON, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	exec := &domain.Execution{
		ID:         execID,
		Kind:       kind,
		Status:     domain.ExecutionStatusPending,
		ProjectID:  projectID,
		WorkDir:    workDir,
		OutputDir:  outputDir,
		TotalUnits: totalUnits,
		Config:     cfgJSON,
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	if err := s.recordEvent(ctx, execID, domain.EventTypeExecutionCreated, map[string]interface{}{
		"execution_id": execID,
		"kind":         kind,
		"total_units":  totalUnits,
	}); err != nil {
		log.Printf("ERROR: failed to record execution_created event: %v", err)
	}

	s.coordinator.Start(exec, cfg)

	return &domain.StartResponse{
		ExecutionID: execID,
		Kind:        kind,
		Status:      domain.ExecutionStatusPending,
	}, nil
}

// admit evaluates the admission policy for a start request.
func (s *Service) admit(ctx context.Context, kind domain.ExecutionKind, cfg domain.RunConfig) error {
	if s.policyEngine == nil {
		return nil
	}
	active, err := s.store.CountActiveExecutions(ctx)
	if err != nil {
		return fmt.Errorf("failed to count active executions: %w", err)
	}
	decision, err := s.policyEngine.Evaluate(ctx, policy.Input{
		Kind:             string(kind),
		Technology:       cfg.Technology,
		Profiles:         len(cfg.Profiles),
		Sessions:         cfg.Sessions,
		Turns:            cfg.TurnsPerSession,
		ActiveExecutions: active,
	})
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	if !decision.Allow {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, decision.Reason)
	}
	return nil
}

// CancelExecution stops a running execution.
func (s *Service) CancelExecution(ctx context.Context, executionID string) (*domain.CancelResponse, error) {
	stopped, err := s.coordinator.Cancel(ctx, executionID)
	if err != nil {
		return nil, err
	}
	resp := &domain.CancelResponse{ExecutionID: executionID, Stopped: stopped}
	if stopped {
		resp.Message = "Execution stopped"
	} else {
		resp.Message = "Execution is not running"
	}
	return resp, nil
}

// GetExecution returns an execution or domain.ErrNotFound.
func (s *Service) GetExecution(ctx context.Context, executionID string) (*domain.Execution, error) {
	exec, err := s.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	if exec == nil {
		return nil, domain.ErrNotFound
	}
	return exec, nil
}

// ListExecutions returns executions matching filter, newest first.
func (s *Service) ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]domain.Execution, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidConfig, filter.Kind)
	}
	return s.store.ListExecutions(ctx, filter)
}

// DeleteExecution removes a finished execution, its results and its files.
func (s *Service) DeleteExecution(ctx context.Context, executionID string) error {
	exec, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if !exec.Status.IsTerminal() || s.coordinator.IsActive(executionID) {
		return domain.ErrExecutionActive
	}
	deleted, err := s.store.DeleteExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to delete execution: %w", err)
	}
	if !deleted {
		return domain.ErrNotFound
	}
	root := filepath.Dir(exec.WorkDir)
	if filepath.Base(root) == executionID {
		if err := os.RemoveAll(root); err != nil {
			log.Printf("WARN: failed to remove files of execution %s: %v", executionID, err)
		}
	}
	return nil
}

// GetResultTree returns the ingested reports of a test-run.
func (s *Service) GetResultTree(ctx context.Context, executionID string) (*domain.ResultTree, error) {
	exec, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Kind != domain.ExecutionKindTestRun {
		return nil, fmt.Errorf("%w: execution %s is a %s", domain.ErrInvalidConfig, executionID, exec.Kind)
	}
	return s.store.GetResultTree(ctx, executionID)
}

// GetGenerationResult returns the ingested analysis of a generation-run.
func (s *Service) GetGenerationResult(ctx context.Context, executionID string) (*domain.GenerationResult, error) {
	exec, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Kind != domain.ExecutionKindGenerationRun {
		return nil, fmt.Errorf("%w: execution %s is a %s", domain.ErrInvalidConfig, executionID, exec.Kind)
	}
	result, err := s.store.GetGenerationResult(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, domain.ErrNotFound
	}
	return result, nil
}

// GetExecutionEvents returns recorded events after afterTs, optionally filtered by type.
func (s *Service) GetExecutionEvents(ctx context.Context, executionID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	if _, err := s.GetExecution(ctx, executionID); err != nil {
		return nil, err
	}
	return s.store.GetEvents(ctx, executionID, afterTs, types, limit)
}
