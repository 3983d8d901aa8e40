package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/process"
)

const orphanedMessage = "orphaned execution: no live coordinator"

// RunStaleExecutionSweeper periodically fails executions that claim to be
// active but whose coordinator, in this or any other process sharing the
// store, has stopped heartbeating.
func (s *Service) RunStaleExecutionSweeper(ctx context.Context) {
	interval := s.config.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStaleExecutions(ctx)
		}
	}
}

func (s *Service) sweepStaleExecutions(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	active, err := s.store.ListActiveExecutions(sweepCtx)
	if err != nil {
		log.Printf("WARN: stale execution sweep failed: %v", err)
		return
	}

	cutoff := time.Now().Add(-s.config.StaleAfter)
	for _, exec := range active {
		if s.coordinator.IsActive(exec.ID) || lastSeen(exec).After(cutoff) {
			continue
		}

		updated, err := s.store.FinishExecution(sweepCtx, exec.ID, domain.Outcome{
			Status:         domain.ExecutionStatusError,
			ErrorMessage:   orphanedMessage,
			ElapsedSeconds: time.Since(exec.CreatedAt).Seconds(),
		})
		if err != nil {
			log.Printf("WARN: failed to mark execution %s orphaned: %v", exec.ID, err)
			continue
		}
		if !updated {
			continue
		}
		log.Printf("WARN: execution %s had no live coordinator, marked ERROR", exec.ID)

		if exec.PID > 0 {
			if err := process.TerminatePID(exec.PID, s.config.TerminationGrace); err != nil && !errors.Is(err, domain.ErrProcessGone) {
				log.Printf("WARN: failed to terminate orphaned pid %d: %v", exec.PID, err)
			}
		}

		if err := s.recordEvent(sweepCtx, exec.ID, domain.EventTypeExecutionFinished, domain.FinishedEventData{
			ExecutionID: exec.ID,
			Status:      domain.ExecutionStatusError,
			Error:       orphanedMessage,
		}); err != nil {
			log.Printf("WARN: failed to record orphan event for %s: %v", exec.ID, err)
		}
	}
}

// lastSeen is the most recent sign of life of an execution's coordinator.
func lastSeen(exec domain.Execution) time.Time {
	if exec.HeartbeatAt != nil {
		return *exec.HeartbeatAt
	}
	return exec.CreatedAt
}
