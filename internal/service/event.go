package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

// recordEvent records an event to the store and pushes it to live subscribers.
func (s *Service) recordEvent(ctx context.Context, executionID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID:     "evt_" + uuid.New().String()[:8],
		ExecutionID: executionID,
		Ts:          time.Now().UnixMilli(),
		Type:        eventType,
		Payload:     payloadBytes,
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishJSON(executionID, map[string]interface{}{
			"type":  "event",
			"event": event,
		}); err != nil {
			log.Printf("WARN: failed to publish event %s: %v", event.EventID, err)
		}
	}
	return nil
}

// emitEvent is the coordinator's event sink; failures are logged only.
func (s *Service) emitEvent(ctx context.Context, executionID string, eventType domain.EventType, payload interface{}) {
	if err := s.recordEvent(ctx, executionID, eventType, payload); err != nil {
		log.Printf("WARN: failed to record %s event for %s: %v", eventType, executionID, err)
	}
}
