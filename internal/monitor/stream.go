package monitor

import (
	"context"
	"log"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

// StageStore is the subset of the store the stream monitor writes to.
type StageStore interface {
	UpdateStage(ctx context.Context, executionID, stage string, percentage int) (bool, error)
}

// StreamMonitor turns streamed tool output into persisted stage updates.
type StreamMonitor struct {
	Store      StageStore
	Rules      []Rule
	OnProgress func(domain.ProgressEventData)
}

// Run consumes lines until the channel closes or ctx is cancelled.
func (m *StreamMonitor) Run(ctx context.Context, executionID string, lines <-chan string) {
	rules := m.Rules
	if rules == nil {
		rules = DefaultRules()
	}

	last := -1
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			match, ok := ParseLine(rules, line)
			if !ok || match.Percent < last {
				continue
			}
			last = match.Percent

			// A detached context keeps the last stage from being lost when the run is cancelled mid-write.
			updated, err := m.Store.UpdateStage(context.WithoutCancel(ctx), executionID, match.Stage, match.Percent)
			if err != nil {
				log.Printf("WARN: failed to persist stage for execution %s: %v", executionID, err)
				continue
			}
			if !updated {
				return
			}
			if m.OnProgress != nil {
				m.OnProgress(domain.ProgressEventData{
					ExecutionID: executionID,
					Stage:       match.Stage,
					StageLabel:  StageLabel(match.Stage),
					Percentage:  match.Percent,
				})
			}
		}
	}
}
