// Package service implements the execution orchestrator: starting, tracking,
// cancelling and querying tool executions.
package service

import (
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/config"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/observability"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/policy"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/process"
	store "github.com/satori-chatbots/chatbot-dojo-sub000/internal/repository"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/runner"
)

// Publisher pushes live messages to subscribers of an execution.
type Publisher interface {
	PublishJSON(executionID string, v interface{}) error
}

type Service struct {
	store        store.Store
	coordinator  *Coordinator
	config       *config.Config
	policyEngine *policy.Engine
	publisher    Publisher
	metrics      *observability.ExecutionMetrics
}

// New wires a service. policyEngine, publisher and metrics may be nil.
func New(st store.Store, registry *runner.Registry, ingester Ingester, cfg *config.Config,
	policyEngine *policy.Engine, publisher Publisher, metrics *observability.ExecutionMetrics) *Service {
	s := &Service{
		store:        st,
		config:       cfg,
		policyEngine: policyEngine,
		publisher:    publisher,
		metrics:      metrics,
	}
	s.coordinator = NewCoordinator(st, registry, process.NewController(), ingester, CoordinatorConfig{
		PollInterval:        cfg.PollInterval,
		MonitorInterval:     cfg.MonitorInterval,
		MonitorJoinTimeout:  cfg.MonitorJoinTimeout,
		TerminationGrace:    cfg.TerminationGrace,
		TerminationDeadline: cfg.TerminationDeadline,
		MonitorMaxErrors:    cfg.MonitorMaxErrors,
		HeartbeatInterval:   cfg.HeartbeatInterval,
		WriteRetryDeadline:  cfg.WriteRetryDeadline,
	}, metrics, s.emitEvent)
	return s
}

// Coordinator returns the execution coordinator.
func (s *Service) Coordinator() *Coordinator {
	return s.coordinator
}
