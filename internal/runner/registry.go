// Package runner turns run configurations into launchable commands for the external tools.
package runner

import (
	"fmt"
	"sync"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/process"
)

// Plan is everything the coordinator needs to launch and observe one execution.
type Plan struct {
	Command process.Command
	// ConversationRoot is where per-profile conversation artifacts appear (test-runs only).
	ConversationRoot string
	// Profiles are the profile names the filesystem monitor counts artifacts for.
	Profiles []string
}

// Builder prepares the working directory and command line for one execution kind.
type Builder interface {
	Build(exec *domain.Execution, cfg domain.RunConfig) (Plan, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(exec *domain.Execution, cfg domain.RunConfig) (Plan, error)

// Build calls f.
func (f BuilderFunc) Build(exec *domain.Execution, cfg domain.RunConfig) (Plan, error) {
	return f(exec, cfg)
}

// Registry stores builders keyed by execution kind.
type Registry struct {
	mu       sync.RWMutex
	builders map[domain.ExecutionKind]Builder
}

// NewRegistry creates an empty builder registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[domain.ExecutionKind]Builder),
	}
}

// NewDefaultRegistry registers the simulator and explorer builders.
func NewDefaultRegistry(simulatorBin, explorerBin string) *Registry {
	r := NewRegistry()
	r.MustRegister(domain.ExecutionKindTestRun, &SimulationBuilder{Bin: simulatorBin})
	r.MustRegister(domain.ExecutionKindGenerationRun, &ExplorationBuilder{Bin: explorerBin})
	return r
}

// Register adds a builder for an execution kind.
func (r *Registry) Register(kind domain.ExecutionKind, b Builder) error {
	if kind == "" {
		return fmt.Errorf("execution kind is required")
	}
	if b == nil {
		return fmt.Errorf("builder is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builders[kind]; exists {
		return fmt.Errorf("builder already registered for %s", kind)
	}
	r.builders[kind] = b
	return nil
}

// MustRegister adds a builder or panics.
func (r *Registry) MustRegister(kind domain.ExecutionKind, b Builder) {
	if err := r.Register(kind, b); err != nil {
		panic(err)
	}
}

// Build validates cfg and runs the builder registered for the execution's kind.
func (r *Registry) Build(exec *domain.Execution, cfg domain.RunConfig) (Plan, error) {
	if exec == nil {
		return Plan{}, fmt.Errorf("execution is required")
	}
	r.mu.RLock()
	b := r.builders[exec.Kind]
	r.mu.RUnlock()
	if b == nil {
		return Plan{}, fmt.Errorf("no builder registered for %s", exec.Kind)
	}
	if err := cfg.Validate(exec.Kind); err != nil {
		return Plan{}, err
	}
	return b.Build(exec, cfg)
}
