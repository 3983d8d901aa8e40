package domain

import (
	"fmt"
	"strings"
)

// DefaultAPIKeyEnv is the environment variable the external tools read their LLM key from.
const DefaultAPIKeyEnv = "OPENAI_API_KEY"

// ProfileRef points at one user-profile definition for a test-run.
type ProfileRef struct {
	Path          string `json:"path" yaml:"path"`
	Name          string `json:"name,omitempty" yaml:"name,omitempty"`
	Conversations int    `json:"conversations,omitempty" yaml:"conversations,omitempty"`
}

// RunConfig is the launch configuration of an external tool.
type RunConfig struct {
	Technology      string                 `json:"technology" yaml:"technology"`
	ConnectorParams map[string]interface{} `json:"connector_params,omitempty" yaml:"connector_params,omitempty"`
	ConnectorURL    string                 `json:"connector_url,omitempty" yaml:"connector_url,omitempty"`
	Profiles        []ProfileRef           `json:"profiles,omitempty" yaml:"profiles,omitempty"`
	APIKey          string                 `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIKeyEnv       string                 `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Model           string                 `json:"model,omitempty" yaml:"model,omitempty"`
	Sessions        int                    `json:"sessions,omitempty" yaml:"sessions,omitempty"`
	TurnsPerSession int                    `json:"turns_per_session,omitempty" yaml:"turns_per_session,omitempty"`
	GraphFormat     string                 `json:"graph_format,omitempty" yaml:"graph_format,omitempty"`
	Verbose         bool                   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Validate checks the configuration for the given kind. Errors wrap ErrInvalidConfig.
func (c RunConfig) Validate(kind ExecutionKind) error {
	var problems []string
	if !kind.Valid() {
		problems = append(problems, fmt.Sprintf("unknown execution kind %q", kind))
	}
	if strings.TrimSpace(c.Technology) == "" {
		problems = append(problems, "technology is required")
	}
	if len(c.ConnectorParams) == 0 && c.ConnectorURL == "" {
		problems = append(problems, "connector_params or connector_url is required")
	}

	switch kind {
	case ExecutionKindTestRun:
		if len(c.Profiles) == 0 {
			problems = append(problems, "at least one profile is required")
		}
		for i, p := range c.Profiles {
			if strings.TrimSpace(p.Path) == "" {
				problems = append(problems, fmt.Sprintf("profiles[%d].path is required", i))
			}
			if p.Conversations < 0 {
				problems = append(problems, fmt.Sprintf("profiles[%d].conversations must not be negative", i))
			}
		}
	case ExecutionKindGenerationRun:
		if c.Model == "" {
			problems = append(problems, "model is required")
		}
		if c.Sessions < 1 {
			problems = append(problems, "sessions must be at least 1")
		}
		if c.TurnsPerSession < 1 {
			problems = append(problems, "turns_per_session must be at least 1")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// KeyEnv returns the environment variable name the API key is exported under.
func (c RunConfig) KeyEnv() string {
	if c.APIKeyEnv != "" {
		return c.APIKeyEnv
	}
	return DefaultAPIKeyEnv
}

// ExpectedConversations sums the declared conversation counts of all profiles.
func (c RunConfig) ExpectedConversations() int {
	total := 0
	for _, p := range c.Profiles {
		total += p.Conversations
	}
	return total
}

// TestRunRequest asks for a conversation-simulation run.
type TestRunRequest struct {
	ProjectID  string    `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Config     RunConfig `json:"config" yaml:"config"`
	TotalUnits int       `json:"total_units,omitempty" yaml:"total_units,omitempty"`
}

// GenerationRunRequest asks for a chatbot-exploration run.
type GenerationRunRequest struct {
	ProjectID string    `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Config    RunConfig `json:"config" yaml:"config"`
}

// StartResponse is returned as soon as an execution has been accepted.
type StartResponse struct {
	ExecutionID string          `json:"execution_id"`
	Kind        ExecutionKind   `json:"kind"`
	Status      ExecutionStatus `json:"status"`
}

// CancelResponse reports whether a cancel request stopped a running execution.
type CancelResponse struct {
	ExecutionID string `json:"execution_id"`
	Stopped     bool   `json:"stopped"`
	Message     string `json:"message"`
}
