package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/process"
)

// ConversationOutputsDir is the output subdirectory holding per-profile conversation artifacts.
const ConversationOutputsDir = "conversation_outputs"

// SimulationBuilder builds test-runs for the conversation simulator.
type SimulationBuilder struct {
	Bin string
}

// Build stages profiles and the connector file into the work dir and assembles the simulator command.
func (b *SimulationBuilder) Build(exec *domain.Execution, cfg domain.RunConfig) (Plan, error) {
	if err := os.MkdirAll(exec.OutputDir, 0o755); err != nil {
		return Plan{}, fmt.Errorf("create output dir: %w", err)
	}
	names, err := stageProfiles(filepath.Join(exec.WorkDir, "profiles"), cfg.Profiles)
	if err != nil {
		return Plan{}, err
	}
	connector, err := writeConnectorFile(exec.WorkDir, cfg)
	if err != nil {
		return Plan{}, err
	}

	args := []string{
		"--technology", cfg.Technology,
		"--connector", connector,
		"--project_path", exec.WorkDir,
		"--user_profile", "profiles",
		"--extract", exec.OutputDir,
	}
	if cfg.Verbose {
		args = append(args, "--verbose")
	}

	return Plan{
		Command: process.Command{
			Path: b.Bin,
			Args: args,
			Env:  toolEnv(cfg),
			Dir:  exec.WorkDir,
		},
		ConversationRoot: filepath.Join(exec.OutputDir, ConversationOutputsDir),
		Profiles:         names,
	}, nil
}
