package runner

import (
	"fmt"
	"os"
	"strconv"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/process"
)

// ExplorationBuilder builds generation-runs for the chatbot explorer.
type ExplorationBuilder struct {
	Bin string
}

// Build writes the connector file and assembles the explorer command with streamed stdout.
func (b *ExplorationBuilder) Build(exec *domain.Execution, cfg domain.RunConfig) (Plan, error) {
	for _, dir := range []string{exec.WorkDir, exec.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Plan{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	connector, err := writeConnectorFile(exec.WorkDir, cfg)
	if err != nil {
		return Plan{}, err
	}

	args := []string{
		"--technology", cfg.Technology,
		"--connector-params", connector,
		"--sessions", strconv.Itoa(cfg.Sessions),
		"--turns", strconv.Itoa(cfg.TurnsPerSession),
		"--model", cfg.Model,
		"--output", exec.OutputDir,
	}
	if cfg.GraphFormat != "" {
		args = append(args, "--graph-format", cfg.GraphFormat)
	}
	if cfg.Verbose {
		args = append(args, "--verbose")
	}

	return Plan{
		Command: process.Command{
			Path:         b.Bin,
			Args:         args,
			Env:          toolEnv(cfg),
			Dir:          exec.WorkDir,
			StreamStdout: true,
		},
	}, nil
}
