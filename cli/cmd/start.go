package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

var requestFile string

var startTestCmd = &cobra.Command{
	Use:   "start-test",
	Short: "Start a test-run from a request file",
	Long: `Start a conversation-simulator test-run. The request file is YAML or JSON:

  project_id: shop
  total_units: 4
  config:
    technology: taskyto
    connector_url: http://localhost:5000
    profiles:
      - path: profiles/buyer.yaml
        conversations: 2`,
	Run: func(cmd *cobra.Command, args []string) {
		var req domain.TestRunRequest
		if err := readRequestFile(requestFile, &req); err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		client := NewDojoClient(viper.GetString("url"))
		resp, err := client.StartTestRun(req)
		if err != nil {
			printAPIError(cmd.Printf, "Start", err)
			return
		}
		printStarted(cmd, resp)
	},
}

var startGenerationCmd = &cobra.Command{
	Use:   "start-generation",
	Short: "Start a generation-run from a request file",
	Long: `Start a chatbot-explorer generation-run. The request file is YAML or JSON:

  project_id: shop
  config:
    technology: taskyto
    connector_url: http://localhost:5000
    model: gpt-4o-mini
    sessions: 3
    turns_per_session: 8`,
	Run: func(cmd *cobra.Command, args []string) {
		var req domain.GenerationRunRequest
		if err := readRequestFile(requestFile, &req); err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		client := NewDojoClient(viper.GetString("url"))
		resp, err := client.StartGenerationRun(req)
		if err != nil {
			printAPIError(cmd.Printf, "Start", err)
			return
		}
		printStarted(cmd, resp)
	},
}

// readRequestFile decodes a YAML (or JSON, which is valid YAML) request.
func readRequestFile(path string, out interface{}) error {
	if path == "" {
		return fmt.Errorf("a request file is required (-f)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read request file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse request file: %w", err)
	}
	return nil
}

func printStarted(cmd *cobra.Command, resp *domain.StartResponse) {
	cmd.Printf("%s %sExecution started%s\n", statusIcon(resp.Status), colorBold, colorReset)
	cmd.Printf("%sID:%s      %s\n", colorDim, colorReset, resp.ExecutionID)
	cmd.Printf("%sKind:%s    %s\n", colorDim, colorReset, resp.Kind)
	cmd.Printf("%sStatus:%s  %s\n", colorDim, colorReset, colorizeStatus(resp.Status))
}

func init() {
	for _, c := range []*cobra.Command{startTestCmd, startGenerationCmd} {
		c.Flags().StringVarP(&requestFile, "file", "f", "", "Request file (YAML or JSON)")
		rootCmd.AddCommand(c)
	}
}
