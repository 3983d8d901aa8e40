package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

var resultsCmd = &cobra.Command{
	Use:   "results [execution_id]",
	Short: "Show the ingested results of an execution",
	Long:  `Show the report tree of a finished test-run, or the generated profiles and analysis metadata of a finished generation-run.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewDojoClient(viper.GetString("url"))
		execution, err := client.GetExecution(args[0])
		if err != nil {
			printAPIError(cmd.Printf, "Request", err)
			return
		}

		switch execution.Kind {
		case domain.ExecutionKindGenerationRun:
			result, err := client.GetGenerationResult(execution.ID)
			if err != nil {
				printAPIError(cmd.Printf, "Request", err)
				return
			}
			printGenerationResult(cmd, result)
		default:
			tree, err := client.GetResults(execution.ID)
			if err != nil {
				printAPIError(cmd.Printf, "Request", err)
				return
			}
			printResultTree(cmd, tree)
		}
	},
}

func printResultTree(cmd *cobra.Command, tree *domain.ResultTree) {
	cmd.Printf("%sTest-run results%s %s\n", colorBold, colorReset, tree.ExecutionID)
	cmd.Println("──────────────────────────────")
	if tree.Global != nil {
		cmd.Printf("%sTotal cost:%s     $%.4f\n", colorDim, colorReset, tree.Global.TotalCost)
		cmd.Printf("%sAvg response:%s   %.2fs\n", colorDim, colorReset, tree.Global.AvgResponseTime)
		for _, e := range tree.Global.Errors {
			cmd.Printf("%sError %s:%s      %d\n", colorRed, e.Code, colorReset, e.Count)
		}
	} else {
		cmd.Printf("%sNo global report%s\n", colorDim, colorReset)
	}

	for _, p := range tree.ProfileReports {
		cmd.Printf("\n%s%s%s  %d conversations, $%.4f\n", colorCyan, p.Name, colorReset, len(p.Conversations), p.TotalCost)
		for _, c := range p.Conversations {
			cmd.Printf("  - %s  %.1fs\n", c.Name, c.ConversationTime)
		}
	}
}

func printGenerationResult(cmd *cobra.Command, result *domain.GenerationResult) {
	cmd.Printf("%sGeneration-run results%s %s\n", colorBold, colorReset, result.ExecutionID)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sFunctionalities:%s %d\n", colorDim, colorReset, result.FunctionalityCount)
	cmd.Printf("%sCategories:%s      %d\n", colorDim, colorReset, result.CategoryCount)
	cmd.Printf("%sLLM calls:%s       %d\n", colorDim, colorReset, result.InvocationCount)
	cmd.Printf("%sEstimated cost:%s  $%.4f\n", colorDim, colorReset, result.EstimatedCost)
	cmd.Printf("%sExploration:%s     %d sessions x %d turns\n", colorDim, colorReset, result.Sessions, result.TurnsPerSession)
	for _, p := range result.Profiles {
		cmd.Printf("  - %s%s%s  %s\n", colorCyan, p.Name, colorReset, p.EditablePath)
	}
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}
