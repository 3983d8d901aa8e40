package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [execution_id]",
	Short: "Stop a running execution",
	Long:  `Request termination of a running execution. Cancelling an execution that already finished is not an error; the orchestrator reports that nothing was stopped.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewDojoClient(viper.GetString("url"))
		resp, err := client.CancelExecution(args[0])
		if err != nil {
			printAPIError(cmd.Printf, "Cancel", err)
			return
		}

		if resp.Stopped {
			cmd.Printf("%s✓%s Execution %s stopped\n", colorGreen, colorReset, resp.ExecutionID)
		} else {
			cmd.Printf("%s•%s Execution %s was not running\n", colorYellow, colorReset, resp.ExecutionID)
		}
		if resp.Message != "" {
			cmd.Printf("%s%s%s\n", colorDim, resp.Message, colorReset)
		}
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
