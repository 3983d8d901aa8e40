// Package cmd implements the dojoctl commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dojoctl",
	Short: "dojoctl drives chatbot test-runs and generation-runs on the orchestrator",
	Long: `dojoctl is the command-line interface of the chatbot testing orchestrator.

The orchestrator launches two external tools on your behalf: the conversation
simulator (test-runs) and the chatbot explorer (generation-runs). It tracks
their progress, lets you cancel them and stores their results.

Common workflows:

  Start a test-run from a request file:
    dojoctl start-test -f run.yaml

  Start a generation-run:
    dojoctl start-generation -f explore.yaml

  Follow progress live:
    dojoctl watch <execution-id>

  Check status, results or cancel:
    dojoctl status <execution-id>
    dojoctl results <execution-id>
    dojoctl cancel <execution-id>

Configuration:
  Set the API endpoint via flag, environment variable or config file:
    DOJO_URL    Orchestrator URL (default: http://localhost:8000)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".dojoctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".dojoctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "DOJO_VARNAME"
	viper.SetEnvPrefix("DOJO")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dojoctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8000", "Orchestrator URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}
