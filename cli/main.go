// Package main is the entry point for dojoctl, the command-line client of the
// execution orchestrator.
package main

import (
	"os"

	"github.com/satori-chatbots/chatbot-dojo-sub000/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
