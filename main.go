// Package main is the entry point for the loopgate CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "loopgate",
		Short: "loopgate keeps autonomous agent sessions iterating until the work is done",
		Long: `loopgate is a session-termination gatekeeper for iterative agent loops.
Installed as a Stop hook, it intercepts every attempt by the agent to end its
turn: unfinished work is re-prompted with the original task, claimed
completions can be gated behind an independent reviewer, and the loop always
terminates once its iteration or review budget is spent.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		hookCmd(),
		startCmd(),
		cancelCmd(),
		statusCmd(),
		watchCmd(),
		usageCmd(),
	)

	return rootCmd.Execute()
}
