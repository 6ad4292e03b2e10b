package main

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/loopgate/loopgate/internal/state"
	"github.com/loopgate/loopgate/internal/watch"
	"github.com/loopgate/loopgate/internal/workspace"
)

// statusCmd creates the status subcommand, a one-shot read of the loop record.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print a one-line summary of the active loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}

			root, _ := workspace.NewResolver().Resolve(cmd.Context(), wd)
			st, err := state.NewFileStore(root).Load()
			if errors.Is(err, state.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "no active loop")
				return nil
			}
			if err != nil {
				return fmt.Errorf("loop record unreadable: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), watch.Statusline(st))
			return nil
		},
	}
}

// watchCmd creates the watch subcommand, a live view of the loop record.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the active loop's progress live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}

			root, _ := workspace.NewResolver().Resolve(cmd.Context(), wd)
			store := state.NewFileStore(root)

			_, err = tea.NewProgram(watch.New(store, root)).Run()
			return err
		},
	}
}
