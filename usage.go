package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/loopgate/loopgate/internal/config"
	"github.com/loopgate/loopgate/internal/log"
	"github.com/loopgate/loopgate/internal/usage"
)

var (
	usageHeaderStyle = lipgloss.NewStyle().Bold(true)
	usageDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#727072"))
)

// usageCmd creates the usage subcommand, a summary of recorded termination
// attempts.
func usageCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Summarize recorded loop activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			tracker, err := usage.Open(cfg.UsageDBPath)
			if err != nil {
				return fmt.Errorf("failed to open usage database: %w", err)
			}
			defer func() {
				if err := tracker.Close(); err != nil {
					log.Warn("failed to close usage database", "error", err)
				}
			}()

			sum, err := tracker.Summarize(days)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, usageHeaderStyle.Render(
				fmt.Sprintf("Loop activity, last %d day(s)", days)))
			fmt.Fprintf(out, "attempts: %d across %d session(s)\n", sum.Attempts, sum.Sessions)

			if len(sum.Outcomes) > 0 {
				fmt.Fprintln(out, usageDimStyle.Render("by outcome:"))
				for _, oc := range sum.Outcomes {
					fmt.Fprintf(out, "  %-18s %d\n", oc.Outcome, oc.Count)
				}
			}
			if len(sum.Workspaces) > 0 {
				fmt.Fprintln(out, usageDimStyle.Render("by workspace:"))
				for _, wc := range sum.Workspaces {
					fmt.Fprintf(out, "  %-40s %d\n", wc.Workspace, wc.Count)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Size of the trailing window in days")

	return cmd
}
