package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/loopgate/loopgate/internal/config"
	"github.com/loopgate/loopgate/internal/hook"
	"github.com/loopgate/loopgate/internal/log"
	"github.com/loopgate/loopgate/internal/loop"
	"github.com/loopgate/loopgate/internal/review"
	"github.com/loopgate/loopgate/internal/state"
	"github.com/loopgate/loopgate/internal/transcript"
	"github.com/loopgate/loopgate/internal/usage"
	"github.com/loopgate/loopgate/internal/workspace"
)

// hookCmd creates the hook subcommand, the entry point wired into the
// runtime's Stop hook. It reads the event on stdin and writes exactly one
// decision to stdout. Everything else goes to stderr.
func hookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hook",
		Short: "Handle one Stop event (stdin: event JSON, stdout: decision JSON)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(cmd)
		},
	}
}

func runHook(cmd *cobra.Command) error {
	ev, err := hook.ReadStopEvent(cmd.InOrStdin())
	if err != nil {
		// An unreadable event must never trap the session.
		log.Error("unreadable stop event, approving exit", "error", err)
		return hook.Approve("").Write(cmd.OutOrStdout())
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn("config unavailable, using defaults", "error", err)
		cfg = config.DefaultConfig()
		if err := cfg.ExpandPaths(); err != nil {
			log.Warn("failed to expand default paths", "error", err)
		}
	}

	startDir := ev.CWD
	if startDir == "" {
		if wd, err := os.Getwd(); err == nil {
			startDir = wd
		}
	}

	root, durable := workspace.NewResolver().Resolve(cmd.Context(), startDir)
	store := state.NewFileStore(root)

	// Snapshot identifiers for telemetry before the controller mutates or
	// deletes the record.
	var loopID string
	var iteration, reviewCount uint
	if st, err := store.Load(); err == nil {
		loopID, iteration, reviewCount = st.LoopID, st.Iteration, st.ReviewCount
	}

	ctrl := loop.New(loop.Deps{
		Store:       store,
		Transcripts: transcript.NewReader(),
		Reviewer: review.NewOrchestrator(review.Config{
			Binary:  cfg.Reviewer.Binary,
			Model:   cfg.Reviewer.Model,
			Timeout: cfg.Reviewer.Timeout(),
		}),
	})

	decision, outcome := ctrl.HandleStop(cmd.Context(), loop.Attempt{
		SessionID:      ev.SessionID,
		TranscriptPath: ev.TranscriptPath,
		WorkDir:        root,
		DurableRoot:    durable,
	})

	if cfg.UsageTracking {
		usage.RecordQuietly(cfg.UsageDBPath, usage.Attempt{
			SessionID:   ev.SessionID,
			LoopID:      loopID,
			Workspace:   root,
			Iteration:   iteration,
			ReviewCount: reviewCount,
			Outcome:     string(outcome),
			Decision:    decision.Decision,
		})
	}

	return decision.Write(cmd.OutOrStdout())
}
