package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loopgate/loopgate/internal/config"
	"github.com/loopgate/loopgate/internal/log"
	"github.com/loopgate/loopgate/internal/state"
	"github.com/loopgate/loopgate/internal/workspace"
)

// stateBody is the free-form section written below the record header so a
// human opening the file understands what it is.
const stateBody = `This file is managed by loopgate. It tracks the active agent loop for this
workspace and is deleted when the loop ends. Run "loopgate status" to inspect
it, or "loopgate cancel" to stop the loop.
`

// startCmd creates the start subcommand.
func startCmd() *cobra.Command {
	var (
		promptFile    string
		promise       string
		maxIterations int
		maxReviews    int
		enableReview  bool
		debug         bool
	)

	cmd := &cobra.Command{
		Use:   "start [prompt]",
		Short: "Start a loop in the current workspace",
		Long: `Start a loop: write the loop record that the Stop hook consults on every
termination attempt. The prompt is the task the agent keeps being re-prompted
with; it is given as an argument or read from a file with --file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			prompt, err := resolvePrompt(args, promptFile)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("max-iterations") {
				maxIterations = cfg.MaxIterations
			}
			if !cmd.Flags().Changed("max-reviews") {
				maxReviews = cfg.MaxReviewCycles
			}
			if !cmd.Flags().Changed("review") {
				enableReview = cfg.ReviewByDefault
			}
			if maxIterations < 1 {
				return errors.New("--max-iterations must be >= 1")
			}
			if maxReviews < 1 {
				return errors.New("--max-reviews must be >= 1")
			}

			return runStart(cmd, startOptions{
				prompt:        prompt,
				promise:       promise,
				maxIterations: uint(maxIterations),
				maxReviews:    uint(maxReviews),
				review:        enableReview,
				debug:         debug,
			})
		},
	}

	cmd.Flags().StringVarP(&promptFile, "file", "f", "", "Read the prompt from a file")
	cmd.Flags().StringVarP(&promise, "promise", "p", "DONE",
		"Completion promise the agent must emit inside <promise></promise>")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Iteration budget (default from config)")
	cmd.Flags().IntVar(&maxReviews, "max-reviews", 0, "Review budget (default from config)")
	cmd.Flags().BoolVar(&enableReview, "review", false, "Gate completion behind an independent reviewer")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging in the hook")

	return cmd
}

type startOptions struct {
	prompt        string
	promise       string
	maxIterations uint
	maxReviews    uint
	review        bool
	debug         bool
}

func runStart(cmd *cobra.Command, opts startOptions) error {
	if strings.TrimSpace(opts.promise) == "" {
		return errors.New("completion promise must be non-empty")
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	root, durable := workspace.NewResolver().Resolve(cmd.Context(), wd)
	if opts.review && !durable {
		return errors.New("review mode requires a version-controlled workspace; " +
			"initialize a repository or start without --review")
	}
	if !durable {
		log.Warn("no version-control root found, loop record stored in the working directory", "dir", root)
	}

	store := state.NewFileStore(root)
	if existing, err := store.Load(); err == nil && existing.Active {
		return fmt.Errorf("a loop is already active in %s (iteration %d of %d); "+
			"run \"loopgate cancel\" first", root, existing.Iteration, existing.MaxIterations)
	}

	st := &state.LoopState{
		Active:            true,
		LoopID:            uuid.NewString(),
		Iteration:         0,
		MaxIterations:     opts.maxIterations,
		CompletionPromise: opts.promise,
		OriginalPrompt:    opts.prompt,
		ReviewEnabled:     opts.review,
		MaxReviewCycles:   opts.maxReviews,
		Debug:             opts.debug,
		Body:              stateBody,
	}

	if err := store.Save(st); err != nil {
		return fmt.Errorf("failed to write loop record: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "loop %s started in %s\n", st.LoopID, root)
	fmt.Fprintf(cmd.OutOrStdout(), "record: %s\n", store.Path())
	return nil
}

// resolvePrompt takes the task prompt from the argument or the file flag,
// exactly one of which must be provided.
func resolvePrompt(args []string, promptFile string) (string, error) {
	if promptFile != "" {
		if len(args) > 0 {
			return "", errors.New("give the prompt as an argument or with --file, not both")
		}
		data, err := os.ReadFile(promptFile)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return "", fmt.Errorf("prompt file %s is empty", promptFile)
		}
		return string(data), nil
	}

	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", errors.New("a task prompt is required (argument or --file)")
	}
	return args[0], nil
}

// cancelCmd creates the cancel subcommand.
func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the active loop in the current workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}

			root, _ := workspace.NewResolver().Resolve(cmd.Context(), wd)
			store := state.NewFileStore(root)

			_, err = store.Load()
			if errors.Is(err, state.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "no active loop")
				return nil
			}
			// A corrupt record is still cancellable; deletion is the point.

			if err := store.Delete(); err != nil {
				return fmt.Errorf("failed to delete loop record: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "loop cancelled")
			return nil
		},
	}
}
