// Package review invokes an external reviewer process as a second opinion on
// claimed completions and parses its structured verdict.
//
// Every failure path here defaults to approval. The review gate fails open,
// never closed: a missing binary, a crash, a timeout, or an unparsable
// response must never trap the user in the loop.
package review

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/loopgate/loopgate/internal/log"
	"github.com/loopgate/loopgate/internal/state"
)

// DefaultTimeout bounds the reviewer invocation. It must stay strictly
// shorter than any outer caller's own timeout so a hang surfaces as
// "reviewer timed out" rather than an opaque outer abort.
const DefaultTimeout = 20 * time.Minute

// DefaultBinary is the reviewer executable looked up on PATH.
const DefaultBinary = "claude"

// CommandCreator is a function type for creating exec.Cmd instances.
// It allows mocking command execution in tests.
type CommandCreator func(ctx context.Context, name string, args ...string) *exec.Cmd

// defaultCommandCreator creates a standard exec.Cmd.
func defaultCommandCreator(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// Config holds configuration for the review orchestrator.
type Config struct {
	Binary  string        // reviewer executable (default: claude)
	Model   string        // optional model override passed to the reviewer
	Timeout time.Duration // per-invocation bound (default: DefaultTimeout)
}

// Orchestrator builds review requests, runs the reviewer, and parses verdicts.
type Orchestrator struct {
	binary  string
	model   string
	timeout time.Duration

	commandCreator CommandCreator
	lookPath       func(string) (string, error)
	verdictDir     string
}

// NewOrchestrator creates a review orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	o := &Orchestrator{
		binary:         cfg.Binary,
		model:          cfg.Model,
		timeout:        cfg.Timeout,
		commandCreator: defaultCommandCreator,
		lookPath:       exec.LookPath,
		verdictDir:     os.TempDir(),
	}
	if o.binary == "" {
		o.binary = DefaultBinary
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	return o
}

// SetCommandCreator sets a custom command creator (for testing).
func (o *Orchestrator) SetCommandCreator(creator CommandCreator) {
	o.commandCreator = creator
}

// SetLookPath sets a custom binary lookup (for testing).
func (o *Orchestrator) SetLookPath(fn func(string) (string, error)) {
	o.lookPath = fn
}

// SetVerdictDir sets the directory for verdict files (for testing).
func (o *Orchestrator) SetVerdictDir(dir string) {
	o.verdictDir = dir
}

// Request carries everything one review invocation needs.
type Request struct {
	OriginalPrompt    string
	CompletionPromise string
	History           []state.ReviewHistoryEntry
	ReviewCount       uint
	MaxReviewCycles   uint
	HighestIssueID    uint
	WorkDir           string
}

// Result is the orchestrator's outcome. HasVerdict reports whether a real
// reviewer verdict was parsed; timed-out or failed calls produce no verdict
// and must not be recorded in the review history.
type Result struct {
	Approved   bool
	HasVerdict bool
	Decision   state.ReviewDecision
	Issues     []state.ReviewIssue
	Resolved   []state.ResolvedIssue
	Notes      string
}

// approveWithout returns a fail-open result for calls that produced no verdict.
func approveWithout(note string) Result {
	return Result{Approved: true, HasVerdict: false, Notes: note}
}

// Review runs one review cycle. It never returns an error: every failure
// mode resolves to an approval with an explanatory note.
func (o *Orchestrator) Review(ctx context.Context, req Request) Result {
	if _, err := o.lookPath(o.binary); err != nil {
		log.Warn("reviewer binary not found, approving by default", "binary", o.binary)
		return approveWithout(fmt.Sprintf("reviewer %q not found; exit permitted without review", o.binary))
	}

	verdictFile, err := os.CreateTemp(o.verdictDir, "loopgate-verdict-*.md")
	if err != nil {
		log.Warn("failed to create verdict file, approving by default", "error", err)
		return approveWithout("could not prepare review; exit permitted without review")
	}
	verdictPath := verdictFile.Name()
	if err := verdictFile.Close(); err != nil {
		log.CloseError("verdict file", err)
	}
	defer func() {
		if err := os.Remove(verdictPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove verdict file", "path", verdictPath, "error", err)
		}
	}()

	prompt, err := buildRequest(req, verdictPath)
	if err != nil {
		log.Warn("failed to build review request, approving by default", "error", err)
		return approveWithout("could not build review request; exit permitted without review")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	stdout, err := o.runReviewer(ctx, prompt, req.WorkDir)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn("reviewer timed out, approving by default", "timeout", o.timeout)
		return approveWithout(fmt.Sprintf("reviewer timed out after %s; exit permitted without review", o.timeout))
	}
	if err != nil {
		log.Warn("reviewer process failed, approving by default", "error", err)
		return approveWithout("reviewer failed; exit permitted without review")
	}

	// The verdict lives in the designated file; the process's own stdout may
	// be polluted by tool chatter and is only a fallback.
	response, readErr := os.ReadFile(verdictPath)
	if readErr != nil || len(bytes.TrimSpace(response)) == 0 {
		response = []byte(stdout)
	}

	return o.resolveVerdict(ParseVerdict(string(response)), req.HighestIssueID)
}

// runReviewer executes the reviewer with the request on stdin and returns its
// captured stdout.
func (o *Orchestrator) runReviewer(ctx context.Context, prompt, workDir string) (string, error) {
	args := []string{"-p"}
	if o.model != "" {
		args = append(args, "--model", o.model)
	}

	cmd := o.commandCreator(ctx, o.binary, args...)
	cmd.Dir = workDir
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("invoking reviewer", "binary", o.binary, "dir", workDir)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			return stdout.String(), fmt.Errorf("reviewer exited with error: %s", strings.TrimSpace(stderr.String()))
		}
		return stdout.String(), fmt.Errorf("reviewer process error: %w", err)
	}
	return stdout.String(), nil
}

// resolveVerdict maps a parsed verdict to the orchestrator result, applying
// the anti-deadlock policy for empty rejections.
func (o *Orchestrator) resolveVerdict(v Verdict, highestSeen uint) Result {
	switch v.Kind {
	case VerdictApproved:
		return Result{
			Approved:   true,
			HasVerdict: true,
			Decision:   state.ReviewApprove,
			Notes:      v.Notes,
		}

	case VerdictRejected:
		if len(v.Issues) == 0 {
			// A rejection with nothing actionable would deadlock the loop:
			// the agent would be told to fix issues that were never stated.
			// Approve and flag the anomaly.
			log.Warn("reviewer rejected without issues, approving to avoid deadlock")
			note := "reviewer rejected without any parsable issues; approving to avoid an unresolvable loop"
			if v.Notes != "" {
				note += "\nreviewer notes: " + v.Notes
			}
			return Result{
				Approved:   true,
				HasVerdict: true,
				Decision:   state.ReviewApprove,
				Resolved:   v.Resolved,
				Notes:      note,
			}
		}
		return Result{
			Approved:   false,
			HasVerdict: true,
			Decision:   state.ReviewReject,
			Issues:     renumberIssues(v.Issues, highestSeen),
			Resolved:   v.Resolved,
			Notes:      v.Notes,
		}

	default:
		log.Warn("reviewer verdict unparsable, approving by default")
		return approveWithout("reviewer response was unparsable; exit permitted without review")
	}
}
