// Package loop implements the termination gatekeeper: on each attempt by the
// agent to end its turn it decides whether the turn continues, whether a
// review must run first, or whether the loop terminates.
package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loopgate/loopgate/internal/detect"
	"github.com/loopgate/loopgate/internal/hook"
	"github.com/loopgate/loopgate/internal/log"
	"github.com/loopgate/loopgate/internal/review"
	"github.com/loopgate/loopgate/internal/state"
)

// Outcome labels the terminal (or continuing) state of one termination
// attempt, for logging and usage tracking.
type Outcome string

const (
	// OutcomeNoLoop means no loop record exists; exit is allowed untouched.
	OutcomeNoLoop Outcome = "no_loop"
	// OutcomeIterating means the exit was blocked and the loop continues.
	OutcomeIterating Outcome = "iterating"
	// OutcomeApproved means the loop terminated with an accepted completion.
	OutcomeApproved Outcome = "approved"
	// OutcomeBlocked means the agent signaled it is stuck; exit allowed, no review.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeIterationLimit means the iteration budget ran out.
	OutcomeIterationLimit Outcome = "iteration_limit"
	// OutcomeReviewExhausted means the review budget ran out with open issues.
	OutcomeReviewExhausted Outcome = "review_exhausted"
	// OutcomeCorrupt means a stale or unreadable record was cleared.
	OutcomeCorrupt Outcome = "corrupt"
	// OutcomeFault means the controller itself crashed and the record was
	// cleared so the session stays exitable.
	OutcomeFault Outcome = "fault"
)

// Reviewer is the review orchestrator's surface consumed by the controller.
type Reviewer interface {
	Review(ctx context.Context, req review.Request) review.Result
}

// TranscriptReader extracts the latest agent-authored text from a transcript.
type TranscriptReader interface {
	LatestAssistantText(path string) (string, bool)
}

// Deps holds dependencies for the controller.
type Deps struct {
	Store       state.Store
	Transcripts TranscriptReader
	Reviewer    Reviewer
}

// Attempt describes one termination attempt as resolved by the caller.
type Attempt struct {
	SessionID      string
	TranscriptPath string
	WorkDir        string
	// DurableRoot is true when the state lives under a version-control root
	// rather than the bare working directory. Review requires it.
	DurableRoot bool
}

// Controller is the gatekeeper state machine. One instance handles one
// termination attempt; there is no internal concurrency.
type Controller struct {
	deps Deps
}

// New creates a Controller with the given dependencies.
func New(deps Deps) *Controller {
	return &Controller{deps: deps}
}

// HandleStop processes one termination attempt and returns exactly one
// decision. It is the crash-guarded entry point: any panic below it deletes
// the loop record and approves the exit, because a controller fault must
// never leave the host session unexitable.
func (c *Controller) HandleStop(ctx context.Context, att Attempt) (decision hook.Decision, outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("loop controller fault, clearing loop state", "panic", r)
			if err := c.deps.Store.Delete(); err != nil {
				log.Error("failed to clear loop state after fault", "error", err)
			}
			decision = hook.Approve("loop gate hit an internal fault; the loop was cancelled so this session can exit")
			outcome = OutcomeFault
		}
	}()

	return c.decide(ctx, att)
}

// decide implements the transition table.
func (c *Controller) decide(ctx context.Context, att Attempt) (hook.Decision, Outcome) {
	st, err := c.deps.Store.Load()
	if errors.Is(err, state.ErrNotFound) {
		return hook.Approve(""), OutcomeNoLoop
	}
	if err != nil {
		// Corrupt or unreadable: delete and treat as absent rather than
		// propagating a parse failure to the host.
		log.Warn("loop state unreadable, clearing", "error", err)
		c.deleteState()
		return hook.Approve("loop state was corrupt and has been removed"), OutcomeCorrupt
	}
	if !st.Active {
		// An inactive record on disk is stale.
		c.deleteState()
		return hook.Approve(""), OutcomeCorrupt
	}

	log.SetDebug(st.Debug)
	log.Debug("termination attempt", "session", att.SessionID,
		"iteration", st.Iteration, "max_iterations", st.MaxIterations,
		"review_count", st.ReviewCount)

	text, _ := c.deps.Transcripts.LatestAssistantText(att.TranscriptPath)
	signal := detect.Scan(text, st.CompletionPromise)
	log.Debug("completion scan", "signal", signal)

	switch signal {
	case detect.Blocked:
		c.deleteState()
		return hook.Approve(fmt.Sprintf(
			"Loop stopped: the agent reported it is stuck (iteration %d of %d).",
			st.Iteration, st.MaxIterations)), OutcomeBlocked

	case detect.Complete:
		return c.handleCompletion(ctx, att, st)

	default:
		return c.continueLoop(st)
	}
}

// continueLoop handles a turn that ended without any sentinel: either the
// iteration budget is spent, or the loop re-prompts with the original task.
func (c *Controller) continueLoop(st *state.LoopState) (hook.Decision, Outcome) {
	if st.Iteration+1 >= st.MaxIterations {
		c.deleteState()
		return hook.Approve(fmt.Sprintf(
			"Loop stopped: reached the iteration limit (%d) without the completion promise.",
			st.MaxIterations)), OutcomeIterationLimit
	}

	st.Iteration++
	feedback := st.PendingFeedback
	st.PendingFeedback = "" // injected exactly once

	if err := c.deps.Store.Save(st); err != nil {
		// If the record cannot be persisted the loop cannot make progress;
		// fail open rather than re-prompting forever with stale state.
		log.Error("failed to persist loop state, stopping loop", "error", err)
		c.deleteState()
		return hook.Approve("loop state could not be saved; the loop was cancelled"), OutcomeFault
	}

	return hook.Block(continuePrompt(st, feedback), ""), OutcomeIterating
}

// handleCompletion handles a detected completion promise: straight approval
// when review is off, otherwise the review gate.
func (c *Controller) handleCompletion(ctx context.Context, att Attempt, st *state.LoopState) (hook.Decision, Outcome) {
	if !st.ReviewEnabled {
		c.deleteState()
		return hook.Approve(fmt.Sprintf(
			"Loop complete: promise %q emitted after %d iteration(s).",
			st.CompletionPromise, st.Iteration+1)), OutcomeApproved
	}

	if !att.DurableRoot {
		// Without a version-control root there is no durable place for the
		// record and no tree for the reviewer to inspect. Keep iterating.
		return hook.Block(
			"Completion was claimed, but review mode requires the working directory to be "+
				"inside a version-controlled repository and none was found. Initialize one, "+
				"or restart the loop without review.", ""), OutcomeIterating
	}

	res := c.deps.Reviewer.Review(ctx, review.Request{
		OriginalPrompt:    st.OriginalPrompt,
		CompletionPromise: st.CompletionPromise,
		History:           st.ReviewHistory,
		ReviewCount:       st.ReviewCount,
		MaxReviewCycles:   st.MaxReviewCycles,
		HighestIssueID:    st.HighestIssueID(),
		WorkDir:           att.WorkDir,
	})

	// Timed-out or failed calls carry no verdict and leave no history entry.
	if res.HasVerdict {
		st.ReviewHistory = append(st.ReviewHistory, state.ReviewHistoryEntry{
			Cycle:    st.ReviewCount + 1,
			Decision: res.Decision,
			Issues:   res.Issues,
			Resolved: res.Resolved,
			Notes:    res.Notes,
		})
	}

	if res.Approved {
		c.deleteState()
		msg := fmt.Sprintf("Loop complete: review passed after %d cycle(s).", st.ReviewCount+1)
		if res.Notes != "" {
			msg += "\n" + res.Notes
		}
		return hook.Approve(msg), OutcomeApproved
	}

	st.ReviewCount++
	if st.ReviewCount >= st.MaxReviewCycles {
		summary := reviewExhaustedSummary(st)
		c.deleteState()
		return hook.Approve(summary), OutcomeReviewExhausted
	}

	st.Iteration++
	st.PendingFeedback = formatFeedback(res)
	if err := c.deps.Store.Save(st); err != nil {
		log.Error("failed to persist loop state after review, stopping loop", "error", err)
		c.deleteState()
		return hook.Approve("loop state could not be saved; the loop was cancelled"), OutcomeFault
	}

	return hook.Block(continuePrompt(st, st.PendingFeedback), ""), OutcomeIterating
}

// deleteState removes the record, logging rather than propagating failures:
// every terminal transition must still yield a well-defined decision.
func (c *Controller) deleteState() {
	if err := c.deps.Store.Delete(); err != nil {
		log.Error("failed to delete loop state", "error", err)
	}
}

// continuePrompt builds the text re-injected as the agent's next instruction.
func continuePrompt(st *state.LoopState, feedback string) string {
	var b strings.Builder

	if feedback != "" {
		b.WriteString("A reviewer rejected your completion claim. Address every issue below before continuing.\n\n")
		b.WriteString(feedback)
		b.WriteString("\n\n---\n\n")
	}

	b.WriteString(st.OriginalPrompt)
	fmt.Fprintf(&b,
		"\n\n---\n\nThis is iteration %d of %d. Continue working on the task above. "+
			"When it is genuinely complete, emit %s%s%s on its own line. "+
			"If you cannot make progress, emit %s%s%s instead.",
		st.Iteration, st.MaxIterations,
		detect.PromiseOpen, st.CompletionPromise, detect.PromiseClose,
		detect.PromiseOpen, detect.BlockedToken, detect.PromiseClose)

	return b.String()
}

// formatFeedback renders a rejection as the pending feedback injected on the
// next iteration.
func formatFeedback(res review.Result) string {
	var b strings.Builder
	for _, issue := range res.Issues {
		fmt.Fprintf(&b, "[ISSUE-%d] %s: %s\n", issue.ID, issue.Severity, issue.Description)
	}
	if res.Notes != "" {
		fmt.Fprintf(&b, "\nReviewer notes: %s\n", res.Notes)
	}
	return b.String()
}

// reviewExhaustedSummary surfaces the issues still open when the review
// budget runs out.
func reviewExhaustedSummary(st *state.LoopState) string {
	msg := fmt.Sprintf("Loop stopped: review budget exhausted after %d cycle(s).", st.ReviewCount)
	open := st.UnresolvedIssues()
	if len(open) == 0 {
		return msg
	}
	msg += " Unresolved issues:\n"
	for _, issue := range open {
		msg += fmt.Sprintf("[ISSUE-%d] %s: %s\n", issue.ID, issue.Severity, issue.Description)
	}
	return msg
}
