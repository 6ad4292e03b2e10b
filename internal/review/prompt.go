package review

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/loopgate/loopgate/internal/state"
)

// requestTemplate is the Go template for the review request delivered on the
// reviewer's standard input. It carries the original task, the full prior
// review history, and the response protocol. The reviewer writes its final
// verdict to the file named by VerdictPath so tool chatter on its own stdout
// cannot corrupt the response.
const requestTemplate = `# Instructions

You are a VERY HARD CRITIC reviewing work an autonomous agent claims to have
completed. The agent promised: "{{.CompletionPromise}}". Verify that claim
against the actual working tree. Run tests, read the code, check edge cases.
Review cycle {{.ReviewCycle}} of {{.MaxReviewCycles}}.

# Original Task

{{.OriginalPrompt}}

{{if .HistoryText}}# Prior Review History

You reviewed this work before. Check whether previously flagged issues were
actually fixed before flagging anything new.

{{.HistoryText}}
{{end}}# Response Protocol

Write your final verdict to the file {{.VerdictPath}} (create it; overwrite
any existing content). Nothing you print to stdout is read.

To approve, write:

<verdict>APPROVE</verdict>
<notes>
optional free-text remarks
</notes>

To reject, write:

<verdict>REJECT</verdict>
<resolved>
[ISSUE-<id>] how you verified this previously flagged issue is now fixed
</resolved>
<issues>
[ISSUE-<id>] <severity>: <description>
</issues>
<notes>
optional free-text remarks
</notes>

Rules:
- Severity is one of: critical, major, minor.
- One issue per line inside the issues block. A rejection with no issues is
  not actionable and will be discarded.
- Number new issues starting at ISSUE-{{.NextIssueID}}. Never reuse an ID
  from the history above.
- The resolved block lists prior issue IDs you verified as fixed, with how
  you verified each. Omit the block if nothing was resolved.
`

// requestTmpl is the pre-parsed template, initialized once at package load time.
var requestTmpl = template.Must(template.New("review-request").Parse(requestTemplate))

// requestContext holds the dynamic data for building the review request.
type requestContext struct {
	OriginalPrompt    string
	CompletionPromise string
	HistoryText       string
	ReviewCycle       uint
	MaxReviewCycles   uint
	NextIssueID       uint
	VerdictPath       string
}

// buildRequest renders the review request for one review invocation.
func buildRequest(req Request, verdictPath string) (string, error) {
	ctx := requestContext{
		OriginalPrompt:    req.OriginalPrompt,
		CompletionPromise: req.CompletionPromise,
		HistoryText:       renderHistory(req.History),
		ReviewCycle:       req.ReviewCount + 1,
		MaxReviewCycles:   req.MaxReviewCycles,
		NextIssueID:       req.HighestIssueID + 1,
		VerdictPath:       verdictPath,
	}

	var buf bytes.Buffer
	if err := requestTmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to execute review request template: %w", err)
	}
	return buf.String(), nil
}

// renderHistory formats prior review cycles so the reviewer sees what it
// previously flagged and what was claimed fixed.
func renderHistory(history []state.ReviewHistoryEntry) string {
	if len(history) == 0 {
		return ""
	}

	var b strings.Builder
	for _, entry := range history {
		fmt.Fprintf(&b, "## Cycle %d: %s\n", entry.Cycle, entry.Decision)
		if len(entry.Issues) > 0 {
			b.WriteString("Flagged:\n")
			for _, issue := range entry.Issues {
				fmt.Fprintf(&b, "  [ISSUE-%d] %s: %s\n", issue.ID, issue.Severity, issue.Description)
			}
		}
		if len(entry.Resolved) > 0 {
			b.WriteString("Verified fixed:\n")
			for _, r := range entry.Resolved {
				fmt.Fprintf(&b, "  [ISSUE-%d] %s\n", r.ID, r.Verification)
			}
		}
		if entry.Notes != "" {
			fmt.Fprintf(&b, "Notes: %s\n", entry.Notes)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
