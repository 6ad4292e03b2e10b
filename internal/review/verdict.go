package review

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/loopgate/loopgate/internal/state"
)

// VerdictKind tags the parsed reviewer response.
type VerdictKind int

const (
	// VerdictMalformed means no recognizable outcome marker was found.
	VerdictMalformed VerdictKind = iota
	// VerdictApproved means the reviewer accepted the work.
	VerdictApproved
	// VerdictRejected means the reviewer found open issues.
	VerdictRejected
)

// Verdict is the structured form of a reviewer response. The controller's
// branching never touches the raw text.
type Verdict struct {
	Kind     VerdictKind
	Issues   []state.ReviewIssue
	Resolved []state.ResolvedIssue
	Notes    string
}

// The response protocol uses four delimiter-pair markers. Issue and resolved
// lines inside their blocks follow the [ISSUE-<id>] grammar.
var (
	verdictPattern  = regexp.MustCompile(`(?is)<verdict>\s*(APPROVE|REJECT)\s*</verdict>`)
	issuesPattern   = regexp.MustCompile(`(?is)<issues>(.*?)</issues>`)
	resolvedPattern = regexp.MustCompile(`(?is)<resolved>(.*?)</resolved>`)
	notesPattern    = regexp.MustCompile(`(?is)<notes>(.*?)</notes>`)

	issueLinePattern    = regexp.MustCompile(`(?i)^\[ISSUE-(\d+)\]\s*(critical|major|minor)\s*:\s*(.+)$`)
	resolvedLinePattern = regexp.MustCompile(`(?i)^\[ISSUE-(\d+)\]\s*(.+)$`)
)

// ParseVerdict extracts the reviewer's structured verdict from raw output.
// The instructions template echoes example markers into the reviewer's
// context, so only the LAST occurrence of each marker counts: that is the
// final verdict, everything before it is reasoning or quotation.
func ParseVerdict(text string) Verdict {
	outcome := lastSubmatch(verdictPattern, text)
	if outcome == "" {
		return Verdict{Kind: VerdictMalformed}
	}

	v := Verdict{Notes: strings.TrimSpace(lastSubmatch(notesPattern, text))}

	if strings.EqualFold(outcome, "APPROVE") {
		v.Kind = VerdictApproved
		return v
	}

	v.Kind = VerdictRejected
	v.Issues = parseIssueLines(lastSubmatch(issuesPattern, text))
	v.Resolved = parseResolvedLines(lastSubmatch(resolvedPattern, text))
	return v
}

// lastSubmatch returns the first capture group of the last match, or "".
func lastSubmatch(re *regexp.Regexp, text string) string {
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1][1]
}

// parseIssueLines decodes `[ISSUE-<id>] <severity>: <description>` lines.
// Lines that do not match the grammar are skipped.
func parseIssueLines(block string) []state.ReviewIssue {
	var issues []state.ReviewIssue
	for _, line := range strings.Split(block, "\n") {
		m := issueLinePattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		id, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		issues = append(issues, state.ReviewIssue{
			ID:          uint(id),
			Severity:    state.Severity(strings.ToLower(m[2])),
			Description: strings.TrimSpace(m[3]),
		})
	}
	return issues
}

// parseResolvedLines decodes `[ISSUE-<id>] <verification text>` lines.
func parseResolvedLines(block string) []state.ResolvedIssue {
	var resolved []state.ResolvedIssue
	for _, line := range strings.Split(block, "\n") {
		m := resolvedLinePattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		id, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		resolved = append(resolved, state.ResolvedIssue{
			ID:           uint(id),
			Verification: strings.TrimSpace(m[2]),
		})
	}
	return resolved
}

// renumberIssues enforces ID continuity: new issue IDs must continue from the
// highest ID seen in history, never restart at 1. If the reviewer ignored the
// numbering instruction all new IDs are reassigned sequentially past the
// highest known ID, keeping feedback addressable across cycles.
func renumberIssues(issues []state.ReviewIssue, highestSeen uint) []state.ReviewIssue {
	needsRenumber := false
	seen := make(map[uint]bool)
	for _, issue := range issues {
		if issue.ID <= highestSeen || seen[issue.ID] {
			needsRenumber = true
			break
		}
		seen[issue.ID] = true
	}
	if !needsRenumber {
		return issues
	}

	next := highestSeen + 1
	renumbered := make([]state.ReviewIssue, len(issues))
	for i, issue := range issues {
		issue.ID = next
		renumbered[i] = issue
		next++
	}
	return renumbered
}
