// Package state persists the loop record that gates session termination.
package state

import (
	"encoding/json"
	"strings"
)

// ReviewDecision is the verdict recorded for one review cycle.
type ReviewDecision string

const (
	// ReviewApprove means the reviewer accepted the claimed completion.
	ReviewApprove ReviewDecision = "APPROVE"
	// ReviewReject means the reviewer found open issues.
	ReviewReject ReviewDecision = "REJECT"
)

// Severity classifies a review issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// ReviewIssue is one problem flagged by the reviewer. IDs increase
// monotonically across the whole loop's history and are never reused.
type ReviewIssue struct {
	ID          uint     `json:"id"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// ResolvedIssue records the reviewer verifying a previously flagged issue as
// fixed, with how it verified the fix.
type ResolvedIssue struct {
	ID           uint   `json:"id"`
	Verification string `json:"verification"`
}

// ReviewHistoryEntry is one append-only audit record per review cycle.
type ReviewHistoryEntry struct {
	Cycle    uint            `json:"cycle"`
	Decision ReviewDecision  `json:"decision"`
	Issues   []ReviewIssue   `json:"issues,omitempty"`
	Resolved []ResolvedIssue `json:"resolved,omitempty"`
	Notes    string          `json:"notes,omitempty"`
}

// LoopState is the single persisted record for one active loop.
type LoopState struct {
	Active            bool
	LoopID            string
	Iteration         uint
	MaxIterations     uint
	CompletionPromise string
	OriginalPrompt    string
	ReviewEnabled     bool
	ReviewCount       uint
	MaxReviewCycles   uint
	PendingFeedback   string // empty means none pending
	ReviewHistory     []ReviewHistoryEntry
	Debug             bool

	// Body is the free-form human-readable text after the header. It is
	// written back verbatim on save and never parsed.
	Body string
}

// HighestIssueID returns the largest issue ID seen anywhere in the review
// history, or 0 if no issues were ever flagged.
func (s *LoopState) HighestIssueID() uint {
	var max uint
	for _, entry := range s.ReviewHistory {
		for _, issue := range entry.Issues {
			if issue.ID > max {
				max = issue.ID
			}
		}
	}
	return max
}

// UnresolvedIssues returns issues flagged in history that no later entry
// marked as resolved, in first-flagged order.
func (s *LoopState) UnresolvedIssues() []ReviewIssue {
	resolved := make(map[uint]bool)
	for _, entry := range s.ReviewHistory {
		for _, r := range entry.Resolved {
			resolved[r.ID] = true
		}
	}

	var open []ReviewIssue
	for _, entry := range s.ReviewHistory {
		for _, issue := range entry.Issues {
			if !resolved[issue.ID] {
				open = append(open, issue)
			}
		}
	}
	return open
}

// rawHistoryEntry mirrors ReviewHistoryEntry with loose types so old or
// hand-edited records still decode. The format has evolved; every field is
// optional here and normalized afterwards.
type rawHistoryEntry struct {
	Cycle    *uint           `json:"cycle"`
	Decision string          `json:"decision"`
	Issues   []rawIssue      `json:"issues"`
	Resolved []rawResolved   `json:"resolved"`
	Notes    json.RawMessage `json:"notes"`
}

type rawIssue struct {
	ID          *uint  `json:"id"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

type rawResolved struct {
	ID           *uint  `json:"id"`
	Verification string `json:"verification"`
}

// normalizeHistory decodes a review_history JSON array defensively: missing
// fields default to empty/zero, unknown decisions default to REJECT, unknown
// severities default to minor. A malformed array yields an empty history
// rather than an error.
func normalizeHistory(data string) []ReviewHistoryEntry {
	data = strings.TrimSpace(data)
	if data == "" || data == "null" {
		return nil
	}

	var raw []rawHistoryEntry
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil
	}

	entries := make([]ReviewHistoryEntry, 0, len(raw))
	for i, re := range raw {
		entry := ReviewHistoryEntry{
			Decision: normalizeDecision(re.Decision),
		}
		if re.Cycle != nil {
			entry.Cycle = *re.Cycle
		} else {
			entry.Cycle = uint(i + 1)
		}
		for _, ri := range re.Issues {
			issue := ReviewIssue{
				Severity:    normalizeSeverity(ri.Severity),
				Description: ri.Description,
			}
			if ri.ID != nil {
				issue.ID = *ri.ID
			}
			entry.Issues = append(entry.Issues, issue)
		}
		for _, rr := range re.Resolved {
			res := ResolvedIssue{Verification: rr.Verification}
			if rr.ID != nil {
				res.ID = *rr.ID
			}
			entry.Resolved = append(entry.Resolved, res)
		}
		if len(re.Notes) > 0 {
			var notes string
			if err := json.Unmarshal(re.Notes, &notes); err == nil {
				entry.Notes = notes
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// normalizeDecision maps unknown decision strings to REJECT. Treating an
// unrecognized verdict as approval would let broken work ship silently.
func normalizeDecision(s string) ReviewDecision {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ReviewApprove):
		return ReviewApprove
	default:
		return ReviewReject
	}
}

// normalizeSeverity maps unknown severity strings to minor.
func normalizeSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(SeverityCritical):
		return SeverityCritical
	case string(SeverityMajor):
		return SeverityMajor
	default:
		return SeverityMinor
	}
}
