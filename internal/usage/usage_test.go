package usage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tracker, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open tracker: %v", err)
	}
	t.Cleanup(func() {
		if err := tracker.Close(); err != nil {
			t.Errorf("failed to close tracker: %v", err)
		}
	})
	return tracker
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "usage.db")
	tracker, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open tracker: %v", err)
	}
	if err := tracker.Close(); err != nil {
		t.Errorf("failed to close tracker: %v", err)
	}
}

func TestRecord_AndGetSession(t *testing.T) {
	tracker := openTestTracker(t)

	a := Attempt{
		SessionID:   "sess-1",
		LoopID:      "loop-abc",
		Workspace:   "/repo",
		Iteration:   3,
		ReviewCount: 1,
		Outcome:     "iterating",
		Decision:    "block",
	}
	if err := tracker.Record(a); err != nil {
		t.Fatalf("failed to record attempt: %v", err)
	}
	if err := tracker.Record(a); err != nil {
		t.Fatalf("failed to record second attempt: %v", err)
	}

	s, err := tracker.GetSession("sess-1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if s.Attempts != 2 {
		t.Errorf("session attempts = %d, want 2", s.Attempts)
	}
	if s.Workspace != "/repo" {
		t.Errorf("session workspace = %q, want /repo", s.Workspace)
	}
	if s.FirstSeen.IsZero() || s.LastSeen.IsZero() {
		t.Error("timestamps must be populated")
	}
}

func TestGetSession_NotFound(t *testing.T) {
	tracker := openTestTracker(t)

	_, err := tracker.GetSession("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSummarize(t *testing.T) {
	tracker := openTestTracker(t)

	now := time.Now()
	attempts := []Attempt{
		{SessionID: "s1", Workspace: "/a", Outcome: "iterating", Decision: "block", CreatedAt: now},
		{SessionID: "s1", Workspace: "/a", Outcome: "iterating", Decision: "block", CreatedAt: now},
		{SessionID: "s1", Workspace: "/a", Outcome: "approved", Decision: "approve", CreatedAt: now},
		{SessionID: "s2", Workspace: "/b", Outcome: "no_loop", Decision: "approve", CreatedAt: now},
		// Outside the 7-day window.
		{SessionID: "s3", Workspace: "/c", Outcome: "blocked", Decision: "approve",
			CreatedAt: now.AddDate(0, 0, -30)},
	}
	for _, a := range attempts {
		if err := tracker.Record(a); err != nil {
			t.Fatalf("failed to record attempt: %v", err)
		}
	}

	sum, err := tracker.Summarize(7)
	if err != nil {
		t.Fatalf("failed to summarize: %v", err)
	}

	if sum.Attempts != 4 {
		t.Errorf("attempts = %d, want 4", sum.Attempts)
	}
	if sum.Sessions != 2 {
		t.Errorf("sessions = %d, want 2", sum.Sessions)
	}
	if len(sum.Outcomes) != 3 {
		t.Fatalf("outcome rows = %d, want 3", len(sum.Outcomes))
	}
	if sum.Outcomes[0].Outcome != "iterating" || sum.Outcomes[0].Count != 2 {
		t.Errorf("top outcome = %+v, want iterating x2", sum.Outcomes[0])
	}
	if len(sum.Workspaces) != 2 {
		t.Fatalf("workspace rows = %d, want 2", len(sum.Workspaces))
	}
	if sum.Workspaces[0].Workspace != "/a" || sum.Workspaces[0].Count != 3 {
		t.Errorf("top workspace = %+v, want /a x3", sum.Workspaces[0])
	}
}

func TestRecordQuietly_BadPathDoesNotPanic(t *testing.T) {
	// A directory that cannot be created must be swallowed, not surfaced.
	RecordQuietly("/dev/null/impossible/usage.db", Attempt{SessionID: "s", Outcome: "approved"})
}
