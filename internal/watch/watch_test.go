package watch

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/loopgate/loopgate/internal/state"
)

type fakeStore struct {
	st  *state.LoopState
	err error
}

func (f *fakeStore) Load() (*state.LoopState, error) { return f.st, f.err }
func (f *fakeStore) Save(*state.LoopState) error     { return nil }
func (f *fakeStore) Delete() error                   { return nil }

func testState() *state.LoopState {
	return &state.LoopState{
		Active:            true,
		Iteration:         4,
		MaxIterations:     10,
		CompletionPromise: "DONE",
		ReviewEnabled:     true,
		ReviewCount:       1,
		MaxReviewCycles:   3,
	}
}

func TestModel_Init(t *testing.T) {
	m := New(&fakeStore{err: state.ErrNotFound}, "/repo")
	if cmd := m.Init(); cmd == nil {
		t.Error("Init must return a command")
	}
}

func TestModel_Update_StateLoaded(t *testing.T) {
	m := New(&fakeStore{}, "/repo")

	next, cmd := m.Update(stateMsg{st: testState()})
	m = next.(Model)

	if m.missing {
		t.Error("missing = true after a successful load")
	}
	if cmd == nil {
		t.Error("a poll must be rescheduled after each load")
	}

	view := m.View()
	if !strings.Contains(view, "iteration 4/10") {
		t.Errorf("view missing iteration counter:\n%s", view)
	}
	if !strings.Contains(view, "review 1/3") {
		t.Errorf("view missing review counter:\n%s", view)
	}
	if !strings.Contains(view, "/repo") {
		t.Errorf("view missing workspace dir:\n%s", view)
	}
}

func TestModel_Update_NoLoop(t *testing.T) {
	m := New(&fakeStore{}, "/repo")

	next, _ := m.Update(stateMsg{err: state.ErrNotFound})
	m = next.(Model)

	if !strings.Contains(m.View(), "no active loop") {
		t.Errorf("view = %q, want no-loop notice", m.View())
	}
}

func TestModel_Update_UnreadableState(t *testing.T) {
	m := New(&fakeStore{}, "/repo")

	next, _ := m.Update(stateMsg{err: errors.New("mangled header")})
	m = next.(Model)

	if !strings.Contains(m.View(), "unreadable") {
		t.Errorf("view = %q, want unreadable notice", m.View())
	}
}

func TestModel_Update_Quit(t *testing.T) {
	m := New(&fakeStore{}, "/repo")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q must quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q must produce a QuitMsg")
	}
}

func TestModel_View_PendingFeedback(t *testing.T) {
	st := testState()
	st.PendingFeedback = "[ISSUE-1] major: fix it"
	st.ReviewHistory = []state.ReviewHistoryEntry{
		{Cycle: 1, Decision: state.ReviewReject,
			Issues: []state.ReviewIssue{{ID: 1, Severity: state.SeverityMajor, Description: "fix it"}}},
	}
	m := New(&fakeStore{}, "/repo")

	next, _ := m.Update(stateMsg{st: st})
	m = next.(Model)

	view := m.View()
	if !strings.Contains(view, "feedback queued") {
		t.Errorf("view missing feedback notice:\n%s", view)
	}
	if !strings.Contains(view, "1 unresolved issue(s)") {
		t.Errorf("view missing unresolved count:\n%s", view)
	}
}

func TestStatusline_ReviewDisabled(t *testing.T) {
	st := testState()
	st.ReviewEnabled = false

	line := Statusline(st)
	if strings.Contains(line, "review") {
		t.Errorf("statusline shows review counters when review is off: %q", line)
	}
	if !strings.Contains(line, "DONE") {
		t.Errorf("statusline missing promise: %q", line)
	}
}
