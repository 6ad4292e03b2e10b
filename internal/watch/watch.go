// Package watch provides a small Bubble Tea view that follows the loop
// record on disk and shows its progress live.
package watch

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/loopgate/loopgate/internal/state"
)

// pollInterval is how often the state file is re-read.
const pollInterval = time.Second

var (
	colorGreen  = lipgloss.Color("#a9dc76")
	colorYellow = lipgloss.Color("#ffd866")
	colorRed    = lipgloss.Color("#ff6188")
	colorGray   = lipgloss.Color("#727072")

	titleStyle    = lipgloss.NewStyle().Bold(true)
	activeStyle   = lipgloss.NewStyle().Foreground(colorGreen)
	reviewStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	errorStyle    = lipgloss.NewStyle().Foreground(colorRed)
	dimStyle      = lipgloss.NewStyle().Foreground(colorGray)
	feedbackStyle = lipgloss.NewStyle().Foreground(colorYellow)
)

// stateMsg carries the result of one poll of the state file.
type stateMsg struct {
	st  *state.LoopState
	err error
}

// tickMsg schedules the next poll.
type tickMsg time.Time

// Model is the watch view.
type Model struct {
	store   state.Store
	dir     string
	spinner spinner.Model

	st      *state.LoopState
	missing bool
	err     error
}

// New creates a watch model polling the given store. dir is shown in the
// header so the user knows which workspace is being watched.
func New(store state.Store, dir string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorGreen)
	return Model{store: store, dir: dir, spinner: sp, missing: true}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll)
}

// poll reads the state file once.
func (m Model) poll() tea.Msg {
	st, err := m.store.Load()
	return stateMsg{st: st, err: err}
}

// scheduleTick waits one poll interval.
func scheduleTick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case stateMsg:
		switch {
		case errors.Is(msg.err, state.ErrNotFound):
			m.st, m.missing, m.err = nil, true, nil
		case msg.err != nil:
			m.st, m.missing, m.err = nil, false, msg.err
		default:
			m.st, m.missing, m.err = msg.st, false, nil
		}
		return m, scheduleTick()

	case tickMsg:
		return m, m.poll

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	header := titleStyle.Render("loopgate") + dimStyle.Render("  "+m.dir)

	var body string
	switch {
	case m.err != nil:
		body = errorStyle.Render(fmt.Sprintf("state file unreadable: %v", m.err))
	case m.missing:
		body = dimStyle.Render("no active loop")
	default:
		body = m.spinner.View() + " " + Statusline(m.st)
		if m.st.PendingFeedback != "" {
			body += "\n" + feedbackStyle.Render("reviewer feedback queued for next iteration")
		}
		if open := m.st.UnresolvedIssues(); len(open) > 0 {
			body += "\n" + reviewStyle.Render(fmt.Sprintf("%d unresolved issue(s)", len(open)))
		}
	}

	footer := dimStyle.Render("q to quit")
	return header + "\n\n" + body + "\n\n" + footer + "\n"
}

// Statusline renders a one-line summary of a loop record, suitable for
// embedding in a terminal status line.
func Statusline(st *state.LoopState) string {
	line := activeStyle.Render(fmt.Sprintf("iteration %d/%d", st.Iteration, st.MaxIterations))
	if st.ReviewEnabled {
		line += dimStyle.Render("  ·  ") +
			reviewStyle.Render(fmt.Sprintf("review %d/%d", st.ReviewCount, st.MaxReviewCycles))
	}
	line += dimStyle.Render("  ·  ") + dimStyle.Render(st.CompletionPromise)
	return line
}
