// Package usage records termination attempts into a local SQLite database
// for later analysis. Tracking is telemetry only: the gatekeeper never reads
// this database when making decisions, and recording failures are logged and
// swallowed so they can never affect the host session.
package usage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loopgate/loopgate/internal/log"
)

// ErrNotFound is returned when a requested record is not found.
var ErrNotFound = errors.New("record not found")

// schema is the SQL schema for the usage database.
const schema = `
-- One row per session seen by the hook
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    workspace TEXT NOT NULL,
    first_seen DATETIME NOT NULL,
    last_seen DATETIME NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0
);

-- One row per termination attempt handled by the gatekeeper
CREATE TABLE IF NOT EXISTS attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    loop_id TEXT NOT NULL DEFAULT '',
    workspace TEXT NOT NULL,
    iteration INTEGER NOT NULL,
    review_count INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    decision TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at);
CREATE INDEX IF NOT EXISTS idx_attempts_outcome ON attempts(outcome);
`

// Attempt is one recorded termination attempt.
type Attempt struct {
	SessionID   string
	LoopID      string
	Workspace   string
	Iteration   uint
	ReviewCount uint
	Outcome     string
	Decision    string
	CreatedAt   time.Time
}

// Tracker owns the usage database connection.
type Tracker struct {
	conn *sql.DB
}

// Open creates a tracker for the database at path. If the path is ":memory:",
// an in-memory database is used. The parent directory is created if needed
// and the schema is migrated automatically.
func Open(path string) (*Tracker, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			log.Warn("failed to close connection after ping failure", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			log.Warn("failed to close connection after migration failure", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Tracker{conn: conn}, nil
}

// Close closes the database connection.
func (t *Tracker) Close() error {
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// Record stores one termination attempt and updates the session row.
func (t *Tracker) Record(a Attempt) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	_, err := t.conn.Exec(`
		INSERT INTO sessions (session_id, workspace, first_seen, last_seen, attempts)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(session_id) DO UPDATE SET
			last_seen = excluded.last_seen,
			attempts = attempts + 1`,
		a.SessionID, a.Workspace, a.CreatedAt, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	_, err = t.conn.Exec(`
		INSERT INTO attempts
		(session_id, loop_id, workspace, iteration, review_count, outcome, decision, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.LoopID, a.Workspace, a.Iteration, a.ReviewCount,
		a.Outcome, a.Decision, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// Session is the aggregate row for one session.
type Session struct {
	SessionID string
	Workspace string
	FirstSeen time.Time
	LastSeen  time.Time
	Attempts  int
}

// GetSession retrieves the aggregate row for a session ID.
func (t *Tracker) GetSession(sessionID string) (*Session, error) {
	s := &Session{}
	err := t.conn.QueryRow(`
		SELECT session_id, workspace, first_seen, last_seen, attempts
		FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&s.SessionID, &s.Workspace, &s.FirstSeen, &s.LastSeen, &s.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OutcomeCount is one row of the per-outcome breakdown.
type OutcomeCount struct {
	Outcome string
	Count   int
}

// WorkspaceCount is one row of the per-workspace breakdown.
type WorkspaceCount struct {
	Workspace string
	Count     int
}

// Summary aggregates attempts over a trailing window.
type Summary struct {
	Since      time.Time
	Attempts   int
	Sessions   int
	Outcomes   []OutcomeCount
	Workspaces []WorkspaceCount
}

// Summarize returns aggregate usage for the past N days.
func (t *Tracker) Summarize(days int) (*Summary, error) {
	since := time.Now().AddDate(0, 0, -days)
	sum := &Summary{Since: since}

	err := t.conn.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT session_id)
		FROM attempts WHERE created_at >= ?`, since,
	).Scan(&sum.Attempts, &sum.Sessions)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}

	rows, err := t.conn.Query(`
		SELECT outcome, COUNT(*) FROM attempts
		WHERE created_at >= ?
		GROUP BY outcome ORDER BY COUNT(*) DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var oc OutcomeCount
		if err := rows.Scan(&oc.Outcome, &oc.Count); err != nil {
			return nil, err
		}
		sum.Outcomes = append(sum.Outcomes, oc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	wrows, err := t.conn.Query(`
		SELECT workspace, COUNT(*) FROM attempts
		WHERE created_at >= ?
		GROUP BY workspace ORDER BY COUNT(*) DESC LIMIT 10`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query workspaces: %w", err)
	}
	defer wrows.Close()
	for wrows.Next() {
		var wc WorkspaceCount
		if err := wrows.Scan(&wc.Workspace, &wc.Count); err != nil {
			return nil, err
		}
		sum.Workspaces = append(sum.Workspaces, wc)
	}
	if err := wrows.Err(); err != nil {
		return nil, err
	}

	return sum, nil
}

// RecordQuietly records an attempt, logging failures instead of returning
// them. Opening errors are also swallowed. The decision has already been
// made by the time this runs; nothing here may disturb it.
func RecordQuietly(dbPath string, a Attempt) {
	tracker, err := Open(dbPath)
	if err != nil {
		log.Warn("usage tracking unavailable", "error", err)
		return
	}
	defer func() {
		if err := tracker.Close(); err != nil {
			log.Warn("failed to close usage database", "error", err)
		}
	}()

	if err := tracker.Record(a); err != nil {
		log.Warn("failed to record usage", "error", err)
	}
}
