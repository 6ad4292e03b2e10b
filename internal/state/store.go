package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/loopgate/loopgate/internal/log"
)

// FileName is the loop record's file name under the workspace root's state
// directory.
const FileName = "loopgate-loop.local.md"

// StateDir is the directory under the workspace root holding the record.
const StateDir = ".claude"

// Error sentinels for Load.
var (
	// ErrNotFound is returned when no loop record exists.
	ErrNotFound = errors.New("loop state not found")
	// ErrCorrupt is returned when a record exists but required fields are
	// missing or unparsable. Callers delete the record and treat it as absent.
	ErrCorrupt = errors.New("loop state corrupt")
)

// Store abstracts the persisted loop record so the controller can be tested
// against an in-memory implementation.
type Store interface {
	Load() (*LoopState, error)
	Save(*LoopState) error
	Delete() error
}

// FileStore persists the loop record as a single local file.
type FileStore struct {
	path string
}

// NewFileStore creates a store for the record under the given workspace root.
func NewFileStore(root string) *FileStore {
	return &FileStore{path: filepath.Join(root, StateDir, FileName)}
}

// Path returns the record's file path.
func (fs *FileStore) Path() string {
	return fs.path
}

// Load reads and parses the record. Returns ErrNotFound if absent and
// ErrCorrupt if required fields are missing or unparsable.
func (fs *FileStore) Load() (*LoopState, error) {
	data, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read loop state: %w", err)
	}
	return Parse(string(data))
}

// Save serializes the record and writes it atomically next to its final path.
func (fs *FileStore) Save(s *LoopState) error {
	if err := os.MkdirAll(filepath.Dir(fs.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(Serialize(s)), 0644); err != nil {
		return fmt.Errorf("failed to write loop state: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("failed to replace loop state: %w", err)
	}
	return nil
}

// Delete removes the record. Deleting an absent record is success.
func (fs *FileStore) Delete() error {
	err := os.Remove(fs.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete loop state: %w", err)
	}
	return nil
}

// headerSeparator ends the parsed header; everything after it is body text.
const headerSeparator = "---"

// Parse decodes a serialized loop record. Unknown header keys are ignored so
// newer writers stay readable. Missing or unparsable required scalars yield
// ErrCorrupt.
func Parse(data string) (*LoopState, error) {
	s := &LoopState{}

	var (
		haveActive    bool
		haveIteration bool
		haveMax       bool
		havePromise   bool
	)

	lines := strings.Split(data, "\n")
	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == headerSeparator {
			i++
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			// Not a key: value line; tolerate and move on.
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "active":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("%w: bad active value %q", ErrCorrupt, value)
			}
			s.Active = b
			haveActive = true
		case "loop_id":
			s.LoopID = unquote(value)
		case "iteration":
			n, err := parseUint(value)
			if err != nil {
				return nil, fmt.Errorf("%w: bad iteration value %q", ErrCorrupt, value)
			}
			s.Iteration = n
			haveIteration = true
		case "max_iterations":
			n, err := parseUint(value)
			if err != nil {
				return nil, fmt.Errorf("%w: bad max_iterations value %q", ErrCorrupt, value)
			}
			s.MaxIterations = n
			haveMax = true
		case "completion_promise":
			s.CompletionPromise = unquote(value)
			havePromise = true
		case "review_enabled":
			s.ReviewEnabled, _ = strconv.ParseBool(value)
		case "review_count":
			s.ReviewCount, _ = parseUintLenient(value)
		case "max_review_cycles":
			s.MaxReviewCycles, _ = parseUintLenient(value)
		case "debug":
			s.Debug, _ = strconv.ParseBool(value)
		case "pending_feedback":
			if value != "null" {
				s.PendingFeedback = unquote(value)
			}
		case "review_history":
			s.ReviewHistory = normalizeHistory(value)
		case "original_prompt":
			if value == "|" {
				var prompt []string
				for i+1 < len(lines) && strings.HasPrefix(lines[i+1], "  ") {
					prompt = append(prompt, strings.TrimPrefix(lines[i+1], "  "))
					i++
				}
				s.OriginalPrompt = strings.Join(prompt, "\n")
			} else {
				s.OriginalPrompt = unquote(value)
			}
		default:
			log.Debug("ignoring unknown loop state key", "key", key)
		}
	}

	if i < len(lines) {
		s.Body = strings.Join(lines[i:], "\n")
	}

	if !haveActive || !haveIteration || !haveMax || !havePromise {
		return nil, fmt.Errorf("%w: missing required header fields", ErrCorrupt)
	}

	return s, nil
}

// Serialize encodes the record in canonical key order: a header of scalar
// key: value lines, a literal block for the original prompt, one JSON line
// for the review history, then the free-form body.
func Serialize(s *LoopState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "active: %t\n", s.Active)
	if s.LoopID != "" {
		fmt.Fprintf(&b, "loop_id: %s\n", strconv.Quote(s.LoopID))
	}
	fmt.Fprintf(&b, "iteration: %d\n", s.Iteration)
	fmt.Fprintf(&b, "max_iterations: %d\n", s.MaxIterations)
	fmt.Fprintf(&b, "completion_promise: %s\n", strconv.Quote(s.CompletionPromise))
	fmt.Fprintf(&b, "review_enabled: %t\n", s.ReviewEnabled)
	fmt.Fprintf(&b, "review_count: %d\n", s.ReviewCount)
	fmt.Fprintf(&b, "max_review_cycles: %d\n", s.MaxReviewCycles)
	fmt.Fprintf(&b, "debug: %t\n", s.Debug)
	if s.PendingFeedback != "" {
		fmt.Fprintf(&b, "pending_feedback: %s\n", strconv.Quote(s.PendingFeedback))
	} else {
		b.WriteString("pending_feedback: null\n")
	}
	history, err := json.Marshal(s.ReviewHistory)
	if err != nil || s.ReviewHistory == nil {
		history = []byte("[]")
	}
	fmt.Fprintf(&b, "review_history: %s\n", history)

	b.WriteString("original_prompt: |\n")
	for _, line := range strings.Split(s.OriginalPrompt, "\n") {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(headerSeparator)
	b.WriteString("\n")
	b.WriteString(s.Body)

	return b.String()
}

// unquote strips a surrounding JSON/Go quote pair if present, decoding
// escapes; unquoted values pass through unchanged.
func unquote(value string) string {
	if strings.HasPrefix(value, `"`) {
		if unquoted, err := strconv.Unquote(value); err == nil {
			return unquoted
		}
	}
	return value
}

func parseUint(value string) (uint, error) {
	n, err := strconv.ParseUint(value, 10, 32)
	return uint(n), err
}

// parseUintLenient is for optional fields: parse errors yield zero.
func parseUintLenient(value string) (uint, error) {
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(n), nil
}
