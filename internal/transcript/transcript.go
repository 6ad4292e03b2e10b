// Package transcript extracts the most recent agent-authored text from an
// append-only JSONL event log.
package transcript

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/loopgate/loopgate/internal/log"
)

// defaultTailBytes bounds how much of the log is scanned. Transcripts grow
// without bound; the record we want is always near the end.
const defaultTailBytes = 512 * 1024

// assistantRole marks agent-authored records, as opposed to tool output,
// system events, or user input.
const assistantRole = "assistant"

// Reader extracts agent output from a transcript file.
type Reader struct {
	tailBytes int64
}

// NewReader creates a Reader with the default scan bound.
func NewReader() *Reader {
	return &Reader{tailBytes: defaultTailBytes}
}

// SetTailBytes overrides the scan bound (for testing small windows).
func (r *Reader) SetTailBytes(n int64) {
	r.tailBytes = n
}

// record covers both historical transcript shapes: the current nested
// {message: {role, content}} form and the flatter legacy {role, content} form.
type record struct {
	Message *message        `json:"message"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentBlock is one element of a structured content array.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// LatestAssistantText returns the text of the most recent agent-authored
// record, scanning backward from the end of the file. It returns ok=false if
// the file is absent, no matching record exists within the scan bound, or the
// matching record carries no text.
func (r *Reader) LatestAssistantText(path string) (string, bool) {
	lines, err := r.tailLines(path)
	if err != nil {
		log.Debug("transcript not readable", "path", path, "error", err)
		return "", false
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Torn or foreign line; keep scanning.
			continue
		}

		role, content := rec.Role, rec.Content
		if rec.Message != nil {
			role, content = rec.Message.Role, rec.Message.Content
		}
		if role != assistantRole {
			continue
		}

		if text := extractText(content); text != "" {
			return text, true
		}
		// An assistant record with no text (tool-use only); keep scanning
		// for the latest one that actually said something.
	}

	return "", false
}

// extractText concatenates all text-typed fragments of a content value,
// which is either a plain string or an array of typed blocks.
func extractText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(content, &plain); err == nil {
		return plain
	}

	var blocks []contentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return ""
	}

	var parts []string
	for _, block := range blocks {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// tailLines reads at most tailBytes from the end of the file and splits into
// lines. The first line is dropped when the read window starts mid-file, as
// it is likely truncated.
func (r *Reader) tailLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			log.CloseError("transcript", cerr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := info.Size()
	offset := int64(0)
	truncatedStart := false
	if size > r.tailBytes {
		offset = size - r.tailBytes
		truncatedStart = true
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty transcript")
	}

	lines := strings.Split(string(data), "\n")
	if truncatedStart && len(lines) > 0 {
		lines = lines[1:]
	}
	return lines, nil
}
