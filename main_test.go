package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// executeCommand is a test helper that executes a cobra command with args.
func executeCommand(root *cobra.Command, stdin string, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err = root.Execute()
	return buf.String(), err
}

func TestResolvePrompt(t *testing.T) {
	promptPath := filepath.Join(t.TempDir(), "prompt.md")
	if err := os.WriteFile(promptPath, []byte("do the thing"), 0644); err != nil {
		t.Fatalf("failed to write prompt file: %v", err)
	}
	emptyPath := filepath.Join(t.TempDir(), "empty.md")
	if err := os.WriteFile(emptyPath, []byte("  \n"), 0644); err != nil {
		t.Fatalf("failed to write empty file: %v", err)
	}

	tests := []struct {
		name    string
		args    []string
		file    string
		want    string
		wantErr bool
	}{
		{"from argument", []string{"fix the bug"}, "", "fix the bug", false},
		{"from file", nil, promptPath, "do the thing", false},
		{"both given", []string{"x"}, promptPath, "", true},
		{"neither given", nil, "", "", true},
		{"blank argument", []string{"   "}, "", "", true},
		{"empty file", nil, emptyPath, "", true},
		{"missing file", nil, "/nonexistent/prompt.md", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePrompt(tt.args, tt.file)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("prompt = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHookCmd_MalformedEventApproves(t *testing.T) {
	// A hook invocation with garbage on stdin must still emit an approve
	// decision and exit cleanly.
	out, err := executeCommand(hookCmd(), "{not json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"decision":"approve"`) {
		t.Errorf("output = %q, want an approve decision", out)
	}
}

func TestStartCmd_RejectsBadBudgets(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero iterations", []string{"task", "--max-iterations", "0"}},
		{"negative iterations", []string{"task", "--max-iterations", "-3"}},
		{"zero reviews", []string{"task", "--max-reviews", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := executeCommand(startCmd(), "", tt.args...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestStartCmd_RequiresPrompt(t *testing.T) {
	if _, err := executeCommand(startCmd(), ""); err == nil {
		t.Error("expected error when no prompt is given")
	}
}
