package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromPath_MissingFile(t *testing.T) {
	// Missing file should return default config (not an error)
	cfg, err := LoadFromPath("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("expected default config for missing file, got error: %v", err)
	}

	if cfg.MaxIterations != 10 {
		t.Errorf("expected default max_iterations=10, got %d", cfg.MaxIterations)
	}
	if cfg.Reviewer.Binary != "claude" {
		t.Errorf("expected default reviewer.binary=claude, got %s", cfg.Reviewer.Binary)
	}
}

func TestLoadFromPath_ValidMinimalConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	configJSON := `{"max_iterations": 25}`
	if err := os.WriteFile(configPath, []byte(configJSON), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MaxIterations != 25 {
		t.Errorf("expected max_iterations=25, got %d", cfg.MaxIterations)
	}

	// Check defaults were applied for other fields
	if cfg.MaxReviewCycles != 3 {
		t.Errorf("expected default max_review_cycles=3, got %d", cfg.MaxReviewCycles)
	}
	if cfg.Reviewer.TimeoutMinutes != 20 {
		t.Errorf("expected default reviewer.timeout_minutes=20, got %d", cfg.Reviewer.TimeoutMinutes)
	}
	if !cfg.UsageTracking {
		t.Error("expected usage_tracking=true (default)")
	}
}

func TestLoadFromPath_FullConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	configJSON := `{
		"max_iterations": 40,
		"max_review_cycles": 5,
		"review_by_default": true,
		"usage_tracking": false,
		"reviewer": {
			"binary": "claude-dev",
			"model": "claude-sonnet-4-20250514",
			"timeout_minutes": 45
		}
	}`
	if err := os.WriteFile(configPath, []byte(configJSON), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MaxIterations != 40 {
		t.Errorf("expected max_iterations=40, got %d", cfg.MaxIterations)
	}
	if cfg.MaxReviewCycles != 5 {
		t.Errorf("expected max_review_cycles=5, got %d", cfg.MaxReviewCycles)
	}
	if !cfg.ReviewByDefault {
		t.Error("expected review_by_default=true")
	}
	if cfg.UsageTracking {
		t.Error("expected usage_tracking=false")
	}
	if cfg.Reviewer.Binary != "claude-dev" {
		t.Errorf("expected reviewer.binary=claude-dev, got %s", cfg.Reviewer.Binary)
	}
	if cfg.Reviewer.Model != "claude-sonnet-4-20250514" {
		t.Errorf("expected reviewer.model=claude-sonnet-4-20250514, got %s", cfg.Reviewer.Model)
	}
	if cfg.Reviewer.Timeout() != 45*time.Minute {
		t.Errorf("expected 45m timeout, got %v", cfg.Reviewer.Timeout())
	}
}

func TestLoadFromPath_EmptyConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	// Empty config should use all defaults
	if err := os.WriteFile(configPath, []byte("{}"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MaxIterations != 10 {
		t.Errorf("expected default max_iterations=10, got %d", cfg.MaxIterations)
	}
	if cfg.MaxReviewCycles != 3 {
		t.Errorf("expected default max_review_cycles=3, got %d", cfg.MaxReviewCycles)
	}
}

func TestLoadFromPath_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := LoadFromPath(configPath)
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("expected parse error, got: %v", err)
	}
}

func TestLoadFromPath_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"zero iterations", `{"max_iterations": 0}`, "max_iterations"},
		{"negative review cycles", `{"max_review_cycles": -1}`, "max_review_cycles"},
		{"empty binary", `{"reviewer": {"binary": ""}}`, "reviewer.binary"},
		{"zero timeout", `{"reviewer": {"timeout_minutes": 0}}`, "reviewer.timeout_minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.json")
			if err := os.WriteFile(configPath, []byte(tt.json), 0644); err != nil {
				t.Fatalf("failed to write config file: %v", err)
			}

			_, err := LoadFromPath(configPath)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	got, err := expandPath("~/.local/share/loopgate/usage.db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(home, ".local/share/loopgate/usage.db")
	if got != want {
		t.Errorf("expandPath = %q, want %q", got, want)
	}

	got, err = expandPath("/absolute/path")
	if err != nil || got != "/absolute/path" {
		t.Errorf("absolute paths must pass through, got %q, %v", got, err)
	}

	if _, err := expandPath("~otheruser/x"); err == nil {
		t.Error("expected error for ~user form")
	}
}
