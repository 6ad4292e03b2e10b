// Package config provides configuration loading and validation for loopgate.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Standard config file location.
const defaultConfigPath = "~/.config/loopgate/config.json"

// Config holds all loopgate configuration settings.
type Config struct {
	MaxIterations   int            `json:"max_iterations"`    // Default iteration budget for new loops
	MaxReviewCycles int            `json:"max_review_cycles"` // Default review budget for new loops
	ReviewByDefault bool           `json:"review_by_default"` // Whether `start` enables review unless told otherwise
	UsageDBPath     string         `json:"usage_db_path"`     // SQLite database for usage tracking
	UsageTracking   bool           `json:"usage_tracking"`    // Whether termination attempts are recorded
	Reviewer        ReviewerConfig `json:"reviewer"`

	// expandedPaths tracks whether ExpandPaths has been called.
	expandedPaths bool
}

// ReviewerConfig holds settings for the review subprocess.
type ReviewerConfig struct {
	Binary         string `json:"binary"`
	Model          string `json:"model"` // Empty means the binary's default
	TimeoutMinutes int    `json:"timeout_minutes"`
}

// Timeout returns the reviewer timeout as a duration.
func (r ReviewerConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMinutes) * time.Minute
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxIterations:   10,
		MaxReviewCycles: 3,
		ReviewByDefault: false,
		UsageDBPath:     "~/.local/share/loopgate/usage.db",
		UsageTracking:   true,
		Reviewer: ReviewerConfig{
			Binary:         "claude",
			TimeoutMinutes: 20,
		},
	}
}

// Load reads config from the standard location
// (~/.config/loopgate/config.json), falling back to defaults if the file
// doesn't exist. Missing fields use default values (not zero values).
func Load() (*Config, error) {
	configPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path: %w", err)
	}
	return LoadFromPath(configPath)
}

// LoadFromPath reads config from a specific path.
// If the file doesn't exist, returns default config.
// If the file exists but is invalid, returns an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// No config file - use all defaults.
		if err := cfg.ExpandPaths(); err != nil {
			return nil, fmt.Errorf("failed to expand paths: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into a temporary struct for merging.
	var fileCfg fileConfig
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Merge file values over defaults (only fields that were set).
	mergeConfig(cfg, &fileCfg)

	if err := cfg.ExpandPaths(); err != nil {
		return nil, fmt.Errorf("failed to expand paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// fileConfig is used for parsing JSON with pointer fields to detect what was set.
type fileConfig struct {
	MaxIterations   *int                `json:"max_iterations"`
	MaxReviewCycles *int                `json:"max_review_cycles"`
	ReviewByDefault *bool               `json:"review_by_default"`
	UsageDBPath     *string             `json:"usage_db_path"`
	UsageTracking   *bool               `json:"usage_tracking"`
	Reviewer        *fileReviewerConfig `json:"reviewer"`
}

type fileReviewerConfig struct {
	Binary         *string `json:"binary"`
	Model          *string `json:"model"`
	TimeoutMinutes *int    `json:"timeout_minutes"`
}

// mergeConfig merges file config values into the default config.
// Only non-nil values from the file config are applied.
func mergeConfig(cfg *Config, fileCfg *fileConfig) {
	if fileCfg.MaxIterations != nil {
		cfg.MaxIterations = *fileCfg.MaxIterations
	}
	if fileCfg.MaxReviewCycles != nil {
		cfg.MaxReviewCycles = *fileCfg.MaxReviewCycles
	}
	if fileCfg.ReviewByDefault != nil {
		cfg.ReviewByDefault = *fileCfg.ReviewByDefault
	}
	if fileCfg.UsageDBPath != nil {
		cfg.UsageDBPath = *fileCfg.UsageDBPath
	}
	if fileCfg.UsageTracking != nil {
		cfg.UsageTracking = *fileCfg.UsageTracking
	}

	if fileCfg.Reviewer != nil {
		if fileCfg.Reviewer.Binary != nil {
			cfg.Reviewer.Binary = *fileCfg.Reviewer.Binary
		}
		if fileCfg.Reviewer.Model != nil {
			cfg.Reviewer.Model = *fileCfg.Reviewer.Model
		}
		if fileCfg.Reviewer.TimeoutMinutes != nil {
			cfg.Reviewer.TimeoutMinutes = *fileCfg.Reviewer.TimeoutMinutes
		}
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	var errs []error

	if c.MaxIterations < 1 {
		errs = append(errs, errors.New("max_iterations must be >= 1"))
	}

	if c.MaxReviewCycles < 1 {
		errs = append(errs, errors.New("max_review_cycles must be >= 1"))
	}

	if c.UsageDBPath == "" {
		errs = append(errs, errors.New("usage_db_path must be non-empty"))
	}

	if c.Reviewer.Binary == "" {
		errs = append(errs, errors.New("reviewer.binary must be non-empty"))
	}

	if c.Reviewer.TimeoutMinutes < 1 {
		errs = append(errs, errors.New("reviewer.timeout_minutes must be >= 1"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ExpandPaths expands ~ to home directory in all path fields.
func (c *Config) ExpandPaths() error {
	if c.expandedPaths {
		return nil
	}

	var err error
	c.UsageDBPath, err = expandPath(c.UsageDBPath)
	if err != nil {
		return fmt.Errorf("failed to expand usage_db_path: %w", err)
	}

	c.expandedPaths = true
	return nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if path == "~" {
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:]), nil
	}

	// ~user form is not supported.
	return "", fmt.Errorf("unsupported path format: %s", path)
}
