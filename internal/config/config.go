// Package config provides configuration loading and validation for the CLI
// and the HTTP server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided
// via CLI flags.
type Config struct {
	// Paths
	Resume    string `json:"resume,omitempty"`     // Path to the resume markdown file
	Target    string `json:"target,omitempty"`     // Path to the target description text file
	TargetURL string `json:"target_url,omitempty"` // URL to fetch the target description from

	// Behavior
	APIKey      string `json:"api_key,omitempty"`      // Gemini API key
	UseBrowser  bool   `json:"use_browser,omitempty"`  // Use headless browser for SPA sites
	Verbose     bool   `json:"verbose,omitempty"`      // Print detailed debug information
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	ListenAddr  string `json:"listen_addr,omitempty"`  // HTTP listen address for serve mode

	// Pipeline tunables
	RetryBudget      int     `json:"retry_budget,omitempty"`      // Validator retries per stage beyond the first attempt (0 = default, -1 = none)
	PartialThreshold float64 `json:"partial_threshold,omitempty"` // Minimum fraction of section rewrites that must succeed (0.0-1.0)
	Concurrency      int     `json:"concurrency,omitempty"`       // Concurrent section rewrites

	// StageWeights overrides the progress weighting per stage
	// (evaluate, plan, implement, verify). Values must sum to 1.0.
	StageWeights map[string]float64 `json:"stage_weights,omitempty"`
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if c.Target != "" && c.TargetURL != "" {
		return fmt.Errorf("config error: 'target' and 'target_url' are mutually exclusive")
	}

	if c.RetryBudget < -1 {
		return fmt.Errorf("config error: 'retry_budget' must be -1 (no retries), 0 (default) or positive")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("config error: 'concurrency' must be non-negative")
	}
	if c.PartialThreshold < 0 || c.PartialThreshold > 1 {
		return fmt.Errorf("config error: 'partial_threshold' must be between 0.0 and 1.0")
	}

	if len(c.StageWeights) > 0 {
		var sum float64
		for stage, w := range c.StageWeights {
			if w < 0 {
				return fmt.Errorf("config error: stage weight for %q must be non-negative", stage)
			}
			sum += w
		}
		if sum < 0.999 || sum > 1.001 {
			return fmt.Errorf("config error: 'stage_weights' must sum to 1.0, got %.3f", sum)
		}
	}

	if c.Resume != "" {
		if _, err := os.Stat(c.Resume); os.IsNotExist(err) {
			return fmt.Errorf("config error: resume file not found: %s", c.Resume)
		}
	}
	if c.Target != "" {
		if _, err := os.Stat(c.Target); os.IsNotExist(err) {
			return fmt.Errorf("config error: target file not found: %s", c.Target)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from
// defaults. This is used to apply config file values as defaults for CLI
// flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.Resume == "" {
		result.Resume = defaults.Resume
	}
	if result.Target == "" {
		result.Target = defaults.Target
	}
	if result.TargetURL == "" {
		result.TargetURL = defaults.TargetURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.ListenAddr == "" {
		result.ListenAddr = defaults.ListenAddr
	}

	// Int fields: use default if zero
	if result.RetryBudget == 0 {
		result.RetryBudget = defaults.RetryBudget
	}
	if result.Concurrency == 0 {
		result.Concurrency = defaults.Concurrency
	}

	// Float fields
	if result.PartialThreshold == 0 {
		result.PartialThreshold = defaults.PartialThreshold
	}

	if len(result.StageWeights) == 0 {
		result.StageWeights = defaults.StageWeights
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
