package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempFile(t, "config.json", `{
		"target_url": "https://jobs.lever.co/acme/123",
		"retry_budget": 3,
		"partial_threshold": 0.8,
		"stage_weights": {"evaluate": 0.25, "plan": 0.25, "implement": 0.35, "verify": 0.15}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://jobs.lever.co/acme/123", cfg.TargetURL)
	assert.Equal(t, 3, cfg.RetryBudget)
	assert.Equal(t, 0.8, cfg.PartialThreshold)
	assert.Equal(t, 0.35, cfg.StageWeights["implement"])
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig("")
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := writeTempFile(t, "bad.json", `{"retry_budget": `)
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	resumePath := writeTempFile(t, "resume.md", "## Summary\ntext")
	targetPath := writeTempFile(t, "target.txt", "Go engineer")

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"empty config ok", Config{}, ""},
		{"valid paths", Config{Resume: resumePath, Target: targetPath}, ""},
		{"mutually exclusive targets", Config{Target: targetPath, TargetURL: "https://x"}, "mutually exclusive"},
		{"retry budget disabled", Config{RetryBudget: -1}, ""},
		{"retry budget below -1", Config{RetryBudget: -2}, "retry_budget"},
		{"negative concurrency", Config{Concurrency: -2}, "concurrency"},
		{"threshold above one", Config{PartialThreshold: 1.5}, "partial_threshold"},
		{"weights sum wrong", Config{StageWeights: map[string]float64{"evaluate": 0.5, "plan": 0.2}}, "sum to 1.0"},
		{"negative weight", Config{StageWeights: map[string]float64{"evaluate": -0.5, "plan": 1.5}}, "non-negative"},
		{"missing resume file", Config{Resume: "/nonexistent/resume.md"}, "resume file not found"},
		{"missing target file", Config{Target: "/nonexistent/target.txt"}, "target file not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeWithDefaults(t *testing.T) {
	base := Config{Resume: "mine.md", RetryBudget: 1}
	defaults := Config{
		Resume:           "default.md",
		Target:           "default.txt",
		RetryBudget:      2,
		Concurrency:      4,
		PartialThreshold: 0.6,
		StageWeights:     map[string]float64{"evaluate": 1.0},
	}

	merged := base.MergeWithDefaults(defaults)

	assert.Equal(t, "mine.md", merged.Resume, "explicit value wins")
	assert.Equal(t, "default.txt", merged.Target)
	assert.Equal(t, 1, merged.RetryBudget)
	assert.Equal(t, 4, merged.Concurrency)
	assert.Equal(t, 0.6, merged.PartialThreshold)
	assert.Equal(t, 1.0, merged.StageWeights["evaluate"])
}

func TestMergeWithDefaultsKeepsDisabledRetryBudget(t *testing.T) {
	base := Config{RetryBudget: -1}
	merged := base.MergeWithDefaults(Config{RetryBudget: 2})
	assert.Equal(t, -1, merged.RetryBudget, "-1 is an explicit value, not unset")
}
