package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "business", cfg.Agent.DefaultPersona)
	assert.Equal(t, "plain", cfg.Agent.DefaultFormat)
	assert.Equal(t, 20, cfg.Backend.HistoryWindow)
	assert.GreaterOrEqual(t, cfg.LLM.MaxAttempts, 1)
}

func TestLoadFromPathCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	// File should now exist and round-trip.
	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, Default().LLM.Model, cfg.LLM.Model)
	assert.Equal(t, Default().Backend.Endpoint, cfg.Backend.Endpoint)
}

func TestLoadFromPathReadsOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
llm:
  endpoint: http://127.0.0.1:9999/v1
  model: test-model
  max_attempts: 2
  timeout: 30s
backend:
  endpoint: http://127.0.0.1:8085
  history_window: 5
agent:
  default_persona: casual
  default_format: markdown
  tool_concurrency: 2
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "test-model", cfg.LLM.Model)
	assert.Equal(t, 2, cfg.LLM.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 5, cfg.Backend.HistoryWindow)
	assert.Equal(t, "casual", cfg.Agent.DefaultPersona)
	assert.Equal(t, "markdown", cfg.Agent.DefaultFormat)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty model", func(c *Config) { c.LLM.Model = "" }},
		{"zero attempts", func(c *Config) { c.LLM.MaxAttempts = 0 }},
		{"empty backend", func(c *Config) { c.Backend.Endpoint = "" }},
		{"negative window", func(c *Config) { c.Backend.HistoryWindow = -1 }},
		{"empty persona", func(c *Config) { c.Agent.DefaultPersona = "" }},
		{"bad format", func(c *Config) { c.Agent.DefaultFormat = "xml" }},
		{"zero concurrency", func(c *Config) { c.Agent.ToolConcurrency = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
