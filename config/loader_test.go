package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.InDelta(t, 0.8, cfg.Pipeline.QualityThreshold, 1e-9)
	assert.Equal(t, 3, cfg.Pipeline.MaxIterations)
	assert.True(t, cfg.Pipeline.ProceedOnExhaustion)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.Drafter.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_YAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
server:
  http_port: 9000
pipeline:
  quality_threshold: 0.9
  max_iterations: 5
  drafter:
    model: gpt-4o
    temperature: 0.5
jira:
  base_url: https://tracker.example.com
  project_key: PROJ
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.InDelta(t, 0.9, cfg.Pipeline.QualityThreshold, 1e-9)
	assert.Equal(t, 5, cfg.Pipeline.MaxIterations)
	assert.Equal(t, "gpt-4o", cfg.Pipeline.Drafter.Model)
	// untouched fields keep their defaults
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, "PROJ", cfg.Jira.ProjectKey)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("TICKETFLOW_SERVER_HTTP_PORT", "7070")
	t.Setenv("TICKETFLOW_PIPELINE_QUALITY_THRESHOLD", "0.75")
	t.Setenv("TICKETFLOW_PIPELINE_DRAFTER_TIMEOUT", "90s")
	t.Setenv("TICKETFLOW_REDIS_ENABLED", "true")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.InDelta(t, 0.75, cfg.Pipeline.QualityThreshold, 1e-9)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.Drafter.Timeout)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.Pipeline.QualityThreshold = 1.2 }},
		{"zero iterations", func(c *Config) { c.Pipeline.MaxIterations = 0 }},
		{"port clash", func(c *Config) { c.Server.MetricsPort = c.Server.HTTPPort }},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"zero stage timeout", func(c *Config) { c.Pipeline.Compliance.Timeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
