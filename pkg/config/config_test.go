package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	defer SetConfigForTesting(nil)

	require.NoError(t, LoadConfig(dir))
	assert.FileExists(t, filepath.Join(dir, ProjectConfigDir, ConfigFilename))

	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, cfg.Oracle.Provider)
	assert.Equal(t, 10*time.Second, cfg.Index.Cooldown.Std())
	assert.Equal(t, 60*time.Second, cfg.Index.MaxAge.Std())
	assert.Equal(t, 12000, cfg.Summarizer.Budget)
	assert.Equal(t, 3, cfg.Quality.MaxDebuggerRetries)
	assert.Equal(t, dir, ProjectDir())
}

func TestDefaultStageWindows(t *testing.T) {
	cfg := Default()
	tests := []struct {
		stage      string
		numCtx     int
		numPredict int
	}{
		{StageCoder, 8192, 8192},
		{StageDebugger, 8192, 8192},
		{StageReasoner, 8192, 4096},
		{StageRequestManager, 4096, 1024},
		{StagePlanner, 4096, 4096},
		{"unknown_stage", 4096, 4096},
	}
	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			sc := cfg.StageLimits(tt.stage)
			assert.Equal(t, tt.numCtx, sc.NumCtx)
			assert.Equal(t, tt.numPredict, sc.NumPredict)
			assert.Equal(t, cfg.Oracle.Model, sc.Model)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	defer SetConfigForTesting(nil)

	t.Setenv("OLLAMA_CODER_NUM_CTX", "16384")
	t.Setenv("OLLAMA_PLANNER_NUM_PREDICT", "512")
	t.Setenv("OLLAMA_REQUEST_DELAY", "0.5")
	t.Setenv("AGENTFLOW_MODEL", "llama3")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")

	require.NoError(t, LoadConfig(dir))
	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, 16384, cfg.Stages[StageCoder].NumCtx)
	assert.Equal(t, 512, cfg.Stages[StagePlanner].NumPredict)
	assert.Equal(t, 500*time.Millisecond, cfg.Oracle.RequestDelay.Std())
	assert.Equal(t, "llama3", cfg.Oracle.Model)
	assert.Equal(t, "http://gpu-box:11434", cfg.Oracle.Host)

	// Overrides are not persisted.
	data, err := os.ReadFile(filepath.Join(dir, ProjectConfigDir, ConfigFilename))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "llama3")
}

func TestLoadYAMLConfig(t *testing.T) {
	dir := t.TempDir()
	defer SetConfigForTesting(nil)

	yml := `oracle:
  provider: anthropic
  model: claude-sonnet-4-5
  timeout: 30s
summarizer:
  budget: 600
stages:
  coder:
    num_ctx: 2048
`
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ProjectConfigDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigDir, YAMLConfigFilename), []byte(yml), 0644))

	require.NoError(t, LoadConfig(dir))
	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Oracle.Provider)
	assert.Equal(t, 30*time.Second, cfg.Oracle.Timeout.Std())
	assert.Equal(t, 600, cfg.Summarizer.Budget)
	assert.Equal(t, 2048, cfg.Stages[StageCoder].NumCtx)
	assert.Equal(t, 8192, cfg.Stages[StageCoder].NumPredict, "missing fields fall back per stage")
	assert.Equal(t, 12000, cfg.Summarizer.MergeBudget)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad provider", func(c *Config) { c.Oracle.Provider = "bard" }, true},
		{"bad temperature", func(c *Config) { c.Oracle.Temperature = 3 }, true},
		{"bad backoff", func(c *Config) { c.Retry.BackoffFactor = 0.5 }, true},
		{"zero stage window", func(c *Config) { c.Stages[StageCoder] = StageConfig{} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := validateConfig(&cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetConfigNotLoaded(t *testing.T) {
	SetConfigForTesting(nil)
	_, err := GetConfig()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestGetAPIKeyOllamaDefault(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	host, err := GetAPIKey(ProviderOllama)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", host)
}
