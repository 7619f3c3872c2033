package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/distill/pkg/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, 64, cfg.Pipeline.HardWorkerCeiling)
	assert.Equal(t, 5, cfg.Pipeline.MaxQueueRetries)
	assert.Equal(t, 100, cfg.Pipeline.QueueTimeoutMS)
	assert.Equal(t, 200, cfg.Filter.MinRawLength)
	assert.Equal(t, 100, cfg.Filter.MinCleanedLength)
	assert.Equal(t, "template", cfg.Generator.Backend)
	assert.Equal(t, 25000, cfg.Output.FlushThresholdRecords)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "distill.yaml")
	content := `
pipeline:
  hard_worker_ceiling: 16
  max_queue_retries: 3
generator:
  backend: ollama
  model: llama3
output:
  flush_threshold_records: 500
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Pipeline.HardWorkerCeiling)
	assert.Equal(t, 3, cfg.Pipeline.MaxQueueRetries)
	assert.Equal(t, "ollama", cfg.Generator.Backend)
	assert.Equal(t, "llama3", cfg.Generator.Model)
	assert.Equal(t, 500, cfg.Output.FlushThresholdRecords)
	// Untouched fields still take defaults.
	assert.Equal(t, 100, cfg.Pipeline.QueueTimeoutMS)
	assert.Equal(t, "http://localhost:11434", cfg.Generator.BaseURL)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := config.Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("DISTILL_GENERATOR_MODEL", "phi3")
	t.Setenv("DISTILL_PIPELINE_MAX_QUEUE_RETRIES", "9")
	t.Setenv("DISTILL_LOGGING_LEVEL", "debug")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "phi3", cfg.Generator.Model)
	assert.Equal(t, 9, cfg.Pipeline.MaxQueueRetries)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "distill.yaml")
	require.NoError(t, os.WriteFile(path, []byte("generator:\n  model: llama3\n"), 0o644))
	t.Setenv("DISTILL_GENERATOR_MODEL", "phi3")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "phi3", cfg.Generator.Model)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.Empty(t, config.Default().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.HardWorkerCeiling = 1
	cfg.Filter.LanguageRatio = 3
	cfg.Generator.Backend = "carrier-pigeon"

	errs := cfg.Validate()
	require.NotEmpty(t, errs)

	fields := make([]string, len(errs))
	for i, e := range errs {
		fields[i] = e.Field
	}
	assert.Contains(t, fields, "pipeline.hard_worker_ceiling")
	assert.Contains(t, fields, "filter.language_ratio")
	assert.Contains(t, fields, "generator.backend")
}
