package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivetools/indexd/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "indexd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "nats://localhost:4222", cfg.Queue.URL)
	assert.Equal(t, "indexer.tasks", cfg.Queue.SubjectPrefix)
	assert.Equal(t, 4, cfg.Queue.Concurrency)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 500*time.Millisecond, cfg.Spool.DebounceDuration())

	require.Contains(t, cfg.Indexers, "mimetype")
	assert.Equal(t, 100, cfg.Indexers["mimetype"].BatchSize)
	assert.True(t, cfg.Indexers["mimetype"].CheckPresence)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
version: 1
queue:
  url: nats://broker:4222
  concurrency: 8
indexers:
  mimetype:
    batch_size: 25
    check_presence: false
tools:
  mimetype:
    name: file
    version: "5.45"
    configuration:
      type: library
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://broker:4222", cfg.Queue.URL)
	assert.Equal(t, 8, cfg.Queue.Concurrency)
	assert.Equal(t, 25, cfg.Indexers["mimetype"].BatchSize)
	assert.False(t, cfg.Indexers["mimetype"].CheckPresence)
	assert.Equal(t, "library", cfg.Tools["mimetype"].Configuration["type"])

	// Untouched fields keep defaults.
	assert.Equal(t, "indexer.tasks", cfg.Queue.SubjectPrefix)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.Newf(errors.ErrCodeConfigNotFound, ""))
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "queue: [not: a: mapping")
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.Newf(errors.ErrCodeConfigInvalid, ""))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INDEXD_QUEUE_URL", "nats://env:4222")
	t.Setenv("INDEXD_LOG_LEVEL", "debug")
	t.Setenv("INDEXD_QUEUE_CONCURRENCY", "16")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "nats://env:4222", cfg.Queue.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 16, cfg.Queue.Concurrency)
}

func TestValidate_UnknownIndexer(t *testing.T) {
	cfg := NewConfig()
	cfg.Indexers["embedder"] = IndexerConfig{BatchSize: 10}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.Newf(errors.ErrCodeUnknownIndexer, ""))
	assert.True(t, errors.IsFatal(err))
}

func TestValidate_NonPositiveBatchSize(t *testing.T) {
	cfg := NewConfig()
	cfg.Indexers["mimetype"] = IndexerConfig{BatchSize: 0}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
}

func TestValidate_MissingToolForIndexer(t *testing.T) {
	cfg := NewConfig()
	delete(cfg.Tools, "ctags")

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.Newf(errors.ErrCodeToolUnresolvable, ""))
}

func TestValidate_IncompleteTool(t *testing.T) {
	cfg := NewConfig()
	cfg.Tools["mimetype"] = ToolConfig{Name: "file"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.Logging.Level = "verbose"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidate_RequiresIndexers(t *testing.T) {
	cfg := NewConfig()
	cfg.Indexers = nil

	require.Error(t, cfg.Validate())
}

func TestValidate_BadDebounce(t *testing.T) {
	cfg := NewConfig()
	cfg.Spool.Debounce = "soon"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spool.debounce")
}

func TestDebounceDuration_EmptyDefaults(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, SpoolConfig{}.DebounceDuration())
	assert.Equal(t, 2*time.Second, SpoolConfig{Debounce: "2s"}.DebounceDuration())
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Queue.URL = "nats://elsewhere:4222"

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://elsewhere:4222", loaded.Queue.URL)
	assert.Equal(t, cfg.Indexers, loaded.Indexers)
}
