// Package config loads and validates the indexd configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. Config file (indexd.yaml, path given on the command line)
//  3. Environment variables (INDEXD_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/archivetools/indexd/internal/errors"
)

// Config is the complete indexd configuration.
type Config struct {
	Version  int                      `yaml:"version"`
	Storage  StorageConfig            `yaml:"storage"`
	Queue    QueueConfig              `yaml:"queue"`
	Spool    SpoolConfig              `yaml:"spool"`
	Logging  LoggingConfig            `yaml:"logging"`
	Indexers map[string]IndexerConfig `yaml:"indexers"`
	Tools    map[string]ToolConfig    `yaml:"tools"`
}

// StorageConfig locates the indexer storage and the object mirror.
type StorageConfig struct {
	// Path is the directory holding the SQLite database and symbol index.
	// Empty selects in-memory storage (tests and dry runs).
	Path string `yaml:"path"`

	// Objects is the directory content bytes are read from.
	Objects string `yaml:"objects"`
}

// QueueConfig describes the job broker connection.
type QueueConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Group         string `yaml:"group"`
	Concurrency   int    `yaml:"concurrency"`
}

// SpoolConfig configures the batch spool directory watcher.
type SpoolConfig struct {
	// Dir is watched for dropped batch files of content ids.
	Dir string `yaml:"dir"`

	// ArchiveDir receives processed batch files. Empty means delete.
	ArchiveDir string `yaml:"archive_dir"`

	// Debounce coalesces rapid file events before a scan ("500ms", "2s").
	Debounce string `yaml:"debounce"`
}

// DebounceDuration parses the debounce window, falling back to 500ms on
// an empty value. Validate rejects unparsable values earlier.
func (s SpoolConfig) DebounceDuration() time.Duration {
	if s.Debounce == "" {
		return 500 * time.Millisecond
	}
	d, err := time.ParseDuration(s.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// LoggingConfig configures the log sinks.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	FilePath  string `yaml:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// IndexerConfig is the per-indexer scheduling policy.
type IndexerConfig struct {
	BatchSize     int  `yaml:"batch_size"`
	CheckPresence bool `yaml:"check_presence"`
}

// ToolConfig is the tool identity an indexer records results under.
type ToolConfig struct {
	Name          string         `yaml:"name"`
	Version       string         `yaml:"version"`
	Configuration map[string]any `yaml:"configuration"`
}

// knownIndexers are the statically registered indexer names.
var knownIndexers = map[string]bool{
	"mimetype": true,
	"language": true,
	"ctags":    true,
	"license":  true,
	"metadata": true,
}

// NewConfig creates a Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Path:    defaultStoragePath(),
			Objects: "",
		},
		Queue: QueueConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "indexer.tasks",
			Group:         "indexd-workers",
			Concurrency:   4,
		},
		Spool: SpoolConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Indexers: map[string]IndexerConfig{
			"mimetype": {BatchSize: 100, CheckPresence: true},
			"language": {BatchSize: 100, CheckPresence: true},
			"ctags":    {BatchSize: 50, CheckPresence: true},
		},
		Tools: map[string]ToolConfig{
			"mimetype": {Name: "file", Version: "5.45"},
			"language": {Name: "pygments", Version: "2.17"},
			"ctags":    {Name: "universal-ctags", Version: "6.1"},
		},
	}
}

// defaultStoragePath returns the default storage directory.
func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".indexd", "storage")
	}
	return filepath.Join(home, ".indexd", "storage")
}

// Load builds the effective configuration. path may be empty, in which
// case defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML merges a YAML file over the current values. Fields absent from
// the file keep their defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New(errors.ErrCodeConfigNotFound,
				"config file not found: "+path, err)
		}
		return errors.New(errors.ErrCodeConfigInvalid,
			"cannot read config file "+path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.New(errors.ErrCodeConfigInvalid,
			"cannot parse config file "+path, err)
	}
	return nil
}

// applyEnvOverrides applies INDEXD_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("INDEXD_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("INDEXD_OBJECTS_PATH"); v != "" {
		c.Storage.Objects = v
	}
	if v := os.Getenv("INDEXD_QUEUE_URL"); v != "" {
		c.Queue.URL = v
	}
	if v := os.Getenv("INDEXD_QUEUE_GROUP"); v != "" {
		c.Queue.Group = v
	}
	if v := os.Getenv("INDEXD_QUEUE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Queue.Concurrency = n
		}
	}
	if v := os.Getenv("INDEXD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("INDEXD_SPOOL_DIR"); v != "" {
		c.Spool.Dir = v
	}
}

// Validate checks the configuration for consistency. The returned error
// names the offending field.
func (c *Config) Validate() error {
	if c.Queue.URL == "" {
		return errors.Newf(errors.ErrCodeConfigInvalid, "queue.url must not be empty")
	}
	if c.Queue.Concurrency <= 0 {
		return errors.Newf(errors.ErrCodeConfigInvalid,
			"queue.concurrency must be positive, got %d", c.Queue.Concurrency)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return errors.Newf(errors.ErrCodeConfigInvalid,
			"logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}

	if len(c.Indexers) == 0 {
		return errors.Newf(errors.ErrCodeConfigInvalid, "indexers: at least one indexer must be configured")
	}
	for name, ix := range c.Indexers {
		if !knownIndexers[name] {
			return errors.Newf(errors.ErrCodeUnknownIndexer,
				"indexers.%s: unknown indexer name", name)
		}
		if ix.BatchSize <= 0 {
			return errors.Newf(errors.ErrCodeConfigInvalid,
				"indexers.%s.batch_size must be positive, got %d", name, ix.BatchSize)
		}
		tool, ok := c.Tools[name]
		if !ok {
			return errors.Newf(errors.ErrCodeToolUnresolvable,
				"tools.%s: no tool configured for indexer", name)
		}
		if tool.Name == "" || tool.Version == "" {
			return errors.Newf(errors.ErrCodeToolUnresolvable,
				"tools.%s: name and version must not be empty", name)
		}
	}

	if c.Spool.Debounce != "" {
		d, err := time.ParseDuration(c.Spool.Debounce)
		if err != nil || d < 0 {
			return errors.Newf(errors.ErrCodeConfigInvalid,
				"spool.debounce must be a non-negative duration, got %q", c.Spool.Debounce)
		}
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.New(errors.ErrCodeConfigInvalid, "cannot marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("cannot write config file %s", path), err)
	}
	return nil
}
