package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is crucible's operational configuration: validator toggles, the
// database path, watch roots/exclude patterns, worker counts, and
// embedding/VCS settings. It is not a wire-protocol schema — that remains
// out of scope.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Validators  ValidatorsConfig  `yaml:"validators" json:"validators"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	VCS         VCSConfig         `yaml:"vcs" json:"vcs"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// PathsConfig configures which directories the watcher and indexer cover.
type PathsConfig struct {
	WatchRoots []string `yaml:"watch_roots" json:"watch_roots"`
	Exclude    []string `yaml:"exclude" json:"exclude"`
}

// ValidatorsConfig toggles individual validation pipeline stages; default
// is all-on, per the pipeline's contract.
type ValidatorsConfig struct {
	Compile   bool `yaml:"compile" json:"compile"`
	Docstring bool `yaml:"docstring" json:"docstring"`
	Lint      bool `yaml:"lint" json:"lint"`
	TypeCheck bool `yaml:"type_check" json:"type_check"`

	LinterCommand     []string `yaml:"linter_command" json:"linter_command"`
	TypeCheckerCommand []string `yaml:"type_checker_command" json:"type_checker_command"`
}

// EmbeddingsConfig configures the external embedding service client used
// by the chunk/vector worker.
type EmbeddingsConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Model     string `yaml:"model" json:"model"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
	Timeout   string `yaml:"timeout" json:"timeout"`
}

// PerformanceConfig tunes concurrency and polling cadence.
type PerformanceConfig struct {
	ChunkWorkers      int    `yaml:"chunk_workers" json:"chunk_workers"`
	WatchInterval     string `yaml:"watch_interval" json:"watch_interval"`
	ChunkBatchSize    int    `yaml:"chunk_batch_size" json:"chunk_batch_size"`
	SQLiteCacheMB     int    `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// VCSConfig controls the optional version-control commit step.
type VCSConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// LoggingConfig configures the ambient logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/__pycache__/**",
	"**/.venv/**",
	"**/venv/**",
	"**/old_code/**",
	"**/*.pyc",
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			WatchRoots: []string{"."},
			Exclude:    defaultExcludePatterns,
		},
		Validators: ValidatorsConfig{
			Compile:            true,
			Docstring:          true,
			Lint:               true,
			TypeCheck:          true,
			LinterCommand:      []string{"ruff", "check"},
			TypeCheckerCommand: []string{"mypy"},
		},
		Embeddings: EmbeddingsConfig{
			Endpoint:  "http://localhost:11434",
			Model:     "nomic-embed-text",
			BatchSize: 32,
			Timeout:   "30s",
		},
		Performance: PerformanceConfig{
			ChunkWorkers:   runtime.NumCPU(),
			WatchInterval:  "2s",
			ChunkBatchSize: 50,
			SQLiteCacheMB:  64,
		},
		VCS: VCSConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "crucible", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "crucible", "config.yaml")
	}
	return filepath.Join(home, ".config", "crucible", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds a Config for the project rooted at dir, applying layers in
// order of increasing precedence: hardcoded defaults, user/global config,
// project config (.crucible.yaml), then CRUCIBLE_* environment variables.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
		cfg.Validators = userCfg.Validators
		cfg.VCS = userCfg.VCS
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".crucible.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".crucible.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)

	// mergeWith cannot tell an explicit false from an absent key, so the
	// boolean toggles are decoded again on top of their current values.
	toggles := struct {
		Validators ValidatorsConfig `yaml:"validators"`
		VCS        VCSConfig        `yaml:"vcs"`
	}{c.Validators, c.VCS}
	if err := yaml.Unmarshal(data, &toggles); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.Validators = toggles.Validators
	c.VCS = toggles.VCS
	return nil
}

// mergeWith overlays non-zero values from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.WatchRoots) > 0 {
		c.Paths.WatchRoots = other.Paths.WatchRoots
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Validators.LinterCommand != nil {
		c.Validators.LinterCommand = other.Validators.LinterCommand
	}
	if other.Validators.TypeCheckerCommand != nil {
		c.Validators.TypeCheckerCommand = other.Validators.TypeCheckerCommand
	}

	if other.Embeddings.Endpoint != "" {
		c.Embeddings.Endpoint = other.Embeddings.Endpoint
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.Timeout != "" {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}

	if other.Performance.ChunkWorkers != 0 {
		c.Performance.ChunkWorkers = other.Performance.ChunkWorkers
	}
	if other.Performance.WatchInterval != "" {
		c.Performance.WatchInterval = other.Performance.WatchInterval
	}
	if other.Performance.ChunkBatchSize != 0 {
		c.Performance.ChunkBatchSize = other.Performance.ChunkBatchSize
	}
	if other.Performance.SQLiteCacheMB != 0 {
		c.Performance.SQLiteCacheMB = other.Performance.SQLiteCacheMB
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
}

// applyEnvOverrides applies CRUCIBLE_* environment variable overrides,
// the highest-precedence configuration layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CRUCIBLE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CRUCIBLE_EMBEDDINGS_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("CRUCIBLE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CRUCIBLE_CHUNK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.ChunkWorkers = n
		}
	}
	if v := os.Getenv("CRUCIBLE_VCS_ENABLED"); v != "" {
		c.VCS.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate rejects configurations that would make the core misbehave.
func (c *Config) Validate() error {
	if c.Performance.ChunkWorkers <= 0 {
		return fmt.Errorf("performance.chunk_workers must be positive, got %d", c.Performance.ChunkWorkers)
	}
	if _, err := time.ParseDuration(c.Performance.WatchInterval); err != nil {
		return fmt.Errorf("performance.watch_interval invalid: %w", err)
	}
	if _, err := time.ParseDuration(c.Embeddings.Timeout); err != nil {
		return fmt.Errorf("embeddings.timeout invalid: %w", err)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %s", c.Logging.Level)
	}
	if c.Performance.SQLiteCacheMB < 0 {
		return fmt.Errorf("performance.sqlite_cache_mb must be non-negative, got %d", c.Performance.SQLiteCacheMB)
	}
	return nil
}

// WriteYAML writes the configuration to path as YAML.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// FindProjectRoot walks up from startDir looking for a .git directory or
// a .crucible.yaml/.yml file, returning the first directory that has one.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	current := absDir
	for {
		if dirExists(filepath.Join(current, ".git")) {
			return current, nil
		}
		if fileExists(filepath.Join(current, ".crucible.yaml")) || fileExists(filepath.Join(current, ".crucible.yml")) {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
