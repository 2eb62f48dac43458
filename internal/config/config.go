package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Metric identifies a supported distance metric.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
	MetricDot    Metric = "dot"
)

// Config is the top-level server configuration, mirroring the on-disk
// YAML schema consumed by `vectordb serve`.
type Config struct {
	Version       int               `yaml:"version" json:"version"`
	Server        ServerConfig      `yaml:"server" json:"server"`
	ShardDefaults ShardDefaults     `yaml:"shard_defaults" json:"shard_defaults"`
	Persistence   PersistenceConfig `yaml:"persistence" json:"persistence"`
	Auth          AuthConfig        `yaml:"auth" json:"auth"`
}

// ServerConfig configures the HTTP listener and ambient logging.
type ServerConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// ShardDefaults holds the hyperparameters applied to a shard at creation
// time when the caller does not override them. These are fixed for the
// lifetime of a shard once it holds vectors.
type ShardDefaults struct {
	Dimension      int     `yaml:"dimension" json:"dimension"`
	Metric         Metric  `yaml:"metric" json:"metric"`
	M              int     `yaml:"m" json:"m"`
	M0             int     `yaml:"m0" json:"m0"`
	EFConstruction int     `yaml:"ef_construction" json:"ef_construction"`
	EFSearch       int     `yaml:"ef_search" json:"ef_search"`
	MaxLevel       int     `yaml:"max_level" json:"max_level"`
	LevelMult      float64 `yaml:"level_mult" json:"level_mult"`

	// MaxVectors is the shard's vector quota. 0 means unbounded.
	MaxVectors int `yaml:"max_vectors" json:"max_vectors"`
	// MaxBatchSize caps the size of a single batch_insert request.
	MaxBatchSize int `yaml:"max_batch_size" json:"max_batch_size"`
	// CompactionThreshold is the tombstone ratio that triggers compaction
	// eligibility (deleted/total).
	CompactionThreshold float64 `yaml:"compaction_threshold" json:"compaction_threshold"`
	// OperationTimeout bounds a single shard operation; zero disables the
	// deadline.
	OperationTimeout time.Duration `yaml:"operation_timeout" json:"operation_timeout"`
}

// PersistenceConfig configures the durable record/graph store.
type PersistenceConfig struct {
	// DataDir is the root directory containing one SQLite database per shard.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// SQLiteCacheMB is loaded and merged like the other fields, but the
	// shard store does not read it: persist.Open leaves SQLite's page
	// cache at its default size.
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
	// SyncWrites is loaded and merged, but the shard store does not read
	// it: persist.Open always sets synchronous = NORMAL.
	SyncWrites bool `yaml:"sync_writes" json:"sync_writes"`
	// SnapshotInterval is loaded and merged, but nothing reads it: no
	// periodic snapshot is taken. A full snapshot is written only by
	// Compact; every other write persists incremental node/record rows.
	SnapshotInterval time.Duration `yaml:"snapshot_interval" json:"snapshot_interval"`
}

// AuthConfig configures the caller-supplied opaque key surface.
// The /health surface is always unauthenticated regardless of this config.
type AuthConfig struct {
	Keys []string `yaml:"keys" json:"keys"`
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Addr:     ":8080",
			LogLevel: "info",
			Debug:    false,
		},
		ShardDefaults: ShardDefaults{
			Dimension:           128,
			Metric:              MetricCosine,
			M:                   16,
			M0:                  32,
			EFConstruction:      200,
			EFSearch:            64,
			MaxLevel:            16,
			LevelMult:           1.0 / math.Log(16),
			MaxVectors:          0,
			MaxBatchSize:        100,
			CompactionThreshold: 0.2,
			OperationTimeout:    0,
		},
		Persistence: PersistenceConfig{
			DataDir:          defaultDataDir(),
			SQLiteCacheMB:    64,
			SyncWrites:       true,
			SnapshotInterval: 5 * time.Minute,
		},
		Auth: AuthConfig{
			Keys: nil,
		},
	}
}

// defaultDataDir returns ~/.hnswdb/data.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".hnswdb", "data")
	}
	return filepath.Join(home, ".hnswdb", "data")
}

// GetUserConfigPath returns the user/global configuration file path,
// following the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hnswdb", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "hnswdb", "config.yaml")
	}
	return filepath.Join(home, ".config", "hnswdb", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/hnswdb/config.yaml)
//  3. Project config (.hnswdb.yaml in dir)
//  4. Environment variables (HNSWDB_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
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

// LoadFile reads a single YAML config file (no precedence chain, no env
// overrides) and validates it. Used to re-read a shard's own persisted
// parameters, which are fixed at 'shard create' time independent of
// whatever the caller's current layered config says.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".hnswdb.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".hnswdb.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.Debug {
		c.Server.Debug = other.Server.Debug
	}

	if other.ShardDefaults.Dimension != 0 {
		c.ShardDefaults.Dimension = other.ShardDefaults.Dimension
	}
	if other.ShardDefaults.Metric != "" {
		c.ShardDefaults.Metric = other.ShardDefaults.Metric
	}
	if other.ShardDefaults.M != 0 {
		c.ShardDefaults.M = other.ShardDefaults.M
	}
	if other.ShardDefaults.M0 != 0 {
		c.ShardDefaults.M0 = other.ShardDefaults.M0
	}
	if other.ShardDefaults.EFConstruction != 0 {
		c.ShardDefaults.EFConstruction = other.ShardDefaults.EFConstruction
	}
	if other.ShardDefaults.EFSearch != 0 {
		c.ShardDefaults.EFSearch = other.ShardDefaults.EFSearch
	}
	if other.ShardDefaults.MaxLevel != 0 {
		c.ShardDefaults.MaxLevel = other.ShardDefaults.MaxLevel
	}
	if other.ShardDefaults.LevelMult != 0 {
		c.ShardDefaults.LevelMult = other.ShardDefaults.LevelMult
	}
	if other.ShardDefaults.MaxVectors != 0 {
		c.ShardDefaults.MaxVectors = other.ShardDefaults.MaxVectors
	}
	if other.ShardDefaults.MaxBatchSize != 0 {
		c.ShardDefaults.MaxBatchSize = other.ShardDefaults.MaxBatchSize
	}
	if other.ShardDefaults.CompactionThreshold != 0 {
		c.ShardDefaults.CompactionThreshold = other.ShardDefaults.CompactionThreshold
	}
	if other.ShardDefaults.OperationTimeout != 0 {
		c.ShardDefaults.OperationTimeout = other.ShardDefaults.OperationTimeout
	}

	if other.Persistence.DataDir != "" {
		c.Persistence.DataDir = other.Persistence.DataDir
	}
	if other.Persistence.SQLiteCacheMB != 0 {
		c.Persistence.SQLiteCacheMB = other.Persistence.SQLiteCacheMB
	}
	if other.Persistence.SyncWrites {
		c.Persistence.SyncWrites = other.Persistence.SyncWrites
	}
	if other.Persistence.SnapshotInterval != 0 {
		c.Persistence.SnapshotInterval = other.Persistence.SnapshotInterval
	}

	if len(other.Auth.Keys) > 0 {
		c.Auth.Keys = other.Auth.Keys
	}
}

// applyEnvOverrides applies HNSWDB_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HNSWDB_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("HNSWDB_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("HNSWDB_DEBUG"); v != "" {
		c.Server.Debug = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("HNSWDB_DATA_DIR"); v != "" {
		c.Persistence.DataDir = v
	}
	if v := os.Getenv("HNSWDB_MAX_VECTORS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.ShardDefaults.MaxVectors = n
		}
	}
	if v := os.Getenv("HNSWDB_EF_SEARCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ShardDefaults.EFSearch = n
		}
	}
	if v := os.Getenv("HNSWDB_AUTH_KEYS"); v != "" {
		c.Auth.Keys = strings.Split(v, ",")
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.ShardDefaults.Dimension <= 0 {
		return fmt.Errorf("shard_defaults.dimension must be positive, got %d", c.ShardDefaults.Dimension)
	}
	switch c.ShardDefaults.Metric {
	case MetricCosine, MetricL2, MetricDot:
	default:
		return fmt.Errorf("shard_defaults.metric must be 'cosine', 'l2', or 'dot', got %s", c.ShardDefaults.Metric)
	}
	if c.ShardDefaults.M <= 0 {
		return fmt.Errorf("shard_defaults.m must be positive, got %d", c.ShardDefaults.M)
	}
	if c.ShardDefaults.M0 < c.ShardDefaults.M {
		return fmt.Errorf("shard_defaults.m0 must be >= m, got m0=%d m=%d", c.ShardDefaults.M0, c.ShardDefaults.M)
	}
	if c.ShardDefaults.EFConstruction <= 0 {
		return fmt.Errorf("shard_defaults.ef_construction must be positive, got %d", c.ShardDefaults.EFConstruction)
	}
	if c.ShardDefaults.EFSearch <= 0 {
		return fmt.Errorf("shard_defaults.ef_search must be positive, got %d", c.ShardDefaults.EFSearch)
	}
	if c.ShardDefaults.MaxBatchSize <= 0 || c.ShardDefaults.MaxBatchSize > 100 {
		return fmt.Errorf("shard_defaults.max_batch_size must be in (0, 100], got %d", c.ShardDefaults.MaxBatchSize)
	}
	if c.ShardDefaults.CompactionThreshold < 0 || c.ShardDefaults.CompactionThreshold > 1 {
		return fmt.Errorf("shard_defaults.compaction_threshold must be between 0 and 1, got %f", c.ShardDefaults.CompactionThreshold)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if c.Persistence.DataDir == "" {
		return fmt.Errorf("persistence.data_dir must not be empty")
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file, if any.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
