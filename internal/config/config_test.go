package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Default configuration tests
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)

	assert.Equal(t, 1, cfg.Version)

	assert.Equal(t, 128, cfg.ShardDefaults.Dimension)
	assert.Equal(t, MetricCosine, cfg.ShardDefaults.Metric)
	assert.Equal(t, 16, cfg.ShardDefaults.M)
	assert.Equal(t, 32, cfg.ShardDefaults.M0)
	assert.Equal(t, 200, cfg.ShardDefaults.EFConstruction)
	assert.Equal(t, 64, cfg.ShardDefaults.EFSearch)
	assert.Equal(t, 100, cfg.ShardDefaults.MaxBatchSize)
	assert.InDelta(t, 0.2, cfg.ShardDefaults.CompactionThreshold, 0.001)
	assert.Equal(t, 0, cfg.ShardDefaults.MaxVectors, "unbounded by default")

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.False(t, cfg.Server.Debug)

	assert.NotEmpty(t, cfg.Persistence.DataDir)
	assert.Contains(t, cfg.Persistence.DataDir, ".hnswdb")
	assert.Equal(t, 64, cfg.Persistence.SQLiteCacheMB)
	assert.True(t, cfg.Persistence.SyncWrites)
	assert.Equal(t, 5*time.Minute, cfg.Persistence.SnapshotInterval)
}

func TestNewConfig_M0IsTwiceM(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 2*cfg.ShardDefaults.M, cfg.ShardDefaults.M0)
}

func TestNewConfig_PassesValidation(t *testing.T) {
	cfg := NewConfig()
	assert.NoError(t, cfg.Validate())
}

// =============================================================================
// Validate
// =============================================================================

func TestValidate_RejectsNonPositiveDimension(t *testing.T) {
	cfg := NewConfig()
	cfg.ShardDefaults.Dimension = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownMetric(t *testing.T) {
	cfg := NewConfig()
	cfg.ShardDefaults.Metric = "euclidean-ish"
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsAllKnownMetrics(t *testing.T) {
	for _, m := range []Metric{MetricCosine, MetricL2, MetricDot} {
		cfg := NewConfig()
		cfg.ShardDefaults.Metric = m
		assert.NoError(t, cfg.Validate(), "metric %s should be valid", m)
	}
}

func TestValidate_RejectsM0LessThanM(t *testing.T) {
	cfg := NewConfig()
	cfg.ShardDefaults.M = 32
	cfg.ShardDefaults.M0 = 16
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBatchSizeAboveHundred(t *testing.T) {
	cfg := NewConfig()
	cfg.ShardDefaults.MaxBatchSize = 101
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsCompactionThresholdOutOfRange(t *testing.T) {
	tests := []float64{-0.1, 1.1}
	for _, th := range tests {
		cfg := NewConfig()
		cfg.ShardDefaults.CompactionThreshold = th
		assert.Error(t, cfg.Validate())
	}
}

func TestValidate_RejectsEmptyDataDir(t *testing.T) {
	cfg := NewConfig()
	cfg.Persistence.DataDir = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

// =============================================================================
// Load: layering (defaults -> user -> project -> env)
// =============================================================================

func TestLoad_ReturnsDefaultsWhenNoFilesExist(t *testing.T) {
	tmpDir := t.TempDir()

	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "emptyxdg"))
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, cfg.ShardDefaults.Metric)
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "emptyxdg"))
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	yamlContent := "version: 1\nshard_defaults:\n  metric: l2\n  dimension: 256\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".hnswdb.yaml"), []byte(yamlContent), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, MetricL2, cfg.ShardDefaults.Metric)
	assert.Equal(t, 256, cfg.ShardDefaults.Dimension)
}

func TestLoad_EnvOverridesProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()

	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "emptyxdg"))
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	yamlContent := "version: 1\nshard_defaults:\n  ef_search: 64\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".hnswdb.yaml"), []byte(yamlContent), 0644))

	origEnv := os.Getenv("HNSWDB_EF_SEARCH")
	os.Setenv("HNSWDB_EF_SEARCH", "128")
	defer os.Setenv("HNSWDB_EF_SEARCH", origEnv)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.ShardDefaults.EFSearch)
}

func TestLoad_FailsOnInvalidMergedConfig(t *testing.T) {
	tmpDir := t.TempDir()

	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "emptyxdg"))
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	yamlContent := "version: 1\nserver:\n  log_level: chatty\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".hnswdb.yaml"), []byte(yamlContent), 0644))

	_, err := Load(tmpDir)
	assert.Error(t, err)
}

// =============================================================================
// applyEnvOverrides
// =============================================================================

func TestApplyEnvOverrides_Addr(t *testing.T) {
	cfg := NewConfig()
	origEnv := os.Getenv("HNSWDB_ADDR")
	os.Setenv("HNSWDB_ADDR", ":9090")
	defer os.Setenv("HNSWDB_ADDR", origEnv)

	cfg.applyEnvOverrides()
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestApplyEnvOverrides_AuthKeysSplitsOnComma(t *testing.T) {
	cfg := NewConfig()
	origEnv := os.Getenv("HNSWDB_AUTH_KEYS")
	os.Setenv("HNSWDB_AUTH_KEYS", "key-a,key-b,key-c")
	defer os.Setenv("HNSWDB_AUTH_KEYS", origEnv)

	cfg.applyEnvOverrides()
	assert.Equal(t, []string{"key-a", "key-b", "key-c"}, cfg.Auth.Keys)
}

func TestApplyEnvOverrides_IgnoresInvalidMaxVectors(t *testing.T) {
	cfg := NewConfig()
	origEnv := os.Getenv("HNSWDB_MAX_VECTORS")
	os.Setenv("HNSWDB_MAX_VECTORS", "not-a-number")
	defer os.Setenv("HNSWDB_MAX_VECTORS", origEnv)

	cfg.applyEnvOverrides()
	assert.Equal(t, 0, cfg.ShardDefaults.MaxVectors)
}

// =============================================================================
// GetUserConfigPath
// =============================================================================

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", "/custom/xdg")
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	path := GetUserConfigPath()
	assert.Equal(t, filepath.Join("/custom/xdg", "hnswdb", "config.yaml"), path)
}

func TestGetUserConfigDir_IsParentOfConfigPath(t *testing.T) {
	dir := GetUserConfigDir()
	path := GetUserConfigPath()
	assert.Equal(t, dir, filepath.Dir(path))
}
