package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"hnswdb/internal/config"
	"hnswdb/internal/obslog"
	"hnswdb/internal/shard"
	"hnswdb/internal/vecmath"
)

// shardMetaFile marks a directory under the data root as a shard,
// distinguishing a created-but-empty shard from an arbitrary directory.
const shardMetaFile = "shard.yaml"

// shardDir returns the on-disk directory for the named shard under the
// configured data root.
func shardDir(cfg *config.Config, name string) string {
	return filepath.Join(cfg.Persistence.DataDir, name)
}

// shardExists reports whether name has been created under cfg's data root.
func shardExists(cfg *config.Config, name string) bool {
	_, err := os.Stat(filepath.Join(shardDir(cfg, name), shardMetaFile))
	return err == nil
}

// toVecMetric maps the config-layer metric name to the engine's metric type.
func toVecMetric(m config.Metric) vecmath.Metric {
	switch m {
	case config.MetricL2:
		return vecmath.L2
	case config.MetricDot:
		return vecmath.Dot
	default:
		return vecmath.Cosine
	}
}

// shardConfig builds a shard.Config from the named shard's own persisted
// parameters (written at 'shard create' time), not the caller's current
// layered config: dimension, metric, and hyperparameters are fixed for a
// shard's lifetime and must not drift if the global config changes later.
func shardConfig(cfg *config.Config, name string) (shard.Config, error) {
	shardFile := filepath.Join(shardDir(cfg, name), shardMetaFile)
	shardCfg, err := config.LoadFile(shardFile)
	if err != nil {
		return shard.Config{}, fmt.Errorf("load shard metadata: %w", err)
	}

	d := shardCfg.ShardDefaults
	return shard.Config{
		Dimension:           d.Dimension,
		Metric:              toVecMetric(d.Metric),
		M:                   d.M,
		M0:                  d.M0,
		EFConstruction:      d.EFConstruction,
		EFSearch:            d.EFSearch,
		MaxLevel:            d.MaxLevel,
		LevelMult:           d.LevelMult,
		MaxVectors:          d.MaxVectors,
		MaxBatchSize:        d.MaxBatchSize,
		CompactionThreshold: d.CompactionThreshold,
		OperationTimeout:    d.OperationTimeout,
		DataDir:             shardDir(cfg, name),
	}, nil
}

// openNamedShard loads configuration and opens the named shard,
// requiring that it was already created via 'vectordb shard create'.
func openNamedShard(name string) (*shard.Controller, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if !shardExists(cfg, name) {
		return nil, nil, fmt.Errorf("shard %q does not exist; run 'vectordb shard create %s' first", name, name)
	}
	sc, err := shardConfig(cfg, name)
	if err != nil {
		return nil, nil, err
	}

	// Each shard gets its own dedicated rotating log file
	// (~/.hnswdb/logs/<name>.log) rather than funneling every shard
	// through the process-wide default logger, so an operator tailing
	// one busy shard's log isn't drowned out by every other shard's
	// traffic; see 'vectordb logs --shard <name>'.
	shardLog, logCleanup, err := obslog.Setup(obslog.ShardConfig(name))
	if err != nil {
		// A shard's own logging is not load-bearing for correctness;
		// fall back to the process-wide default rather than refusing to
		// open the shard over a logging-directory permission issue.
		shardLog = slog.Default().With(slog.String("shard", name))
		logCleanup = func() {}
	}

	ctrl, err := shard.Open(sc, shardLog)
	if err != nil {
		logCleanup()
		return nil, nil, fmt.Errorf("open shard %q: %w", name, err)
	}
	ctrl.SetLogCleanup(logCleanup)
	return ctrl, cfg, nil
}
