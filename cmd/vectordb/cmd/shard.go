package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"hnswdb/internal/config"
)

func newShardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shard",
		Short: "Create, list, and drop shards",
		Long: `A shard is one logical HNSW index with a fixed dimension, metric,
and hyperparameters. Those parameters are immutable
once a shard holds vectors, so they are fixed at 'shard create' time.`,
	}
	cmd.AddCommand(newShardCreateCmd())
	cmd.AddCommand(newShardListCmd())
	cmd.AddCommand(newShardDropCmd())
	cmd.AddCommand(newShardTuneCmd())
	cmd.AddCommand(newShardRestoreCmd())
	return cmd
}

func newShardCreateCmd() *cobra.Command {
	var (
		dimension      int
		metric         string
		m              int
		efConstruction int
		efSearch       int
		maxVectors     int
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new shard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if shardExists(cfg, name) {
				return fmt.Errorf("shard %q already exists", name)
			}

			shardCfg := cfg.ShardDefaults
			if dimension > 0 {
				shardCfg.Dimension = dimension
			}
			if metric != "" {
				shardCfg.Metric = config.Metric(metric)
			}
			if m > 0 {
				shardCfg.M = m
				shardCfg.M0 = 2 * m
			}
			if efConstruction > 0 {
				shardCfg.EFConstruction = efConstruction
			}
			if efSearch > 0 {
				shardCfg.EFSearch = efSearch
			}
			if maxVectors > 0 {
				shardCfg.MaxVectors = maxVectors
			}

			dir := shardDir(cfg, name)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create shard directory: %w", err)
			}

			perShard := config.NewConfig()
			perShard.ShardDefaults = shardCfg
			if err := perShard.Validate(); err != nil {
				return fmt.Errorf("invalid shard parameters: %w", err)
			}
			if err := perShard.WriteYAML(filepath.Join(dir, shardMetaFile)); err != nil {
				return fmt.Errorf("write shard metadata: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created shard %q (dimension=%d metric=%s m=%d ef_construction=%d) at %s\n",
				name, shardCfg.Dimension, shardCfg.Metric, shardCfg.M, shardCfg.EFConstruction, dir)
			return nil
		},
	}

	cmd.Flags().IntVar(&dimension, "dimension", 0, "vector dimension (overrides config default)")
	cmd.Flags().StringVar(&metric, "metric", "", "distance metric: cosine, l2, dot")
	cmd.Flags().IntVar(&m, "m", 0, "max neighbors per node above layer 0 (M0 defaults to 2*m)")
	cmd.Flags().IntVar(&efConstruction, "ef-construction", 0, "candidate beam width used during insertion")
	cmd.Flags().IntVar(&efSearch, "ef-search", 0, "candidate beam width used during query")
	cmd.Flags().IntVar(&maxVectors, "max-vectors", 0, "vector quota for this shard (0 = unbounded)")

	return cmd
}

func newShardListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known shards",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			entries, err := os.ReadDir(cfg.Persistence.DataDir)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "(no shards)")
					return nil
				}
				return fmt.Errorf("read data directory: %w", err)
			}

			var names []string
			for _, e := range entries {
				if e.IsDir() && shardExists(cfg, e.Name()) {
					names = append(names, e.Name())
				}
			}
			sort.Strings(names)
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "(no shards)")
				return nil
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newShardDropCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "drop <name>",
		Short: "Delete a shard and its durable state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !shardExists(cfg, name) {
				return fmt.Errorf("shard %q does not exist", name)
			}
			if !force {
				return fmt.Errorf("refusing to drop shard %q without --force", name)
			}
			if err := os.RemoveAll(shardDir(cfg, name)); err != nil {
				return fmt.Errorf("remove shard directory: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped shard %q\n", name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm irreversible deletion")
	return cmd
}

// newShardTuneCmd rewrites the mutable runtime knobs in a shard's
// persisted shard.yaml - ef_search, the vector quota, and the
// compaction threshold - leaving dimension, metric, and M fixed since
// those are load-bearing for the graph already on disk. The previous
// shard.yaml is backed up before the rewrite so a bad tune can be
// walked back with 'shard restore'.
func newShardTuneCmd() *cobra.Command {
	var (
		efSearch            int
		maxVectors          int
		compactionThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "tune <name>",
		Short: "Adjust a shard's mutable runtime parameters",
		Long: `Adjusts ef_search, the vector quota, and the compaction threshold
on an existing shard without touching its dimension, metric, or M
(those are fixed for the shard's lifetime). The prior shard.yaml is
backed up first; see 'shard restore' to undo.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !shardExists(cfg, name) {
				return fmt.Errorf("shard %q does not exist", name)
			}

			metaPath := filepath.Join(shardDir(cfg, name), shardMetaFile)
			shardCfg, err := config.LoadFile(metaPath)
			if err != nil {
				return fmt.Errorf("load shard metadata: %w", err)
			}

			changed := false
			if efSearch > 0 {
				shardCfg.ShardDefaults.EFSearch = efSearch
				changed = true
			}
			if cmd.Flags().Changed("max-vectors") {
				shardCfg.ShardDefaults.MaxVectors = maxVectors
				changed = true
			}
			if cmd.Flags().Changed("compaction-threshold") {
				shardCfg.ShardDefaults.CompactionThreshold = compactionThreshold
				changed = true
			}
			if !changed {
				return fmt.Errorf("no parameters given; pass at least one of --ef-search, --max-vectors, --compaction-threshold")
			}
			if err := shardCfg.Validate(); err != nil {
				return fmt.Errorf("invalid shard parameters: %w", err)
			}

			if _, err := config.ShardMetaBackup(metaPath).Create(); err != nil {
				return fmt.Errorf("backup shard metadata before tune: %w", err)
			}
			if err := shardCfg.WriteYAML(metaPath); err != nil {
				return fmt.Errorf("write shard metadata: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "tuned shard %q (ef_search=%d max_vectors=%d compaction_threshold=%.2f)\n",
				name, shardCfg.ShardDefaults.EFSearch, shardCfg.ShardDefaults.MaxVectors, shardCfg.ShardDefaults.CompactionThreshold)
			return nil
		},
	}

	cmd.Flags().IntVar(&efSearch, "ef-search", 0, "candidate beam width used during query")
	cmd.Flags().IntVar(&maxVectors, "max-vectors", 0, "vector quota for this shard (0 = unbounded)")
	cmd.Flags().Float64Var(&compactionThreshold, "compaction-threshold", 0, "tombstone ratio that triggers compaction eligibility")

	return cmd
}

// newShardRestoreCmd lists or restores backups of a shard's persisted
// shard.yaml, the counterpart to 'shard tune' the way 'config restore'
// is the counterpart to 'config init --force'.
func newShardRestoreCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "restore <name> [backup-path]",
		Short: "List or restore backups of a shard's persisted metadata",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !shardExists(cfg, name) {
				return fmt.Errorf("shard %q does not exist", name)
			}
			metaPath := filepath.Join(shardDir(cfg, name), shardMetaFile)
			backup := config.ShardMetaBackup(metaPath)

			if list || len(args) == 1 {
				backups, err := backup.List()
				if err != nil {
					return fmt.Errorf("list backups: %w", err)
				}
				if len(backups) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "(no backups)")
					return nil
				}
				for _, b := range backups {
					fmt.Fprintln(cmd.OutOrStdout(), b)
				}
				return nil
			}

			if err := backup.Restore(args[1]); err != nil {
				return fmt.Errorf("restore shard metadata: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored shard %q metadata from %s\n", name, args[1])
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list available backups instead of restoring")
	return cmd
}
