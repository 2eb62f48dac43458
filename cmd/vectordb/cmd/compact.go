package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCompactCmd() *cobra.Command {
	var shardName string
	var force bool

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Rebuild a shard's graph, discarding tombstoned nodes",
		Long: `Rebuilds the HNSW graph from live records only, dropping every
tombstoned node accumulated by soft-deletes. Ids are stable across
compaction; node_ids are not. This can be long-running on a large shard
and takes the shard's exclusive lock for its entire duration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := openNamedShard(shardName)
			if err != nil {
				return err
			}
			defer func() { _ = ctrl.Close() }()

			if !force {
				should, err := ctrl.ShouldCompact(cmd.Context())
				if err != nil {
					return err
				}
				if !should {
					fmt.Fprintln(cmd.OutOrStdout(), "deletion ratio below threshold; nothing to do (pass --force to compact anyway)")
					return nil
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "compacting...")
			start := time.Now()
			if err := ctrl.Compact(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "compaction complete in %v\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&shardName, "shard", "default", "shard to compact")
	cmd.Flags().BoolVar(&force, "force", false, "compact even if below the deletion-ratio threshold")

	return cmd
}
