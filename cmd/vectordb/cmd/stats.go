package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var shardName string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show shard statistics: vector counts, deletion ratio, per-layer edges",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := openNamedShard(shardName)
			if err != nil {
				return err
			}
			defer func() { _ = ctrl.Close() }()

			stats, err := ctrl.Stats(cmd.Context())
			if err != nil {
				return err
			}
			degrees, err := ctrl.LayerDegrees(cmd.Context())
			if err != nil {
				return err
			}
			entryLevel, hasEntry, err := ctrl.EntryPointLevel(cmd.Context())
			if err != nil {
				return err
			}

			shouldCompact, err := ctrl.ShouldCompact(cmd.Context())
			if err != nil {
				return err
			}
			recommendation := "healthy"
			if shouldCompact {
				recommendation = "compact recommended: tombstone ratio above threshold"
			}

			if jsonOutput {
				out := struct {
					Algorithm            string  `json:"algorithm"`
					Dimension            int     `json:"dimension"`
					NumVectors           int     `json:"num_vectors"`
					NumActive            int     `json:"num_active"`
					NumDeleted           int     `json:"num_deleted"`
					NumNodes             int     `json:"num_nodes"`
					EntryPointLevel      int     `json:"entry_point_level"`
					HasEntryPoint        bool    `json:"has_entry_point"`
					ConnectionsPerLayer  []int   `json:"connections_per_layer"`
					DeletionRatioPercent float64 `json:"deletion_ratio_percent"`
					Recommendation       string  `json:"recommendation"`
				}{
					Algorithm:            "HNSW",
					Dimension:            stats.Dimension,
					NumVectors:           stats.LiveVectors,
					NumActive:            stats.LiveVectors,
					NumDeleted:           stats.Tombstones,
					NumNodes:             stats.GraphNodes,
					EntryPointLevel:      entryLevel,
					HasEntryPoint:        hasEntry,
					ConnectionsPerLayer:  degrees,
					DeletionRatioPercent: stats.OrphanRatio * 100,
					Recommendation:       recommendation,
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Shard %q\n", shardName)
			fmt.Fprintf(w, "  algorithm:       HNSW\n")
			fmt.Fprintf(w, "  dimension:       %d\n", stats.Dimension)
			fmt.Fprintf(w, "  metric:          %s\n", stats.Metric)
			fmt.Fprintf(w, "  active vectors:  %d\n", stats.LiveVectors)
			fmt.Fprintf(w, "  deleted:         %d\n", stats.Tombstones)
			fmt.Fprintf(w, "  graph nodes:     %d\n", stats.GraphNodes)
			fmt.Fprintf(w, "  entry point:     level %d (present=%v)\n", entryLevel, hasEntry)
			fmt.Fprintf(w, "  deletion ratio:  %.1f%%\n", stats.OrphanRatio*100)
			fmt.Fprintf(w, "  per-layer edges: %v\n", degrees)
			fmt.Fprintf(w, "  recommendation:  %s\n", recommendation)
			return nil
		},
	}

	cmd.Flags().StringVar(&shardName, "shard", "default", "shard to inspect")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}
