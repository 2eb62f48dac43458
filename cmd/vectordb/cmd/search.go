package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var shardName, vectorJSON string
	var k int

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a k-NN query against a shard",
		RunE: func(cmd *cobra.Command, args []string) error {
			var vec []float32
			if err := json.Unmarshal([]byte(vectorJSON), &vec); err != nil {
				return fmt.Errorf("--vector must be a JSON float array: %w", err)
			}

			ctrl, _, err := openNamedShard(shardName)
			if err != nil {
				return err
			}
			defer func() { _ = ctrl.Close() }()

			hits, err := ctrl.Search(cmd.Context(), vec, k, 0)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(hits)
		},
	}

	cmd.Flags().StringVar(&shardName, "shard", "default", "shard to query")
	cmd.Flags().StringVar(&vectorJSON, "vector", "", "query vector as a JSON float array")
	cmd.Flags().IntVar(&k, "k", 10, "number of nearest neighbors to return (1..=100)")
	_ = cmd.MarkFlagRequired("vector")

	return cmd
}
