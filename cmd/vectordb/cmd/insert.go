package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newInsertCmd() *cobra.Command {
	var shardName, vectorJSON, metadataJSON string

	cmd := &cobra.Command{
		Use:   "insert <id>",
		Short: "Insert one vector into a shard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			var vec []float32
			if err := json.Unmarshal([]byte(vectorJSON), &vec); err != nil {
				return fmt.Errorf("--vector must be a JSON float array: %w", err)
			}
			var metadata map[string]any
			if metadataJSON != "" {
				if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
					return fmt.Errorf("--metadata must be a JSON object: %w", err)
				}
			}

			ctrl, _, err := openNamedShard(shardName)
			if err != nil {
				return err
			}
			defer func() { _ = ctrl.Close() }()

			if err := ctrl.Insert(cmd.Context(), id, vec, metadata); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %q\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&shardName, "shard", "default", "shard to insert into")
	cmd.Flags().StringVar(&vectorJSON, "vector", "", "vector as a JSON float array, e.g. [0.1,0.2,0.3]")
	cmd.Flags().StringVar(&metadataJSON, "metadata", "", "optional metadata as a JSON object")
	_ = cmd.MarkFlagRequired("vector")

	return cmd
}
