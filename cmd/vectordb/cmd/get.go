package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	var shardName string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch one record by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			ctrl, _, err := openNamedShard(shardName)
			if err != nil {
				return err
			}
			defer func() { _ = ctrl.Close() }()

			rec, vec, err := ctrl.GetVector(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := struct {
				ID       string         `json:"id"`
				Vector   []float32      `json:"vector"`
				Metadata map[string]any `json:"metadata,omitempty"`
			}{ID: rec.ID, Vector: vec, Metadata: rec.Metadata}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&shardName, "shard", "default", "shard to read from")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var shardName string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete one record by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			ctrl, _, err := openNamedShard(shardName)
			if err != nil {
				return err
			}
			defer func() { _ = ctrl.Close() }()

			if err := ctrl.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %q\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&shardName, "shard", "default", "shard to delete from")
	return cmd
}
