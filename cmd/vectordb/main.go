// Command vectordb is the operator-facing front end for the serverless
// HNSW vector database: an HTTP server exposing the JSON-over-HTTP
// contract, plus a CLI for shard lifecycle management and ad-hoc
// inspection.
package main

import (
	"fmt"
	"os"

	"hnswdb/cmd/vectordb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vectordb:", err)
		os.Exit(1)
	}
}
