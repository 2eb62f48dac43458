package hnsw

// Rebuild constructs a brand-new graph from vectors in the given order and
// returns it. The caller (internal/shard) is expected to snapshot its live
// records in insertion order, call Rebuild, persist the result, and then
// atomically swap the shard's graph pointer — the old graph (with its
// tombstones and orphaned edges) is simply discarded.
//
// Rebuild reuses the same Config, including Seed, so a compaction run
// against the same live set is itself deterministic.
func Rebuild(cfg Config, vectors [][]float32) (*Graph, []NodeID) {
	g := New(cfg)
	ids := make([]NodeID, len(vectors))
	for i, v := range vectors {
		id, _ := g.Insert(v)
		ids[i] = id
	}
	return g, ids
}
