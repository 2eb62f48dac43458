// Package shard implements the single-writer, multi-reader controller
// that binds one HNSW graph, its record store, and its durable store
// together into the unit of isolation the rest of the system operates
// on. Every shard owns its own directory, its own SQLite file, and its
// own lock; shards never share state.
package shard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hnswdb/internal/hnsw"
	"hnswdb/internal/persist"
	"hnswdb/internal/recordstore"
	"hnswdb/internal/vdberr"
	"hnswdb/internal/vecmath"
)

// writeBreakerName identifies the circuit breaker guarding this shard's
// persistence write path in logs and metrics.
const writeBreakerName = "shard-persist-write"

// Config holds the construction-time parameters for a shard, combining
// the graph's geometry parameters with the quotas and persistence
// settings internal/config's ShardDefaults/PersistenceConfig describe.
type Config struct {
	Dimension      int
	Metric         vecmath.Metric
	M              int
	M0             int
	EFConstruction int
	EFSearch       int
	MaxLevel       int
	LevelMult      float64
	Seed           uint64

	MaxVectors          int
	MaxBatchSize        int
	CompactionThreshold float64
	OperationTimeout    time.Duration

	DataDir string
}

// Controller is one shard: an in-memory graph and record store backed by
// a durable KV store, gated by a single-writer/multi-reader lock. Writes
// (Insert, BatchInsert, Delete, Compact) take the exclusive lock and run
// to completion without suspension, matching the no-yield-mid-mutation
// requirement: a write never interleaves with another write or a read.
// Reads (Search, Get, Stats) take the shared lock and may run
// concurrently with each other, but never with a write.
type Controller struct {
	mu sync.RWMutex

	cfg        Config
	graph      *hnsw.Graph
	records    *recordstore.Store
	store      *persist.Store
	log        *slog.Logger
	logCleanup func()
	breaker    *vdberr.CircuitBreaker

	halted  bool
	haltErr error
}

// InsertItem is one entry of a BatchInsert call.
type InsertItem struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// ItemResult reports the per-item outcome of a BatchInsert call, since
// batch_insert is best-effort: one bad item never fails its siblings.
type ItemResult struct {
	ID  string
	Err error
}

// SearchHit is one ranked result of a Search call.
type SearchHit struct {
	ID       string
	Score    float32
	Distance float32
	Metadata map[string]any
}

// Stats summarizes a shard's current state for the /api/vector/stats
// endpoint and for compaction scheduling decisions.
type Stats struct {
	LiveVectors     int
	GraphNodes      int
	Tombstones      int
	OrphanRatio     float64
	Dimension       int
	Metric          vecmath.Metric
	EntryPointKnown bool
}

// Open creates a new shard rooted at cfg.DataDir, or resumes an existing
// one by replaying its durable state. A dimension or metric in cfg that
// differs from a previously persisted meta row is a configuration error;
// for the other graph parameters (M, M0, ef_construction, level settings,
// seed) the persisted values are used and cfg's are ignored.
func Open(cfg Config, log *slog.Logger) (*Controller, error) {
	if cfg.M0 == 0 {
		cfg.M0 = 2 * cfg.M
	}
	if log == nil {
		log = slog.Default()
	}

	store, err := persist.Open(cfg.DataDir)
	if err != nil {
		return nil, vdberr.Persistence(vdberr.ErrCodeWriteFailed, "open shard store", err)
	}

	c := &Controller{
		cfg:   cfg,
		store: store,
		log:   log,
	}
	c.breaker = vdberr.NewCircuitBreaker(writeBreakerName,
		vdberr.WithMaxFailures(5),
		vdberr.WithResetTimeout(30*time.Second),
		vdberr.WithOnStateChange(func(from, to vdberr.State) {
			c.log.Warn("write circuit breaker state change",
				"shard", cfg.DataDir, "code", vdberr.ErrCodeWriteFailed,
				"from", from, "to", to)
		}),
	)

	if err := c.replay(context.Background()); err != nil {
		_ = store.Close()
		return nil, err
	}

	return c, nil
}

// replay rebuilds the in-memory graph and record store from the durable
// store, or initializes a fresh one on first run. Any structural
// inconsistency found along the way (I1-I6) is fatal: the shard refuses
// to serve rather than risk silently wrong answers.
func (c *Controller) replay(ctx context.Context) error {
	metaBytes, found, err := c.store.Get(ctx, persist.KeyMeta)
	if err != nil {
		return vdberr.Persistence(vdberr.ErrCodeJournalReplay, "read meta", err)
	}

	if !found {
		meta := metaFromConfig(c.cfg)
		if err := c.store.Batch(ctx, []persist.Entry{{Key: persist.KeyMeta, Value: encodeMeta(meta)}}); err != nil {
			return vdberr.Persistence(vdberr.ErrCodeWriteFailed, "write initial meta", err)
		}
		c.graph = hnsw.New(meta.graphConfig())
		c.records = recordstore.New()
		return nil
	}

	meta, err := decodeMeta(metaBytes)
	if err != nil {
		return vdberr.Internal("corrupt meta row", err)
	}
	if err := c.validateMetaMatchesConfig(meta); err != nil {
		return err
	}

	graphCfg := meta.graphConfig()
	g := hnsw.New(graphCfg)
	rs := recordstore.New()

	nodeRows, err := c.store.ScanPrefix(ctx, "node/")
	if err != nil {
		return vdberr.Persistence(vdberr.ErrCodeJournalReplay, "scan nodes", err)
	}
	if err := replayNodes(g, nodeRows); err != nil {
		return vdberr.Internal("replay nodes", err)
	}

	entryBytes, found, err := c.store.Get(ctx, persist.KeyEntry)
	if err != nil {
		return vdberr.Persistence(vdberr.ErrCodeJournalReplay, "read entry", err)
	}
	if found {
		entry, err := decodeEntry(entryBytes)
		if err != nil {
			return vdberr.Internal("corrupt entry row", err)
		}
		g.SetEntry(hnsw.NodeID(entry.NodeID), entry.HasEntry, entry.MaxLayer)
	}

	recordRows, err := c.store.ScanPrefix(ctx, "record/")
	if err != nil {
		return vdberr.Persistence(vdberr.ErrCodeJournalReplay, "scan records", err)
	}
	liveNodes := make(map[hnsw.NodeID]bool)
	for _, raw := range recordRows {
		rec, err := decodeRecord(raw)
		if err != nil {
			return vdberr.Internal("corrupt record row", err)
		}
		if !rs.Put(rec) {
			return vdberr.Internal(fmt.Sprintf("duplicate record id %q on replay", rec.ID), nil)
		}
		liveNodes[rec.NodeID] = true
	}

	// I3: every live record's node_id must resolve to a node that exists
	// in the replayed graph, and every live node must resolve back to a
	// record. Tombstoned nodes (in the graph, absent from records) are
	// expected and fine.
	for id := range liveNodes {
		if int(id) >= g.Len() {
			return vdberr.Internal(fmt.Sprintf("record references missing node %d", id), nil)
		}
	}

	// Dead-mark every graph node that replay did not see a live record
	// for, restoring the tombstone state that was in effect before
	// restart.
	for i := 0; i < g.Len(); i++ {
		if !liveNodes[hnsw.NodeID(i)] {
			g.MarkDead(hnsw.NodeID(i))
		}
	}

	c.graph = g
	c.records = rs
	return nil
}

func replayNodes(g *hnsw.Graph, rows map[string][]byte) error {
	// Nodes must be re-allocated in ID order so NodeID assignment from
	// persistence matches the IDs already recorded in record rows and
	// neighbour lists.
	ordered := make([]hnsw.NodeID, 0, len(rows))
	nodes := make(map[hnsw.NodeID]*hnsw.Node, len(rows))
	for key, raw := range rows {
		var idNum uint64
		if _, err := fmt.Sscanf(key, "node/%d", &idNum); err != nil {
			return fmt.Errorf("malformed node key %q: %w", key, err)
		}
		n, err := decodeNode(raw)
		if err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		id := hnsw.NodeID(idNum)
		ordered = append(ordered, id)
		nodes[id] = n
	}
	for i := 0; i < len(ordered); i++ {
		if _, ok := nodes[hnsw.NodeID(i)]; !ok {
			return fmt.Errorf("node arena has a gap at id %d", i)
		}
	}
	for i := 0; i < len(ordered); i++ {
		g.RestoreNode(nodes[hnsw.NodeID(i)])
	}
	return nil
}

func (c *Controller) validateMetaMatchesConfig(m persistedMeta) error {
	if m.Dimension != c.cfg.Dimension || vecmath.Metric(m.Metric) != c.cfg.Metric {
		return vdberr.Validation(vdberr.ErrCodeInvalidConfig,
			fmt.Sprintf("shard config mismatch: persisted dimension=%d metric=%s, requested dimension=%d metric=%s",
				m.Dimension, m.Metric, c.cfg.Dimension, c.cfg.Metric), nil)
	}
	return nil
}

// SetLogCleanup installs a cleanup function that Close calls after
// closing the durable store. Callers that build the shard's logger
// externally (e.g. a dedicated per-shard rotating log file) use this
// so a single Close releases both the store and the logger's resources.
func (c *Controller) SetLogCleanup(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logCleanup = fn
}

// Close checkpoints and releases the shard's durable store, and any
// logger cleanup installed via SetLogCleanup.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.store.Close()
	if c.logCleanup != nil {
		c.logCleanup()
	}
	return err
}

func (c *Controller) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.OperationTimeout)
}
