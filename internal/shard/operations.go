package shard

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"hnswdb/internal/hnsw"
	"hnswdb/internal/persist"
	"hnswdb/internal/recordstore"
	"hnswdb/internal/vdberr"
	"hnswdb/internal/vecmath"
)

// maxIDLength is the upper bound on a caller-supplied vector ID. It also
// keeps an id safely clear of the persisted key namespace's own length
// budget (`record/<id>`, `node/<node_id>`).
const maxIDLength = 256

// idPattern pins ids to the allowed character set. Anything outside it --
// notably '/' -- would collide with the `record/`/`node/` key-prefix
// namespace persist.RecordKey and ScanPrefix rely on, and would break the
// get/:id route parsing in the HTTP handlers.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func validateID(id string) error {
	if id == "" {
		return vdberr.Validation(vdberr.ErrCodeInvalidID, "id must not be empty", nil)
	}
	if len(id) > maxIDLength {
		return vdberr.Validation(vdberr.ErrCodeInvalidID, fmt.Sprintf("id exceeds %d bytes", maxIDLength), nil)
	}
	if !idPattern.MatchString(id) {
		return vdberr.Validation(vdberr.ErrCodeInvalidID, "id must match ^[A-Za-z0-9_-]+$", nil)
	}
	return nil
}

func (c *Controller) validateVector(vec []float32) error {
	if len(vec) != c.cfg.Dimension {
		return vdberr.Validation(vdberr.ErrCodeDimensionMismatch,
			fmt.Sprintf("vector has dimension %d, shard expects %d", len(vec), c.cfg.Dimension), nil)
	}
	if !vecmath.Finite(vec) {
		return vdberr.Validation(vdberr.ErrCodeNonFiniteElement, "vector contains a NaN or infinite element", nil)
	}
	return nil
}

// halt marks the shard unusable after an unrecoverable persistence
// failure. Callers must already hold the write lock. Once halted, every
// subsequent operation returns haltErr rather than risk the in-memory
// state and durable state drifting further apart.
func (c *Controller) halt(err error) {
	c.halted = true
	c.haltErr = err
	c.log.Error("shard halted after persistence failure", "error", err, "dir", c.cfg.DataDir)
}

func (c *Controller) checkHalted() error {
	if c.halted {
		return vdberr.Persistence(vdberr.ErrCodeWriteFailed, "shard is halted", c.haltErr)
	}
	return nil
}

// retryConfig returns the default backoff schedule limited to a single
// retry, with a logging hook attached, so a retried persistence write
// shows up in this shard's log stream with the same op_id/shard/code
// context as the final failure.
func (c *Controller) retryConfig(opID string) vdberr.RetryConfig {
	cfg := vdberr.DefaultRetryConfig()
	cfg.MaxRetries = 1
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.log.Warn("retrying persistence write",
			"op_id", opID, "shard", c.cfg.DataDir, "code", vdberr.ErrCodeWriteFailed,
			"attempt", attempt, "delay", delay, "error", err)
	}
	return cfg
}

// writeBatch persists entries through the write-path circuit breaker,
// retrying transient failures (lock contention, a momentarily busy WAL
// checkpoint) with exponential backoff before giving up and halting the
// shard. opID is a correlation id (see uuid.NewString in the calling
// operation) threaded into the log line so repeated retries of the same
// logical write can be grepped together. Callers must hold the write
// lock.
func (c *Controller) writeBatch(ctx context.Context, opID string, entries []persist.Entry) error {
	if !c.breaker.Allow() {
		wrapped := vdberr.Persistence(vdberr.ErrCodeWriteFailed, "persistence circuit breaker open", vdberr.ErrCircuitOpen)
		c.log.Warn("write rejected by open circuit breaker", "op_id", opID, "shard", c.cfg.DataDir)
		return wrapped
	}

	err := c.breaker.Execute(func() error {
		return vdberr.Retry(ctx, c.retryConfig(opID), func() error {
			return c.store.Batch(ctx, entries)
		})
	})
	if err != nil {
		wrapped := vdberr.Persistence(vdberr.ErrCodeWriteFailed, "write-through batch failed", err)
		c.log.Error("write-through batch failed", "op_id", opID, "shard", c.cfg.DataDir, "error", err)
		c.halt(wrapped)
		return wrapped
	}
	return nil
}

// entryEntry builds the persisted "entry" row from the graph's current
// entry-point state.
func (c *Controller) entryEntry() persist.Entry {
	id, hasEntry, maxLayer := c.graph.EntryState()
	return persist.Entry{Key: persist.KeyEntry, Value: encodeEntry(id, hasEntry, maxLayer)}
}

// Insert adds one vector under id. It takes the shard's exclusive lock:
// mutating the graph and the record store together, then persisting the
// write-through batch, runs to completion without interleaving with any
// other read or write.
func (c *Controller) Insert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := c.validateVector(vector); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkHalted(); err != nil {
		return err
	}
	if c.cfg.MaxVectors > 0 && c.records.Count() >= c.cfg.MaxVectors {
		return vdberr.Capacity(fmt.Sprintf("shard at capacity (%d vectors)", c.cfg.MaxVectors))
	}
	if c.records.Exists(id) {
		return vdberr.Conflict(fmt.Sprintf("id %q already exists", id), nil)
	}

	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	nodeID, touched := c.graph.Insert(vector)
	rec := &recordstore.Record{
		ID:        id,
		NodeID:    nodeID,
		Metadata:  metadata,
		Dimension: len(vector),
		CreatedAt: time.Now().UTC(),
	}
	if !c.records.Put(rec) {
		// The graph node was already allocated; it stays in the arena as
		// an unreferenced node until the next Compact, exactly like any
		// other tombstoned node.
		c.graph.MarkDead(nodeID)
		return vdberr.Conflict(fmt.Sprintf("id %q already exists", id), nil)
	}

	entries := make([]persist.Entry, 0, len(touched)+2)
	for _, nid := range touched {
		entries = append(entries, persist.Entry{Key: persist.NodeKey(uint64(nid)), Value: encodeNode(c.graph.Get(nid))})
	}
	entries = append(entries, persist.Entry{Key: persist.RecordKey(id), Value: encodeRecord(rec)})
	entries = append(entries, c.entryEntry())

	return c.writeBatch(ctx, uuid.NewString(), entries)
}

// BatchInsert inserts items best-effort: one item's failure never blocks
// its siblings. Each item still goes through the shard's single-writer
// lock individually via Insert, so a batch never partially-applies under
// one acquired lock; it applies item-by-item under a fresh lock each time.
func (c *Controller) BatchInsert(ctx context.Context, items []InsertItem) ([]ItemResult, error) {
	if c.cfg.MaxBatchSize > 0 && len(items) > c.cfg.MaxBatchSize {
		return nil, vdberr.Validation(vdberr.ErrCodeBatchTooLarge,
			fmt.Sprintf("batch of %d exceeds max batch size %d", len(items), c.cfg.MaxBatchSize), nil)
	}

	results := make([]ItemResult, len(items))
	for i, item := range items {
		err := c.Insert(ctx, item.ID, item.Vector, item.Metadata)
		results[i] = ItemResult{ID: item.ID, Err: err}
	}
	return results, nil
}

// Search runs a k-NN query against the shard. It takes the shared read
// lock: concurrent Search/Get/Stats calls may run together, but never
// alongside a write.
func (c *Controller) Search(ctx context.Context, query []float32, k, ef int) ([]SearchHit, error) {
	if k <= 0 || k > 100 {
		return nil, vdberr.Validation(vdberr.ErrCodeInvalidK, "k must be between 1 and 100", nil)
	}
	if err := c.validateVector(query); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.checkHalted(); err != nil {
		return nil, err
	}

	if ef <= 0 {
		ef = c.cfg.EFSearch
	}

	results := c.graph.Query(query, k, ef)
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		rec, ok := c.records.GetByNode(r.ID)
		if !ok || rec.Deleted {
			continue
		}
		hits = append(hits, SearchHit{
			ID:       rec.ID,
			Score:    vecmath.Score(c.cfg.Metric, r.Distance),
			Distance: r.Distance,
			Metadata: rec.Metadata,
		})
	}
	return hits, nil
}

// Get returns the record for id, or a NotFound error if id is absent or
// already deleted.
func (c *Controller) Get(ctx context.Context, id string) (*recordstore.Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.checkHalted(); err != nil {
		return nil, err
	}
	rec, ok := c.records.Get(id)
	if !ok {
		return nil, vdberr.NotFound(fmt.Sprintf("id %q not found", id))
	}
	return rec, nil
}

// GetVector returns the live record for id along with its vector, which
// the record store itself does not retain a copy of (the graph arena is
// the single source of truth for vector memory; see recordstore's doc
// comment on why byNode exists).
func (c *Controller) GetVector(ctx context.Context, id string) (*recordstore.Record, []float32, error) {
	if err := validateID(id); err != nil {
		return nil, nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.checkHalted(); err != nil {
		return nil, nil, err
	}
	rec, ok := c.records.Get(id)
	if !ok {
		return nil, nil, vdberr.NotFound(fmt.Sprintf("id %q not found", id))
	}
	return rec, c.graph.Get(rec.NodeID).Vector, nil
}

// Delete soft-deletes id: the record store drops it from by_id immediately
// and the graph node is tombstoned, but both stay in their respective
// arenas until the next Compact.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkHalted(); err != nil {
		return err
	}

	rec, ok := c.records.Get(id)
	if !ok {
		return vdberr.NotFound(fmt.Sprintf("id %q not found", id))
	}
	nodeID := rec.NodeID

	if !c.records.Delete(id) {
		return vdberr.NotFound(fmt.Sprintf("id %q not found", id))
	}
	c.graph.MarkDead(nodeID)

	entries := []persist.Entry{{Key: persist.RecordKey(id), Tombstone: true}}

	// With no live records left, the graph has no valid entry point to
	// search from; clear it so a reload doesn't resume pointing at a
	// tombstoned node (I4: size_live == 0 implies entry_point absent).
	if c.records.Count() == 0 {
		c.graph.SetEntry(0, false, 0)
		entries = append(entries, c.entryEntry())
	}

	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	return c.writeBatch(ctx, uuid.NewString(), entries)
}

// Stats summarizes the shard's current size and tombstone ratio.
func (c *Controller) Stats(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.checkHalted(); err != nil {
		return Stats{}, err
	}

	nodes := c.graph.Len()
	tombstones := c.records.TombstoneCount()
	var orphanRatio float64
	if nodes > 0 {
		orphanRatio = float64(tombstones) / float64(nodes)
	}
	_, hasEntry, _ := c.graph.EntryState()

	return Stats{
		LiveVectors:     c.records.Count(),
		GraphNodes:      nodes,
		Tombstones:      tombstones,
		OrphanRatio:     orphanRatio,
		Dimension:       c.cfg.Dimension,
		Metric:          c.cfg.Metric,
		EntryPointKnown: hasEntry,
	}, nil
}

// LayerDegrees exposes the graph's per-layer average neighbour count, for
// the /api/vector/stats surface's connections_per_layer field.
func (c *Controller) LayerDegrees(ctx context.Context) ([]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkHalted(); err != nil {
		return nil, err
	}
	return c.graph.LayerDegrees(), nil
}

// EntryPointLevel returns the layer of the graph's current entry point,
// for the /api/vector/stats surface's entry_point_level field.
func (c *Controller) EntryPointLevel(ctx context.Context) (int, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkHalted(); err != nil {
		return 0, false, err
	}
	id, hasEntry, maxLayer := c.graph.EntryState()
	_ = id
	return maxLayer, hasEntry, nil
}

// ShouldCompact reports whether the shard's current tombstone ratio meets
// or exceeds CompactionThreshold. Callers (the CLI's compact command, or a
// future background scheduler) use this to decide when to call Compact
// rather than doing so on every write.
func (c *Controller) ShouldCompact(ctx context.Context) (bool, error) {
	stats, err := c.Stats(ctx)
	if err != nil {
		return false, err
	}
	if c.cfg.CompactionThreshold <= 0 {
		return false, nil
	}
	return stats.OrphanRatio >= c.cfg.CompactionThreshold, nil
}

// CompactionThreshold returns the shard's configured deletion-ratio
// threshold, for callers that want to render it (the dashboard, stats
// output) rather than just act on ShouldCompact's verdict.
func (c *Controller) CompactionThreshold() float64 {
	return c.cfg.CompactionThreshold
}

// Compact rebuilds the graph from scratch using only live records, in
// ascending NodeID order, then atomically swaps the rebuilt graph and
// record store in and persists the full snapshot under one transaction.
// It takes the exclusive lock for its entire duration: a compaction never
// interleaves with any read or write, matching the single-writer model.
func (c *Controller) Compact(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkHalted(); err != nil {
		return err
	}

	live := c.records.Live()
	vectors := make([][]float32, len(live))
	for i, rec := range live {
		vectors[i] = c.graph.Get(rec.NodeID).Vector
	}

	graphCfg := metaFromConfig(c.cfg).graphConfig()
	newGraph, newIDs := hnsw.Rebuild(graphCfg, vectors)

	newRecords := make([]*recordstore.Record, len(live))
	for i, rec := range live {
		newRecords[i] = &recordstore.Record{
			ID:        rec.ID,
			NodeID:    newIDs[i],
			Metadata:  rec.Metadata,
			Dimension: rec.Dimension,
			CreatedAt: rec.CreatedAt,
		}
	}

	entries := make([]persist.Entry, 0, newGraph.Len()+len(newRecords)+1)
	for _, nid := range newIDs {
		entries = append(entries, persist.Entry{Key: persist.NodeKey(uint64(nid)), Value: encodeNode(newGraph.Get(nid))})
	}
	for _, rec := range newRecords {
		entries = append(entries, persist.Entry{Key: persist.RecordKey(rec.ID), Value: encodeRecord(rec)})
	}
	entryID, hasEntry, maxLayer := newGraph.EntryState()
	entries = append(entries, persist.Entry{Key: persist.KeyEntry, Value: encodeEntry(entryID, hasEntry, maxLayer)})

	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	opID := uuid.NewString()
	if !c.breaker.Allow() {
		wrapped := vdberr.Persistence(vdberr.ErrCodeWriteFailed, "persistence circuit breaker open", vdberr.ErrCircuitOpen)
		c.log.Warn("compact rejected by open circuit breaker", "op_id", opID, "shard", c.cfg.DataDir)
		return wrapped
	}

	err := c.breaker.Execute(func() error {
		return vdberr.Retry(ctx, c.retryConfig(opID), func() error {
			return c.store.ReplaceNamespaces(ctx, []string{"node/", "record/"}, entries)
		})
	})
	if err != nil {
		wrapped := vdberr.Persistence(vdberr.ErrCodeWriteFailed, "compact snapshot write failed", err)
		c.log.Error("compact snapshot write failed", "op_id", opID, "shard", c.cfg.DataDir, "error", err)
		c.halt(wrapped)
		return wrapped
	}

	c.log.Info("compact completed", "op_id", opID, "shard", c.cfg.DataDir, "live_vectors", len(newRecords))
	c.graph = newGraph
	c.records.Rebind(newRecords)
	return nil
}
