// Package recordstore tracks the mapping between caller-facing vector IDs
// and the HNSW graph nodes that hold their geometry, plus whatever
// metadata the caller attached at insert time. It mirrors the dual-map
// approach the teacher used for its own ID/key translation, extended with
// the soft-delete (tombstone) semantics a durable vector store needs.
package recordstore

import (
	"sort"
	"sync"
	"time"

	"hnswdb/internal/hnsw"
)

// Record is everything the store knows about one caller-facing vector,
// independent of where its geometry lives in the graph arena.
type Record struct {
	ID        string
	NodeID    hnsw.NodeID
	Metadata  map[string]any
	Dimension int
	CreatedAt time.Time
	Deleted   bool
}

// Store holds the by_id and by_node maps described by the persistence
// model: by_id indexes live records only, by_node keeps every mapping
// ever created (including tombstoned ones) until the next compaction
// drops them, since searches still need to translate a visited dead node
// back to nothing in particular — but a concurrent Get-by-node during
// compaction bookkeeping still needs the association.
type Store struct {
	mu     sync.RWMutex
	byID   map[string]*Record
	byNode map[hnsw.NodeID]*Record
}

// New returns an empty record store.
func New() *Store {
	return &Store{
		byID:   make(map[string]*Record),
		byNode: make(map[hnsw.NodeID]*Record),
	}
}

// Exists reports whether id names a live record. Used to reject duplicate
// inserts before the caller ever touches the graph.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// Put registers a brand-new live record. It returns false without
// modifying the store if id already names a live record; callers are
// expected to check Exists or handle the false return as a conflict.
func (s *Store) Put(rec *Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[rec.ID]; exists {
		return false
	}
	s.byID[rec.ID] = rec
	s.byNode[rec.NodeID] = rec
	return true
}

// Get returns the live record for id, if any.
func (s *Store) Get(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	return rec, ok
}

// GetByNode resolves a graph node ID back to its record, live or
// tombstoned. Search uses this to translate graph hits into caller-facing
// IDs, and skips the hit entirely if the record turns out deleted (the
// graph's own tombstone check should have already filtered this case,
// this is the belt to that suspenders).
func (s *Store) GetByNode(nodeID hnsw.NodeID) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byNode[nodeID]
	return rec, ok
}

// Delete soft-deletes the live record named by id: it flips Deleted, drops
// the id from by_id so future Exists/Get treat the ID as free, but keeps
// the by_node mapping until Compact clears it. Returns false if id did not
// name a live record.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return false
	}
	rec.Deleted = true
	delete(s.byID, id)
	return true
}

// Count returns the number of live records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// TombstoneCount returns the number of node mappings retained purely for
// already-deleted records, i.e. candidates Compact would reclaim.
func (s *Store) TombstoneCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byNode) - len(s.byID)
}

// Live returns every live record, in ascending NodeID order. Compact uses
// this order as the insertion order for the rebuilt graph, so the
// resulting node IDs stay stable relative to each other.
func (s *Store) Live() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.byID))
	for _, rec := range s.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Rebind replaces the store's contents after a compaction: newRecords must
// already carry their post-rebuild NodeIDs. Old tombstones are dropped
// entirely since the graph they referred to no longer exists.
func (s *Store) Rebind(newRecords []*Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*Record, len(newRecords))
	s.byNode = make(map[hnsw.NodeID]*Record, len(newRecords))
	for _, rec := range newRecords {
		s.byID[rec.ID] = rec
		s.byNode[rec.NodeID] = rec
	}
}
