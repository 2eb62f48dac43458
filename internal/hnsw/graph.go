// Package hnsw implements the in-memory Hierarchical Navigable Small World
// graph at the heart of each shard. The graph owns only geometry: node
// storage, layer membership, and neighbour lists. It knows nothing about
// record metadata or persistence; those live in internal/recordstore and
// internal/persist and are wired together by internal/shard.
package hnsw

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2"

	"hnswdb/internal/rng"
	"hnswdb/internal/vecmath"
)

// NodeID identifies a node within a single graph's arena. IDs are assigned
// sequentially starting at 0 and are never reused, even after deletion, so
// that node/<id> persistence keys stay stable for the node's lifetime.
type NodeID uint64

// Node is one vertex of the graph: a vector plus its per-layer neighbour
// lists. Nodes are append-only; deletion only marks a node dead via the
// owning shard's record store; the node itself, and its neighbour edges,
// stay in the arena until the next Compact.
type Node struct {
	Vector    []float32
	Level     int
	Neighbors [][]NodeID // Neighbors[l] holds the edge list at layer l, l in [0,Level]
}

// Config holds the construction-time parameters of a graph. These mirror
// the per-shard ShardDefaults in internal/config and are fixed for the
// lifetime of a graph; changing M or the metric requires a fresh shard.
type Config struct {
	Dimension      int
	Metric         vecmath.Metric
	M              int
	M0             int // neighbour cap at layer 0, conventionally 2*M
	EFConstruction int
	MaxLevel       int
	LevelMult      float64
	Seed           uint64
}

// Graph is a single HNSW index. All exported methods are safe for
// concurrent use by multiple readers, but callers are expected to hold a
// single writer at a time (see internal/shard's locking model) since the
// neighbour-pruning step is not atomic across nodes.
type Graph struct {
	mu sync.RWMutex

	cfg Config
	rng *rng.Source

	nodes      []Node
	live       []bool // live[id] is false once the owning record is deleted
	entryPoint NodeID
	hasEntry   bool
	maxLayer   int

	scratch   *lru.Cache[int, *searchScratch]
	scratchMu sync.Mutex
}

// searchScratch holds the reusable heap buffers for one ef value so
// searchLayer does not allocate on every call.
type searchScratch struct {
	candidates minHeap
	results    maxHeap
	visited    map[NodeID]struct{}
}

// New creates an empty graph. Seed determines the entire sequence of
// random levels assigned during Insert, making construction deterministic.
func New(cfg Config) *Graph {
	if cfg.M0 == 0 {
		cfg.M0 = 2 * cfg.M
	}
	cache, _ := lru.New[int, *searchScratch](8)
	return &Graph{
		cfg:     cfg,
		rng:     rng.New(cfg.Seed),
		scratch: cache,
	}
}

// Len returns the number of nodes in the arena, live or tombstoned.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// LiveCount returns the number of nodes not yet marked dead.
func (g *Graph) LiveCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, alive := range g.live {
		if alive {
			n++
		}
	}
	return n
}

// EntryPoint returns the current entry node and whether the graph is
// non-empty.
func (g *Graph) EntryPoint() (NodeID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entryPoint, g.hasEntry
}

// EntryState returns the current entry node, whether the graph is
// non-empty, and the highest layer any node occupies. Callers persisting
// the write-through entry row need all three together, under one lock
// acquisition, so they never observe an entry point from one moment
// paired with a maxLayer from another.
func (g *Graph) EntryState() (id NodeID, hasEntry bool, maxLayer int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entryPoint, g.hasEntry, g.maxLayer
}

// SetEntry overwrites the entry point and max layer directly. Used both
// to restore state read back from persistence immediately after
// RestoreNode calls have rebuilt the arena, and by a caller that must
// explicitly clear the entry point (hasEntry=false) once no live node
// remains to search from. Insert maintains these fields itself otherwise.
func (g *Graph) SetEntry(id NodeID, hasEntry bool, maxLayer int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entryPoint = id
	g.hasEntry = hasEntry
	g.maxLayer = maxLayer
}

// RestoreNode appends a node read back from persistence, exactly as
// stored, bypassing level assignment and neighbour search. Callers must
// call it in ascending original NodeID order so the restored arena's
// indices line up with the NodeIDs referenced by record rows and
// neighbour lists. The restored node starts live; MarkDead is applied
// separately for any node whose record turned out deleted.
func (g *Graph) RestoreNode(n *Node) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, *n)
	g.live = append(g.live, true)
	return id
}

// alloc appends a new node at the given level and returns its ID. Callers
// must hold the write lock.
func (g *Graph) alloc(level int, vec []float32) NodeID {
	id := NodeID(len(g.nodes))
	neighbors := make([][]NodeID, level+1)
	for l := 0; l <= level; l++ {
		cap := g.cfg.M
		if l == 0 {
			cap = g.cfg.M0
		}
		neighbors[l] = make([]NodeID, 0, cap)
	}
	g.nodes = append(g.nodes, Node{Vector: vec, Level: level, Neighbors: neighbors})
	g.live = append(g.live, true)
	return id
}

// Get returns a pointer to the node with the given ID. It panics if id is
// out of range, matching the arena's append-only contract: a valid ID is
// never freed out from under a caller.
func (g *Graph) Get(id NodeID) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return &g.nodes[id]
}

// IsLive reports whether the node has not been tombstoned.
func (g *Graph) IsLive(id NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.live[id]
}

// MarkDead tombstones a node so future searches skip it. The node's edges
// and vector stay in the arena until Compact runs.
func (g *Graph) MarkDead(id NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live[id] = false
}

// IterLive calls fn for every live node ID in ascending order, stopping
// early if fn returns false.
func (g *Graph) IterLive(fn func(id NodeID) bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for i, alive := range g.live {
		if !alive {
			continue
		}
		if !fn(NodeID(i)) {
			return
		}
	}
}

// LayerDegrees reports, for each layer from 0 up to the graph's current
// top layer, the average neighbour-list length among live nodes present
// at that layer. It exists purely for the stats surface and is never
// called from the insert or search hot paths.
func (g *Graph) LayerDegrees() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.nodes) == 0 {
		return nil
	}
	sums := make([]int, g.maxLayer+1)
	counts := make([]int, g.maxLayer+1)
	for i, alive := range g.live {
		if !alive {
			continue
		}
		n := &g.nodes[i]
		for l := 0; l <= n.Level; l++ {
			sums[l] += len(n.Neighbors[l])
			counts[l]++
		}
	}
	out := make([]int, len(sums))
	for l := range sums {
		if counts[l] > 0 {
			out[l] = sums[l] / counts[l]
		}
	}
	return out
}

func (g *Graph) distance(a, b []float32) float32 {
	return vecmath.Distance(g.cfg.Metric, a, b)
}

// borrowScratch returns the pooled heap/visited buffers for the given ef,
// allocating a fresh set on a cache miss. This keeps repeated searches at
// the same ef (the overwhelmingly common case, since ef comes from shard
// config) from reallocating heaps on every call.
func (g *Graph) borrowScratch(ef int) *searchScratch {
	g.scratchMu.Lock()
	defer g.scratchMu.Unlock()
	if s, ok := g.scratch.Get(ef); ok {
		g.scratch.Remove(ef)
		for k := range s.visited {
			delete(s.visited, k)
		}
		return s
	}
	return &searchScratch{
		candidates: make(minHeap, 0, ef*2),
		results:    make(maxHeap, 0, ef),
		visited:    make(map[NodeID]struct{}, ef*4),
	}
}

// returnScratch gives the buffers back to the pool for reuse by the next
// search at the same ef.
func (g *Graph) returnScratch(ef int, s *searchScratch) {
	g.scratchMu.Lock()
	defer g.scratchMu.Unlock()
	g.scratch.Add(ef, s)
}
