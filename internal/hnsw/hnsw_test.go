package hnsw

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnswdb/internal/vecmath"
)

func testConfig(seed uint64) Config {
	return Config{
		Dimension:      8,
		Metric:         vecmath.L2,
		M:              8,
		M0:             16,
		EFConstruction: 32,
		MaxLevel:       16,
		LevelMult:      1 / math.Log(8),
		Seed:           seed,
	}
}

func randomVectors(n, dim int, seed int64) [][]float32 {
	r := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = r.Float32()
		}
		out[i] = v
	}
	return out
}

func TestInsert_FirstNodeBecomesEntryPoint(t *testing.T) {
	// Given: an empty graph
	g := New(testConfig(1))

	// When: inserting the first vector
	id, _ := g.Insert([]float32{1, 2, 3, 4, 5, 6, 7, 8})

	// Then: it becomes the entry point
	ep, ok := g.EntryPoint()
	require.True(t, ok)
	assert.Equal(t, id, ep)
	assert.Equal(t, 1, g.Len())
}

func TestInsert_Deterministic_SameSeedSameStructure(t *testing.T) {
	// Given: identical vectors inserted into two graphs with the same seed
	vectors := randomVectors(200, 8, 1)

	g1 := New(testConfig(7))
	g2 := New(testConfig(7))

	for _, v := range vectors {
		g1.Insert(v)
		g2.Insert(v)
	}

	// Then: every node has identical level and neighbour structure
	require.Equal(t, g1.Len(), g2.Len())
	for i := 0; i < g1.Len(); i++ {
		n1 := g1.Get(NodeID(i))
		n2 := g2.Get(NodeID(i))
		assert.Equal(t, n1.Level, n2.Level, "node %d level mismatch", i)
		for l := 0; l <= n1.Level; l++ {
			assert.Equal(t, n1.Neighbors[l], n2.Neighbors[l], "node %d layer %d neighbours mismatch", i, l)
		}
	}
}

func TestInsert_NeighborCapRespected(t *testing.T) {
	// Given: many vectors inserted with small M
	cfg := testConfig(3)
	g := New(cfg)
	for _, v := range randomVectors(500, 8, 2) {
		g.Insert(v)
	}

	// Then: no layer's neighbour list exceeds its cap (M, or M0 at layer 0)
	for i := 0; i < g.Len(); i++ {
		n := g.Get(NodeID(i))
		for l := 0; l <= n.Level; l++ {
			cap := cfg.M
			if l == 0 {
				cap = cfg.M0
			}
			assert.LessOrEqual(t, len(n.Neighbors[l]), cap, "node %d layer %d exceeds cap", i, l)
		}
	}
}

func TestQuery_EmptyGraphReturnsNil(t *testing.T) {
	g := New(testConfig(1))
	results := g.Query([]float32{1, 2, 3, 4, 5, 6, 7, 8}, 5, 10)
	assert.Nil(t, results)
}

func TestQuery_FindsExactMatch(t *testing.T) {
	// Given: a graph of random vectors plus one known target
	g := New(testConfig(5))
	vectors := randomVectors(300, 8, 3)
	for _, v := range vectors {
		g.Insert(v)
	}
	target := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
	targetID, _ := g.Insert(target)

	// When: querying with the exact target vector
	results := g.Query(target, 10, 64)

	// Then: the exact match is the closest result
	require.NotEmpty(t, results)
	assert.Equal(t, targetID, results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-5)
}

func TestQuery_SkipsTombstonedNodes(t *testing.T) {
	// Given: a graph where the nearest node to the query has been deleted
	g := New(testConfig(9))
	target := []float32{1, 1, 1, 1, 1, 1, 1, 1}
	nearID, _ := g.Insert(target)
	for _, v := range randomVectors(100, 8, 4) {
		g.Insert(v)
	}

	// When: the nearest node is tombstoned
	g.MarkDead(nearID)
	results := g.Query(target, 5, 64)

	// Then: it never appears in results
	for _, r := range results {
		assert.NotEqual(t, nearID, r.ID)
	}
}

func TestGraph_ConnectivityFromEntryPoint(t *testing.T) {
	// Given: a populated graph
	g := New(testConfig(11))
	for _, v := range randomVectors(400, 8, 6) {
		g.Insert(v)
	}

	ep, ok := g.EntryPoint()
	require.True(t, ok)

	// When: doing a BFS over layer-0 edges from the entry point
	visited := make(map[NodeID]bool)
	queue := []NodeID{ep}
	visited[ep] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node := g.Get(cur)
		for _, nb := range node.Neighbors[0] {
			if !visited[nb] {
				visited[nb] = true
				queue = append(queue, nb)
			}
		}
	}

	// Then: every node in the arena is reachable
	assert.Equal(t, g.Len(), len(visited))
}

func TestRebuild_ProducesIsomorphicGraphForSameInput(t *testing.T) {
	cfg := testConfig(21)
	vectors := randomVectors(150, 8, 8)

	g1, ids1 := Rebuild(cfg, vectors)
	g2, ids2 := Rebuild(cfg, vectors)

	assert.Equal(t, ids1, ids2)
	assert.Equal(t, g1.Len(), g2.Len())
}

func TestLiveCount_DecrementsAfterMarkDead(t *testing.T) {
	g := New(testConfig(1))
	id, _ := g.Insert([]float32{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, 1, g.LiveCount())

	g.MarkDead(id)
	assert.Equal(t, 0, g.LiveCount())
	assert.Equal(t, 1, g.Len(), "tombstoned node stays in the arena until compaction")
}

func TestIterLive_SkipsDeadNodes(t *testing.T) {
	g := New(testConfig(1))
	a, _ := g.Insert([]float32{1, 0, 0, 0, 0, 0, 0, 0})
	b, _ := g.Insert([]float32{0, 1, 0, 0, 0, 0, 0, 0})
	g.MarkDead(a)

	var seen []NodeID
	g.IterLive(func(id NodeID) bool {
		seen = append(seen, id)
		return true
	})

	assert.Equal(t, []NodeID{b}, seen)
}
