package hnsw

// Insert adds vec to the graph and returns its new node ID, plus the full
// set of node IDs whose persisted state changed as a side effect (the new
// node itself and every existing neighbour whose edge list was touched by
// linking or re-pruning). internal/shard uses that second list to build
// the write-through batch for this operation without having to snapshot
// the entire graph. The caller (internal/shard, via internal/recordstore)
// is responsible for rejecting duplicate external IDs and dimension
// mismatches before calling Insert; the graph itself does not check vec's
// length against its configured dimension.
func (g *Graph) Insert(vec []float32) (NodeID, []NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	level := g.rng.RandomLevel(g.cfg.LevelMult, g.cfg.MaxLevel)
	id := g.alloc(level, vec)
	touched := map[NodeID]struct{}{id: {}}

	if !g.hasEntry {
		g.entryPoint = id
		g.hasEntry = true
		g.maxLayer = level
		return id, touchedSlice(touched)
	}

	ep := g.entryPoint
	epLevel := g.maxLayer

	// Step 1: coarse greedy descent through the layers strictly above the
	// new node's level, tracking only a single best candidate per layer.
	for lc := epLevel; lc > level; lc-- {
		ep = g.greedyDescend(vec, ep, lc)
	}

	// Step 2: fine insertion from min(level, epLevel) down to 0. At each
	// layer, run a full searchLayer with efConstruction candidates, pick
	// up to M/M0 neighbours via the heuristic, and link both directions.
	for lc := min(level, epLevel); lc >= 0; lc-- {
		found := g.searchLayer(vec, []NodeID{ep}, g.cfg.EFConstruction, lc)
		cap := g.cfg.M
		if lc == 0 {
			cap = g.cfg.M0
		}
		selected := g.selectNeighbors(vec, found, cap)

		g.nodes[id].Neighbors[lc] = append(g.nodes[id].Neighbors[lc][:0], selected...)

		for _, nb := range selected {
			g.linkAndPrune(nb, id, lc)
			touched[nb] = struct{}{}
		}

		if len(found) > 0 {
			ep = found[0].id
		}
	}

	if level > epLevel {
		g.entryPoint = id
		g.maxLayer = level
	}

	return id, touchedSlice(touched)
}

func touchedSlice(set map[NodeID]struct{}) []NodeID {
	out := make([]NodeID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// linkAndPrune adds a back-edge from nb to id at layer lc, then re-prunes
// nb's neighbour list down to its layer cap via the heuristic if it has
// grown past capacity.
func (g *Graph) linkAndPrune(nb, id NodeID, lc int) {
	node := &g.nodes[nb]
	node.Neighbors[lc] = append(node.Neighbors[lc], id)

	cap := g.cfg.M
	if lc == 0 {
		cap = g.cfg.M0
	}
	if len(node.Neighbors[lc]) <= cap {
		return
	}

	candidates := make([]candidate, 0, len(node.Neighbors[lc]))
	for _, n := range node.Neighbors[lc] {
		candidates = append(candidates, candidate{id: n, distance: g.distance(node.Vector, g.nodes[n].Vector)})
	}
	pruned := g.selectNeighbors(node.Vector, candidates, cap)
	node.Neighbors[lc] = append(node.Neighbors[lc][:0], pruned...)
}

// selectNeighbors implements the HNSW neighbour-selection heuristic: walk
// candidates nearest-first, keep one only if it is closer to the query
// than to every neighbour already kept (this favours spread over raw
// proximity, which is what gives the graph its small-world connectivity).
// If fewer than cap survive that filter, the closest of the rejected
// ("pruned") candidates are used to fill out the list, since an
// under-full neighbour list hurts recall more than a few redundant edges.
func (g *Graph) selectNeighbors(query []float32, found []candidate, cap int) []NodeID {
	if len(found) <= cap {
		out := make([]NodeID, len(found))
		for i, c := range found {
			out[i] = c.id
		}
		return out
	}

	kept := make([]candidate, 0, cap)
	var pruned []candidate

	for _, c := range found {
		if len(kept) >= cap {
			pruned = append(pruned, c)
			continue
		}
		closerToKept := false
		for _, k := range kept {
			if g.distance(g.nodes[c.id].Vector, g.nodes[k.id].Vector) < c.distance {
				closerToKept = true
				break
			}
		}
		if closerToKept {
			pruned = append(pruned, c)
		} else {
			kept = append(kept, c)
		}
	}

	for i := 0; len(kept) < cap && i < len(pruned); i++ {
		kept = append(kept, pruned[i])
	}

	out := make([]NodeID, len(kept))
	for i, c := range kept {
		out[i] = c.id
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
