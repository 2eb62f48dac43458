package hnsw

import "container/heap"

// searchLayer runs the standard HNSW layer search: starting from
// entryPoints, it greedily expands the candidate frontier (ordered
// nearest-first) while keeping the ef best results seen so far (ordered
// farthest-first so the worst can be evicted in O(log ef)). It stops once
// the closest remaining candidate is farther than the current worst
// result, since nothing reachable from it can improve the result set.
//
// Dead (tombstoned) nodes are still traversed for connectivity but are
// never admitted into the result set.
func (g *Graph) searchLayer(query []float32, entryPoints []NodeID, ef int, layer int) []candidate {
	scratch := g.borrowScratch(ef)
	defer g.returnScratch(ef, scratch)

	visited := scratch.visited
	candidates := scratch.candidates
	results := scratch.results

	for _, ep := range entryPoints {
		if _, ok := visited[ep]; ok {
			continue
		}
		visited[ep] = struct{}{}
		d := g.distance(query, g.nodes[ep].Vector)
		heap.Push(&candidates, candidate{id: ep, distance: d})
		if g.live[ep] {
			heap.Push(&results, candidate{id: ep, distance: d})
		}
	}

	for candidates.Len() > 0 {
		nearest := heap.Pop(&candidates).(candidate)

		if results.Len() >= ef && nearest.distance > results.peek().distance {
			break
		}

		node := &g.nodes[nearest.id]
		if layer > node.Level {
			continue
		}
		for _, nb := range node.Neighbors[layer] {
			if _, ok := visited[nb]; ok {
				continue
			}
			visited[nb] = struct{}{}

			d := g.distance(query, g.nodes[nb].Vector)
			worst := float32(0)
			full := results.Len() >= ef
			if full {
				worst = results.peek().distance
			}
			if !full || d < worst {
				heap.Push(&candidates, candidate{id: nb, distance: d})
				if g.live[nb] {
					heap.Push(&results, candidate{id: nb, distance: d})
					if results.Len() > ef {
						heap.Pop(&results)
					}
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&results).(candidate)
	}

	scratch.candidates = candidates[:0]
	scratch.results = results[:0]

	return out
}

// greedyDescend walks from ep down through layer lc using a single active
// candidate, used to find a good entry point for the layers below the
// new node's assigned level.
func (g *Graph) greedyDescend(query []float32, ep NodeID, layer int) NodeID {
	best := ep
	bestDist := g.distance(query, g.nodes[ep].Vector)
	improved := true
	for improved {
		improved = false
		node := &g.nodes[best]
		if layer > node.Level {
			break
		}
		for _, nb := range node.Neighbors[layer] {
			d := g.distance(query, g.nodes[nb].Vector)
			if d < bestDist {
				bestDist = d
				best = nb
				improved = true
			}
		}
	}
	return best
}
