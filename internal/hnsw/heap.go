package hnsw

import "container/heap"

// candidate pairs a node with its distance to the active query, used by
// both priority queues in searchLayer.
type candidate struct {
	id       NodeID
	distance float32
}

// minHeap pops the closest candidate first; it drives the expansion
// frontier during searchLayer.
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].distance < h[j].distance }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxHeap pops the farthest candidate first; it holds the current best
// ef results so the farthest can be evicted as closer ones arrive.
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].distance > h[j].distance }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (h maxHeap) peek() candidate {
	return h[0]
}

var _ heap.Interface = (*minHeap)(nil)
var _ heap.Interface = (*maxHeap)(nil)
