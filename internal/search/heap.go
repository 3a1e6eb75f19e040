package search

import "container/heap"

// candidate is one scored row awaiting fusion, ranked by score (higher is
// better, since distance has already been converted to a similarity score).
type candidate struct {
	FilePath  string
	Line      int
	Name      string
	Kind      string
	Language  string
	EndLine   *int
	Signature string
	Score     float32
	seq       int // first-seen order, for stable tie-breaking
}

// maxHeap keeps the topK best candidates seen so far for one query, ordered
// so the WORST of the kept candidates sits at the root — the one evicted
// when a better candidate arrives.
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// boundedHeap keeps at most k candidates, evicting the lowest-scoring entry
// whenever a better one arrives.
type boundedHeap struct {
	h maxHeap
	k int
}

func newBoundedHeap(k int) *boundedHeap {
	return &boundedHeap{h: make(maxHeap, 0, k), k: k}
}

func (b *boundedHeap) Offer(c candidate) {
	if b.k <= 0 {
		return
	}
	if len(b.h) < b.k {
		heap.Push(&b.h, c)
		return
	}
	if c.Score > b.h[0].Score {
		heap.Pop(&b.h)
		heap.Push(&b.h, c)
	}
}

// Items returns the kept candidates in no particular order.
func (b *boundedHeap) Items() []candidate {
	return b.h
}
