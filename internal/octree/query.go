package octree

import (
	"container/heap"
	"time"

	"github.com/agentic-research/strata/api"
)

// Result is the outcome of one spatial query. NodesVisited is exposed for
// tests and performance introspection.
type Result struct {
	Entities     []uint32
	NodesVisited int
	Elapsed      time.Duration
}

// Query returns the IDs of entities whose boxes intersect the shape,
// descending only into nodes whose box the shape touches. maxResults <= 0
// means unlimited.
func (t *Octree) Query(shape Shape, maxResults int) Result {
	start := time.Now()
	res := Result{}
	if len(t.nodes) == 0 {
		res.Elapsed = time.Since(start)
		return res
	}

	stack := []int32{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[idx]
		res.NodesVisited++

		if !shape.IntersectsBox(n.box) {
			continue
		}
		if n.isLeaf() {
			for _, id := range t.leafIDs[n.leafStart : n.leafStart+n.leafCount] {
				if shape.IntersectsBox(t.entBoxes[t.entIdx[id]]) {
					res.Entities = append(res.Entities, id)
					if maxResults > 0 && len(res.Entities) >= maxResults {
						res.Elapsed = time.Since(start)
						return res
					}
				}
			}
			continue
		}
		for _, c := range n.children {
			if c >= 0 {
				stack = append(stack, c)
			}
		}
	}
	res.Elapsed = time.Since(start)
	return res
}

// Nearest returns the k entities closest to p, nearest first. It descends
// nodes in order of box distance, pruning any node further than the
// current k-th best.
func (t *Octree) Nearest(p api.Vec3, k int) Result {
	start := time.Now()
	res := Result{}
	if len(t.nodes) == 0 || k <= 0 {
		res.Elapsed = time.Since(start)
		return res
	}

	best := &entityHeap{} // max-heap of current best k, worst on top
	heap.Init(best)

	var visit func(idx int32)
	visit = func(idx int32) {
		n := &t.nodes[idx]
		res.NodesVisited++
		if best.Len() == k && distSqPointBox(p, n.box) > best.worst() {
			return
		}
		if n.isLeaf() {
			for _, id := range t.leafIDs[n.leafStart : n.leafStart+n.leafCount] {
				d := distSqPointBox(p, t.entBoxes[t.entIdx[id]])
				if best.Len() < k {
					heap.Push(best, entityDist{id: id, d: d})
				} else if d < best.worst() {
					heap.Pop(best)
					heap.Push(best, entityDist{id: id, d: d})
				}
			}
			return
		}
		// Visit children nearest-first so pruning kicks in early.
		type cd struct {
			c int32
			d float64
		}
		var order []cd
		for _, c := range n.children {
			if c >= 0 {
				order = append(order, cd{c: c, d: distSqPointBox(p, t.nodes[c].box)})
			}
		}
		for i := 1; i < len(order); i++ {
			for j := i; j > 0 && order[j].d < order[j-1].d; j-- {
				order[j], order[j-1] = order[j-1], order[j]
			}
		}
		for _, o := range order {
			visit(o.c)
		}
	}
	visit(0)

	// Drain the heap worst-first, then reverse to nearest-first.
	out := make([]uint32, best.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(best).(entityDist).id
	}
	res.Entities = out
	res.Elapsed = time.Since(start)
	return res
}

type entityDist struct {
	id uint32
	d  float64
}

type entityHeap []entityDist

func (h entityHeap) Len() int            { return len(h) }
func (h entityHeap) Less(i, j int) bool  { return h[i].d > h[j].d }
func (h entityHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entityHeap) Push(x any)         { *h = append(*h, x.(entityDist)) }
func (h *entityHeap) Pop() any           { old := *h; n := len(old); x := old[n-1]; *h = old[:n-1]; return x }
func (h entityHeap) worst() float64      { return h[0].d }
