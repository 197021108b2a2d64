// Package octree provides the spatial index over entity bounding boxes.
//
// The tree is stored flat: nodes, leaf entity-ID runs, and the entity
// table live in contiguous slices so the whole index serializes to a
// single arena buffer and deserializes into a read-only query object
// without re-deriving any geometry.
package octree

import (
	"sort"

	"github.com/agentic-research/strata/api"
)

const (
	// DefaultMaxEntitiesPerLeaf is the subdivision threshold.
	DefaultMaxEntitiesPerLeaf = 32
	// DefaultMaxDepth bounds subdivision regardless of entity count.
	DefaultMaxDepth = 8
)

// Options control tree construction.
type Options struct {
	MaxEntitiesPerLeaf int
	MaxDepth           int
}

// DefaultOptions returns the standard build parameters.
func DefaultOptions() Options {
	return Options{
		MaxEntitiesPerLeaf: DefaultMaxEntitiesPerLeaf,
		MaxDepth:           DefaultMaxDepth,
	}
}

// node is one flat tree node. children holds indices into Octree.nodes,
// -1 for absent octants. Leaf nodes reference a run in Octree.leafIDs.
type node struct {
	box       api.Box
	children  [8]int32
	leafStart int32
	leafCount int32
}

func (n *node) isLeaf() bool {
	return n.leafStart >= 0
}

// Octree is the read-only spatial index.
type Octree struct {
	nodes   []node
	leafIDs []uint32 // entity-ID runs referenced by leaf nodes

	// Entity table, sorted by express ID.
	entIDs   []uint32
	entBoxes []api.Box
	entIdx   map[uint32]int
}

// TotalNodes returns the node count (metadata, round-trips through the arena).
func (t *Octree) TotalNodes() int { return len(t.nodes) }

// TotalEntities returns the indexed entity count.
func (t *Octree) TotalEntities() int { return len(t.entIDs) }

// RootBounds returns the root node's box, or a zero box for an empty tree.
func (t *Octree) RootBounds() api.Box {
	if len(t.nodes) == 0 {
		return api.Box{}
	}
	return t.nodes[0].box
}

// EntityBounds returns the indexed box for an entity ID.
func (t *Octree) EntityBounds(id uint32) (api.Box, bool) {
	i, ok := t.entIdx[id]
	if !ok {
		return api.Box{}, false
	}
	return t.entBoxes[i], true
}

// Build constructs the octree over the given entities. The root box is the
// union of all entity boxes; subdivision stops when a region holds at most
// opts.MaxEntitiesPerLeaf entities or opts.MaxDepth is reached. Entities
// whose centroid lies exactly on a splitting plane go to the
// greater-or-equal octant, so every entity lands in exactly one leaf.
func Build(entities []api.Entity, opts Options) *Octree {
	if opts.MaxEntitiesPerLeaf <= 0 {
		opts.MaxEntitiesPerLeaf = DefaultMaxEntitiesPerLeaf
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	t := &Octree{entIdx: make(map[uint32]int, len(entities))}
	if len(entities) == 0 {
		return t
	}

	// Entity table sorted by ID for deterministic serialization.
	sorted := make([]api.Entity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ExpressID < sorted[j].ExpressID })

	root := sorted[0].Bounds
	ids := make([]uint32, len(sorted))
	for i, e := range sorted {
		ids[i] = e.ExpressID
		t.entIDs = append(t.entIDs, e.ExpressID)
		t.entBoxes = append(t.entBoxes, e.Bounds)
		t.entIdx[e.ExpressID] = i
		root = root.Union(e.Bounds)
	}

	t.build(root, ids, 0, opts)
	return t
}

// build appends the subtree for ids within box and returns its node index.
func (t *Octree) build(box api.Box, ids []uint32, depth int, opts Options) int32 {
	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, node{box: box, children: noChildren(), leafStart: -1})

	if len(ids) <= opts.MaxEntitiesPerLeaf || depth >= opts.MaxDepth {
		start := int32(len(t.leafIDs))
		t.leafIDs = append(t.leafIDs, ids...)
		t.nodes[idx].leafStart = start
		t.nodes[idx].leafCount = int32(len(ids))
		return idx
	}

	center := box.Center()
	var buckets [8][]uint32
	for _, id := range ids {
		o := octant(t.entBoxes[t.entIdx[id]].Center(), center)
		buckets[o] = append(buckets[o], id)
	}

	// Degenerate split (all centroids coincide): stop subdividing.
	for _, b := range buckets {
		if len(b) == len(ids) {
			start := int32(len(t.leafIDs))
			t.leafIDs = append(t.leafIDs, ids...)
			t.nodes[idx].leafStart = start
			t.nodes[idx].leafCount = int32(len(ids))
			return idx
		}
	}

	for o, b := range buckets {
		if len(b) == 0 {
			continue
		}
		child := t.build(octantBox(box, center, o), b, depth+1, opts)
		t.nodes[idx].children[o] = child
	}
	return idx
}

func noChildren() [8]int32 {
	return [8]int32{-1, -1, -1, -1, -1, -1, -1, -1}
}

// octant assigns a point to one of eight octants relative to center.
// Coordinates equal to the center go to the greater-or-equal branch.
func octant(p, center api.Vec3) int {
	o := 0
	if p.X >= center.X {
		o |= 1
	}
	if p.Y >= center.Y {
		o |= 2
	}
	if p.Z >= center.Z {
		o |= 4
	}
	return o
}

// octantBox returns the sub-box for octant o of box split at center.
func octantBox(box api.Box, center api.Vec3, o int) api.Box {
	b := box
	if o&1 != 0 {
		b.Min.X = center.X
	} else {
		b.Max.X = center.X
	}
	if o&2 != 0 {
		b.Min.Y = center.Y
	} else {
		b.Max.Y = center.Y
	}
	if o&4 != 0 {
		b.Min.Z = center.Z
	} else {
		b.Max.Z = center.Z
	}
	return b
}
