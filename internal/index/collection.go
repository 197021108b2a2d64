// Package index maintains the secondary indices over the chunk set:
// compressed posting sets keyed by entity type, level, system, and
// spatial bucket. The collection is rebuilt whenever the chunk set
// changes and is read-only during query execution.
package index

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/strata/api"
)

// Index names as used by query plans.
const (
	ByType   = "by-type"
	ByLevel  = "by-level"
	BySystem = "by-system"
	ByBucket = "by-spatial-bucket"
	FullScan = "full-scan"
)

// Collection maps normalized keys to posting sets of chunk ordinals.
// An ordinal is a chunk's position in the build-order slice; it is
// stable for the lifetime of one model snapshot.
type Collection struct {
	chunks  []*api.SmartChunk
	ordinal map[string]uint32

	postings map[string]map[string]*roaring.Bitmap
	all      *roaring.Bitmap
}

// Stats describes one index's selectivity, the planner's cost input.
type Stats struct {
	TotalChunks int
	UniqueKeys  map[string]int
	AvgPostings map[string]float64
}

// Build derives the posting sets from the chunk set. Entities are
// consulted for level and system keys, which chunk records do not carry.
func Build(chunks []*api.SmartChunk, entities []api.Entity) *Collection {
	c := &Collection{
		chunks:  chunks,
		ordinal: make(map[string]uint32, len(chunks)),
		postings: map[string]map[string]*roaring.Bitmap{
			ByType:   {},
			ByLevel:  {},
			BySystem: {},
			ByBucket: {},
		},
		all: roaring.New(),
	}

	byID := make(map[uint32]*api.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ExpressID] = &entities[i]
	}

	for ord, ch := range chunks {
		o := uint32(ord)
		c.ordinal[ch.ID] = o
		c.all.Add(o)

		for _, typ := range ch.Types {
			c.post(ByType, typ, o)
		}
		c.post(ByBucket, ch.SpatialBucket, o)

		for _, id := range ch.EntityIDs {
			e, ok := byID[id]
			if !ok {
				continue
			}
			if e.Level != "" {
				c.post(ByLevel, e.Level, o)
			}
			if e.System != "" {
				c.post(BySystem, e.System, o)
			}
		}
	}
	return c
}

func (c *Collection) post(index, key string, ord uint32) {
	key = Normalize(key)
	if key == "" {
		return
	}
	bm, ok := c.postings[index][key]
	if !ok {
		bm = roaring.New()
		c.postings[index][key] = bm
	}
	bm.Add(ord)
}

// Normalize folds a key for index lookup.
func Normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Lookup returns the posting set for one key, or an empty set when the
// key is unknown. The returned bitmap is a copy; callers may mutate it.
func (c *Collection) Lookup(index, key string) *roaring.Bitmap {
	idx, ok := c.postings[index]
	if !ok {
		return roaring.New()
	}
	bm, ok := idx[Normalize(key)]
	if !ok {
		return roaring.New()
	}
	return bm.Clone()
}

// HasKey reports whether an index carries a posting set for key.
func (c *Collection) HasKey(index, key string) bool {
	idx, ok := c.postings[index]
	if !ok {
		return false
	}
	_, ok = idx[Normalize(key)]
	return ok
}

// All returns the posting set of every chunk, the full-scan candidate set.
func (c *Collection) All() *roaring.Bitmap {
	return c.all.Clone()
}

// Chunks materializes a posting set into chunk records, in ordinal order.
func (c *Collection) Chunks(set *roaring.Bitmap) []*api.SmartChunk {
	out := make([]*api.SmartChunk, 0, set.GetCardinality())
	it := set.Iterator()
	for it.HasNext() {
		ord := it.Next()
		if int(ord) < len(c.chunks) {
			out = append(out, c.chunks[ord])
		}
	}
	return out
}

// Chunk resolves one chunk by ID.
func (c *Collection) Chunk(id string) (*api.SmartChunk, bool) {
	ord, ok := c.ordinal[id]
	if !ok {
		return nil, false
	}
	return c.chunks[ord], true
}

// Keys lists an index's keys sorted, for stats and debugging output.
func (c *Collection) Keys(index string) []string {
	idx := c.postings[index]
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats summarizes per-index selectivity for the query planner.
func (c *Collection) Stats() Stats {
	s := Stats{
		TotalChunks: len(c.chunks),
		UniqueKeys:  make(map[string]int, len(c.postings)),
		AvgPostings: make(map[string]float64, len(c.postings)),
	}
	for name, idx := range c.postings {
		s.UniqueKeys[name] = len(idx)
		if len(idx) == 0 {
			continue
		}
		var total uint64
		for _, bm := range idx {
			total += bm.GetCardinality()
		}
		s.AvgPostings[name] = float64(total) / float64(len(idx))
	}
	return s
}
