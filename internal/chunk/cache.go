package chunk

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agentic-research/strata/api"
)

// Hydrator resolves a chunk ID into its entity payload. Implemented by
// *Store; swapped for fakes in tests.
type Hydrator interface {
	Hydrate(chunkID string) ([]api.Entity, error)
}

type cacheEntry struct {
	entities []api.Entity
	bytes    int64
}

// Cache is a memory-bounded LRU of hydrated chunk payloads in front of the
// store. Hydration is per-chunk singleflight: a payload becomes visible
// only after it is fully built, so interleaved Get/evict callers never see
// a partial result. The cache never owns authoritative data — Reset drops
// everything on model reload.
type Cache struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, *cacheEntry]
	bytes    int64
	maxBytes int64
	source   Hydrator
	inflight map[string]*hydration

	hits   int64
	misses int64
}

type hydration struct {
	done chan struct{}
	ents []api.Entity
	err  error
}

// NewCache builds a cache bounded by maxBytes of hydrated payload.
func NewCache(source Hydrator, maxBytes int64) (*Cache, error) {
	c := &Cache{
		maxBytes: maxBytes,
		source:   source,
		inflight: make(map[string]*hydration),
	}
	// Entry-count bound is a backstop; the byte ceiling does the real work.
	// Every removal path (byte eviction, capacity eviction, Purge) funnels
	// through the callback, so accounted bytes always match resident bytes.
	// The callback runs with c.mu held.
	entries, err := lru.NewWithEvict[string, *cacheEntry](4096, func(_ string, e *cacheEntry) {
		c.bytes -= e.bytes
	})
	if err != nil {
		return nil, err
	}
	c.entries = entries
	return c, nil
}

// Get returns the hydrated payload for a chunk, loading it on miss and
// refreshing its recency on hit.
func (c *Cache) Get(chunkID string) ([]api.Entity, error) {
	c.mu.Lock()
	if e, ok := c.entries.Get(chunkID); ok {
		c.hits++
		c.mu.Unlock()
		return e.entities, nil
	}
	c.misses++

	if h, ok := c.inflight[chunkID]; ok {
		// Another caller is hydrating this chunk; wait for its result.
		c.mu.Unlock()
		<-h.done
		return h.ents, h.err
	}
	h := &hydration{done: make(chan struct{})}
	c.inflight[chunkID] = h
	c.mu.Unlock()

	h.ents, h.err = c.source.Hydrate(chunkID)
	close(h.done)

	c.mu.Lock()
	delete(c.inflight, chunkID)
	if h.err == nil {
		entry := &cacheEntry{entities: h.ents, bytes: payloadBytes(h.ents)}
		c.entries.Add(chunkID, entry)
		c.bytes += entry.bytes
		c.evictLocked()
	}
	c.mu.Unlock()
	return h.ents, h.err
}

// EvictIfNeeded drops least-recently-used entries until the byte ceiling
// is respected.
func (c *Cache) EvictIfNeeded() {
	c.mu.Lock()
	c.evictLocked()
	c.mu.Unlock()
}

func (c *Cache) evictLocked() {
	for c.bytes > c.maxBytes && c.entries.Len() > 0 {
		if _, _, ok := c.entries.RemoveOldest(); !ok {
			return
		}
	}
}

// Reset drops every entry. Called on model reload so a hit can never be
// stale relative to the authoritative store.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries.Purge()
	c.hits, c.misses = 0, 0
	c.mu.Unlock()
}

// Stats reports hit/miss counts and resident bytes.
func (c *Cache) Stats() (hits, misses, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.bytes
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// payloadBytes approximates the resident size of a hydrated payload.
func payloadBytes(ents []api.Entity) int64 {
	var n int64
	for i := range ents {
		n += 96 // struct + box
		n += int64(len(ents[i].Type) + len(ents[i].Name) + len(ents[i].GlobalID))
		n += int64(len(ents[i].Level) + len(ents[i].System))
		for k := range ents[i].Properties {
			n += int64(len(k)) + 16
		}
	}
	return n
}
