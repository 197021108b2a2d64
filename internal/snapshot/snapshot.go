// Package snapshot owns the per-model immutable data: entities, the
// octree, the chunk set, and the secondary indices. A new model load
// builds everything off to the side and swaps it in atomically;
// in-flight queries finish against the snapshot they started with.
package snapshot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/agentic-research/strata/api"
	"github.com/agentic-research/strata/internal/chunk"
	"github.com/agentic-research/strata/internal/events"
	"github.com/agentic-research/strata/internal/index"
	"github.com/agentic-research/strata/internal/octree"
)

// Model is one fully built, immutable snapshot.
type Model struct {
	ID       string
	Entities []api.Entity
	Tree     *octree.Octree
	Chunks   []*api.SmartChunk
	Indices  *index.Collection
	Cache    *chunk.Cache
	BuiltAt  time.Time
}

// Entity resolves one entity by express ID.
func (m *Model) Entity(id uint32) (*api.Entity, bool) {
	// Entities are sorted by express ID at build time.
	lo, hi := 0, len(m.Entities)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case m.Entities[mid].ExpressID < id:
			lo = mid + 1
		case m.Entities[mid].ExpressID > id:
			hi = mid
		default:
			return &m.Entities[mid], true
		}
	}
	return nil, false
}

// Manager hands out the current snapshot and swaps in new ones.
type Manager struct {
	mu      sync.RWMutex
	current *Model
}

func NewManager() *Manager {
	return &Manager{}
}

// Current returns the active snapshot, or nil before the first load.
// The returned model stays valid even if a swap happens mid-query.
func (m *Manager) Current() *Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Swap atomically replaces the active snapshot and resets the outgoing
// model's cache so no stale hydration survives the reload.
func (m *Manager) Swap(next *Model) {
	m.mu.Lock()
	prev := m.current
	m.current = next
	m.mu.Unlock()
	if prev != nil && prev.Cache != nil {
		prev.Cache.Reset()
	}
}

// BuildConfig sizes a snapshot build.
type BuildConfig struct {
	TokenTarget int
	TokenMax    int
	CacheBytes  int64
	TreeOptions octree.Options
	PersistDir  string // empty disables on-disk persistence
}

// Builder assembles snapshots and publishes readiness events.
type Builder struct {
	store *chunk.Store
	bus   *events.Bus
	ctl   *Controller
	log   *slog.Logger

	mu  sync.Mutex
	gen uint64
}

func NewBuilder(store *chunk.Store, bus *events.Bus, ctl *Controller, log *slog.Logger) *Builder {
	return &Builder{store: store, bus: bus, ctl: ctl, log: log}
}

// Build constructs a complete snapshot from an entity set. Nothing is
// visible to queries until the caller swaps the result in.
func (b *Builder) Build(modelID string, entities []api.Entity, cfg BuildConfig) (*Model, error) {
	start := time.Now()

	// Express ID order is what Model.Entity's search relies on.
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ExpressID < entities[j].ExpressID
	})

	tree := octree.Build(entities, cfg.TreeOptions)
	chunks := chunk.BuildChunks(entities, cfg.TokenTarget, cfg.TokenMax)

	// Replace any prior payloads for this model before writing new ones.
	if err := b.store.DeleteModel(modelID); err != nil {
		return nil, err
	}
	byID := make(map[uint32]*api.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ExpressID] = &entities[i]
	}
	for _, c := range chunks {
		members := make([]api.Entity, 0, len(c.EntityIDs))
		for _, id := range c.EntityIDs {
			if e, ok := byID[id]; ok {
				members = append(members, *e)
			}
		}
		if err := b.store.Put(modelID, c, members); err != nil {
			return nil, err
		}
	}

	cache, err := chunk.NewCache(b.store, cfg.CacheBytes)
	if err != nil {
		return nil, err
	}

	m := &Model{
		ID:       modelID,
		Entities: entities,
		Tree:     tree,
		Chunks:   chunks,
		Indices:  index.Build(chunks, entities),
		Cache:    cache,
		BuiltAt:  time.Now(),
	}

	buf := tree.Serialize()
	if cfg.PersistDir != "" && b.ctl != nil {
		if err := b.persist(cfg.PersistDir, modelID, buf); err != nil {
			return nil, err
		}
	}

	b.log.Info("snapshot built",
		"model", modelID,
		"entities", len(entities),
		"nodes", tree.TotalNodes(),
		"chunks", len(chunks),
		"elapsed", time.Since(start))

	b.bus.Publish(events.SpatialIndexReady, events.SpatialIndexReadyPayload{
		ModelID: modelID, Buffer: buf,
	})
	b.bus.Publish(events.ChunksReady, events.ChunksReadyPayload{
		ModelID: modelID, ChunkCount: len(chunks), TotalEntities: len(entities),
	})
	return m, nil
}

// persist writes the serialized octree double-buffered: the inactive
// slot is rewritten, fsynced, and only then does the control block
// generation advance to point at it.
func (b *Builder) persist(dir, modelID string, buf []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.gen + 1
	slot := next % 2
	path := filepath.Join(dir, fmt.Sprintf("%s.octree.%d", modelID, slot))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("write index file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync index file: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := b.ctl.SetIndex(path, uint64(len(buf)), next); err != nil {
		return err
	}
	b.gen = next
	return nil
}

// LoadPersisted reconstructs a read-only octree from the control
// block's active index file.
func LoadPersisted(ctl *Controller) (*octree.Octree, error) {
	path := ctl.IndexPath()
	if path == "" {
		return nil, fmt.Errorf("no persisted index")
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}
	return octree.Deserialize(buf)
}
