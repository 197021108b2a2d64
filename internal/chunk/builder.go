// Package chunk partitions a model's entities into token-bounded retrieval
// units and manages their persistence and hydration.
package chunk

import (
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/agentic-research/strata/api"
)

// BucketSize is the edge length of the coarse spatial grid used for
// locality grouping. One bucket roughly covers a room-sized region.
const BucketSize = 10.0

// BucketKey returns the grid cell of a point as a stable string key.
func BucketKey(p api.Vec3) string {
	return fmt.Sprintf("%d,%d,%d",
		int(math.Floor(p.X/BucketSize)),
		int(math.Floor(p.Y/BucketSize)),
		int(math.Floor(p.Z/BucketSize)))
}

// BuildChunks groups entities into chunks whose estimated token cost stays
// at or below tokenMax, targeting tokenTarget. Grouping favors spatial
// then type locality: entities are bucketed on the coarse grid, ordered by
// type within a bucket, and packed in that order, so one chunk tends to
// describe one region and one kind of thing.
//
// Every entity lands in exactly one chunk.
func BuildChunks(entities []api.Entity, tokenTarget, tokenMax int) []*api.SmartChunk {
	if tokenTarget <= 0 {
		tokenTarget = 400
	}
	if tokenMax < tokenTarget {
		tokenMax = tokenTarget * 2
	}
	if len(entities) == 0 {
		return nil
	}

	// Bucket by spatial grid cell.
	buckets := make(map[string][]*api.Entity)
	for i := range entities {
		k := BucketKey(entities[i].Bounds.Center())
		buckets[k] = append(buckets[k], &entities[i])
	}
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	var chunks []*api.SmartChunk
	var cur []*api.Entity
	curTokens := chunkOverheadTokens
	curBucket := ""

	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, newChunk(len(chunks), cur, curTokens, curBucket, now))
		cur = nil
		curTokens = chunkOverheadTokens
	}

	for _, k := range keys {
		ents := buckets[k]
		// Type then ID order keeps packing deterministic and type-local.
		sort.Slice(ents, func(i, j int) bool {
			if ents[i].Type != ents[j].Type {
				return ents[i].Type < ents[j].Type
			}
			return ents[i].ExpressID < ents[j].ExpressID
		})
		for _, e := range ents {
			cost := EntityTokens(e)
			// An entity with many properties can still estimate above the
			// ceiling on its own; cap its cost so every chunk respects
			// tokenMax even as a singleton.
			if limit := tokenMax - chunkOverheadTokens; cost > limit {
				cost = limit
			}
			if len(cur) > 0 && curTokens+cost > tokenMax {
				flush()
			}
			if len(cur) == 0 {
				curBucket = k
			}
			cur = append(cur, e)
			curTokens += cost
			if curTokens >= tokenTarget {
				flush()
			}
		}
		// Bucket boundary: close the chunk so bounds stay tight unless it
		// is still far under target.
		if curTokens > tokenTarget/2 {
			flush()
		}
	}
	flush()
	return chunks
}

func newChunk(seq int, ents []*api.Entity, tokens int, bucket string, now time.Time) *api.SmartChunk {
	c := &api.SmartChunk{
		ID:            fmt.Sprintf("chunk-%05d", seq),
		TokenCount:    tokens,
		CreatedAt:     now,
		SpatialBucket: bucket,
		Metadata: api.ChunkMetadata{
			TypeHistogram: make(map[string]int),
			MinExpressID:  math.MaxUint32,
		},
	}

	bounds := ents[0].Bounds
	typeSet := map[string]bool{}
	nameSet := map[string]bool{}
	for _, e := range ents {
		c.EntityIDs = append(c.EntityIDs, e.ExpressID)
		bounds = bounds.Union(e.Bounds)
		typeSet[e.Type] = true
		if e.Name != "" && !nameSet[e.Name] && len(nameSet) < sampleNameCount {
			nameSet[e.Name] = true
			c.Metadata.SampleNames = append(c.Metadata.SampleNames, clipName(e.Name))
		}
		c.Metadata.TypeHistogram[e.Type]++
		if e.ExpressID < c.Metadata.MinExpressID {
			c.Metadata.MinExpressID = e.ExpressID
		}
		if e.ExpressID > c.Metadata.MaxExpressID {
			c.Metadata.MaxExpressID = e.ExpressID
		}
		if hasVolume(e.Bounds) {
			c.Metadata.HasGeometry = true
		}
	}
	c.Bounds = bounds
	for t := range typeSet {
		c.Types = append(c.Types, t)
	}
	sort.Strings(c.Types)

	// Complexity grows with type variety and entity count, normalized to
	// a 0..1-ish range for the scorer's benefit.
	c.Metadata.Complexity = math.Min(1, float64(len(typeSet))/8+float64(len(ents))/256)
	return c
}

// sampleNameCount bounds how many distinct entity names a chunk keeps
// for keyword scoring.
const sampleNameCount = 8

func clipName(s string) string {
	if len(s) <= ExcerptFieldChars {
		return s
	}
	cut := ExcerptFieldChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func hasVolume(b api.Box) bool {
	return b.Max.X > b.Min.X && b.Max.Y > b.Min.Y && b.Max.Z > b.Min.Z
}
