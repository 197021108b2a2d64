package chunk

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/strata/api"
)

var chunkTestTypes = []string{"IfcWall", "IfcDoor", "IfcWindow", "IfcPipeSegment", "IfcDuctSegment"}

func buildTestEntities(n int, seed int64) []api.Entity {
	rng := rand.New(rand.NewSource(seed))
	ents := make([]api.Entity, n)
	for i := range ents {
		p := api.Vec3{X: rng.Float64() * 60, Y: rng.Float64() * 12, Z: rng.Float64() * 60}
		ents[i] = api.Entity{
			ExpressID: uint32(i + 1),
			Type:      chunkTestTypes[rng.Intn(len(chunkTestTypes))],
			Name:      "element",
			Bounds:    api.Box{Min: p, Max: api.Vec3{X: p.X + 1, Y: p.Y + 1, Z: p.Z + 1}},
		}
	}
	return ents
}

func TestBuildChunksPartitionsExactly(t *testing.T) {
	ents := buildTestEntities(3000, 17)
	chunks := BuildChunks(ents, 300, 600)
	require.NotEmpty(t, chunks)

	seen := map[uint32]int{}
	for _, c := range chunks {
		for _, id := range c.EntityIDs {
			seen[id]++
		}
	}
	assert.Len(t, seen, len(ents), "union of chunks must equal input set")
	for id, n := range seen {
		require.Equal(t, 1, n, "entity %d must be in exactly one chunk", id)
	}
}

func TestBuildChunksRespectsTokenMax(t *testing.T) {
	ents := buildTestEntities(2000, 3)
	const tokenMax = 500
	for _, c := range BuildChunks(ents, 250, tokenMax) {
		assert.LessOrEqual(t, c.TokenCount, tokenMax, "chunk %s", c.ID)
	}
}

func TestBuildChunksOversizedEntityStaysUnderTokenMax(t *testing.T) {
	ents := buildTestEntities(50, 21)
	ents[7].Name = strings.Repeat("Absperrschieber ", 500)
	ents[7].Properties = map[string]any{
		"description": strings.Repeat("x", 4000),
	}

	const tokenMax = 800
	chunks := BuildChunks(ents, 400, tokenMax)
	require.NotEmpty(t, chunks)

	seen := false
	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, tokenMax, "chunk %s", c.ID)
		for _, id := range c.EntityIDs {
			if id == ents[7].ExpressID {
				seen = true
			}
		}
	}
	assert.True(t, seen, "oversized entity must still land in a chunk")
}

func TestEntityTokensCapsFieldContribution(t *testing.T) {
	small := api.Entity{Type: "IfcWall", Name: strings.Repeat("n", ExcerptFieldChars)}
	huge := api.Entity{Type: "IfcWall", Name: strings.Repeat("n", 8000)}
	assert.Equal(t, EntityTokens(&small), EntityTokens(&huge),
		"name beyond the excerpt bound must not inflate the estimate")
}

func TestBuildChunksCapturesSampleNames(t *testing.T) {
	ents := buildTestEntities(40, 5)
	for i := range ents {
		ents[i].Name = fmt.Sprintf("Element %03d", i)
	}

	for _, c := range BuildChunks(ents, 300, 600) {
		assert.NotEmpty(t, c.Metadata.SampleNames, "chunk %s", c.ID)
		assert.LessOrEqual(t, len(c.Metadata.SampleNames), sampleNameCount)
		for _, n := range c.Metadata.SampleNames {
			assert.LessOrEqual(t, len(n), ExcerptFieldChars)
		}
	}
}

func TestBuildChunksMetadata(t *testing.T) {
	ents := buildTestEntities(400, 9)
	chunks := BuildChunks(ents, 300, 600)

	for _, c := range chunks {
		require.NotEmpty(t, c.EntityIDs)
		assert.NotEmpty(t, c.SpatialBucket)
		assert.True(t, c.Metadata.HasGeometry)
		assert.LessOrEqual(t, c.Metadata.MinExpressID, c.Metadata.MaxExpressID)

		hist := 0
		for _, n := range c.Metadata.TypeHistogram {
			hist += n
		}
		assert.Equal(t, len(c.EntityIDs), hist)

		for _, id := range c.EntityIDs {
			assert.True(t, c.Bounds.Intersects(ents[id-1].Bounds),
				"chunk bounds must cover member entity %d", id)
		}
	}
}

func TestBuildChunksDeterministic(t *testing.T) {
	ents := buildTestEntities(800, 5)
	a := BuildChunks(ents, 300, 600)
	b := BuildChunks(ents, 300, 600)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].EntityIDs, b[i].EntityIDs)
	}
}

func TestBuildChunksEmpty(t *testing.T) {
	assert.Nil(t, BuildChunks(nil, 300, 600))
}
