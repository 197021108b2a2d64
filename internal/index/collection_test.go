package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/strata/api"
)

func indexFixture() ([]*api.SmartChunk, []api.Entity) {
	entities := []api.Entity{
		{ExpressID: 1, Type: "IfcWall", Level: "Level 1", Bounds: unitBoxAt(0)},
		{ExpressID: 2, Type: "IfcWall", Level: "Level 2", Bounds: unitBoxAt(5)},
		{ExpressID: 3, Type: "IfcDoor", Level: "Level 1", Bounds: unitBoxAt(1)},
		{ExpressID: 4, Type: "IfcPipeSegment", System: "Plumbing", Bounds: unitBoxAt(20)},
		{ExpressID: 5, Type: "IfcDuctSegment", System: "HVAC", Bounds: unitBoxAt(21)},
	}
	chunks := []*api.SmartChunk{
		{ID: "chunk-00000", EntityIDs: []uint32{1, 3}, Types: []string{"IfcWall", "IfcDoor"},
			SpatialBucket: "0,0,0", CreatedAt: time.Now()},
		{ID: "chunk-00001", EntityIDs: []uint32{2}, Types: []string{"IfcWall"},
			SpatialBucket: "0,0,0", CreatedAt: time.Now()},
		{ID: "chunk-00002", EntityIDs: []uint32{4, 5}, Types: []string{"IfcPipeSegment", "IfcDuctSegment"},
			SpatialBucket: "2,0,0", CreatedAt: time.Now()},
	}
	return chunks, entities
}

func unitBoxAt(x float64) api.Box {
	return api.Box{Min: api.Vec3{X: x}, Max: api.Vec3{X: x + 1, Y: 1, Z: 1}}
}

func TestLookupByType(t *testing.T) {
	chunks, ents := indexFixture()
	c := Build(chunks, ents)

	walls := c.Chunks(c.Lookup(ByType, "IfcWall"))
	require.Len(t, walls, 2)
	assert.Equal(t, "chunk-00000", walls[0].ID)
	assert.Equal(t, "chunk-00001", walls[1].ID)

	assert.Empty(t, c.Chunks(c.Lookup(ByType, "IfcUnknown")))
}

func TestLookupNormalizesKeys(t *testing.T) {
	chunks, ents := indexFixture()
	c := Build(chunks, ents)

	assert.True(t, c.HasKey(ByType, "ifcwall"))
	assert.True(t, c.HasKey(ByLevel, "LEVEL 1"))
	assert.Equal(t, uint64(1), c.Lookup(BySystem, " hvac ").GetCardinality())
}

func TestLevelAndSystemDerivedFromEntities(t *testing.T) {
	chunks, ents := indexFixture()
	c := Build(chunks, ents)

	l1 := c.Chunks(c.Lookup(ByLevel, "Level 1"))
	require.Len(t, l1, 1)
	assert.Equal(t, "chunk-00000", l1[0].ID)

	plumbing := c.Chunks(c.Lookup(BySystem, "Plumbing"))
	require.Len(t, plumbing, 1)
	assert.Equal(t, "chunk-00002", plumbing[0].ID)
}

func TestIntersection(t *testing.T) {
	chunks, ents := indexFixture()
	c := Build(chunks, ents)

	set := c.Lookup(ByType, "IfcWall")
	set.And(c.Lookup(ByBucket, "0,0,0"))
	assert.Equal(t, uint64(2), set.GetCardinality())

	set = c.Lookup(ByType, "IfcWall")
	set.And(c.Lookup(ByBucket, "2,0,0"))
	assert.Zero(t, set.GetCardinality())
}

func TestLookupReturnsCopy(t *testing.T) {
	chunks, ents := indexFixture()
	c := Build(chunks, ents)

	set := c.Lookup(ByType, "IfcWall")
	set.Clear()
	assert.Equal(t, uint64(2), c.Lookup(ByType, "IfcWall").GetCardinality(),
		"mutating a lookup result must not corrupt the index")
}

func TestStats(t *testing.T) {
	chunks, ents := indexFixture()
	c := Build(chunks, ents)
	s := c.Stats()

	assert.Equal(t, 3, s.TotalChunks)
	assert.Equal(t, 4, s.UniqueKeys[ByType])
	assert.Equal(t, 2, s.UniqueKeys[ByLevel])
	assert.Equal(t, 2, s.UniqueKeys[BySystem])
	assert.Equal(t, 2, s.UniqueKeys[ByBucket])
	assert.InDelta(t, 1.25, s.AvgPostings[ByType], 1e-9)
	assert.Equal(t, uint64(3), c.All().GetCardinality())
}