package query

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/strata/api"
	"github.com/agentic-research/strata/internal/index"
)

// planFixture builds a small snapshot: walls and doors on two levels,
// pipes in a separate bucket, each chunk holding one entity.
func planFixture() (*index.Collection, []*api.SmartChunk) {
	var entities []api.Entity
	var chunks []*api.SmartChunk
	add := func(typ, level, system, bucket string) {
		id := uint32(len(entities) + 1)
		entities = append(entities, api.Entity{
			ExpressID: id, Type: typ, Level: level, System: system,
			Bounds: unitBoxAt(float64(id)),
		})
		chunks = append(chunks, &api.SmartChunk{
			ID:            fmt.Sprintf("chunk-%05d", len(chunks)),
			EntityIDs:     []uint32{id},
			Types:         []string{typ},
			SpatialBucket: bucket,
			TokenCount:    100,
			CreatedAt:     time.Now(),
			Metadata:      api.ChunkMetadata{TypeHistogram: map[string]int{typ: 1}, HasGeometry: true},
		})
	}
	add("IfcWall", "level 1", "", "0,0,0")
	add("IfcWall", "level 1", "", "1,0,0")
	add("IfcWall", "level 2", "", "0,1,0")
	add("IfcWall", "level 2", "", "1,1,0")
	add("IfcDoor", "level 1", "", "0,0,0")
	add("IfcDoor", "level 2", "", "1,1,0")
	add("IfcPipeSegment", "", "plumbing", "5,0,0")
	add("IfcPipeSegment", "", "plumbing", "5,0,0")
	add("IfcDuctSegment", "", "hvac", "6,0,0")
	add("IfcDuctSegment", "", "hvac", "6,0,0")
	return index.Build(chunks, entities), chunks
}

func unitBoxAt(x float64) api.Box {
	return api.Box{Min: api.Vec3{X: x}, Max: api.Vec3{X: x + 1, Y: 1, Z: 1}}
}

func TestPlanSingleIndex(t *testing.T) {
	col, _ := planFixture()
	p := NewPlanner(col, nil)

	plan := p.Plan(Classify("how many walls are there?"))
	assert.Equal(t, StrategySingleIndex, plan.Strategy)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, index.ByType, plan.Steps[0].Index)
	assert.Equal(t, OpLookup, plan.Steps[0].Op)
	assert.Equal(t, []string{"IfcWall"}, plan.Steps[0].Keys)
	assert.False(t, plan.Parallelizable)

	got := col.Chunks(p.Execute(plan))
	require.Len(t, got, 4)
}

func TestPlanMultiIndexOrdersBySelectivity(t *testing.T) {
	col, _ := planFixture()
	p := NewPlanner(col, nil)

	plan := p.Plan(Classify("how many plumbing pipes are there?"))
	assert.Equal(t, StrategyMultiIndex, plan.Strategy)
	require.Len(t, plan.Steps, 2)
	assert.True(t, plan.Parallelizable)
	assert.LessOrEqual(t, plan.Steps[0].EstimatedResults, plan.Steps[1].EstimatedResults)

	got := col.Chunks(p.Execute(plan))
	require.Len(t, got, 2)
	for _, c := range got {
		assert.Equal(t, "IfcPipeSegment", c.Types[0])
	}
}

func TestPlanFullScanOnLowConfidence(t *testing.T) {
	col, chunks := planFixture()
	p := NewPlanner(col, nil)

	plan := p.Plan(Classify("tell about building"))
	assert.Equal(t, StrategyFullScan, plan.Strategy)
	assert.Equal(t, float64(len(chunks)), plan.EstimatedCost)
	assert.Len(t, col.Chunks(p.Execute(plan)), len(chunks))
}

func TestPlanLevelIntersection(t *testing.T) {
	col, _ := planFixture()
	p := NewPlanner(col, nil)

	intent := Classify("count the doors on level 1")
	intent.SpatialTerms = append(intent.SpatialTerms, "level 1")
	plan := p.Plan(intent)
	assert.Equal(t, StrategyMultiIndex, plan.Strategy)

	got := col.Chunks(p.Execute(plan))
	require.Len(t, got, 1)
	assert.Equal(t, "chunk-00004", got[0].ID)
}

func TestPlanBucketProbeForResolvedRegion(t *testing.T) {
	col, _ := planFixture()
	// "north" resolves to the far end of the model: grid cells 5 and 6
	// on the x axis.
	regions := func(term string) (api.Box, bool) {
		if term != "north" {
			return api.Box{}, false
		}
		return api.Box{Min: api.Vec3{X: 50}, Max: api.Vec3{X: 69, Y: 9, Z: 9}}, true
	}
	p := NewPlanner(col, regions)

	plan := p.Plan(Classify("how many pipes in the north wing"))
	assert.Equal(t, StrategyMultiIndex, plan.Strategy)

	var bucketStep *PlanStep
	for i := range plan.Steps {
		if plan.Steps[i].Index == index.ByBucket {
			bucketStep = &plan.Steps[i]
		}
	}
	require.NotNil(t, bucketStep, "resolved region must probe the bucket index")
	assert.Equal(t, []string{"5,0,0", "6,0,0"}, bucketStep.Keys)

	got := col.Chunks(p.Execute(plan))
	require.Len(t, got, 2)
	for _, c := range got {
		assert.Equal(t, "IfcPipeSegment", c.Types[0])
		assert.Equal(t, "5,0,0", c.SpatialBucket)
	}
}

func TestCoveringBucketsCapsHugeRegions(t *testing.T) {
	whole := api.Box{Min: api.Vec3{}, Max: api.Vec3{X: 1000, Y: 1000, Z: 1000}}
	assert.Nil(t, coveringBuckets(whole))

	cell := api.Box{Min: api.Vec3{X: 12, Y: 3, Z: 4}, Max: api.Vec3{X: 13, Y: 4, Z: 5}}
	assert.Equal(t, []string{"1,0,0"}, coveringBuckets(cell))
}

func TestExecuteEmptyIntersection(t *testing.T) {
	col, _ := planFixture()
	p := NewPlanner(col, nil)

	intent := api.QueryIntent{
		Kind:        api.IntentFind,
		EntityTypes: []string{"IfcWall"},
		SystemTerms: []string{"plumbing"},
		Confidence:  0.9,
	}
	plan := p.Plan(intent)
	assert.Empty(t, col.Chunks(p.Execute(plan)))
}
