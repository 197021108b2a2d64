package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/strata/api"
)

func testChunk(id, typ string, n int, bucket string, created time.Time) *api.SmartChunk {
	ids := make([]uint32, n)
	for i := range ids {
		ids[i] = uint32(i + 1)
	}
	return &api.SmartChunk{
		ID:            id,
		EntityIDs:     ids,
		Types:         []string{typ},
		SpatialBucket: bucket,
		TokenCount:    100,
		CreatedAt:     created,
		Bounds:        unitBoxAt(0),
		Metadata:      api.ChunkMetadata{TypeHistogram: map[string]int{typ: n}, HasGeometry: true},
	}
}

func TestDefaultWeightsValid(t *testing.T) {
	assert.True(t, DefaultWeights.Valid())
	assert.False(t, Weights{TextMatch: 0.5}.Valid())
}

func TestScoreFactorsInRange(t *testing.T) {
	s := NewScorer(DefaultWeights, nil)
	intent := Classify("how many walls are on level two")
	rc := s.Score(testChunk("chunk-00000", "IfcWall", 10, "0,0,0", time.Now()), intent)

	for _, f := range []float64{
		rc.Factors.TextMatch, rc.Factors.EntityMatch, rc.Factors.Spatial,
		rc.Factors.Recency, rc.Factors.TypeAlignment,
	} {
		assert.GreaterOrEqual(t, f, 0.0)
		assert.LessOrEqual(t, f, 1.0)
	}
	assert.GreaterOrEqual(t, rc.Score, 0.0)
	assert.LessOrEqual(t, rc.Score, 1.0)
}

func TestEntityMatchRanksMatchingTypeFirst(t *testing.T) {
	s := NewScorer(DefaultWeights, nil)
	now := time.Now()
	wall := testChunk("chunk-00000", "IfcWall", 10, "0,0,0", now)
	pipe := testChunk("chunk-00001", "IfcPipeSegment", 10, "0,0,0", now)

	ranked := s.Rank([]*api.SmartChunk{pipe, wall}, Classify("how many walls are there?"))
	require.Len(t, ranked, 2)
	assert.Equal(t, "chunk-00000", ranked[0].Chunk.ID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestTextMatchSeesSampleNames(t *testing.T) {
	now := time.Now()
	named := testChunk("chunk-00000", "IfcValve", 2, "0,0,0", now)
	named.Metadata.SampleNames = []string{"Sprinkler Head 3A", "Sprinkler Head 3B"}
	plain := testChunk("chunk-00001", "IfcValve", 2, "1,0,0", now)

	s := NewScorer(DefaultWeights, nil)
	intent := api.QueryIntent{Kind: api.IntentFind, Keywords: []string{"sprinkler"}, Confidence: 0.8}
	assert.Greater(t, s.textMatch(named, intent), s.textMatch(plain, intent),
		"keywords must match entity names, not just types")
}

func TestSpatialFactorPrefersRegionOverlap(t *testing.T) {
	region := api.Box{Min: api.Vec3{}, Max: api.Vec3{X: 5, Y: 5, Z: 5}}
	s := NewScorer(DefaultWeights, func(term string) (api.Box, bool) {
		if term == "north" {
			return region, true
		}
		return api.Box{}, false
	})
	now := time.Now()
	inside := testChunk("chunk-00000", "IfcWall", 5, "0,0,0", now)
	far := testChunk("chunk-00001", "IfcWall", 5, "9,0,0", now)
	far.Bounds = api.Box{Min: api.Vec3{X: 90}, Max: api.Vec3{X: 91, Y: 1, Z: 1}}

	intent := Classify("walls in the north wing")
	require.NotEmpty(t, intent.SpatialTerms)

	assert.Equal(t, 1.0, s.Score(inside, intent).Factors.Spatial)
	assert.Less(t, s.Score(far, intent).Factors.Spatial, 0.05)
}

func TestSpatialFactorNeutralWhenUnresolvable(t *testing.T) {
	s := NewScorer(DefaultWeights, func(string) (api.Box, bool) { return api.Box{}, false })
	intent := Classify("walls near the top")
	rc := s.Score(testChunk("chunk-00000", "IfcWall", 5, "0,0,0", time.Now()), intent)
	assert.Equal(t, neutralScore, rc.Factors.Spatial)
}

func TestRecencyDecays(t *testing.T) {
	s := NewScorer(DefaultWeights, nil)
	now := time.Now()
	fresh := s.Score(testChunk("chunk-00000", "IfcWall", 5, "0,0,0", now), api.QueryIntent{})
	stale := s.Score(testChunk("chunk-00001", "IfcWall", 5, "0,0,0", now.Add(-6*time.Hour)), api.QueryIntent{})
	assert.Greater(t, fresh.Factors.Recency, stale.Factors.Recency)
	assert.InDelta(t, 1.0, fresh.Factors.Recency, 0.01)
}

func TestRankTieBreaks(t *testing.T) {
	s := NewScorer(DefaultWeights, nil)
	now := time.Now()
	s.now = func() time.Time { return now }
	// Identical factors except entity count; then identical entirely.
	big := testChunk("chunk-00002", "IfcWall", 20, "0,0,0", now)
	small := testChunk("chunk-00001", "IfcWall", 5, "0,0,0", now)
	twinA := testChunk("chunk-00003", "IfcWall", 5, "0,0,0", now)
	twinB := testChunk("chunk-00004", "IfcWall", 5, "0,0,0", now)

	ranked := s.Rank([]*api.SmartChunk{twinB, small, twinA, big}, api.QueryIntent{})
	ids := []string{ranked[0].Chunk.ID, ranked[1].Chunk.ID, ranked[2].Chunk.ID, ranked[3].Chunk.ID}
	assert.Equal(t, []string{"chunk-00002", "chunk-00001", "chunk-00003", "chunk-00004"}, ids)
}
