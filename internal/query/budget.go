package query

import (
	"github.com/agentic-research/strata/api"
)

// Selection strategies for the budget allocator.
const (
	SelectGreedy   = "greedy"
	SelectBalanced = "balanced"
	SelectDiverse  = "diverse"
)

// balancedTypeCap bounds chunks per dominant type under the balanced
// strategy before the remainder is filled greedily.
const balancedTypeCap = 3

// Diversity penalties applied per already-represented key.
const (
	diversityBucketPenalty = 0.5
	diversityTypePenalty   = 0.7
)

// Select picks a chunk subset whose token total never exceeds
// maxTokens. All strategies are deterministic given identical inputs.
// Oversized chunks are skipped, not stopped on, so a single huge chunk
// cannot starve the rest of the budget.
func Select(ranked []api.RankedChunk, maxTokens int, strategy string) []*api.SmartChunk {
	switch strategy {
	case SelectBalanced:
		return selectBalanced(ranked, maxTokens)
	case SelectDiverse:
		return selectDiverse(ranked, maxTokens)
	default:
		return selectGreedy(ranked, maxTokens)
	}
}

func selectGreedy(ranked []api.RankedChunk, maxTokens int) []*api.SmartChunk {
	var out []*api.SmartChunk
	spent := 0
	for _, rc := range ranked {
		if spent+rc.Chunk.TokenCount > maxTokens {
			continue
		}
		out = append(out, rc.Chunk)
		spent += rc.Chunk.TokenCount
	}
	return out
}

func selectBalanced(ranked []api.RankedChunk, maxTokens int) []*api.SmartChunk {
	var out []*api.SmartChunk
	var overflow []api.RankedChunk
	perType := map[string]int{}
	spent := 0

	for _, rc := range ranked {
		dom := rc.Chunk.DominantType()
		if perType[dom] >= balancedTypeCap {
			overflow = append(overflow, rc)
			continue
		}
		if spent+rc.Chunk.TokenCount > maxTokens {
			continue
		}
		out = append(out, rc.Chunk)
		perType[dom]++
		spent += rc.Chunk.TokenCount
	}

	// Whatever budget the cap left unused goes to the best remainder.
	for _, rc := range overflow {
		if spent+rc.Chunk.TokenCount > maxTokens {
			continue
		}
		out = append(out, rc.Chunk)
		spent += rc.Chunk.TokenCount
	}
	return out
}

// selectDiverse re-scores the remaining candidates after every pick,
// multiplying in a penalty for each already-represented spatial bucket
// and type. The repeated argmax is a submodular-style greedy pick.
func selectDiverse(ranked []api.RankedChunk, maxTokens int) []*api.SmartChunk {
	remaining := make([]api.RankedChunk, len(ranked))
	copy(remaining, ranked)

	var out []*api.SmartChunk
	spent := 0
	buckets := map[string]bool{}
	types := map[string]bool{}

	for len(remaining) > 0 {
		bestIdx, bestScore := -1, -1.0
		for i, rc := range remaining {
			if spent+rc.Chunk.TokenCount > maxTokens {
				continue
			}
			score := rc.Score
			if buckets[rc.Chunk.SpatialBucket] {
				score *= diversityBucketPenalty
			}
			if types[rc.Chunk.DominantType()] {
				score *= diversityTypePenalty
			}
			if score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		if bestIdx < 0 {
			break
		}
		pick := remaining[bestIdx]
		out = append(out, pick.Chunk)
		spent += pick.Chunk.TokenCount
		buckets[pick.Chunk.SpatialBucket] = true
		types[pick.Chunk.DominantType()] = true
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return out
}
