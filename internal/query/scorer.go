package query

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/agentic-research/strata/api"
)

// Weights tune the relevance factors. They must sum to 1.
type Weights struct {
	TextMatch     float64 `hcl:"text_match,optional"`
	EntityMatch   float64 `hcl:"entity_match,optional"`
	Spatial       float64 `hcl:"spatial,optional"`
	Recency       float64 `hcl:"recency,optional"`
	TypeAlignment float64 `hcl:"type_alignment,optional"`
}

// DefaultWeights favor what the query literally asked for over
// circumstantial signals.
var DefaultWeights = Weights{
	TextMatch:     0.30,
	EntityMatch:   0.30,
	Spatial:       0.20,
	Recency:       0.10,
	TypeAlignment: 0.10,
}

// Valid reports whether the weights sum to 1 within tolerance.
func (w Weights) Valid() bool {
	sum := w.TextMatch + w.EntityMatch + w.Spatial + w.Recency + w.TypeAlignment
	return math.Abs(sum-1) < 1e-6
}

// neutralScore is used when a factor has no signal to measure, so that
// absence of evidence neither rewards nor punishes a chunk.
const neutralScore = 0.5

// recencyHalfLife controls the decay of the recency factor.
const recencyHalfLife = time.Hour

// Scorer ranks chunks against an intent. Region resolves spatial terms
// to a bounding box; a nil resolver leaves the spatial factor neutral.
type Scorer struct {
	weights Weights
	region  RegionResolver
	now     func() time.Time
}

// RegionResolver maps a spatial vocabulary term to a model region.
type RegionResolver func(term string) (api.Box, bool)

func NewScorer(w Weights, region RegionResolver) *Scorer {
	return &Scorer{weights: w, region: region, now: time.Now}
}

// Score computes the five relevance factors and their weighted sum.
func (s *Scorer) Score(c *api.SmartChunk, intent api.QueryIntent) api.RankedChunk {
	f := api.ScoreFactors{
		TextMatch:     s.textMatch(c, intent),
		EntityMatch:   s.entityMatch(c, intent),
		Spatial:       s.spatial(c, intent),
		Recency:       s.recency(c),
		TypeAlignment: s.typeAlignment(c, intent),
	}
	score := f.TextMatch*s.weights.TextMatch +
		f.EntityMatch*s.weights.EntityMatch +
		f.Spatial*s.weights.Spatial +
		f.Recency*s.weights.Recency +
		f.TypeAlignment*s.weights.TypeAlignment
	return api.RankedChunk{Chunk: c, Score: score, Factors: f}
}

// Rank scores every candidate and sorts descending. Ties break on
// entity count, then chunk ID, so identical inputs rank identically.
func (s *Scorer) Rank(chunks []*api.SmartChunk, intent api.QueryIntent) []api.RankedChunk {
	ranked := make([]api.RankedChunk, len(chunks))
	for i, c := range chunks {
		ranked[i] = s.Score(c, intent)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		ni, nj := len(ranked[i].Chunk.EntityIDs), len(ranked[j].Chunk.EntityIDs)
		if ni != nj {
			return ni > nj
		}
		return ranked[i].Chunk.ID < ranked[j].Chunk.ID
	})
	return ranked
}

func (s *Scorer) textMatch(c *api.SmartChunk, intent api.QueryIntent) float64 {
	if len(intent.Keywords) == 0 {
		return neutralScore
	}
	parts := make([]string, 0, len(c.Types)+len(c.Metadata.SampleNames)+1)
	parts = append(parts, c.Types...)
	parts = append(parts, c.Metadata.SampleNames...)
	parts = append(parts, c.ID)
	haystack := strings.ToLower(strings.Join(parts, " "))
	matched := 0
	for _, kw := range intent.Keywords {
		if strings.Contains(haystack, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(intent.Keywords))
}

func (s *Scorer) entityMatch(c *api.SmartChunk, intent api.QueryIntent) float64 {
	if len(intent.EntityTypes) == 0 {
		return neutralScore
	}
	present := make(map[string]bool, len(c.Types))
	for _, t := range c.Types {
		present[strings.ToLower(t)] = true
	}
	matched := 0
	for _, t := range intent.EntityTypes {
		if present[strings.ToLower(t)] {
			matched++
		}
	}
	return float64(matched) / float64(len(intent.EntityTypes))
}

func (s *Scorer) spatial(c *api.SmartChunk, intent api.QueryIntent) float64 {
	if len(intent.SpatialTerms) == 0 || s.region == nil {
		return neutralScore
	}
	best := -1.0
	for _, term := range intent.SpatialTerms {
		region, ok := s.region(term)
		if !ok {
			continue
		}
		var v float64
		if region.Intersects(c.Bounds) {
			v = 1
		} else {
			d := boxDistance(region, c.Bounds)
			v = 1 / (1 + d)
		}
		if v > best {
			best = v
		}
	}
	if best < 0 {
		// No term resolved to a region.
		return neutralScore
	}
	return best
}

func (s *Scorer) recency(c *api.SmartChunk) float64 {
	age := s.now().Sub(c.CreatedAt)
	if age < 0 {
		age = 0
	}
	return math.Exp2(-float64(age) / float64(recencyHalfLife))
}

func (s *Scorer) typeAlignment(c *api.SmartChunk, intent api.QueryIntent) float64 {
	dom := strings.ToLower(c.DominantType())
	switch intent.Kind {
	case api.IntentSystem:
		if strings.Contains(dom, "pipe") || strings.Contains(dom, "duct") ||
			strings.Contains(dom, "flow") {
			return 1
		}
		return 0
	case api.IntentCount, api.IntentFind:
		for _, t := range intent.EntityTypes {
			if strings.ToLower(t) == dom {
				return 1
			}
		}
		if len(intent.EntityTypes) == 0 {
			return neutralScore
		}
		return 0
	case api.IntentSpatial:
		if c.Metadata.HasGeometry {
			return 1
		}
		return 0
	default:
		return neutralScore
	}
}

// boxDistance is the minimum distance between two axis-aligned boxes.
func boxDistance(a, b api.Box) float64 {
	dx := axisGap(a.Min.X, a.Max.X, b.Min.X, b.Max.X)
	dy := axisGap(a.Min.Y, a.Max.Y, b.Min.Y, b.Max.Y)
	dz := axisGap(a.Min.Z, a.Max.Z, b.Min.Z, b.Max.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func axisGap(aMin, aMax, bMin, bMax float64) float64 {
	if aMax < bMin {
		return bMin - aMax
	}
	if bMax < aMin {
		return aMin - bMax
	}
	return 0
}
