package query

import (
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/strata/api"
	"github.com/agentic-research/strata/internal/chunk"
	"github.com/agentic-research/strata/internal/index"
)

// Strategies a plan can carry.
const (
	StrategySingleIndex = "single-index"
	StrategyMultiIndex  = "multi-index"
	StrategyFullScan    = "full-scan"
)

// Step operations.
const (
	OpLookup = "lookup"
	OpScan   = "scan"
	OpFilter = "filter"
)

// minPlanConfidence is the classifier confidence below which the
// planner refuses index probes and scans everything.
const minPlanConfidence = 0.3

// PlanStep is one index probe. EstimatedResults and Cost come from
// index statistics, not from touching the data.
type PlanStep struct {
	Index            string   `json:"index"`
	Op               string   `json:"op"`
	Keys             []string `json:"keys"`
	EstimatedResults float64  `json:"estimated_results"`
	Cost             float64  `json:"cost"`
}

// Plan is an ordered, cost-estimated probe sequence. Steps run
// most-selective-first; multi-index plans intersect their result sets.
type Plan struct {
	Strategy       string     `json:"strategy"`
	Steps          []PlanStep `json:"steps"`
	EstimatedCost  float64    `json:"estimated_cost"`
	Parallelizable bool       `json:"parallelizable"`
}

// Plan chooses the cheapest viable strategy for an intent. A full scan
// always remains viable at cost = total chunk count, which gives every
// alternative a uniform baseline to beat.
func (p *Planner) Plan(intent api.QueryIntent) Plan {
	stats := p.indices.Stats()
	fullScan := Plan{
		Strategy: StrategyFullScan,
		Steps: []PlanStep{{
			Index:            index.FullScan,
			Op:               OpScan,
			EstimatedResults: float64(stats.TotalChunks),
			Cost:             float64(stats.TotalChunks),
		}},
		EstimatedCost: float64(stats.TotalChunks),
	}
	if intent.Confidence < minPlanConfidence {
		return fullScan
	}

	var steps []PlanStep
	if len(intent.EntityTypes) > 0 {
		steps = append(steps, p.step(index.ByType, intent.EntityTypes, stats))
	}
	if len(intent.SystemTerms) > 0 {
		steps = append(steps, p.step(index.BySystem, intent.SystemTerms, stats))
	}
	if keys := p.levelKeys(intent); len(keys) > 0 {
		steps = append(steps, p.step(index.ByLevel, keys, stats))
	}
	if keys := p.bucketKeys(intent); len(keys) > 0 {
		steps = append(steps, p.step(index.ByBucket, keys, stats))
	}
	if len(steps) == 0 {
		return fullScan
	}

	// Most selective first keeps intermediate intersections small.
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].EstimatedResults < steps[j].EstimatedResults
	})

	plan := Plan{Strategy: StrategySingleIndex, Steps: steps}
	for _, s := range steps {
		plan.EstimatedCost += s.Cost
	}
	if len(steps) > 1 {
		plan.Strategy = StrategyMultiIndex
		// Probes are independent reads; a hint only, nothing batches yet.
		plan.Parallelizable = true
	}
	if plan.EstimatedCost >= fullScan.EstimatedCost {
		return fullScan
	}
	return plan
}

// Planner derives probe plans from intents and an index snapshot.
// A region resolver, when present, lets spatial terms probe the
// spatial-bucket index instead of falling through to the scorer.
type Planner struct {
	indices *index.Collection
	regions RegionResolver
}

func NewPlanner(indices *index.Collection, regions RegionResolver) *Planner {
	return &Planner{indices: indices, regions: regions}
}

func (p *Planner) step(name string, keys []string, stats index.Stats) PlanStep {
	est := stats.AvgPostings[name] * float64(len(keys))
	if max := float64(stats.TotalChunks); est > max {
		est = max
	}
	return PlanStep{
		Index:            name,
		Op:               OpLookup,
		Keys:             keys,
		EstimatedResults: est,
		Cost:             est + 1,
	}
}

// levelKeys keeps only spatial terms that actually name a level index
// key. Directional terms ("north", "above") have no level posting set;
// they take the bucket probe when a region resolves, and are
// resolved later by the scorer's spatial factor.
func (p *Planner) levelKeys(intent api.QueryIntent) []string {
	var keys []string
	for _, t := range intent.SpatialTerms {
		if p.indices.HasKey(index.ByLevel, t) {
			keys = append(keys, t)
		}
	}
	return keys
}

// maxBucketProbe bounds how many grid cells one region may expand to.
// Larger regions intersect so much of the model that probing stops
// paying off; the scorer's spatial factor handles them instead.
const maxBucketProbe = 64

// bucketKeys expands resolved spatial regions into the grid cells they
// cover, keeping only cells with a posting set. Terms that name a level
// are left to the level step.
func (p *Planner) bucketKeys(intent api.QueryIntent) []string {
	if p.regions == nil {
		return nil
	}
	seen := map[string]bool{}
	var keys []string
	for _, t := range intent.SpatialTerms {
		if p.indices.HasKey(index.ByLevel, t) {
			continue
		}
		box, ok := p.regions(t)
		if !ok {
			continue
		}
		for _, k := range coveringBuckets(box) {
			if !seen[k] && p.indices.HasKey(index.ByBucket, k) {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// coveringBuckets lists the coarse grid cells a box overlaps, in a
// deterministic order. Returns nil when the box covers more than
// maxBucketProbe cells.
func coveringBuckets(b api.Box) []string {
	x0, x1 := bucketRange(b.Min.X, b.Max.X)
	y0, y1 := bucketRange(b.Min.Y, b.Max.Y)
	z0, z1 := bucketRange(b.Min.Z, b.Max.Z)
	n := (x1 - x0 + 1) * (y1 - y0 + 1) * (z1 - z0 + 1)
	if n <= 0 || n > maxBucketProbe {
		return nil
	}
	keys := make([]string, 0, n)
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			for z := z0; z <= z1; z++ {
				keys = append(keys, fmt.Sprintf("%d,%d,%d", x, y, z))
			}
		}
	}
	return keys
}

func bucketRange(lo, hi float64) (int, int) {
	return int(math.Floor(lo / chunk.BucketSize)), int(math.Floor(hi / chunk.BucketSize))
}

// Execute runs a plan against the index snapshot and returns the
// candidate set. Lookup steps union their keys' posting sets, then
// successive steps intersect.
func (p *Planner) Execute(plan Plan) *roaring.Bitmap {
	if plan.Strategy == StrategyFullScan {
		return p.indices.All()
	}
	var result *roaring.Bitmap
	for _, s := range plan.Steps {
		step := roaring.New()
		for _, k := range s.Keys {
			step.Or(p.indices.Lookup(s.Index, k))
		}
		if result == nil {
			result = step
			continue
		}
		result.And(step)
		if result.IsEmpty() {
			break
		}
	}
	if result == nil {
		return p.indices.All()
	}
	return result
}
