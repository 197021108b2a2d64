package api

import "time"

// Vec3 is a point or direction in model space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// Center returns the midpoint of the box.
func (b Box) Center() Vec3 {
	return Vec3{
		X: (b.Min.X + b.Max.X) / 2,
		Y: (b.Min.Y + b.Max.Y) / 2,
		Z: (b.Min.Z + b.Max.Z) / 2,
	}
}

// Union returns the smallest box containing both b and o.
func (b Box) Union(o Box) Box {
	return Box{
		Min: Vec3{X: min(b.Min.X, o.Min.X), Y: min(b.Min.Y, o.Min.Y), Z: min(b.Min.Z, o.Min.Z)},
		Max: Vec3{X: max(b.Max.X, o.Max.X), Y: max(b.Max.Y, o.Max.Y), Z: max(b.Max.Z, o.Max.Z)},
	}
}

// Intersects reports whether two boxes overlap (touching counts).
func (b Box) Intersects(o Box) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// Contains reports whether p lies inside the box (boundary included).
func (b Box) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Entity is one geometric/semantic record from a loaded building model.
// Entities are immutable after ingestion.
type Entity struct {
	// ExpressID is the stable per-model identifier.
	ExpressID uint32 `json:"express_id"`
	// GlobalID is the optional cross-model identifier (IFC GUID), may be empty.
	GlobalID string `json:"global_id,omitempty"`
	// Type is the entity type tag (e.g. "IfcWall").
	Type string `json:"type"`
	// Name is the human-readable label, may be empty.
	Name string `json:"name,omitempty"`
	// Bounds is the entity's axis-aligned bounding box.
	Bounds Box `json:"bounds"`
	// Level is the building storey this entity belongs to, may be empty.
	Level string `json:"level,omitempty"`
	// System is the building system tag (e.g. "hvac"), may be empty.
	System string `json:"system,omitempty"`
	// Properties is the optional free-form property bag.
	Properties map[string]any `json:"properties,omitempty"`
}

// ChunkMetadata carries derived facts about a chunk's contents.
type ChunkMetadata struct {
	TypeHistogram map[string]int `json:"type_histogram"`
	// SampleNames holds a few distinct entity names so keyword scoring
	// can see chunk content without hydrating the payload.
	SampleNames  []string `json:"sample_names,omitempty"`
	Complexity   float64  `json:"complexity"`
	HasGeometry  bool     `json:"has_geometry"`
	MinExpressID uint32   `json:"min_express_id"`
	MaxExpressID uint32   `json:"max_express_id"`
}

// SmartChunk is a token-bounded subset of entities, the unit of retrieval.
type SmartChunk struct {
	ID          string        `json:"id"`
	Bounds      Box           `json:"bounds"`
	EntityIDs   []uint32      `json:"entity_ids"`
	Types       []string      `json:"types"`
	TokenCount  int           `json:"token_count"`
	SizeBytes   int           `json:"size_bytes"`
	Compression string        `json:"compression"`
	CreatedAt   time.Time     `json:"created_at"`
	Metadata    ChunkMetadata `json:"metadata"`
	// SpatialBucket is the coarse grid cell this chunk's centroid falls in.
	SpatialBucket string `json:"spatial_bucket"`
}

// DominantType returns the most frequent entity type in the chunk,
// breaking ties alphabetically.
func (c *SmartChunk) DominantType() string {
	best, bestN := "", -1
	for t, n := range c.Metadata.TypeHistogram {
		if n > bestN || (n == bestN && t < best) {
			best, bestN = t, n
		}
	}
	return best
}

// IntentKind classifies what a query is asking for.
type IntentKind string

const (
	IntentCount   IntentKind = "count"
	IntentFind    IntentKind = "find"
	IntentSpatial IntentKind = "spatial"
	IntentSystem  IntentKind = "system"
	IntentGeneral IntentKind = "general"
)

// QueryIntent is the structured interpretation of one free-text query.
type QueryIntent struct {
	Kind         IntentKind `json:"kind"`
	EntityTypes  []string   `json:"entity_types,omitempty"`
	Keywords     []string   `json:"keywords,omitempty"`
	SpatialTerms []string   `json:"spatial_terms,omitempty"`
	SystemTerms  []string   `json:"system_terms,omitempty"`
	// Confidence in [0,1]; low confidence triggers the planner's full scan.
	Confidence float64 `json:"confidence"`
}

// ScoreFactors are the per-factor components of a chunk's relevance,
// each normalized to [0,1].
type ScoreFactors struct {
	TextMatch     float64 `json:"text_match"`
	EntityMatch   float64 `json:"entity_match"`
	Spatial       float64 `json:"spatial"`
	Recency       float64 `json:"recency"`
	TypeAlignment float64 `json:"type_alignment"`
}

// RankedChunk pairs a chunk with its relevance score.
type RankedChunk struct {
	Chunk   *SmartChunk  `json:"chunk"`
	Score   float64      `json:"score"`
	Factors ScoreFactors `json:"factors"`
}

// AssembledContext is the formatted, budget-bounded context for one query.
type AssembledContext struct {
	Header      string         `json:"header"`
	Blocks      []string       `json:"blocks"`
	ChunkCount  int            `json:"chunk_count"`
	TokenCount  int            `json:"token_count"`
	Coverage    float64        `json:"coverage"`
	TypeCounts  map[string]int `json:"type_counts"`
	TokensPerID map[string]int `json:"tokens_per_chunk"`
}

// Text joins the header and blocks into the final prompt section.
func (a *AssembledContext) Text() string {
	out := a.Header
	for _, b := range a.Blocks {
		out += "\n\n" + b
	}
	return out
}
