package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentic-research/strata/api"
	"github.com/agentic-research/strata/internal/events"
	"github.com/agentic-research/strata/internal/index"
	"github.com/agentic-research/strata/internal/octree"
	"github.com/agentic-research/strata/internal/query"
	"github.com/agentic-research/strata/internal/snapshot"
)

// Env is what the handlers read from. Weights and Regions configure the
// retrieval pipeline built per call against the current snapshot.
type Env struct {
	Models  *snapshot.Manager
	Bus     *events.Bus
	Weights query.Weights
	Regions query.RegionResolver
	Log     *slog.Logger
}

// RegisterAll wires the standard tool set into a registry.
func RegisterAll(r *Registry, env *Env) {
	r.Register(&queryEntitiesTool{env})
	r.Register(&countEntitiesTool{env})
	r.Register(&spatialQueryTool{env})
	r.Register(&getContextTool{env})
	r.Register(&highlightTool{env})
}

func (e *Env) current() (*snapshot.Model, error) {
	m := e.Models.Current()
	if m == nil {
		return nil, ErrNoModel
	}
	return m, nil
}

func (e *Env) engine(m *snapshot.Model) *query.Engine {
	scorer := query.NewScorer(e.Weights, e.Regions)
	assembler := query.NewAssembler(m.Cache, len(m.Entities))
	return query.NewEngine(m.Indices, scorer, assembler, e.Log)
}

// entityFilter is shared by query_entities and count_entities.
type entityFilter struct {
	EntityType string `json:"entity_type,omitempty"`
	Level      string `json:"level,omitempty"`
	System     string `json:"system,omitempty"`
}

func (f *entityFilter) validate() error {
	if f.EntityType == "" && f.Level == "" && f.System == "" {
		return errors.New("at least one of entity_type, level, system is required")
	}
	return nil
}

// matches applies the filter to one entity.
func (f *entityFilter) matches(e *api.Entity) bool {
	if f.EntityType != "" && !strings.EqualFold(e.Type, f.EntityType) {
		return false
	}
	if f.Level != "" && !strings.EqualFold(e.Level, f.Level) {
		return false
	}
	if f.System != "" && !strings.EqualFold(e.System, f.System) {
		return false
	}
	return true
}

// candidates narrows to chunks the indices say can match, then filters
// hydrated members exactly.
func (f *entityFilter) candidates(m *snapshot.Model) ([]api.Entity, error) {
	set := m.Indices.All()
	if f.EntityType != "" {
		set.And(m.Indices.Lookup(index.ByType, f.EntityType))
	}
	if f.Level != "" {
		set.And(m.Indices.Lookup(index.ByLevel, f.Level))
	}
	if f.System != "" {
		set.And(m.Indices.Lookup(index.BySystem, f.System))
	}

	var out []api.Entity
	for _, c := range m.Indices.Chunks(set) {
		ents, err := m.Cache.Get(c.ID)
		if err != nil {
			return nil, err
		}
		for i := range ents {
			if f.matches(&ents[i]) {
				out = append(out, ents[i])
			}
		}
	}
	return out, nil
}

// query_entities

type queryEntitiesParams struct {
	entityFilter
	Limit int `json:"limit,omitempty"`
}

func (p *queryEntitiesParams) Validate() error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.Limit < 0 {
		return errors.New("limit must be non-negative")
	}
	return nil
}

type queryEntitiesTool struct{ env *Env }

func (t *queryEntitiesTool) Name() string { return "query_entities" }
func (t *queryEntitiesTool) Description() string {
	return "List entities matching an entity_type, level, or system filter."
}
func (t *queryEntitiesTool) NewParams() Params { return &queryEntitiesParams{} }

type entitySummary struct {
	ExpressID uint32 `json:"express_id"`
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	Level     string `json:"level,omitempty"`
	System    string `json:"system,omitempty"`
}

type queryEntitiesResult struct {
	Total    int             `json:"total"`
	Entities []entitySummary `json:"entities"`
}

func (t *queryEntitiesTool) Execute(ctx context.Context, p Params) (any, error) {
	params := p.(*queryEntitiesParams)
	m, err := t.env.current()
	if err != nil {
		return nil, err
	}
	ents, err := params.candidates(m)
	if err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit == 0 || limit > 50 {
		limit = 50
	}
	res := queryEntitiesResult{Total: len(ents)}
	for i, e := range ents {
		if i >= limit {
			break
		}
		res.Entities = append(res.Entities, entitySummary{
			ExpressID: e.ExpressID, Type: e.Type, Name: e.Name,
			Level: e.Level, System: e.System,
		})
	}
	return res, nil
}

// count_entities

type countEntitiesParams struct {
	entityFilter
}

func (p *countEntitiesParams) Validate() error { return p.validate() }

type countEntitiesTool struct{ env *Env }

func (t *countEntitiesTool) Name() string { return "count_entities" }
func (t *countEntitiesTool) Description() string {
	return "Count entities matching an entity_type, level, or system filter."
}
func (t *countEntitiesTool) NewParams() Params { return &countEntitiesParams{} }

func (t *countEntitiesTool) Execute(ctx context.Context, p Params) (any, error) {
	params := p.(*countEntitiesParams)
	m, err := t.env.current()
	if err != nil {
		return nil, err
	}
	ents, err := params.candidates(m)
	if err != nil {
		return nil, err
	}
	return map[string]int{"count": len(ents)}, nil
}

// spatial_query

type spatialQueryParams struct {
	Shape      string    `json:"shape"`
	Min        *api.Vec3 `json:"min,omitempty"`
	Max        *api.Vec3 `json:"max,omitempty"`
	Center     *api.Vec3 `json:"center,omitempty"`
	Radius     float64   `json:"radius,omitempty"`
	Point      *api.Vec3 `json:"point,omitempty"`
	K          int       `json:"k,omitempty"`
	MaxResults int       `json:"max_results,omitempty"`
}

func (p *spatialQueryParams) Validate() error {
	switch p.Shape {
	case "box":
		if p.Min == nil || p.Max == nil {
			return errors.New("box shape requires min and max")
		}
	case "sphere":
		if p.Center == nil || p.Radius <= 0 {
			return errors.New("sphere shape requires center and positive radius")
		}
	case "nearest":
		if p.Point == nil || p.K <= 0 {
			return errors.New("nearest shape requires point and positive k")
		}
	default:
		return fmt.Errorf("unknown shape %q", p.Shape)
	}
	return nil
}

type spatialQueryTool struct{ env *Env }

func (t *spatialQueryTool) Name() string { return "spatial_query" }
func (t *spatialQueryTool) Description() string {
	return "Query the spatial index with a box, sphere, or nearest-k shape."
}
func (t *spatialQueryTool) NewParams() Params { return &spatialQueryParams{} }

type spatialQueryResult struct {
	ExpressIDs   []uint32 `json:"express_ids"`
	NodesVisited int      `json:"nodes_visited"`
	ElapsedMs    int64    `json:"elapsed_ms"`
}

func (t *spatialQueryTool) Execute(ctx context.Context, p Params) (any, error) {
	params := p.(*spatialQueryParams)
	m, err := t.env.current()
	if err != nil {
		return nil, err
	}

	maxResults := params.MaxResults
	if maxResults == 0 {
		maxResults = 1000
	}

	var res octree.Result
	switch params.Shape {
	case "box":
		res = m.Tree.Query(octree.BoxShape{Box: api.Box{Min: *params.Min, Max: *params.Max}}, maxResults)
	case "sphere":
		res = m.Tree.Query(octree.Sphere{Center: *params.Center, Radius: params.Radius}, maxResults)
	case "nearest":
		res = m.Tree.Nearest(*params.Point, params.K)
	}
	return spatialQueryResult{
		ExpressIDs:   res.Entities,
		NodesVisited: res.NodesVisited,
		ElapsedMs:    res.Elapsed.Milliseconds(),
	}, nil
}

// get_context

type getContextParams struct {
	Query     string `json:"query"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
}

func (p *getContextParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return errors.New("query is required")
	}
	switch p.Strategy {
	case "", query.SelectGreedy, query.SelectBalanced, query.SelectDiverse:
	default:
		return fmt.Errorf("unknown strategy %q", p.Strategy)
	}
	if p.MaxTokens < 0 {
		return errors.New("max_tokens must be non-negative")
	}
	return nil
}

type getContextTool struct{ env *Env }

func (t *getContextTool) Name() string { return "get_context" }
func (t *getContextTool) Description() string {
	return "Retrieve a token-bounded context of relevant chunks for a question."
}
func (t *getContextTool) NewParams() Params { return &getContextParams{} }

type getContextResult struct {
	Text     string  `json:"text"`
	Chunks   int     `json:"chunks"`
	Tokens   int     `json:"tokens"`
	Coverage float64 `json:"coverage"`
	Strategy string  `json:"strategy"`
}

func (t *getContextTool) Execute(ctx context.Context, p Params) (any, error) {
	params := p.(*getContextParams)
	m, err := t.env.current()
	if err != nil {
		return nil, err
	}

	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}
	strategy := params.Strategy
	if strategy == "" {
		strategy = query.SelectGreedy
	}

	res := t.env.engine(m).Retrieve(params.Query, maxTokens, strategy, query.DefaultFormatting)
	return getContextResult{
		Text:     res.Context.Text(),
		Chunks:   res.Context.ChunkCount,
		Tokens:   res.Context.TokenCount,
		Coverage: res.Context.Coverage,
		Strategy: res.Plan.Strategy,
	}, nil
}

// highlight_entities

type highlightParams struct {
	ExpressIDs []uint32 `json:"express_ids"`
}

func (p *highlightParams) Validate() error {
	if len(p.ExpressIDs) == 0 {
		return errors.New("express_ids is required")
	}
	return nil
}

type highlightTool struct{ env *Env }

func (t *highlightTool) Name() string { return "highlight_entities" }
func (t *highlightTool) Description() string {
	return "Ask the embedding layer to highlight entities by express ID."
}
func (t *highlightTool) NewParams() Params { return &highlightParams{} }

func (t *highlightTool) Execute(ctx context.Context, p Params) (any, error) {
	params := p.(*highlightParams)
	m, err := t.env.current()
	if err != nil {
		return nil, err
	}

	var globals []string
	for _, id := range params.ExpressIDs {
		if e, ok := m.Entity(id); ok && e.GlobalID != "" {
			globals = append(globals, e.GlobalID)
		}
	}
	t.env.Bus.Publish(events.HighlightEntities, events.HighlightPayload{
		ExpressIDs: params.ExpressIDs,
		GlobalIDs:  globals,
	})
	return map[string]int{"highlighted": len(params.ExpressIDs)}, nil
}
