// Package ingest reads entity records from exported model JSON. The
// filesystem is abstracted behind billy so tests and embedders can
// feed in-memory trees.
package ingest

import (
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/strata/api"
)

// DefaultSelector locates entity records in an export document whose
// root is not already an array.
const DefaultSelector = "$.entities[*]"

// Loader parses entity exports.
type Loader struct {
	fs billy.Filesystem
}

func NewLoader(fs billy.Filesystem) *Loader {
	return &Loader{fs: fs}
}

// LoadEntities reads one export file with the default selector.
func (l *Loader) LoadEntities(path string) ([]api.Entity, error) {
	return l.LoadEntitiesSelector(path, DefaultSelector)
}

// LoadEntitiesSelector reads one export file, applying a JSONPath
// selector to locate the records. A root-level array skips the
// selector entirely.
func (l *Loader) LoadEntitiesSelector(path, selector string) ([]api.Entity, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export %s: %w", path, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read export %s: %w", path, err)
	}
	root, err := oj.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse export %s: %w", path, err)
	}

	var records []any
	if arr, ok := root.([]any); ok {
		records = arr
	} else {
		x, err := jp.ParseString(selector)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
		}
		records = x.Get(root)
	}

	ents := make([]api.Entity, 0, len(records))
	for i, rec := range records {
		e, err := decodeEntity(rec)
		if err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", path, i, err)
		}
		ents = append(ents, e)
	}
	return ents, nil
}

func decodeEntity(rec any) (api.Entity, error) {
	m, ok := rec.(map[string]any)
	if !ok {
		return api.Entity{}, fmt.Errorf("expected object, got %T", rec)
	}

	id, ok := asUint32(m["express_id"])
	if !ok || id == 0 {
		return api.Entity{}, fmt.Errorf("missing express_id")
	}
	typ, _ := m["type"].(string)
	if typ == "" {
		return api.Entity{}, fmt.Errorf("entity %d: missing type", id)
	}

	e := api.Entity{ExpressID: id, Type: typ}
	e.GlobalID, _ = m["global_id"].(string)
	e.Name, _ = m["name"].(string)
	e.Level, _ = m["level"].(string)
	e.System, _ = m["system"].(string)
	if props, ok := m["properties"].(map[string]any); ok {
		e.Properties = props
	}

	bounds, err := decodeBox(m["bounds"])
	if err != nil {
		return api.Entity{}, fmt.Errorf("entity %d: %w", id, err)
	}
	e.Bounds = bounds
	return e, nil
}

// decodeBox accepts both {"min":{"x":..},"max":{..}} and
// {"min":[x,y,z],"max":[x,y,z]} layouts; exporters disagree.
func decodeBox(v any) (api.Box, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return api.Box{}, fmt.Errorf("missing bounds")
	}
	min, err := decodeVec(m["min"])
	if err != nil {
		return api.Box{}, fmt.Errorf("bounds min: %w", err)
	}
	max, err := decodeVec(m["max"])
	if err != nil {
		return api.Box{}, fmt.Errorf("bounds max: %w", err)
	}
	return api.Box{Min: min, Max: max}, nil
}

func decodeVec(v any) (api.Vec3, error) {
	switch t := v.(type) {
	case map[string]any:
		x, okX := asFloat(t["x"])
		y, okY := asFloat(t["y"])
		z, okZ := asFloat(t["z"])
		if !okX || !okY || !okZ {
			return api.Vec3{}, fmt.Errorf("non-numeric component")
		}
		return api.Vec3{X: x, Y: y, Z: z}, nil
	case []any:
		if len(t) != 3 {
			return api.Vec3{}, fmt.Errorf("want 3 components, got %d", len(t))
		}
		x, okX := asFloat(t[0])
		y, okY := asFloat(t[1])
		z, okZ := asFloat(t[2])
		if !okX || !okY || !okZ {
			return api.Vec3{}, fmt.Errorf("non-numeric component")
		}
		return api.Vec3{X: x, Y: y, Z: z}, nil
	default:
		return api.Vec3{}, fmt.Errorf("unsupported vector %T", v)
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

func asUint32(v any) (uint32, bool) {
	f, ok := asFloat(v)
	if !ok || f < 0 {
		return 0, false
	}
	return uint32(f), true
}
