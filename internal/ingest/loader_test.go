package ingest

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExport(t *testing.T, body string) *Loader {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "export.json", []byte(body), 0o644))
	return NewLoader(fs)
}

func TestLoadEntitiesRootArray(t *testing.T) {
	l := writeExport(t, `[
		{"express_id": 1, "type": "IfcWall", "name": "W1", "level": "Level 1",
		 "bounds": {"min": {"x": 0, "y": 0, "z": 0}, "max": {"x": 2, "y": 3, "z": 1}}},
		{"express_id": 2, "type": "IfcPipeSegment", "system": "Plumbing",
		 "bounds": {"min": [5, 0, 0], "max": [6, 1, 1]},
		 "properties": {"diameter": 110}}
	]`)

	ents, err := l.LoadEntities("export.json")
	require.NoError(t, err)
	require.Len(t, ents, 2)

	assert.Equal(t, uint32(1), ents[0].ExpressID)
	assert.Equal(t, "IfcWall", ents[0].Type)
	assert.Equal(t, "Level 1", ents[0].Level)
	assert.Equal(t, 3.0, ents[0].Bounds.Max.Y)

	assert.Equal(t, "Plumbing", ents[1].System)
	assert.Equal(t, 5.0, ents[1].Bounds.Min.X)
	assert.Contains(t, ents[1].Properties, "diameter")
}

func TestLoadEntitiesSelector(t *testing.T) {
	l := writeExport(t, `{
		"schema": "ifc4",
		"entities": [
			{"express_id": 7, "type": "IfcDoor",
			 "bounds": {"min": [0, 0, 0], "max": [1, 2, 0.2]}}
		]
	}`)

	ents, err := l.LoadEntities("export.json")
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, uint32(7), ents[0].ExpressID)
}

func TestLoadEntitiesRejectsMissingFields(t *testing.T) {
	for name, body := range map[string]string{
		"no express_id": `[{"type": "IfcWall", "bounds": {"min": [0,0,0], "max": [1,1,1]}}]`,
		"no type":       `[{"express_id": 3, "bounds": {"min": [0,0,0], "max": [1,1,1]}}]`,
		"no bounds":     `[{"express_id": 3, "type": "IfcWall"}]`,
		"short vector":  `[{"express_id": 3, "type": "IfcWall", "bounds": {"min": [0,0], "max": [1,1,1]}}]`,
	} {
		l := writeExport(t, body)
		_, err := l.LoadEntities("export.json")
		assert.Error(t, err, name)
	}
}

func TestLoadEntitiesMissingFile(t *testing.T) {
	l := NewLoader(memfs.New())
	_, err := l.LoadEntities("absent.json")
	assert.Error(t, err)
}
