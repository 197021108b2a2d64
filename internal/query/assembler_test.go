package query

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/strata/api"
	"github.com/agentic-research/strata/internal/chunk"
)

type fakeSource struct {
	payloads map[string][]api.Entity
}

func (f *fakeSource) Get(chunkID string) ([]api.Entity, error) {
	if ents, ok := f.payloads[chunkID]; ok {
		return ents, nil
	}
	return nil, errors.New("unknown chunk")
}

func assemblerFixture() (*fakeSource, []*api.SmartChunk) {
	now := time.Now()
	walls := testChunk("chunk-00000", "IfcWall", 3, "0,0,0", now)
	doors := testChunk("chunk-00001", "IfcDoor", 2, "1,0,0", now)
	src := &fakeSource{payloads: map[string][]api.Entity{
		"chunk-00000": {
			{ExpressID: 1, Type: "IfcWall", Name: "Exterior Wall", Level: "Level 1"},
			{ExpressID: 2, Type: "IfcWall", Name: "Interior Wall", Level: "Level 1"},
			{ExpressID: 3, Type: "IfcWall", Name: "Core Wall", Level: "Level 2"},
		},
		"chunk-00001": {
			{ExpressID: 4, Type: "IfcDoor", Name: "Entry Door"},
			{ExpressID: 5, Type: "IfcDoor", Name: "Fire Door", System: "Fire"},
		},
	}}
	return src, []*api.SmartChunk{walls, doors}
}

func TestAssembleCoverageAndCounts(t *testing.T) {
	src, chunks := assemblerFixture()
	a := NewAssembler(src, 10)

	ctx := a.Assemble(chunks, api.QueryIntent{}, DefaultFormatting)
	assert.Equal(t, 2, ctx.ChunkCount)
	assert.Equal(t, 200, ctx.TokenCount)
	assert.InDelta(t, 0.5, ctx.Coverage, 1e-9)
	assert.Equal(t, 1, ctx.TypeCounts["IfcWall"])
	assert.Equal(t, 1, ctx.TypeCounts["IfcDoor"])
	assert.Equal(t, 100, ctx.TokensPerID["chunk-00000"])
	require.Len(t, ctx.Blocks, 2)
}

func TestAssembleBlocksCarryExcerpts(t *testing.T) {
	src, chunks := assemblerFixture()
	a := NewAssembler(src, 10)

	ctx := a.Assemble(chunks, api.QueryIntent{}, DefaultFormatting)
	assert.Contains(t, ctx.Blocks[0], "## chunk-00000")
	assert.Contains(t, ctx.Blocks[0], `#1 IfcWall "Exterior Wall" level=Level 1`)
	assert.Contains(t, ctx.Blocks[1], "system=Fire")

	text := ctx.Text()
	assert.True(t, strings.HasPrefix(text, ctx.Header))
	assert.Contains(t, text, "Building model context: 2 chunks")
}

func TestClipFieldBoundsRenderedNames(t *testing.T) {
	long := strings.Repeat("Tür", chunk.ExcerptFieldChars) // multi-byte runes
	got := clipField(long)
	assert.LessOrEqual(t, len(got), chunk.ExcerptFieldChars+len("..."))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.True(t, utf8.ValidString(got), "clip must not split a rune")

	short := "Exterior Wall"
	assert.Equal(t, short, clipField(short))
}

func TestAssembleClipsOversizedEntityFields(t *testing.T) {
	now := time.Now()
	c := testChunk("chunk-00000", "IfcValve", 1, "0,0,0", now)
	src := &fakeSource{payloads: map[string][]api.Entity{
		"chunk-00000": {{ExpressID: 9, Type: "IfcValve", Name: strings.Repeat("Absperrschieber ", 500)}},
	}}
	a := NewAssembler(src, 1)

	ctx := a.Assemble([]*api.SmartChunk{c}, api.QueryIntent{}, DefaultFormatting)
	require.Len(t, ctx.Blocks, 1)
	for _, line := range strings.Split(ctx.Blocks[0], "\n") {
		assert.Less(t, len(line), 2*chunk.ExcerptFieldChars, "rendered line must stay bounded")
	}
}

func TestAssembleCompactTruncatesExcerpts(t *testing.T) {
	src, chunks := assemblerFixture()
	a := NewAssembler(src, 10)

	opts := DefaultFormatting
	opts.Compact = true
	ctx := a.Assemble(chunks[:1], api.QueryIntent{}, opts)
	assert.Contains(t, ctx.Blocks[0], "... and 1 more")
	assert.NotContains(t, ctx.Blocks[0], "Core Wall")
}

func TestAssembleHighlightsKeywords(t *testing.T) {
	src, chunks := assemblerFixture()
	a := NewAssembler(src, 10)

	opts := DefaultFormatting
	opts.HighlightKeywords = true
	intent := api.QueryIntent{Keywords: []string{"exterior"}}
	ctx := a.Assemble(chunks[:1], intent, opts)
	assert.Contains(t, ctx.Blocks[0], "**Exterior**")
}

func TestAssembleDegradesOnMissingPayload(t *testing.T) {
	src, chunks := assemblerFixture()
	delete(src.payloads, "chunk-00001")
	a := NewAssembler(src, 10)

	ctx := a.Assemble(chunks, api.QueryIntent{}, DefaultFormatting)
	require.Len(t, ctx.Blocks, 2)
	assert.Contains(t, ctx.Blocks[1], "payload unavailable")
}

func TestAssembleGermanHeader(t *testing.T) {
	src, chunks := assemblerFixture()
	a := NewAssembler(src, 10)

	opts := DefaultFormatting
	opts.Language = "de"
	ctx := a.Assemble(chunks, api.QueryIntent{}, opts)
	assert.Contains(t, ctx.Header, "Gebäudemodell-Kontext")
}
