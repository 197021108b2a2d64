package query

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agentic-research/strata/api"
	"github.com/agentic-research/strata/internal/chunk"
)

// FormattingOptions control how the assembled context is rendered.
type FormattingOptions struct {
	IncludeMetadata   bool
	IncludeHeaders    bool
	HighlightKeywords bool
	Compact           bool
	Language          string
}

// DefaultFormatting is what the executor feeds into prompts.
var DefaultFormatting = FormattingOptions{
	IncludeMetadata: true,
	IncludeHeaders:  true,
}

// PayloadSource hydrates a chunk's entities for excerpting.
// Implemented by the chunk cache.
type PayloadSource interface {
	Get(chunkID string) ([]api.Entity, error)
}

const (
	excerptEntities        = 5
	excerptEntitiesCompact = 2
)

// Assembler formats selected chunks into the context block handed to
// the model, plus coverage metadata for observability.
type Assembler struct {
	source        PayloadSource
	totalEntities int
}

func NewAssembler(source PayloadSource, totalEntities int) *Assembler {
	return &Assembler{source: source, totalEntities: totalEntities}
}

// Assemble renders one block per chunk. A chunk whose payload fails to
// hydrate degrades to a metadata-only block; it never aborts assembly.
func (a *Assembler) Assemble(selected []*api.SmartChunk, intent api.QueryIntent, opts FormattingOptions) *api.AssembledContext {
	ctx := &api.AssembledContext{
		ChunkCount:  len(selected),
		TypeCounts:  map[string]int{},
		TokensPerID: map[string]int{},
	}

	covered := 0
	for _, c := range selected {
		covered += len(c.EntityIDs)
		ctx.TokenCount += c.TokenCount
		ctx.TypeCounts[c.DominantType()]++
		ctx.TokensPerID[c.ID] = c.TokenCount
		ctx.Blocks = append(ctx.Blocks, a.renderBlock(c, intent, opts))
	}
	if a.totalEntities > 0 {
		ctx.Coverage = float64(covered) / float64(a.totalEntities)
	}
	ctx.Header = a.renderHeader(ctx, covered, opts)
	return ctx
}

func (a *Assembler) renderHeader(ctx *api.AssembledContext, covered int, opts FormattingOptions) string {
	if opts.Language == "de" {
		return fmt.Sprintf("Gebäudemodell-Kontext: %d Abschnitte, %d von %d Elementen (%.1f%% Abdeckung)",
			ctx.ChunkCount, covered, a.totalEntities, ctx.Coverage*100)
	}
	return fmt.Sprintf("Building model context: %d chunks, %d of %d entities (%.1f%% coverage)",
		ctx.ChunkCount, covered, a.totalEntities, ctx.Coverage*100)
}

func (a *Assembler) renderBlock(c *api.SmartChunk, intent api.QueryIntent, opts FormattingOptions) string {
	var b strings.Builder
	if opts.IncludeHeaders {
		fmt.Fprintf(&b, "## %s (%d entities, %d tokens)\n", c.ID, len(c.EntityIDs), c.TokenCount)
	}
	if opts.IncludeMetadata {
		fmt.Fprintf(&b, "types: %s | bucket: %s\n", histogramLine(c.Metadata.TypeHistogram), c.SpatialBucket)
	}

	ents, err := a.source.Get(c.ID)
	if err != nil {
		fmt.Fprintf(&b, "(payload unavailable: %v)", err)
		return b.String()
	}

	limit := excerptEntities
	if opts.Compact {
		limit = excerptEntitiesCompact
	}
	for i, e := range ents {
		if i >= limit {
			fmt.Fprintf(&b, "... and %d more\n", len(ents)-limit)
			break
		}
		line := fmt.Sprintf("#%d %s %q", e.ExpressID, clipField(e.Type), clipField(e.Name))
		if e.Level != "" {
			line += " level=" + clipField(e.Level)
		}
		if e.System != "" {
			line += " system=" + clipField(e.System)
		}
		if opts.HighlightKeywords {
			line = highlight(line, intent.Keywords)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// clipField bounds a rendered string field at the length the token
// estimator charges for it, backing off to a rune boundary.
func clipField(s string) string {
	if len(s) <= chunk.ExcerptFieldChars {
		return s
	}
	cut := chunk.ExcerptFieldChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// histogramLine renders a type histogram deterministically: by count
// descending, then name.
func histogramLine(hist map[string]int) string {
	type kv struct {
		t string
		n int
	}
	pairs := make([]kv, 0, len(hist))
	for t, n := range hist {
		pairs = append(pairs, kv{t, n})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].n != pairs[j].n {
			return pairs[i].n > pairs[j].n
		}
		return pairs[i].t < pairs[j].t
	})
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%s×%d", p.t, p.n)
	}
	return strings.Join(parts, ", ")
}

func highlight(line string, keywords []string) string {
	for _, kw := range keywords {
		idx := strings.Index(strings.ToLower(line), kw)
		if idx < 0 {
			continue
		}
		line = line[:idx] + "**" + line[idx:idx+len(kw)] + "**" + line[idx+len(kw):]
	}
	return line
}
