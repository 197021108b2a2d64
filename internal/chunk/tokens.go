package chunk

import (
	"fmt"

	"github.com/agentic-research/strata/api"
)

// Rough chars-per-token divisor for the formatted entity excerpts sent to
// the model. Conservative so chunks stay under their ceiling.
const charsPerToken = 4

// ExcerptFieldChars bounds how many characters of any single string field
// count toward an entity's estimate. The context assembler truncates
// rendered fields at the same bound, so the estimate holds for what the
// model actually sees.
const ExcerptFieldChars = 160

func fieldTokens(n int) int {
	if n > ExcerptFieldChars {
		n = ExcerptFieldChars
	}
	return n / charsPerToken
}

// EntityTokens estimates the token cost of one entity when rendered into
// a context block.
func EntityTokens(e *api.Entity) int {
	n := 8 // id, type tag, box digits
	n += fieldTokens(len(e.Type)) + fieldTokens(len(e.Name))
	n += fieldTokens(len(e.Level)) + fieldTokens(len(e.System))
	for k, v := range e.Properties {
		n += fieldTokens(len(k) + len(fmt.Sprint(v)))
		n += 2
	}
	return n
}

// chunkOverheadTokens is the per-chunk framing cost (header line, bounds).
const chunkOverheadTokens = 12
