// Package query turns free-text questions into ranked, budget-bounded
// chunk selections: classify intent, plan index probes, score the
// candidates, allocate tokens, and assemble the final context block.
package query

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agentic-research/strata/api"
)

// typeVocabulary maps query tokens to the entity type tags they name.
// Matching is deterministic and purely lexical; the classifier never
// calls the model.
var typeVocabulary = map[string]string{
	"wall":      "IfcWall",
	"walls":     "IfcWall",
	"door":      "IfcDoor",
	"doors":     "IfcDoor",
	"window":    "IfcWindow",
	"windows":   "IfcWindow",
	"slab":      "IfcSlab",
	"slabs":     "IfcSlab",
	"floor":     "IfcSlab",
	"floors":    "IfcSlab",
	"beam":      "IfcBeam",
	"beams":     "IfcBeam",
	"column":    "IfcColumn",
	"columns":   "IfcColumn",
	"stair":     "IfcStair",
	"stairs":    "IfcStair",
	"roof":      "IfcRoof",
	"roofs":     "IfcRoof",
	"pipe":      "IfcPipeSegment",
	"pipes":     "IfcPipeSegment",
	"duct":      "IfcDuctSegment",
	"ducts":     "IfcDuctSegment",
	"space":     "IfcSpace",
	"spaces":    "IfcSpace",
	"room":      "IfcSpace",
	"rooms":     "IfcSpace",
	"furniture": "IfcFurnishingElement",
}

var spatialVocabulary = map[string]bool{
	"north": true, "south": true, "east": true, "west": true,
	"above": true, "below": true, "near": true, "nearby": true,
	"inside": true, "outside": true, "basement": true, "ground": true,
	"level": true, "storey": true, "top": true, "bottom": true,
	"corner": true, "center": true, "centre": true,
}

var systemVocabulary = map[string]bool{
	"hvac": true, "plumbing": true, "electrical": true,
	"mechanical": true, "ventilation": true, "heating": true,
	"cooling": true, "drainage": true, "sanitary": true,
	"lighting": true, "fire": true, "sprinkler": true,
}

var countPattern = regexp.MustCompile(`\b(how many|count|number of|total)\b`)
var findPattern = regexp.MustCompile(`\b(find|show|list|where|locate|which|what)\b`)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true,
	"on": true, "at": true, "is": true, "are": true, "all": true,
	"me": true, "and": true, "or": true, "to": true, "for": true,
	"how": true, "many": true, "there": true, "this": true,
	"that": true, "with": true, "do": true, "does": true,
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Classify maps query text to a structured intent. Confidence reflects
// how many signal classes matched; below the planner's threshold the
// query falls back to a full scan.
func Classify(text string) api.QueryIntent {
	lower := strings.ToLower(text)
	words := tokenPattern.FindAllString(lower, -1)

	intent := api.QueryIntent{Kind: api.IntentGeneral}
	typeSet := map[string]bool{}
	for _, w := range words {
		if t, ok := typeVocabulary[w]; ok {
			typeSet[t] = true
			continue
		}
		if spatialVocabulary[w] {
			intent.SpatialTerms = append(intent.SpatialTerms, w)
			continue
		}
		if systemVocabulary[w] {
			intent.SystemTerms = append(intent.SystemTerms, w)
			continue
		}
		if !stopwords[w] && len(w) > 2 {
			intent.Keywords = append(intent.Keywords, w)
		}
	}
	for t := range typeSet {
		intent.EntityTypes = append(intent.EntityTypes, t)
	}
	sort.Strings(intent.EntityTypes)

	switch {
	case countPattern.MatchString(lower):
		intent.Kind = api.IntentCount
	case len(intent.SystemTerms) > 0:
		intent.Kind = api.IntentSystem
	case len(intent.SpatialTerms) > 0:
		intent.Kind = api.IntentSpatial
	case len(intent.EntityTypes) > 0 && findPattern.MatchString(lower):
		intent.Kind = api.IntentFind
	}

	// One signal class is weak evidence; each further class firms it up.
	signals := 0.0
	if intent.Kind != api.IntentGeneral {
		signals++
	}
	if len(intent.EntityTypes) > 0 {
		signals++
	}
	if len(intent.SpatialTerms) > 0 || len(intent.SystemTerms) > 0 {
		signals++
	}
	if len(intent.Keywords) > 0 {
		signals += 0.5
	}
	intent.Confidence = signals / 3.5
	if intent.Confidence > 1 {
		intent.Confidence = 1
	}
	return intent
}
