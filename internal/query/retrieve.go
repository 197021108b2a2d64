package query

import (
	"log/slog"
	"time"

	"github.com/agentic-research/strata/api"
	"github.com/agentic-research/strata/internal/index"
)

// Engine is the full retrieval pipeline for one model snapshot:
// classify, plan, probe, score, allocate, assemble.
type Engine struct {
	indices   *index.Collection
	planner   *Planner
	scorer    *Scorer
	assembler *Assembler
	log       *slog.Logger
}

func NewEngine(indices *index.Collection, scorer *Scorer, assembler *Assembler, log *slog.Logger) *Engine {
	return &Engine{
		indices:   indices,
		planner:   NewPlanner(indices, scorer.region),
		scorer:    scorer,
		assembler: assembler,
		log:       log,
	}
}

// Result carries the assembled context plus the intermediate products,
// for tools and debugging surfaces that want to show their work.
type Result struct {
	Intent  api.QueryIntent       `json:"intent"`
	Plan    Plan                  `json:"plan"`
	Ranked  []api.RankedChunk     `json:"ranked"`
	Context *api.AssembledContext `json:"context"`
	Elapsed time.Duration         `json:"elapsed"`
}

// Retrieve answers one free-text query with a budget-bounded context.
func (e *Engine) Retrieve(text string, maxTokens int, strategy string, opts FormattingOptions) *Result {
	start := time.Now()

	intent := Classify(text)
	plan := e.planner.Plan(intent)
	candidates := e.indices.Chunks(e.planner.Execute(plan))
	ranked := e.scorer.Rank(candidates, intent)
	selected := Select(ranked, maxTokens, strategy)
	ctx := e.assembler.Assemble(selected, intent, opts)

	elapsed := time.Since(start)
	e.log.Debug("retrieval complete",
		"intent", string(intent.Kind),
		"confidence", intent.Confidence,
		"strategy", plan.Strategy,
		"candidates", len(candidates),
		"selected", len(selected),
		"tokens", ctx.TokenCount,
		"coverage", ctx.Coverage,
		"elapsed", elapsed)

	return &Result{
		Intent:  intent,
		Plan:    plan,
		Ranked:  ranked,
		Context: ctx,
		Elapsed: elapsed,
	}
}
