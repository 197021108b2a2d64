// Package chain runs the decision loop: ask the model what to do,
// execute the tools it requests, fold the results into history, and
// repeat until a final answer, a terminal error, or the iteration
// ceiling. Per-tool failures never abort a round; they become history
// the model can react to.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/agentic-research/strata/api"
	"github.com/agentic-research/strata/internal/model"
	"github.com/agentic-research/strata/internal/tools"
)

// Status is a run's terminal state. Exhausted is distinct from done so
// callers can tell "the model answered" from "we gave up after the
// iteration ceiling".
type Status string

const (
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusExhausted Status = "exhausted"
)

// Defaults for Config zero values.
const (
	DefaultMaxIterations = 5
	defaultHistoryChars  = 8000
	defaultContextChars  = 12000
	defaultSummaryChars  = 600

	truncationMarker = "[earlier history truncated]\n"
	fallbackAnswer   = "I was unable to determine an answer from the available data."
)

// Config tunes one executor.
type Config struct {
	System        string
	MaxIterations int
	HistoryChars  int
	ContextChars  int
	SummaryChars  int
}

func (c *Config) fill() {
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.HistoryChars == 0 {
		c.HistoryChars = defaultHistoryChars
	}
	if c.ContextChars == 0 {
		c.ContextChars = defaultContextChars
	}
	if c.SummaryChars == 0 {
		c.SummaryChars = defaultSummaryChars
	}
}

// RunResult is everything a run produced, terminal state included.
// On failed runs Err carries the classified error; on exhausted runs
// the partial answer and tool calls are returned rather than raised.
type RunResult struct {
	RunID       string             `json:"run_id"`
	Status      Status             `json:"status"`
	FinalAnswer string             `json:"final_answer,omitempty"`
	Iterations  int                `json:"iterations"`
	ToolCalls   []api.ToolCall     `json:"tool_calls,omitempty"`
	Err         *api.DecisionError `json:"error,omitempty"`
	Elapsed     time.Duration      `json:"elapsed"`
}

// Executor drives runs. Rounds are strictly sequential: a round's
// history is fully appended before the next round starts, and tool
// calls within a round execute in order, each awaited to completion.
type Executor struct {
	source   model.DecisionSource
	registry *tools.Registry
	cfg      Config
	log      *slog.Logger
}

func NewExecutor(source model.DecisionSource, registry *tools.Registry, cfg Config, log *slog.Logger) *Executor {
	cfg.fill()
	return &Executor{source: source, registry: registry, cfg: cfg, log: log}
}

// Run executes one user query to a terminal state.
func (e *Executor) Run(ctx context.Context, prompt, contextText string) *RunResult {
	start := time.Now()
	res := &RunResult{RunID: uuid.NewString()}
	log := e.log.With("run", res.RunID)

	var history strings.Builder
	partialAnswer := ""

	for res.Iterations = 0; res.Iterations < e.cfg.MaxIterations; res.Iterations++ {
		decision, err := e.source.Decide(ctx, api.DecisionRequest{
			System:  e.cfg.System,
			Tools:   e.registry.Describe(),
			Prompt:  prompt,
			History: truncateHead(history.String(), e.cfg.HistoryChars),
			Context: truncateTail(contextText, e.cfg.ContextChars),
		})
		if err != nil {
			res.Status = StatusFailed
			res.Err = classifyDecide(err)
			res.Elapsed = time.Since(start)
			log.Warn("run failed", "round", res.Iterations, "code", res.Err.Code, "err", err)
			return res
		}
		if decision.Error != nil {
			res.Status = StatusFailed
			res.Err = decision.Error
			res.Elapsed = time.Since(start)
			log.Warn("model reported error", "round", res.Iterations, "code", decision.Error.Code)
			return res
		}

		if decision.Thought != "" {
			fmt.Fprintf(&history, "thought: %s\n", decision.Thought)
		}
		if decision.FinalAnswer != "" {
			partialAnswer = decision.FinalAnswer
		}

		if len(decision.ToolCalls) == 0 {
			res.Status = StatusDone
			res.FinalAnswer = partialAnswer
			if res.FinalAnswer == "" {
				res.FinalAnswer = fallbackAnswer
			}
			res.Iterations++
			res.Elapsed = time.Since(start)
			log.Info("run done", "rounds", res.Iterations, "tools", len(res.ToolCalls))
			return res
		}

		for _, call := range decision.ToolCalls {
			res.ToolCalls = append(res.ToolCalls, call)
			out, err := e.registry.Execute(ctx, call.Tool, call.Parameters)
			if err != nil {
				// Recovered locally: the model sees the failure and can
				// adjust its next decision.
				de := classifyTool(err)
				fmt.Fprintf(&history, "tool %s failed [%s]: %s\n", call.Tool, de.Code, de.Message)
				log.Warn("tool call failed", "tool", call.Tool, "code", de.Code, "err", err)
				continue
			}
			fmt.Fprintf(&history, "tool %s (%dms): %s\n",
				call.Tool, out.DurationMs, summarize(out.Result, e.cfg.SummaryChars))
		}
	}

	res.Status = StatusExhausted
	res.FinalAnswer = partialAnswer
	res.Elapsed = time.Since(start)
	log.Info("run exhausted", "rounds", res.Iterations, "tools", len(res.ToolCalls))
	return res
}

// summarize renders a tool result for history, truncated to a fixed
// character budget.
func summarize(v any, limit int) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("(unencodable result: %v)", err)
	}
	s := string(raw)
	if len(s) > limit {
		s = s[:runeFloor(s, limit)] + "…"
	}
	return s
}

// truncateHead keeps the newest history, dropping the oldest content
// behind a marker.
func truncateHead(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	keep := limit - len(truncationMarker)
	if keep < 0 {
		keep = 0
	}
	tail := s[len(s)-keep:]
	// Resume at a line boundary when one is near, which also lands on a
	// rune boundary.
	if i := strings.IndexByte(tail, '\n'); i >= 0 && i < len(tail)-1 {
		tail = tail[i+1:]
	} else {
		for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
			tail = tail[1:]
		}
	}
	return truncationMarker + tail
}

// truncateTail keeps the front of the context block.
func truncateTail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:runeFloor(s, limit)] + "…"
}

// runeFloor backs a byte offset off to the nearest rune start so a cut
// never produces invalid UTF-8.
func runeFloor(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
