// Package tools exposes the read-only operations the model can request
// during a run: entity queries, spatial queries, context retrieval, and
// highlight notifications. Parameters are typed per tool and validated
// at the registry boundary; unknown fields are rejected, not passed
// through.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// ErrUnknownTool is returned for a tool name nothing registered.
var ErrUnknownTool = errors.New("unknown tool")

// ErrNoModel is returned while no snapshot is loaded.
var ErrNoModel = errors.New("no model loaded")

// Params is one tool's decoded parameter struct.
type Params interface {
	Validate() error
}

// Handler is one registered tool.
type Handler interface {
	Name() string
	Description() string
	NewParams() Params
	Execute(ctx context.Context, p Params) (any, error)
}

// ExecResult pairs a tool's output with its wall-clock cost.
type ExecResult struct {
	Result     any   `json:"result"`
	DurationMs int64 `json:"duration_ms"`
}

// Registry dispatches tool calls. Tools read the live snapshot and
// never mutate it.
type Registry struct {
	handlers map[string]Handler
	log      *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{handlers: map[string]Handler{}, log: log}
}

// Register adds a handler. Duplicate names panic; that is a wiring bug.
func (r *Registry) Register(h Handler) {
	if _, dup := r.handlers[h.Name()]; dup {
		panic("duplicate tool: " + h.Name())
	}
	r.handlers[h.Name()] = h
}

// Names lists registered tools sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Handler looks up one registered tool.
func (r *Registry) Handler(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Describe renders the tool list for the decision prompt.
func (r *Registry) Describe() string {
	var b bytes.Buffer
	for _, name := range r.Names() {
		fmt.Fprintf(&b, "- %s: %s\n", name, r.handlers[name].Description())
	}
	return b.String()
}

// Execute decodes, validates, and runs one tool call.
func (r *Registry) Execute(ctx context.Context, name string, raw json.RawMessage) (*ExecResult, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	p := h.NewParams()
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(p); err != nil {
			return nil, fmt.Errorf("%s: bad parameters: %w", name, err)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	start := time.Now()
	out, err := h.Execute(ctx, p)
	elapsed := time.Since(start)
	if err != nil {
		r.log.Warn("tool failed", "tool", name, "elapsed", elapsed, "err", err)
		return nil, err
	}
	r.log.Debug("tool executed", "tool", name, "elapsed", elapsed)
	return &ExecResult{Result: out, DurationMs: elapsed.Milliseconds()}, nil
}
