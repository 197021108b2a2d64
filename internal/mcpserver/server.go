// Package mcpserver exposes the tool registry over the Model Context
// Protocol on stdio, so editor agents can query a loaded model the
// same way the decision loop does.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/strata/internal/tools"
)

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

// New builds the MCP server over a registry. Every registered tool is
// exposed; parameters pass through the registry's own validation, so
// schema here describes rather than enforces.
func New(registry *tools.Registry, version string) *server.MCPServer {
	s := server.NewMCPServer("strata", version, server.WithToolCapabilities(false))

	for _, spec := range toolSpecs() {
		if _, ok := registry.Handler(spec.name); !ok {
			continue
		}
		s.AddTool(spec.tool, makeHandler(registry, spec.name))
	}
	return s
}

// ServeStdio blocks serving the registry on stdin/stdout.
func ServeStdio(registry *tools.Registry, version string) error {
	return server.ServeStdio(New(registry, version))
}

type toolSpec struct {
	name string
	tool mcp.Tool
}

func toolSpecs() []toolSpec {
	return []toolSpec{
		{"query_entities", mcp.NewTool("query_entities",
			mcp.WithDescription("List building-model entities matching an entity_type, level, or system filter."),
			mcp.WithToolAnnotation(readOnlyAnnotation),
			mcp.WithString("entity_type", mcp.Description("Entity type tag, e.g. IfcWall")),
			mcp.WithString("level", mcp.Description("Building storey name")),
			mcp.WithString("system", mcp.Description("Building system tag, e.g. Plumbing")),
			mcp.WithNumber("limit", mcp.Description("Maximum entities to return (default 50)")),
		)},
		{"count_entities", mcp.NewTool("count_entities",
			mcp.WithDescription("Count building-model entities matching an entity_type, level, or system filter."),
			mcp.WithToolAnnotation(readOnlyAnnotation),
			mcp.WithString("entity_type", mcp.Description("Entity type tag")),
			mcp.WithString("level", mcp.Description("Building storey name")),
			mcp.WithString("system", mcp.Description("Building system tag")),
		)},
		{"spatial_query", mcp.NewTool("spatial_query",
			mcp.WithDescription("Query the spatial index with a box, sphere, or nearest-k shape."),
			mcp.WithToolAnnotation(readOnlyAnnotation),
			mcp.WithString("shape", mcp.Required(), mcp.Description("One of: box, sphere, nearest")),
			mcp.WithObject("min", mcp.Description("Box minimum corner {x,y,z}")),
			mcp.WithObject("max", mcp.Description("Box maximum corner {x,y,z}")),
			mcp.WithObject("center", mcp.Description("Sphere center {x,y,z}")),
			mcp.WithNumber("radius", mcp.Description("Sphere radius")),
			mcp.WithObject("point", mcp.Description("Nearest-k origin {x,y,z}")),
			mcp.WithNumber("k", mcp.Description("Number of nearest entities")),
			mcp.WithNumber("max_results", mcp.Description("Result cap (default 1000)")),
		)},
		{"get_context", mcp.NewTool("get_context",
			mcp.WithDescription("Retrieve a token-bounded context of relevant model chunks for a question."),
			mcp.WithToolAnnotation(readOnlyAnnotation),
			mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language question")),
			mcp.WithNumber("max_tokens", mcp.Description("Token ceiling (default 2000)")),
			mcp.WithString("strategy", mcp.Description("Selection strategy: greedy, balanced, or diverse")),
		)},
		{"highlight_entities", mcp.NewTool("highlight_entities",
			mcp.WithDescription("Ask the embedding layer to highlight entities by express ID."),
			mcp.WithToolAnnotation(readOnlyAnnotation),
			mcp.WithArray("express_ids", mcp.Required(), mcp.Description("Express IDs to highlight")),
		)},
	}
}

func makeHandler(registry *tools.Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode arguments: %v", err)), nil
		}
		res, err := registry.Execute(ctx, name, raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := json.MarshalIndent(res.Result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}
