package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"xiaoer/internal/domain/plan"
)

// mcpHandler exposes every registered tool over the MCP streamable HTTP
// transport. Tool failures become MCP error results, not protocol errors,
// so a broken tool never kills the session.
func (s *Server) mcpHandler() http.Handler {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "xiaoer",
		Version: "0.1.0",
	}, nil)

	for _, spec := range s.registry.Specs() {
		tool := &mcp.Tool{
			Name:        spec.Name,
			Description: spec.Description,
		}
		if schema := decodeSchema(spec.ArgsSchema); schema != nil {
			tool.InputSchema = schema
		}

		name := spec.Name
		server.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args json.RawMessage
			if req != nil && req.Params != nil {
				args = req.Params.Arguments
			}

			output, err := s.registry.Invoke(ctx, plan.ToolCall{Name: name, Args: args})
			if err != nil {
				return &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				}, nil
			}

			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: string(output)}},
			}, nil
		})
	}

	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

// decodeSchema converts a reflected argument schema into the MCP SDK's
// schema type. Tools with malformed schemas fall back to schemaless.
func decodeSchema(raw json.RawMessage) *jsonschema.Schema {
	if len(raw) == 0 {
		return nil
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil
	}
	return &schema
}
