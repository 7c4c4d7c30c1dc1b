package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPDecoder turns raw tool arguments into the typed request an Endpoint
// expects.
type MCPDecoder func(args json.RawMessage) (any, error)

// DecodeInto returns an MCPDecoder that unmarshals into a fresh *T.
func DecodeInto[T any]() MCPDecoder {
	return func(args json.RawMessage) (any, error) {
		req := new(T)
		if len(args) == 0 {
			return req, nil
		}
		if err := json.Unmarshal(args, req); err != nil {
			return nil, err
		}
		return req, nil
	}
}

// RegisterMCPTool exposes endpoint as an MCP tool. Each call runs with
// transport "mcp" and, when newID is set, a fresh request id. Decode and
// endpoint errors are reported as tool errors, never protocol errors; a
// successful response is returned as one JSON text block.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode MCPDecoder, newID func() string) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = WithTransport(ctx, "mcp")
		if newID != nil {
			ctx = WithRequestID(ctx, newID())
		}

		typed, err := decode(req.Params.Arguments)
		if err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}

		resp, err := endpoint(ctx, typed)
		if err != nil {
			return toolError(err), nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
