package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPDecoder extracts the typed request of a tool call.
type MCPDecoder func(*mcp.CallToolRequest) (any, error)

// DecodeJSON returns an MCPDecoder that unmarshals the call arguments into
// a fresh *T. Absent arguments yield the zero value.
func DecodeJSON[T any]() MCPDecoder {
	return func(r *mcp.CallToolRequest) (any, error) {
		p := new(T)
		if len(r.Params.Arguments) == 0 {
			return p, nil
		}
		if err := json.Unmarshal(r.Params.Arguments, p); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// RegisterMCPTool exposes endpoint as the MCP tool described by tool. The
// endpoint runs with TransportMCP in its context; its response is returned
// as one JSON text block. Decode and endpoint failures are reported as tool
// results with IsError set, never as protocol errors.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode MCPDecoder) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, err := decode(req)
		if err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		out, err := endpoint(WithTransport(ctx, TransportMCP), in)
		if err != nil {
			return toolError(err), nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	res := &mcp.CallToolResult{}
	res.SetError(err)
	return res
}
