package lplens

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/lplens/kit"
)

// RegisterMCP registers all lplens tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerList(srv)
	svc.registerGet(srv)
	svc.registerCreate(srv)
	svc.registerAnalyze(srv)
	svc.registerShare(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var accountProp = map[string]any{"type": "string", "description": "Account ID (ignored when the session carries one)"}

// account prefers the authenticated identity over the argument.
func account(ctx context.Context, arg string) string {
	if id := kit.GetUserID(ctx); id != "" {
		return id
	}
	return arg
}

// tool wraps a tool endpoint with call logging and failure masking.
func (svc *Service) tool(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(svc.maskFailure, svc.logCall(name))(ep)
}

func (svc *Service) logCall(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				svc.logger.WarnContext(ctx, "lplens: mcp tool failed", "tool", name,
					"duration_ms", time.Since(start).Milliseconds(), "error", err)
			} else {
				svc.logger.DebugContext(ctx, "lplens: mcp tool ok", "tool", name,
					"duration_ms", time.Since(start).Milliseconds())
			}
			return resp, err
		}
	}
}

// maskFailure hides analysis failure causes from tool callers. It wraps
// logCall so the cause is still logged.
func (svc *Service) maskFailure(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		resp, err := next(ctx, req)
		if errors.Is(err, ErrAnalysisFailed) {
			return nil, errors.New(svc.FailureMessage())
		}
		return resp, err
	}
}

func (svc *Service) registerList(srv *mcp.Server) {
	type req struct {
		AccountID string `json:"account_id"`
	}

	tool := &mcp.Tool{
		Name:        "lplens_list",
		Description: "List tracked landing pages with their latest snapshot",
		InputSchema: inputSchema(map[string]any{
			"account_id": accountProp,
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.ListLandingPages(ctx, account(ctx, p.AccountID))
	}

	kit.RegisterMCPTool(srv, tool, svc.tool(tool.Name, endpoint), kit.DecodeJSON[req]())
}

func (svc *Service) registerGet(srv *mcp.Server) {
	type req struct {
		AccountID string `json:"account_id"`
		ID        string `json:"id"`
	}

	tool := &mcp.Tool{
		Name:        "lplens_get",
		Description: "Get a landing page with its snapshot history, newest first",
		InputSchema: inputSchema(map[string]any{
			"account_id": accountProp,
			"id":         map[string]any{"type": "string", "description": "Landing page ID"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.GetLandingPage(ctx, account(ctx, p.AccountID), p.ID)
	}

	kit.RegisterMCPTool(srv, tool, svc.tool(tool.Name, endpoint), kit.DecodeJSON[req]())
}

func (svc *Service) registerCreate(srv *mcp.Server) {
	type req struct {
		AccountID string `json:"account_id"`
		URL       string `json:"url"`
		Name      string `json:"name"`
	}

	tool := &mcp.Tool{
		Name:        "lplens_create",
		Description: "Track a new landing page URL; its first snapshot is pending",
		InputSchema: inputSchema(map[string]any{
			"account_id": accountProp,
			"url":        map[string]any{"type": "string", "description": "Landing page URL (https:// is assumed when missing)"},
			"name":       map[string]any{"type": "string", "description": "Optional display name"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.CreateLandingPage(ctx, account(ctx, p.AccountID), p.URL, p.Name)
	}

	kit.RegisterMCPTool(srv, tool, svc.tool(tool.Name, endpoint), kit.DecodeJSON[req]())
}

func (svc *Service) registerAnalyze(srv *mcp.Server) {
	type req struct {
		AccountID string `json:"account_id"`
		ID        string `json:"id"`
	}

	tool := &mcp.Tool{
		Name:        "lplens_analyze",
		Description: "Capture and analyze a landing page now; returns the structured analysis",
		InputSchema: inputSchema(map[string]any{
			"account_id": accountProp,
			"id":         map[string]any{"type": "string", "description": "Landing page ID"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.Analyze(ctx, account(ctx, p.AccountID), p.ID)
	}

	kit.RegisterMCPTool(srv, tool, svc.tool(tool.Name, endpoint), kit.DecodeJSON[req]())
}

func (svc *Service) registerShare(srv *mcp.Server) {
	type req struct {
		ID string `json:"id"`
	}

	tool := &mcp.Tool{
		Name:        "lplens_share",
		Description: "Get the public share view of a landing page's latest completed analysis",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Landing page ID"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return svc.Share(ctx, r.(*req).ID)
	}

	kit.RegisterMCPTool(srv, tool, svc.tool(tool.Name, endpoint), kit.DecodeJSON[req]())
}
