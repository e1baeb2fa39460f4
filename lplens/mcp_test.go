package lplens

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "lplens-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func TestMCP_Lifecycle(t *testing.T) {
	// WHAT: create, analyze, get, list and share through MCP tools.
	h := newHarness(t)
	session := mcpSession(t, h.svc)

	text, isErr := callTool(t, session, "lplens_create", map[string]any{
		"account_id": "acc-1", "url": "example.com/lp", "name": "LP",
	})
	if isErr {
		t.Fatalf("create: %s", text)
	}
	var lp LandingPage
	if err := json.Unmarshal([]byte(text), &lp); err != nil {
		t.Fatalf("unmarshal lp: %v", err)
	}
	if lp.URL != "https://example.com/lp" {
		t.Errorf("url = %q", lp.URL)
	}

	text, isErr = callTool(t, session, "lplens_analyze", map[string]any{"account_id": "acc-1", "id": lp.ID})
	if isErr {
		t.Fatalf("analyze: %s", text)
	}
	var out Analysis
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("unmarshal analysis: %v", err)
	}
	if out.Snapshot.Status != StatusDone || out.AnalysisResult.Summary != "Solid LP." {
		t.Errorf("analysis = %+v", out.Snapshot)
	}

	text, _ = callTool(t, session, "lplens_get", map[string]any{"account_id": "acc-1", "id": lp.ID})
	var detail LandingPage
	if err := json.Unmarshal([]byte(text), &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if len(detail.Snapshots) != 1 || detail.Snapshots[0].Version != 1 {
		t.Errorf("history = %+v", detail.Snapshots)
	}

	text, _ = callTool(t, session, "lplens_list", map[string]any{"account_id": "acc-1"})
	var list []LandingPage
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 1 || list[0].ID != lp.ID {
		t.Errorf("list = %+v", list)
	}

	text, isErr = callTool(t, session, "lplens_share", map[string]any{"id": lp.ID})
	if isErr {
		t.Fatalf("share: %s", text)
	}
	var view ShareView
	if err := json.Unmarshal([]byte(text), &view); err != nil {
		t.Fatalf("unmarshal share: %v", err)
	}
	if view.ID != lp.ID || view.AnalysisResult == nil {
		t.Errorf("share = %+v", view)
	}
}

func TestMCP_AnalyzeFailureHidesCause(t *testing.T) {
	// WHAT: a failed analysis is a tool error carrying only the generic message.
	h := newHarness(t)
	h.completer.err = context.DeadlineExceeded
	session := mcpSession(t, h.svc)

	lp, err := h.svc.CreateLandingPage(context.Background(), "acc-1", "https://example.com/lp", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	text, isErr := callTool(t, session, "lplens_analyze", map[string]any{"account_id": "acc-1", "id": lp.ID})
	if !isErr {
		t.Fatalf("expected tool error, got %s", text)
	}
	if strings.Contains(text, "deadline") || !strings.Contains(text, h.svc.FailureMessage()) {
		t.Errorf("tool error = %q", text)
	}
}

func TestMCP_InvalidURL(t *testing.T) {
	h := newHarness(t)
	session := mcpSession(t, h.svc)

	text, isErr := callTool(t, session, "lplens_create", map[string]any{"account_id": "acc-1", "url": "ftp://x"})
	if !isErr || !strings.Contains(text, "invalid input") {
		t.Errorf("create = %q (isErr=%v)", text, isErr)
	}
}
