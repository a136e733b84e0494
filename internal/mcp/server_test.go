package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lumehq/recall/internal/consolidate"
	"github.com/lumehq/recall/internal/extract"
	"github.com/lumehq/recall/internal/memory"
	"github.com/lumehq/recall/internal/store"
)

func setupServer(t *testing.T) *server.MCPServer {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(store.Config{Path: filepath.Join(dir, "memories.json")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	eng, err := memory.New(memory.Config{Store: st, Pipeline: extract.NewPipeline()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	cons := consolidate.New(st, consolidate.Config{}, nil, nil)
	return NewServer(ServerConfig{Engine: eng, Consolidator: cons, Version: "test"})
}

// callTool invokes a tool through the JSON-RPC dispatch path.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	raw, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	respBytes, err := json.Marshal(srv.HandleMessage(context.Background(), raw))
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	result := &mcplib.CallToolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			result.Content = append(result.Content, mcplib.NewTextContent(c.Text))
		}
	}
	return result
}

func textOf(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

func TestNewServer(t *testing.T) {
	if srv := setupServer(t); srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestRememberAndFactsTools(t *testing.T) {
	srv := setupServer(t)

	result := callTool(t, srv, "memory_remember", map[string]interface{}{
		"person":    "lisa",
		"utterance": "Ich wohne in Berlin",
	})
	if result.IsError {
		t.Fatalf("remember failed: %s", textOf(t, result))
	}
	var eval memory.EvalResult
	if err := json.Unmarshal([]byte(textOf(t, result)), &eval); err != nil {
		t.Fatalf("parse eval result: %v", err)
	}
	if len(eval.Stored) != 1 || eval.Stored[0].Key != "wohnort" {
		t.Fatalf("unexpected eval result: %+v", eval)
	}

	result = callTool(t, srv, "memory_facts", map[string]interface{}{"person": "lisa"})
	if result.IsError {
		t.Fatalf("facts failed: %s", textOf(t, result))
	}
	var facts []store.StoredMemory
	if err := json.Unmarshal([]byte(textOf(t, result)), &facts); err != nil {
		t.Fatalf("parse facts: %v", err)
	}
	if len(facts) != 1 || facts[0].Value != "berlin" {
		t.Fatalf("unexpected facts: %+v", facts)
	}
}

func TestFactGetUnknownKey(t *testing.T) {
	srv := setupServer(t)
	result := callTool(t, srv, "memory_fact_get", map[string]interface{}{
		"person": "lisa",
		"key":    "wohnort",
	})
	if !result.IsError {
		t.Error("expected error for unknown fact")
	}
}

func TestConfirmFlowThroughTools(t *testing.T) {
	srv := setupServer(t)

	callTool(t, srv, "memory_remember", map[string]interface{}{
		"person": "lisa", "utterance": "Ich wohne in Berlin",
	})
	result := callTool(t, srv, "memory_remember", map[string]interface{}{
		"person": "lisa", "utterance": "Ich wohne in Berlin",
	})
	var eval memory.EvalResult
	if err := json.Unmarshal([]byte(textOf(t, result)), &eval); err != nil {
		t.Fatalf("parse eval result: %v", err)
	}
	if len(eval.PendingConsent) != 1 {
		t.Fatalf("expected pending suggestion, got %+v", eval)
	}
	id := eval.PendingConsent[0].ID

	result = callTool(t, srv, "memory_confirm", map[string]interface{}{"id": id})
	if result.IsError {
		t.Fatalf("confirm failed: %s", textOf(t, result))
	}

	result = callTool(t, srv, "memory_confirm", map[string]interface{}{"id": id})
	if result.IsError {
		t.Fatalf("second confirm errored: %s", textOf(t, result))
	}
	if !strings.Contains(textOf(t, result), "already resolved") {
		t.Errorf("second confirm should report already resolved, got %q", textOf(t, result))
	}
}

func TestForgetTool(t *testing.T) {
	srv := setupServer(t)
	callTool(t, srv, "memory_remember", map[string]interface{}{
		"person": "lisa", "utterance": "Ich wohne in Berlin",
	})

	result := callTool(t, srv, "memory_forget", map[string]interface{}{"person": "lisa"})
	if result.IsError {
		t.Fatalf("forget failed: %s", textOf(t, result))
	}

	result = callTool(t, srv, "memory_facts", map[string]interface{}{"person": "lisa"})
	if got := textOf(t, result); !strings.Contains(got, "null") && !strings.Contains(got, "[]") {
		t.Errorf("expected empty fact list after forget, got %q", got)
	}
}

func TestStatsTool(t *testing.T) {
	srv := setupServer(t)
	callTool(t, srv, "memory_remember", map[string]interface{}{
		"person": "lisa", "utterance": "Ich wohne in Berlin",
	})

	result := callTool(t, srv, "memory_stats", map[string]interface{}{})
	if result.IsError {
		t.Fatalf("stats failed: %s", textOf(t, result))
	}
	var stats store.Stats
	if err := json.Unmarshal([]byte(textOf(t, result)), &stats); err != nil {
		t.Fatalf("parse stats: %v", err)
	}
	if stats.ActiveMemories != 1 || stats.Persons != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMissingRequiredArgument(t *testing.T) {
	srv := setupServer(t)
	result := callTool(t, srv, "memory_remember", map[string]interface{}{"person": "lisa"})
	if !result.IsError {
		t.Error("expected error when utterance is missing")
	}
}
