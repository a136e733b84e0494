// Package mcp exposes the memory subsystem over the Model Context
// Protocol, so assistant runtimes can remember, recall, and manage
// facts through tool calls. Supports stdio transport.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lumehq/recall/internal/consolidate"
	"github.com/lumehq/recall/internal/memory"
	"github.com/lumehq/recall/internal/store"
)

// ServerConfig holds the dependencies for the MCP server.
type ServerConfig struct {
	Engine       *memory.Engine
	Consolidator *consolidate.Consolidator
	Version      string // server info version, "dev" when empty
}

// storeMu serializes tool calls. The mcp-go library dispatches handlers
// on separate goroutines, and the evaluate path reads existing memories
// before writing; a global mutex keeps score/store interleavings out.
var storeMu sync.Mutex

// NewServer creates the MCP server with every memory tool registered.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Recall",
		ver,
		server.WithToolCapabilities(false),
	)

	registerRememberTool(s, cfg.Engine)
	registerFactsTool(s, cfg.Engine)
	registerFactGetTool(s, cfg.Engine)
	registerSuggestionsTool(s, cfg.Engine)
	registerConfirmTool(s, cfg.Engine)
	registerRejectTool(s, cfg.Engine)
	registerForgetTool(s, cfg.Engine)
	registerExportTool(s, cfg.Engine)
	registerConsolidateTool(s, cfg.Consolidator)
	registerStatsTool(s, cfg.Engine)

	return s
}

func registerRememberTool(s *server.MCPServer, eng *memory.Engine) {
	tool := mcp.NewTool("memory_remember",
		mcp.WithDescription("Evaluate an utterance for memorable personal facts. Stores high-confidence low-risk facts directly, queues borderline ones for consent, and rejects sensitive content. Utterances containing PII are discarded whole."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("person",
			mcp.Required(),
			mcp.Description("Identifier of the person the utterance is about"),
		),
		mcp.WithString("utterance",
			mcp.Required(),
			mcp.Description("The raw utterance to evaluate"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storeMu.Lock()
		defer storeMu.Unlock()

		person, err := req.RequireString("person")
		if err != nil {
			return mcp.NewToolResultError("person is required"), nil
		}
		utterance, err := req.RequireString("utterance")
		if err != nil {
			return mcp.NewToolResultError("utterance is required"), nil
		}

		result, err := eng.EvaluateAndMaybeStore(ctx, person, utterance)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("evaluate error: %v", err)), nil
		}
		return jsonResult(result)
	})
}

func registerFactsTool(s *server.MCPServer, eng *memory.Engine) {
	tool := mcp.NewTool("memory_facts",
		mcp.WithDescription("List all active memories for a person, newest first. Expired records are excluded."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("person",
			mcp.Required(),
			mcp.Description("Identifier of the person"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storeMu.Lock()
		defer storeMu.Unlock()

		person, err := req.RequireString("person")
		if err != nil {
			return mcp.NewToolResultError("person is required"), nil
		}
		return jsonResult(eng.Store().ListByPerson(person))
	})
}

func registerFactGetTool(s *server.MCPServer, eng *memory.Engine) {
	tool := mcp.NewTool("memory_fact_get",
		mcp.WithDescription("Look up a single fact by person and key (case-insensitive)."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("person",
			mcp.Required(),
			mcp.Description("Identifier of the person"),
		),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Fact key, e.g. 'wohnort' or 'mag:sushi'"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storeMu.Lock()
		defer storeMu.Unlock()

		person, err := req.RequireString("person")
		if err != nil {
			return mcp.NewToolResultError("person is required"), nil
		}
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError("key is required"), nil
		}

		fact, err := eng.Store().FindFact(person, key)
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no fact %q for %s", key, person)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("lookup error: %v", err)), nil
		}
		return jsonResult(fact)
	})
}

func registerSuggestionsTool(s *server.MCPServer, eng *memory.Engine) {
	tool := mcp.NewTool("memory_suggestions",
		mcp.WithDescription("List pending consent suggestions for a person."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("person",
			mcp.Required(),
			mcp.Description("Identifier of the person"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storeMu.Lock()
		defer storeMu.Unlock()

		person, err := req.RequireString("person")
		if err != nil {
			return mcp.NewToolResultError("person is required"), nil
		}
		return jsonResult(eng.Store().ListSuggestions(person))
	})
}

func registerConfirmTool(s *server.MCPServer, eng *memory.Engine) {
	tool := mcp.NewTool("memory_confirm",
		mcp.WithDescription("Confirm a pending suggestion by id, promoting it into the active store. Idempotent."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Suggestion id from memory_suggestions"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storeMu.Lock()
		defer storeMu.Unlock()

		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		m, promoted, err := eng.Confirm(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no suggestion %s", id)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("confirm error: %v", err)), nil
		}
		if !promoted {
			return mcp.NewToolResultText("already resolved"), nil
		}
		return jsonResult(m)
	})
}

func registerRejectTool(s *server.MCPServer, eng *memory.Engine) {
	tool := mcp.NewTool("memory_reject",
		mcp.WithDescription("Reject a pending suggestion by id. Nothing is stored. Idempotent."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Suggestion id from memory_suggestions"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storeMu.Lock()
		defer storeMu.Unlock()

		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		rejected, err := eng.Reject(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no suggestion %s", id)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reject error: %v", err)), nil
		}
		if !rejected {
			return mcp.NewToolResultText("already resolved"), nil
		}
		return mcp.NewToolResultText("rejected"), nil
	})
}

func registerForgetTool(s *server.MCPServer, eng *memory.Engine) {
	tool := mcp.NewTool("memory_forget",
		mcp.WithDescription("Delete all memories, suggestions, summaries, and archived records for a person. Irreversible."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("person",
			mcp.Required(),
			mcp.Description("Identifier of the person to erase"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storeMu.Lock()
		defer storeMu.Unlock()

		person, err := req.RequireString("person")
		if err != nil {
			return mcp.NewToolResultError("person is required"), nil
		}

		removed, err := eng.Store().DeleteAll(ctx, person)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("forget error: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("removed %d records for %s", removed, person)), nil
	})
}

func registerExportTool(s *server.MCPServer, eng *memory.Engine) {
	tool := mcp.NewTool("memory_export",
		mcp.WithDescription("Export every record held about a person (active, pending, summarized, archived) as JSON."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("person",
			mcp.Required(),
			mcp.Description("Identifier of the person"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storeMu.Lock()
		defer storeMu.Unlock()

		person, err := req.RequireString("person")
		if err != nil {
			return mcp.NewToolResultError("person is required"), nil
		}

		export, err := eng.Store().ExportAll(ctx, person)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("export error: %v", err)), nil
		}
		return jsonResult(export)
	})
}

func registerConsolidateTool(s *server.MCPServer, cons *consolidate.Consolidator) {
	tool := mcp.NewTool("memory_consolidate",
		mcp.WithDescription("Merge clusters of old related memories into summaries and archive the sources. Pass a person to consolidate one person, omit it for everyone."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("person",
			mcp.Description("Optional person identifier; empty consolidates all persons"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storeMu.Lock()
		defer storeMu.Unlock()

		var (
			report consolidate.Report
			err    error
		)
		if person, perr := req.RequireString("person"); perr == nil && strings.TrimSpace(person) != "" {
			report, err = cons.SummarizeUserMemories(ctx, person)
		} else {
			report, err = cons.RunAll(ctx)
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("consolidate error: %v", err)), nil
		}
		return jsonResult(report)
	})
}

func registerStatsTool(s *server.MCPServer, eng *memory.Engine) {
	tool := mcp.NewTool("memory_stats",
		mcp.WithDescription("Report store-wide counters: persons, active memories, pending suggestions, summaries, archived records."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storeMu.Lock()
		defer storeMu.Unlock()

		stats, err := eng.Store().Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}
		return jsonResult(stats)
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio runs the server over stdin/stdout until EOF.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
