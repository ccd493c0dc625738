package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wgd/deepsearch/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	StartRun RunStarter
}

// NewMCPServer creates an MCP server exposing the research pipeline and its
// history as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"deepsearch",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("deepsearch — deep web research runs with durable report history."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("deep_research",
			mcp.WithDescription("Run a full deep research cycle for a query and return the final Markdown report."),
			mcp.WithString("query", mcp.Description("Research question"), mcp.Required()),
		),
		mcpDeepResearch(deps),
	)

	s.AddTool(
		mcp.NewTool("list_history",
			mcp.WithDescription("List stored research reports, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 10)")),
		),
		mcpListHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("get_report",
			mcp.WithDescription("Fetch one stored research report by id."),
			mcp.WithNumber("id", mcp.Description("History record id"), mcp.Required()),
		),
		mcpGetReport(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_report",
			mcp.WithDescription("Delete one stored research report by id."),
			mcp.WithNumber("id", mcp.Description("History record id"), mcp.Required()),
		),
		mcpDeleteReport(deps),
	)

	return s
}

func mcpDeepResearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		run, err := deps.StartRun(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("research failed: %v", err)), nil
		}

		return mcpText(run.Report()), nil
	}
}

func mcpListHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}

		reports, err := deps.Store.ListReports()
		if err != nil {
			return mcpError(fmt.Sprintf("listing history failed: %v", err)), nil
		}
		if len(reports) > limit {
			reports = reports[:limit]
		}

		type entry struct {
			ID        int64     `json:"id"`
			Query     string    `json:"query"`
			CreatedAt time.Time `json:"created_at"`
		}
		entries := make([]entry, len(reports))
		for i, r := range reports {
			entries[i] = entry{ID: r.ID, Query: r.Query, CreatedAt: r.CreatedAt}
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entries: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("id", 0)
		if id <= 0 {
			return mcpError("id is required"), nil
		}

		rep, err := deps.Store.GetReport(int64(id))
		if err != nil {
			return mcpError(fmt.Sprintf("record %d not available: %v", id, err)), nil
		}
		return mcpText(rep.Body), nil
	}
}

func mcpDeleteReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("id", 0)
		if id <= 0 {
			return mcpError("id is required"), nil
		}

		deleted, err := deps.Store.DeleteReport(int64(id))
		if err != nil {
			return mcpError(fmt.Sprintf("deleting record %d failed: %v", id, err)), nil
		}
		if !deleted {
			return mcpText(fmt.Sprintf("record %d did not exist", id)), nil
		}
		return mcpText(fmt.Sprintf("deleted record %d", id)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
