package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/bevy-brp-mcp/internal/history"
)

// defaultHistoryLimit is how many entries bevy_watch_history returns when
// no limit is given.
const defaultHistoryLimit = 20

// HistoryReader is the part of history.Store the history tool uses.
type HistoryReader interface {
	Recent(limit int, currentRun bool) ([]history.Entry, error)
}

// WatchHistoryTool handles the bevy_watch_history MCP tool.
type WatchHistoryTool struct {
	reader HistoryReader
}

// NewWatchHistoryTool creates a WatchHistoryTool.
func NewWatchHistoryTool(r HistoryReader) *WatchHistoryTool {
	return &WatchHistoryTool{reader: r}
}

// Definition returns the MCP tool definition for registration.
func (t *WatchHistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("bevy_watch_history",
		mcp.WithDescription(
			"List watches this server has run, newest first, including ones that "+
				"already ended. Shows how each watch ended and where its log is. "+
				"Use run='all' to include watches from earlier server sessions.",
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to return (default: 20)."),
		),
		mcp.WithString("run",
			mcp.Description("'current' (default) for this session only, 'all' for every session."),
			mcp.Enum("current", "all"),
		),
	)
}

// Handle processes the bevy_watch_history tool call.
func (t *WatchHistoryTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit, err := intArg(req, "limit", defaultHistoryLimit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if limit <= 0 {
		return mcp.NewToolResultError("'limit' must be positive"), nil
	}

	run := strings.ToLower(strings.TrimSpace(req.GetString("run", "current")))
	if run != "current" && run != "all" {
		return mcp.NewToolResultError(fmt.Sprintf("'run' must be 'current' or 'all', got %q", run)), nil
	}

	entries, err := t.reader.Recent(limit, run == "current")
	if err != nil {
		return nil, fmt.Errorf("reading watch history: %w", err)
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	return jsonResult(map[string]any{
		"status":  statusSuccess,
		"message": fmt.Sprintf("Found %d watch(es) in %s history", len(entries), run),
		"count":   len(entries),
		"watches": entries,
	})
}
