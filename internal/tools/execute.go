package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/bevy-brp-mcp/internal/brp"
)

// callResponse is returned by every tool that relays one BRP call.
type callResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ExecuteTool handles the brp_execute MCP tool: any BRP method, raw params.
type ExecuteTool struct {
	caller      Caller
	defaultPort int
}

// NewExecuteTool creates an ExecuteTool.
func NewExecuteTool(c Caller, defaultPort int) *ExecuteTool {
	return &ExecuteTool{caller: c, defaultPort: defaultPort}
}

// Definition returns the MCP tool definition for registration.
func (t *ExecuteTool) Definition() mcp.Tool {
	return mcp.NewTool("brp_execute",
		mcp.WithDescription(
			"Execute any Bevy Remote Protocol method with raw parameters. Use this "+
				"for methods without a dedicated tool, or call 'rpc.discover' to list "+
				"what the running app supports. Streaming '+watch' methods are not "+
				"accepted here; use bevy_get_watch or bevy_list_watch.",
		),
		mcp.WithString("method",
			mcp.Required(),
			mcp.Description("The BRP method, e.g. 'bevy/query' or 'rpc.discover'."),
		),
		withAnyParam("params", "Parameters for the method, passed through unchanged.", false),
		mcp.WithNumber("port", mcp.Description(portDescription)),
	)
}

// Handle processes the brp_execute tool call.
func (t *ExecuteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	method := strings.TrimSpace(req.GetString("method", ""))
	if method == "" {
		return mcp.NewToolResultError("'method' is required, e.g. 'rpc.discover'"), nil
	}
	if brp.IsWatchMethod(method) {
		return mcp.NewToolResultError(fmt.Sprintf("%s streams; start it with bevy_get_watch or bevy_list_watch", method)), nil
	}
	port, err := portArg(req, t.defaultPort)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	params := req.GetArguments()["params"]
	result, err := t.caller.Call(ctx, method, params, port)
	if err != nil {
		return brpErrorResult(method, err), nil
	}
	return jsonResult(callResponse{
		Status:  statusSuccess,
		Message: fmt.Sprintf("Executed %s on port %d", method, port),
		Data:    result,
	})
}

// withAnyParam declares a parameter of any JSON type.
func withAnyParam(name, description string, required bool) mcp.ToolOption {
	return func(t *mcp.Tool) {
		if t.InputSchema.Properties == nil {
			t.InputSchema.Properties = make(map[string]any)
		}
		t.InputSchema.Properties[name] = map[string]any{"description": description}
		if required {
			t.InputSchema.Required = append(t.InputSchema.Required, name)
		}
	}
}
