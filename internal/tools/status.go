package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/bevy-brp-mcp/internal/brp"
)

// StatusTool handles the brp_status MCP tool. It probes a port with
// rpc.discover and reports whether a BRP app answers there.
type StatusTool struct {
	caller      Caller
	defaultPort int
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(c Caller, defaultPort int) *StatusTool {
	return &StatusTool{caller: c, defaultPort: defaultPort}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("brp_status",
		mcp.WithDescription(
			"Check whether a Bevy app with RemotePlugin answers on a port, and "+
				"how many BRP methods it exposes. Run this first when other tools "+
				"report connection failures.",
		),
		mcp.WithNumber("port", mcp.Description(portDescription)),
	)
}

type statusResponse struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	Port        int      `json:"port"`
	Responding  bool     `json:"responding"`
	MethodCount int      `json:"method_count,omitempty"`
	Methods     []string `json:"methods,omitempty"`
}

// Handle processes the brp_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	port, err := portArg(req, t.defaultPort)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.caller.Call(ctx, brp.MethodRPCDiscover, nil, port)
	if err != nil {
		if brp.IsConnectionError(err) {
			return jsonResult(statusResponse{
				Status:  statusSuccess,
				Message: fmt.Sprintf("No BRP app is answering on port %d", port),
				Port:    port,
			})
		}
		return brpErrorResult(brp.MethodRPCDiscover, err), nil
	}

	methods := discoveredMethods(result)
	return jsonResult(statusResponse{
		Status:      statusSuccess,
		Message:     fmt.Sprintf("BRP is responding on port %d", port),
		Port:        port,
		Responding:  true,
		MethodCount: len(methods),
		Methods:     methods,
	})
}

// discoveredMethods pulls method names out of an OpenRPC document. An
// unexpected shape yields no names rather than an error: the app answered,
// which is all the probe needs.
func discoveredMethods(doc json.RawMessage) []string {
	var parsed struct {
		Methods []struct {
			Name string `json:"name"`
		} `json:"methods"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil
	}
	names := make([]string, 0, len(parsed.Methods))
	for _, m := range parsed.Methods {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names
}
