// Package tools implements the MCP tool handlers of the BRP bridge.
//
// Each tool is a struct that receives its dependencies through its
// constructor and exposes Definition() for registration and Handle() as
// the mcp-go handler. Tools depend on small interfaces (Caller, Watcher,
// HistoryReader), not on concrete clients, so tests can drive them with
// fakes.
//
// Handlers report bad input and remote failures as tool error results and
// reserve Go errors for failures of the server itself.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/bevy-brp-mcp/internal/brp"
	"github.com/HendryAvila/bevy-brp-mcp/internal/watch"
)

// Caller sends one BRP request and returns the raw result.
type Caller interface {
	Call(ctx context.Context, method string, params any, port int) (json.RawMessage, error)
}

// Watcher is the part of watch.Manager the watch tools use.
type Watcher interface {
	StartValueWatch(entity uint64, components []string, port int) (watch.StartResult, error)
	StartStructureWatch(entity uint64, port int) (watch.StartResult, error)
	Stop(ctx context.Context, id uint64) error
	List() []watch.Subscription
}

// Status values of every JSON tool response.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// portDescription is shared by every tool that talks to an app.
const portDescription = "BRP port of the Bevy app. Defaults to the configured port (15702 unless overridden)."

// intArg extracts an integer argument from a tool request, returning
// defaultVal when the key is absent. Fractions and non-numbers are errors.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) (int, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return defaultVal, nil
	}
	v, ok := raw.(float64)
	if !ok || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, fmt.Errorf("'%s' must be an integer, got %v", key, raw)
	}
	return int(v), nil
}

// uintArg extracts a non-negative integer argument. Entity ids arrive as
// JSON numbers; numeric strings are accepted too since some clients quote
// large ids.
func uintArg(req mcp.CallToolRequest, key string) (uint64, bool, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v < 0 || v != math.Trunc(v) || v >= math.MaxUint64 {
			return 0, true, fmt.Errorf("'%s' must be a non-negative integer, got %v", key, v)
		}
		return uint64(v), true, nil
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, true, fmt.Errorf("'%s' must be a non-negative integer, got %q", key, v)
		}
		return n, true, nil
	default:
		return 0, true, fmt.Errorf("'%s' must be a non-negative integer", key)
	}
}

// stringSliceArg extracts an array of strings. A nil result means the key
// was absent.
func stringSliceArg(req mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("'%s' must be an array of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("'%s' must contain only strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// portArg returns the requested port, or defaultPort when none was given.
func portArg(req mcp.CallToolRequest, defaultPort int) (int, error) {
	port, err := intArg(req, "port", 0)
	if err != nil {
		return 0, err
	}
	if port == 0 {
		return defaultPort, nil
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("'port' must be between 1 and 65535, got %d", port)
	}
	return port, nil
}

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorBody is the JSON payload of a failed tool call.
type errorBody struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    int             `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// brpErrorResult turns a BRP failure into a tool error result, keeping the
// remote error code and data when there is one.
func brpErrorResult(method string, err error) *mcp.CallToolResult {
	body := errorBody{Status: statusError, Message: fmt.Sprintf("%s failed: %v", method, err)}
	if pe, ok := brp.AsProtocolError(err); ok {
		body.Message = fmt.Sprintf("%s failed: %s", method, pe.Message)
		body.Code = pe.Code
		body.Data = pe.Data
	} else if brp.IsConnectionError(err) {
		body.Message = fmt.Sprintf("%s failed: no Bevy app answered. Is it running with RemotePlugin enabled? (%v)", method, err)
	}

	data, merr := json.MarshalIndent(body, "", "  ")
	if merr != nil {
		return mcp.NewToolResultError(body.Message)
	}
	return mcp.NewToolResultError(string(data))
}
