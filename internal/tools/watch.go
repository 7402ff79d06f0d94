package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/bevy-brp-mcp/internal/watch"
)

// startResponse is returned by both start tools.
type startResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	WatchID uint64 `json:"watch_id"`
	LogPath string `json:"log_path"`
}

// watchError maps a watch failure to the message shown to the client.
func watchError(err error) *mcp.CallToolResult {
	switch {
	case watch.IsValidation(err):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, watch.ErrResourceExhausted):
		return mcp.NewToolResultError(err.Error() + ". Stop a watch with bevy_stop_watch first.")
	case errors.Is(err, watch.ErrNotFound):
		return mcp.NewToolResultError(err.Error() + ". Use bevy_list_active_watches to see active watch ids.")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

// --- bevy_get_watch ---

// GetWatchTool handles the bevy_get_watch MCP tool. It streams component
// value changes of one entity into a log file.
type GetWatchTool struct {
	watcher     Watcher
	defaultPort int
}

// NewGetWatchTool creates a GetWatchTool.
func NewGetWatchTool(w Watcher, defaultPort int) *GetWatchTool {
	return &GetWatchTool{watcher: w, defaultPort: defaultPort}
}

// Definition returns the MCP tool definition for registration.
func (t *GetWatchTool) Definition() mcp.Tool {
	return mcp.NewTool("bevy_get_watch",
		mcp.WithDescription(
			"Start watching component values of one entity. Every change the app "+
				"reports is appended to a log file as a COMPONENT_UPDATE record. "+
				"Returns the watch id and log path; read the log with read_log and "+
				"end the watch with bevy_stop_watch.",
		),
		mcp.WithNumber("entity",
			mcp.Required(),
			mcp.Description("The entity ID to watch."),
		),
		mcp.WithArray("components",
			mcp.Required(),
			mcp.Description("Fully-qualified component type names to watch, e.g. "+
				"'bevy_transform::components::transform::Transform'. At least one is required."),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("port", mcp.Description(portDescription)),
	)
}

// Handle processes the bevy_get_watch tool call.
func (t *GetWatchTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entity, ok, err := uintArg(req, "entity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("'entity' is required: the entity ID to watch"), nil
	}
	components, err := stringSliceArg(req, "components")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	port, err := portArg(req, t.defaultPort)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.watcher.StartValueWatch(entity, components, port)
	if err != nil {
		return watchError(err), nil
	}
	return jsonResult(startResponse{
		Status:  statusSuccess,
		Message: fmt.Sprintf("Started watching %d component(s) on entity %d", len(res.Components), entity),
		WatchID: res.ID,
		LogPath: res.LogPath,
	})
}

// --- bevy_list_watch ---

// ListWatchTool handles the bevy_list_watch MCP tool. It streams component
// additions and removals of one entity into a log file.
type ListWatchTool struct {
	watcher     Watcher
	defaultPort int
}

// NewListWatchTool creates a ListWatchTool.
func NewListWatchTool(w Watcher, defaultPort int) *ListWatchTool {
	return &ListWatchTool{watcher: w, defaultPort: defaultPort}
}

// Definition returns the MCP tool definition for registration.
func (t *ListWatchTool) Definition() mcp.Tool {
	return mcp.NewTool("bevy_list_watch",
		mcp.WithDescription(
			"Start watching which components one entity has. Every addition or "+
				"removal is appended to a log file as a LIST_UPDATE record with the "+
				"current component set. Returns the watch id and log path.",
		),
		mcp.WithNumber("entity",
			mcp.Required(),
			mcp.Description("The entity ID to watch."),
		),
		mcp.WithNumber("port", mcp.Description(portDescription)),
	)
}

// Handle processes the bevy_list_watch tool call.
func (t *ListWatchTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entity, ok, err := uintArg(req, "entity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("'entity' is required: the entity ID to watch"), nil
	}
	port, err := portArg(req, t.defaultPort)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.watcher.StartStructureWatch(entity, port)
	if err != nil {
		return watchError(err), nil
	}
	return jsonResult(startResponse{
		Status:  statusSuccess,
		Message: fmt.Sprintf("Started watching component list of entity %d", entity),
		WatchID: res.ID,
		LogPath: res.LogPath,
	})
}

// --- bevy_stop_watch ---

// StopWatchTool handles the bevy_stop_watch MCP tool.
type StopWatchTool struct {
	watcher Watcher
}

// NewStopWatchTool creates a StopWatchTool.
func NewStopWatchTool(w Watcher) *StopWatchTool {
	return &StopWatchTool{watcher: w}
}

// Definition returns the MCP tool definition for registration.
func (t *StopWatchTool) Definition() mcp.Tool {
	return mcp.NewTool("bevy_stop_watch",
		mcp.WithDescription(
			"Stop an active watch. Once this returns, nothing more is written to "+
				"the watch's log file. The log file itself is kept.",
		),
		mcp.WithNumber("watch_id",
			mcp.Required(),
			mcp.Description("The watch ID returned by bevy_get_watch or bevy_list_watch."),
		),
	)
}

// Handle processes the bevy_stop_watch tool call.
func (t *StopWatchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok, err := uintArg(req, "watch_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("'watch_id' is required"), nil
	}

	if err := t.watcher.Stop(ctx, id); err != nil {
		return watchError(err), nil
	}
	return jsonResult(map[string]any{
		"status":  statusSuccess,
		"message": fmt.Sprintf("Stopped watch %d", id),
	})
}

// --- bevy_list_active_watches ---

// ListActiveWatchesTool handles the bevy_list_active_watches MCP tool.
type ListActiveWatchesTool struct {
	watcher Watcher
}

// NewListActiveWatchesTool creates a ListActiveWatchesTool.
func NewListActiveWatchesTool(w Watcher) *ListActiveWatchesTool {
	return &ListActiveWatchesTool{watcher: w}
}

// Definition returns the MCP tool definition for registration.
func (t *ListActiveWatchesTool) Definition() mcp.Tool {
	return mcp.NewTool("bevy_list_active_watches",
		mcp.WithDescription("List all active watches with their entity, type, port, state and log path."),
	)
}

// WatchInfo is the listing form of one watch.
type WatchInfo struct {
	WatchID    uint64   `json:"watch_id"`
	EntityID   uint64   `json:"entity_id"`
	WatchType  string   `json:"watch_type"`
	Components []string `json:"components,omitempty"`
	LogPath    string   `json:"log_path"`
	Port       int      `json:"port"`
	State      string   `json:"state"`
}

// WatchInfos converts subscriptions to their listing form.
func WatchInfos(subs []watch.Subscription) []WatchInfo {
	out := make([]WatchInfo, 0, len(subs))
	for _, s := range subs {
		out = append(out, WatchInfo{
			WatchID:    s.ID,
			EntityID:   s.Entity,
			WatchType:  s.Kind.String(),
			Components: s.Components,
			LogPath:    s.LogPath,
			Port:       s.Port,
			State:      string(s.State),
		})
	}
	return out
}

// Handle processes the bevy_list_active_watches tool call.
func (t *ListActiveWatchesTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos := WatchInfos(t.watcher.List())

	msg := fmt.Sprintf("Found %d active watch(es)", len(infos))
	if len(infos) > 0 {
		ids := make([]string, len(infos))
		for i, w := range infos {
			ids[i] = fmt.Sprint(w.WatchID)
		}
		msg += ": " + strings.Join(ids, ", ")
	}

	return jsonResult(struct {
		Status  string      `json:"status"`
		Message string      `json:"message"`
		Count   int         `json:"count"`
		Watches []WatchInfo `json:"watches"`
	}{statusSuccess, msg, len(infos), infos})
}
