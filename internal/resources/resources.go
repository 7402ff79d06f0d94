// Package resources implements MCP resource handlers for the BRP bridge.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (brp://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/bevy-brp-mcp/internal/tools"
	"github.com/HendryAvila/bevy-brp-mcp/internal/watch"
)

// ActiveWatchesURI addresses the active watch list.
const ActiveWatchesURI = "brp://watches/active"

// Lister returns the active watches.
type Lister interface {
	List() []watch.Subscription
}

// Handler manages BRP resource endpoints.
type Handler struct {
	watches Lister
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(w Lister) *Handler {
	return &Handler{watches: w}
}

// ActiveWatchesResource returns the MCP resource definition for the active
// watch list.
func (h *Handler) ActiveWatchesResource() mcp.Resource {
	return mcp.NewResource(
		ActiveWatchesURI,
		"Active BRP Watches",
		mcp.WithResourceDescription("Watches currently streaming from Bevy apps, with their log files"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleActiveWatches returns the active watches as JSON.
func (h *Handler) HandleActiveWatches(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(tools.WatchInfos(h.watches.List()), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling active watches: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
