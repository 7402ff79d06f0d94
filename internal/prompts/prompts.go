// Package prompts implements MCP prompt handlers for the BRP bridge.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence of tool calls. Unlike
// tools (which the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// DiscoverPrompt handles the discover-brp-methods MCP prompt.
// It has the AI ask the running app which BRP methods it supports.
type DiscoverPrompt struct{}

// NewDiscoverPrompt creates a DiscoverPrompt.
func NewDiscoverPrompt() *DiscoverPrompt {
	return &DiscoverPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *DiscoverPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("discover-brp-methods",
		mcp.WithPromptDescription(
			"Discover which Bevy Remote Protocol methods the running app supports.",
		),
		mcp.WithArgument("port",
			mcp.ArgumentDescription("BRP port of the app. Default: the configured port"),
		),
	)
}

// Handle processes the discover-brp-methods prompt request.
func (p *DiscoverPrompt) Handle(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	var withPort, andPort string
	if port := strings.TrimSpace(req.Params.Arguments["port"]); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("port must be a number, got %q", port)
		}
		withPort = fmt.Sprintf(` with "port": %s`, port)
		andPort = fmt.Sprintf(` and "port": %s`, port)
	}

	return &mcp.GetPromptResult{
		Description: "Discover BRP methods",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Find out what the running Bevy app can do over BRP.\n\n"+
						"1. Call `brp_status`%s to confirm the app is answering.\n"+
						"2. Call `brp_execute` with \"method\": \"rpc.discover\"%s.\n"+
						"3. Summarize the methods it returned, grouped by prefix (bevy/, brp_extras/, others). "+
						"Point out which ones have dedicated tools and which need `brp_execute`.\n"+
						"4. Mention that `+watch` methods are available through `bevy_get_watch` and `bevy_list_watch`.",
					withPort, andPort,
				)),
			},
		},
	}, nil
}

// WatchEntityPrompt handles the watch-entity MCP prompt.
// It walks the AI through starting a watch and reading what it records.
type WatchEntityPrompt struct{}

// NewWatchEntityPrompt creates a WatchEntityPrompt.
func NewWatchEntityPrompt() *WatchEntityPrompt {
	return &WatchEntityPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *WatchEntityPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("watch-entity",
		mcp.WithPromptDescription(
			"Watch an entity for changes and report what happens. "+
				"Watches component values when components are given, otherwise the component list.",
		),
		mcp.WithArgument("entity",
			mcp.RequiredArgument(),
			mcp.ArgumentDescription("The entity ID to watch"),
		),
		mcp.WithArgument("components",
			mcp.ArgumentDescription("Comma-separated fully-qualified component names. Leave empty to watch the component list"),
		),
	)
}

// Handle processes the watch-entity prompt request.
func (p *WatchEntityPrompt) Handle(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	entity := strings.TrimSpace(args["entity"])
	if entity == "" {
		return nil, fmt.Errorf("entity is required")
	}
	if _, err := strconv.ParseUint(entity, 10, 64); err != nil {
		return nil, fmt.Errorf("entity must be a non-negative integer, got %q", entity)
	}

	var components []string
	for _, c := range strings.Split(args["components"], ",") {
		if c = strings.TrimSpace(c); c != "" {
			components = append(components, c)
		}
	}

	var start string
	if len(components) > 0 {
		quoted := make([]string, len(components))
		for i, c := range components {
			quoted[i] = strconv.Quote(c)
		}
		start = fmt.Sprintf(
			"Call `bevy_get_watch` with \"entity\": %s and \"components\": [%s]. "+
				"Changes show up as COMPONENT_UPDATE lines.",
			entity, strings.Join(quoted, ", "))
	} else {
		start = fmt.Sprintf(
			"Call `bevy_list_watch` with \"entity\": %s. "+
				"Additions and removals show up as LIST_UPDATE lines.",
			entity)
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Watch entity %s", entity),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Watch entity %s in the running Bevy app and tell me what changes.\n\n"+
						"1. %s Note the returned watch_id and log path.\n"+
						"2. Read the log with `read_log`, passing only the file name. Use `tail_lines` to keep it short.\n"+
						"3. Summarize the changes. A WATCH_ERROR line means the watch ended; say why.\n"+
						"4. When I'm done, stop the watch with `bevy_stop_watch`.",
					entity, start,
				)),
			},
		},
	}, nil
}
