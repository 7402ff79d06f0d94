// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations
// and injects them into the tools/prompts/resources that depend on
// abstractions. No business logic lives here, only wiring.
package server

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/HendryAvila/bevy-brp-mcp/internal/brp"
	"github.com/HendryAvila/bevy-brp-mcp/internal/config"
	"github.com/HendryAvila/bevy-brp-mcp/internal/history"
	"github.com/HendryAvila/bevy-brp-mcp/internal/prompts"
	"github.com/HendryAvila/bevy-brp-mcp/internal/resources"
	"github.com/HendryAvila/bevy-brp-mcp/internal/tools"
	"github.com/HendryAvila/bevy-brp-mcp/internal/watch"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Name is the MCP server name reported to clients.
const Name = "bevy-brp-mcp"

// Components are the long-lived pieces New builds besides the MCP server.
type Components struct {
	// Client talks to BRP apps.
	Client *brp.Client
	// Watches owns every running watch. Drain it with Shutdown before exit.
	Watches *watch.Manager
	// History is nil when the watch history is disabled or failed to open.
	History *history.Store
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. This is the single place where all
// dependencies are resolved.
//
// The returned cleanup function closes the history database and must be
// called on shutdown, after Components.Watches has been drained so the
// final watch states are recorded. It is always non-nil and safe to call
// even if history init failed.
func New(cfg *config.Config, logger *zap.Logger) (*server.MCPServer, *Components, func()) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// --- Create shared dependencies ---

	client := brp.NewClient(brp.Options{
		Host:           cfg.Host,
		RequestTimeout: cfg.RequestTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         logger,
	})

	// History is an independent subsystem: if it fails to initialize,
	// watches keep working without a durable record. We log a warning and
	// skip the history tool.
	cleanup := noop
	var store *history.Store
	if cfg.History {
		hcfg := history.DefaultConfig(cfg.HistoryPath())
		hcfg.Logger = logger
		s, err := history.New(hcfg)
		if err != nil {
			logger.Warn("watch history disabled", zap.String("path", hcfg.Path), zap.Error(err))
		} else {
			store = s
			cleanup = func() {
				if err := store.Close(); err != nil {
					logger.Warn("closing watch history", zap.Error(err))
				}
			}
		}
	}

	opts := watch.Options{
		LogDir:      cfg.LogDir,
		MaxWatches:  cfg.MaxWatches,
		StopTimeout: cfg.StopTimeout,
		DefaultPort: cfg.DefaultPort,
		Logger:      logger,
	}
	if store != nil {
		opts.Observer = store
	}
	manager := watch.NewManager(watch.ClientTransport(client), opts)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register BRP tools ---

	for _, t := range tools.MethodTools(client, cfg.DefaultPort) {
		s.AddTool(t.Definition(), t.Handle)
	}

	executeTool := tools.NewExecuteTool(client, cfg.DefaultPort)
	s.AddTool(executeTool.Definition(), executeTool.Handle)

	statusTool := tools.NewStatusTool(client, cfg.DefaultPort)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	// --- Register watch tools ---

	getWatchTool := tools.NewGetWatchTool(manager, cfg.DefaultPort)
	s.AddTool(getWatchTool.Definition(), getWatchTool.Handle)

	listWatchTool := tools.NewListWatchTool(manager, cfg.DefaultPort)
	s.AddTool(listWatchTool.Definition(), listWatchTool.Handle)

	stopWatchTool := tools.NewStopWatchTool(manager)
	s.AddTool(stopWatchTool.Definition(), stopWatchTool.Handle)

	activeWatchesTool := tools.NewListActiveWatchesTool(manager)
	s.AddTool(activeWatchesTool.Definition(), activeWatchesTool.Handle)

	if store != nil {
		historyTool := tools.NewWatchHistoryTool(store)
		s.AddTool(historyTool.Definition(), historyTool.Handle)
	}

	// --- Register log tools ---

	listLogsTool := tools.NewListLogsTool(cfg.LogDir, manager)
	s.AddTool(listLogsTool.Definition(), listLogsTool.Handle)

	readLogTool := tools.NewReadLogTool(cfg.LogDir)
	s.AddTool(readLogTool.Definition(), readLogTool.Handle)

	cleanupLogsTool := tools.NewCleanupLogsTool(cfg.LogDir, manager)
	s.AddTool(cleanupLogsTool.Definition(), cleanupLogsTool.Handle)

	// --- Register prompts ---

	discoverPrompt := prompts.NewDiscoverPrompt()
	s.AddPrompt(discoverPrompt.Definition(), discoverPrompt.Handle)

	watchPrompt := prompts.NewWatchEntityPrompt()
	s.AddPrompt(watchPrompt.Definition(), watchPrompt.Handle)

	// --- Register resources ---

	resHandler := resources.NewHandler(manager)
	s.AddResource(resHandler.ActiveWatchesResource(), resHandler.HandleActiveWatches)

	return s, &Components{Client: client, Watches: manager, History: store}, cleanup
}

// noop is a no-op cleanup function.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use the bridge effectively.
func serverInstructions() string {
	return `You have access to a Bevy Remote Protocol (BRP) bridge. It talks to running
Bevy apps that have RemotePlugin enabled (default port 15702).

## Getting started
- Call brp_status first. If nothing answers, the app is not running or lacks RemotePlugin.
- Call bevy_rpc_discover (or use the discover-brp-methods prompt) to see what the app supports.
- Component and resource names are fully qualified, e.g.
  bevy_transform::components::transform::Transform.
- Math types use arrays: Vec3 is [x, y, z], Quat is [x, y, z, w].

## Reading and changing the world
- bevy_query finds entities; bevy_get reads components of one entity.
- bevy_spawn, bevy_insert, bevy_remove, bevy_destroy and bevy_mutate_component change entities.
- bevy_*_resource tools do the same for resources.
- brp_execute calls any other method with raw params.

## Watching entities
Watches stream changes into log files instead of into the conversation.
1. bevy_get_watch (component values) or bevy_list_watch (component set) returns a watch_id and log path.
2. read_log reads the log by file name. Use keyword and tail_lines to keep output short.
3. bevy_stop_watch ends a watch. Always stop watches you no longer need; there is a cap.
4. bevy_list_active_watches shows what is running. bevy_watch_history shows watches that ended and why.

Every log starts with WATCH_STARTED. A WATCH_ERROR line is always the last line of a
watch that failed, for example because the entity was destroyed or the app exited.`
}
