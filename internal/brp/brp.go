// Package brp is a client for the Bevy Remote Protocol (BRP).
//
// BRP is JSON-RPC 2.0 over HTTP. Every call is a POST of a request envelope
// to http://<host>:<port>/jsonrpc. Watching methods (suffix "+watch") keep
// the response open and push one JSON-RPC response per change as
// server-sent-event lines.
//
// The client never retries. Callers decide what a failure means.
package brp

import "strings"

// DefaultPort is the port a Bevy app listens on when RemotePlugin uses its defaults.
const DefaultPort = 15702

// DefaultHost is where BRP apps are expected to run.
const DefaultHost = "localhost"

// EndpointPath is the HTTP path BRP serves JSON-RPC on.
const EndpointPath = "/jsonrpc"

const jsonrpcVersion = "2.0"

// BRP methods.
const (
	MethodGet                = "bevy/get"
	MethodQuery              = "bevy/query"
	MethodList               = "bevy/list"
	MethodSpawn              = "bevy/spawn"
	MethodDestroy            = "bevy/destroy"
	MethodInsert             = "bevy/insert"
	MethodRemove             = "bevy/remove"
	MethodReparent           = "bevy/reparent"
	MethodMutateComponent    = "bevy/mutate_component"
	MethodListResources      = "bevy/list_resources"
	MethodGetResource        = "bevy/get_resource"
	MethodInsertResource     = "bevy/insert_resource"
	MethodRemoveResource     = "bevy/remove_resource"
	MethodMutateResource     = "bevy/mutate_resource"
	MethodRegistrySchema     = "bevy/registry/schema"
	MethodRPCDiscover        = "rpc.discover"
	MethodExtrasScreenshot   = "brp_extras/screenshot"
	MethodExtrasShutdown     = "brp_extras/shutdown"
	MethodExtrasDiscoverType = "brp_extras/discover_format"
)

// watchSuffix turns a method into its streaming variant.
const watchSuffix = "+watch"

// WatchMethod returns the streaming variant of method.
func WatchMethod(method string) string {
	if IsWatchMethod(method) {
		return method
	}
	return method + watchSuffix
}

// IsWatchMethod reports whether method is a streaming method.
func IsWatchMethod(method string) bool {
	return strings.HasSuffix(method, watchSuffix)
}

// JSON-RPC and Bevy error codes seen on the wire.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeEntityNotFound      = -23401
	CodeComponentError      = -23402
	CodeComponentNotPresent = -23403
	CodeResourceError       = -23501
)
