package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/bevy-brp-mcp/internal/brp"
)

type paramKind int

const (
	paramString paramKind = iota
	paramNumber
	paramBool
	paramObject
	paramStringArray
	paramNumberArray
	paramAny
)

type param struct {
	name        string
	kind        paramKind
	description string
	required    bool
}

// methodSpec describes a tool that relays one fixed BRP method. The tool's
// arguments, minus port, become the method's params as given.
type methodSpec struct {
	name        string
	method      string
	description string
	params      []param
}

const mathNote = " Math types use array format: Vec2 [x,y], Vec3 [x,y,z], Vec4/Quat [x,y,z,w]."

var methodSpecs = []methodSpec{
	{
		name:        "bevy_list",
		method:      brp.MethodList,
		description: "List component types. With an entity, lists the components on that entity; without, lists every registered component type.",
		params: []param{
			{"entity", paramNumber, "Optional entity ID to list components for.", false},
		},
	},
	{
		name:        "bevy_get",
		method:      brp.MethodGet,
		description: "Get component values from one entity.",
		params: []param{
			{"entity", paramNumber, "The entity ID to read from.", true},
			{"components", paramStringArray, "Fully-qualified component type names to read.", true},
		},
	},
	{
		name:        "bevy_query",
		method:      brp.MethodQuery,
		description: "Query entities by their components and return matching component data.",
		params: []param{
			{"data", paramObject, "What to return. Properties: components (array), option (array), has (array).", true},
			{"filter", paramObject, "Which entities to match. Properties: with (array), without (array).", false},
			{"strict", paramBool, "Fail on unknown component types instead of ignoring them.", false},
		},
	},
	{
		name:        "bevy_spawn",
		method:      brp.MethodSpawn,
		description: "Spawn a new entity with the given components.",
		params: []param{
			{"components", paramObject, "Component values keyed by fully-qualified type name." + mathNote, true},
		},
	},
	{
		name:        "bevy_destroy",
		method:      brp.MethodDestroy,
		description: "Despawn an entity and all its components.",
		params: []param{
			{"entity", paramNumber, "The entity ID to destroy.", true},
		},
	},
	{
		name:        "bevy_insert",
		method:      brp.MethodInsert,
		description: "Insert or replace components on an entity.",
		params: []param{
			{"entity", paramNumber, "The entity ID to insert into.", true},
			{"components", paramObject, "Component values keyed by fully-qualified type name." + mathNote, true},
		},
	},
	{
		name:        "bevy_remove",
		method:      brp.MethodRemove,
		description: "Remove components from an entity.",
		params: []param{
			{"entity", paramNumber, "The entity ID to remove components from.", true},
			{"components", paramStringArray, "Fully-qualified component type names to remove.", true},
		},
	},
	{
		name:        "bevy_reparent",
		method:      brp.MethodReparent,
		description: "Change the parent of entities. Omit parent to detach them.",
		params: []param{
			{"entities", paramNumberArray, "Entity IDs to reparent.", true},
			{"parent", paramNumber, "The new parent entity ID.", false},
		},
	},
	{
		name:        "bevy_mutate_component",
		method:      brp.MethodMutateComponent,
		description: "Set one field inside a component without replacing the whole component.",
		params: []param{
			{"entity", paramNumber, "The entity ID owning the component.", true},
			{"component", paramString, "Fully-qualified component type name.", true},
			{"path", paramString, "Field path inside the component, e.g. '.translation.x'.", true},
			{"value", paramAny, "The new field value." + mathNote, true},
		},
	},
	{
		name:        "bevy_list_resources",
		method:      brp.MethodListResources,
		description: "List every registered resource type.",
	},
	{
		name:        "bevy_get_resource",
		method:      brp.MethodGetResource,
		description: "Get the value of a resource.",
		params: []param{
			{"resource", paramString, "Fully-qualified resource type name.", true},
		},
	},
	{
		name:        "bevy_insert_resource",
		method:      brp.MethodInsertResource,
		description: "Insert or replace a resource.",
		params: []param{
			{"resource", paramString, "Fully-qualified resource type name.", true},
			{"value", paramAny, "The resource value." + mathNote, true},
		},
	},
	{
		name:        "bevy_remove_resource",
		method:      brp.MethodRemoveResource,
		description: "Remove a resource.",
		params: []param{
			{"resource", paramString, "Fully-qualified resource type name.", true},
		},
	},
	{
		name:        "bevy_mutate_resource",
		method:      brp.MethodMutateResource,
		description: "Set one field inside a resource.",
		params: []param{
			{"resource", paramString, "Fully-qualified resource type name.", true},
			{"path", paramString, "Field path inside the resource, e.g. '.settings.volume'.", true},
			{"value", paramAny, "The new field value." + mathNote, true},
		},
	},
	{
		name:        "bevy_registry_schema",
		method:      brp.MethodRegistrySchema,
		description: "Get JSON schemas of registered types, optionally filtered by crate or reflect trait.",
		params: []param{
			{"with_crates", paramStringArray, "Only include types from these crates.", false},
			{"without_crates", paramStringArray, "Exclude types from these crates.", false},
			{"with_types", paramStringArray, "Only include types with these reflect traits, e.g. 'Component'.", false},
			{"without_types", paramStringArray, "Exclude types with these reflect traits.", false},
		},
	},
	{
		name:        "bevy_rpc_discover",
		method:      brp.MethodRPCDiscover,
		description: "Describe every method the running app supports (OpenRPC document).",
	},
	{
		name:        "brp_extras_screenshot",
		method:      brp.MethodExtrasScreenshot,
		description: "Save a screenshot of the primary window. Requires the brp_extras plugin.",
		params: []param{
			{"path", paramString, "File path the screenshot is written to.", true},
		},
	},
	{
		name:        "brp_extras_shutdown",
		method:      brp.MethodExtrasShutdown,
		description: "Ask the app to exit cleanly. Requires the brp_extras plugin.",
	},
	{
		name:        "brp_extras_discover_format",
		method:      brp.MethodExtrasDiscoverType,
		description: "Discover the JSON format of component types for spawn and insert. Requires the brp_extras plugin.",
		params: []param{
			{"types", paramStringArray, "Fully-qualified component type names.", true},
		},
	},
}

// MethodTool relays one fixed BRP method.
type MethodTool struct {
	spec        methodSpec
	caller      Caller
	defaultPort int
}

// MethodTools returns one tool per fixed BRP method.
func MethodTools(c Caller, defaultPort int) []*MethodTool {
	out := make([]*MethodTool, 0, len(methodSpecs))
	for _, spec := range methodSpecs {
		out = append(out, &MethodTool{spec: spec, caller: c, defaultPort: defaultPort})
	}
	return out
}

// Name returns the MCP tool name.
func (t *MethodTool) Name() string { return t.spec.name }

// Method returns the BRP method the tool relays.
func (t *MethodTool) Method() string { return t.spec.method }

// Definition returns the MCP tool definition for registration.
func (t *MethodTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(fmt.Sprintf("%s Wraps the %s BRP method.", t.spec.description, t.spec.method)),
	}
	for _, p := range t.spec.params {
		opts = append(opts, p.option())
	}
	opts = append(opts, mcp.WithNumber("port", mcp.Description(portDescription)))
	return mcp.NewTool(t.spec.name, opts...)
}

// Handle relays the call and returns the method's result as data.
func (t *MethodTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	var missing []string
	for _, p := range t.spec.params {
		if v, ok := args[p.name]; p.required && (!ok || v == nil) {
			missing = append(missing, p.name)
		}
	}
	if len(missing) > 0 {
		return mcp.NewToolResultError(fmt.Sprintf("missing required parameter(s): %s", strings.Join(missing, ", "))), nil
	}

	port, err := portArg(req, t.defaultPort)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var params map[string]any
	for key, v := range args {
		if key == "port" || v == nil {
			continue
		}
		if params == nil {
			params = make(map[string]any, len(args))
		}
		params[key] = v
	}

	var result json.RawMessage
	if params == nil {
		result, err = t.caller.Call(ctx, t.spec.method, nil, port)
	} else {
		result, err = t.caller.Call(ctx, t.spec.method, params, port)
	}
	if err != nil {
		return brpErrorResult(t.spec.method, err), nil
	}
	return jsonResult(callResponse{
		Status:  statusSuccess,
		Message: fmt.Sprintf("Executed %s on port %d", t.spec.method, port),
		Data:    result,
	})
}

func (p param) option() mcp.ToolOption {
	var props []mcp.PropertyOption
	props = append(props, mcp.Description(p.description))
	if p.required {
		props = append(props, mcp.Required())
	}

	switch p.kind {
	case paramNumber:
		return mcp.WithNumber(p.name, props...)
	case paramBool:
		return mcp.WithBoolean(p.name, props...)
	case paramObject:
		return mcp.WithObject(p.name, props...)
	case paramStringArray:
		return mcp.WithArray(p.name, append(props, mcp.WithStringItems())...)
	case paramNumberArray:
		return mcp.WithArray(p.name, append(props, mcp.Items(map[string]any{"type": "number"}))...)
	case paramAny:
		return withAnyParam(p.name, p.description, p.required)
	default:
		return mcp.WithString(p.name, props...)
	}
}
