package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func promptText(t *testing.T, result *mcp.GetPromptResult) string {
	t.Helper()
	if result == nil || len(result.Messages) == 0 {
		t.Fatal("prompt returned no messages")
	}
	tc, ok := result.Messages[0].Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", result.Messages[0].Content)
	}
	return tc.Text
}

func makeReq(args map[string]string) mcp.GetPromptRequest {
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = args
	return req
}

func TestDiscoverPrompt_Definition(t *testing.T) {
	def := NewDiscoverPrompt().Definition()
	if def.Name != "discover-brp-methods" {
		t.Errorf("Name = %s", def.Name)
	}
}

func TestDiscoverPrompt_Handle(t *testing.T) {
	result, err := NewDiscoverPrompt().Handle(context.Background(), makeReq(nil))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	text := promptText(t, result)
	if !strings.Contains(text, "rpc.discover") || !strings.Contains(text, "brp_execute") {
		t.Errorf("prompt should direct a discover call: %s", text)
	}
	if strings.Contains(text, `"port"`) {
		t.Errorf("no port was given: %s", text)
	}
}

func TestDiscoverPrompt_Handle_Port(t *testing.T) {
	result, err := NewDiscoverPrompt().Handle(context.Background(), makeReq(map[string]string{"port": "16000"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if text := promptText(t, result); !strings.Contains(text, `"port": 16000`) {
		t.Errorf("port missing: %s", text)
	}

	if _, err := NewDiscoverPrompt().Handle(context.Background(), makeReq(map[string]string{"port": "abc"})); err == nil {
		t.Error("expected error for a non-numeric port")
	}
}

func TestWatchEntityPrompt_Handle_Components(t *testing.T) {
	result, err := NewWatchEntityPrompt().Handle(context.Background(), makeReq(map[string]string{
		"entity":     "4294967338",
		"components": "Health, bevy_transform::components::transform::Transform ,",
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	text := promptText(t, result)
	if !strings.Contains(text, "bevy_get_watch") {
		t.Errorf("should use bevy_get_watch: %s", text)
	}
	if !strings.Contains(text, `["Health", "bevy_transform::components::transform::Transform"]`) {
		t.Errorf("components not listed cleanly: %s", text)
	}
	if !strings.Contains(text, "bevy_stop_watch") {
		t.Errorf("should mention stopping: %s", text)
	}
}

func TestWatchEntityPrompt_Handle_NoComponents(t *testing.T) {
	result, err := NewWatchEntityPrompt().Handle(context.Background(), makeReq(map[string]string{"entity": "7"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if text := promptText(t, result); !strings.Contains(text, "bevy_list_watch") {
		t.Errorf("should use bevy_list_watch: %s", text)
	}
}

func TestWatchEntityPrompt_Handle_BadEntity(t *testing.T) {
	for _, entity := range []string{"", "-1", "seven"} {
		if _, err := NewWatchEntityPrompt().Handle(context.Background(), makeReq(map[string]string{"entity": entity})); err == nil {
			t.Errorf("entity %q: expected error", entity)
		}
	}
}
