package serve

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

// writeGuideSet lays out a minimal config plus one guide document and
// returns the config path.
func writeGuideSet(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	guide := "<!-- step: say-hello -->\n```sh\necho hello\n```\n"
	if err := os.WriteFile(filepath.Join(dir, "guide.md"), []byte(guide), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := "apiVersion: docstep/v1\nmeta:\n  name: mcp-test\nguides:\n  root: " + dir + "\n"
	path := filepath.Join(dir, "guides.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatalf("empty result content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] is %T, want TextContent", result.Content[0])
	}
	return tc.Text
}

func TestHandleList_MissingConfig(t *testing.T) {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{}

	result, err := HandleList(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected error for missing config argument")
	}
}

func TestHandleList_Steps(t *testing.T) {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"config": writeGuideSet(t)}

	result, err := HandleList(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("list failed: %s", textOf(t, result))
	}
	text := textOf(t, result)
	if !strings.Contains(text, "say-hello") || !strings.Contains(text, "run-always") {
		t.Errorf("list output = %q", text)
	}
}

func TestHandleShow_UnknownStep(t *testing.T) {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"config": writeGuideSet(t), "step": "nope"}

	result, err := HandleShow(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected error for unknown step id")
	}
}

func TestHandleShow_Body(t *testing.T) {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"config": writeGuideSet(t), "step": "say-hello"}

	result, err := HandleShow(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("show failed: %s", textOf(t, result))
	}
	if !strings.Contains(textOf(t, result), "echo hello") {
		t.Errorf("show output = %q", textOf(t, result))
	}
}

func TestHandleSchema(t *testing.T) {
	result, err := HandleSchema(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("schema failed: %s", textOf(t, result))
	}
	if !strings.Contains(textOf(t, result), "guides-v1.json") {
		t.Errorf("schema output missing id")
	}
}
