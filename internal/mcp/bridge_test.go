package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/deepagent-run/deepagent/internal/tool"
)

type fakeToolCaller struct {
	serverID string
	toolName string
	args     map[string]any
	result   *ToolCallResult
	err      error
}

func (f *fakeToolCaller) CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (*ToolCallResult, error) {
	f.serverID = serverID
	f.toolName = toolName
	f.args = arguments
	return f.result, f.err
}

func TestSafeToolNameSanitizes(t *testing.T) {
	used := make(map[string]struct{})
	name := safeToolName("git-hub", "search/repo", used)
	if name != "mcp_git_hub_search_repo" {
		t.Fatalf("expected sanitized name, got %q", name)
	}
}

func TestSafeToolNameDeduplicates(t *testing.T) {
	used := make(map[string]struct{})
	first := safeToolName("foo-bar", "baz", used)
	second := safeToolName("foo_bar", "baz", used)

	if first == second {
		t.Fatalf("expected unique name for duplicate tool, got %q", second)
	}
	if !strings.HasPrefix(second, first+"_") {
		t.Fatalf("expected duplicate name to include hash suffix, got %q", second)
	}
}

func TestSafeToolNameTruncates(t *testing.T) {
	used := make(map[string]struct{})
	serverID := strings.Repeat("server", 10)
	toolName := strings.Repeat("tool", 10)
	name := safeToolName(serverID, toolName, used)

	if len(name) > maxToolNameLen {
		t.Fatalf("expected name length <= %d, got %d (%q)", maxToolNameLen, len(name), name)
	}
	if !strings.HasSuffix(name, toolNameHash(serverID, toolName)) {
		t.Fatalf("expected truncated name to include hash suffix, got %q", name)
	}
}

// TestAdaptToolNameAppliesNamespace exercises §4.9/S6: a namespaced
// server's "resolve-library-id" tool is exposed as "docs_resolve_library_id".
func TestAdaptToolNameAppliesNamespace(t *testing.T) {
	if got := AdaptToolName("docs", "resolve-library-id"); got != "docs_resolve_library_id" {
		t.Fatalf("expected %q, got %q", "docs_resolve_library_id", got)
	}
}

func TestAdaptToolNameNoNamespace(t *testing.T) {
	if got := AdaptToolName("", "resolve-library-id"); got != "resolve_library_id" {
		t.Fatalf("expected %q, got %q", "resolve_library_id", got)
	}
}

func TestFormatToolCallResultFlattensContentAndErrors(t *testing.T) {
	result := &ToolCallResult{
		Content: []ToolResultContent{
			{Type: "text", Text: "line one"},
			{Type: "resource", Text: "resource text"},
			{Type: "image", MimeType: "image/png", Data: "xxxx"},
		},
	}
	got := formatToolCallResult(result)
	want := "line one\nresource text\n[Image: image/png (4 bytes)]"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	errResult := &ToolCallResult{
		Content: []ToolResultContent{{Type: "text", Text: "boom"}},
		IsError: true,
	}
	if got := formatToolCallResult(errResult); got != "Error: boom" {
		t.Fatalf("expected error-prefixed content, got %q", got)
	}
}

func TestAdaptSchemaPreservesKnownFieldsAndStashesExtras(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"description": "desc",
		"properties": {"name": {"type": "string"}},
		"required": ["name"],
		"additionalProperties": false
	}`)
	schema := AdaptSchema(raw)
	if schema.Type != tool.TypeObject {
		t.Fatalf("expected object type, got %q", schema.Type)
	}
	if schema.Description != "desc" {
		t.Fatalf("expected description preserved, got %q", schema.Description)
	}
	if schema.Properties["name"].Type != tool.TypeString {
		t.Fatalf("expected nested property type preserved")
	}
	if len(schema.Required) != 1 || schema.Required[0] != "name" {
		t.Fatalf("expected required preserved, got %v", schema.Required)
	}
	if _, ok := schema.Additional["additionalProperties"]; !ok {
		t.Fatalf("expected unknown key stashed into Additional")
	}
}

func TestMCPToolBridgeExecute(t *testing.T) {
	caller := &fakeToolCaller{
		result: &ToolCallResult{
			Content: []ToolResultContent{{Type: "text", Text: "ok"}},
		},
	}
	mcpTool := &MCPTool{
		Name:        "do_thing",
		Description: "Does the thing",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"value":{"type":"string"}}}`),
	}
	bridge := NewToolBridge(caller, "server", mcpTool, "mcp_server_do_thing")

	result, err := bridge.Execute(context.Background(), json.RawMessage(`{"value":"hi"}`), &tool.Context{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Message.AsText() != "ok" {
		t.Fatalf("expected content %q, got %q", "ok", result.Message.AsText())
	}
	if caller.serverID != "server" || caller.toolName != "do_thing" {
		t.Fatalf("expected call server/tool %q/%q, got %q/%q", "server", "do_thing", caller.serverID, caller.toolName)
	}
	if caller.args["value"] != "hi" {
		t.Fatalf("expected arg value %q, got %v", "hi", caller.args["value"])
	}
}
