package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepagent-run/deepagent/internal/message"
)

func echoTool() *Func {
	return &Func{
		FName: "echo",
		FSchema: Schema{
			Name:        "echo",
			Description: "echoes its input",
			Parameters:  &ParameterSchema{Type: TypeObject},
		},
		FExec: func(ctx context.Context, args json.RawMessage, tc *Context) (message.ToolResult, error) {
			return tc.TextResponse(string(args)), nil
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(echoTool()))
	got, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", got.Name())
}

func TestRegistryRejectsInvalidName(t *testing.T) {
	r := NewRegistry(nil)
	bad := echoTool()
	bad.FName = "bad name!"
	err := r.Register(bad)
	assert.Error(t, err)
}

func TestRegistryLastWriterWins(t *testing.T) {
	r := NewRegistry(nil)
	first := echoTool()
	require.NoError(t, r.Register(first))

	second := echoTool()
	second.FSchema.Description = "replacement"
	require.NoError(t, r.Register(second))

	got, _ := r.Get("echo")
	assert.Equal(t, "replacement", got.Schema().Description)
}

func TestFilteredExcludesNonSelectedBuiltins(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&Func{FName: "ls", FSchema: Schema{Name: "ls"}}))
	require.NoError(t, r.Register(&Func{FName: "write_todos", FSchema: Schema{Name: "write_todos"}}))
	require.NoError(t, r.Register(&Func{FName: "custom", FSchema: Schema{Name: "custom"}}))

	builtins := map[string]struct{}{"ls": {}, "write_todos": {}}
	allowed := map[string]struct{}{"write_todos": {}}

	got := r.Filtered(builtins, allowed)
	names := make(map[string]bool)
	for _, t := range got {
		names[t.Name()] = true
	}
	assert.False(t, names["ls"])
	assert.True(t, names["write_todos"])
	assert.True(t, names["custom"], "user-supplied tools are never filtered")
}

func TestParameterSchemaMarshalsAdditional(t *testing.T) {
	p := &ParameterSchema{
		Type:       TypeString,
		Additional: map[string]any{"format": "uri"},
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "uri", decoded["format"])
	assert.Equal(t, "string", decoded["type"])
}

func TestContextTextResponseStampsToolCallID(t *testing.T) {
	tc := &Context{ToolCallID: "call-1"}
	result := tc.TextResponse("hi")
	assert.Equal(t, "call-1", result.Message.ToolCallID())
}
