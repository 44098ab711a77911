package planner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepagent-run/deepagent/internal/message"
)

func TestInterpretStructuredToolCallWins(t *testing.T) {
	resp := LlmResponse{
		Text:      `{"response":"ignored"}`,
		ToolCalls: []LlmToolCall{{ID: "c1", Name: "ls", Input: json.RawMessage(`{}`)}},
	}
	d := Interpret(resp)
	assert.Equal(t, DecisionCallTool, d.Kind)
	assert.Equal(t, "ls", d.ToolName)
}

func TestInterpretFencedJSON(t *testing.T) {
	resp := LlmResponse{Text: "```json\n{\"response\":\"hello\"}\n```"}
	d := Interpret(resp)
	require.Equal(t, DecisionRespond, d.Kind)
	assert.Equal(t, "hello", d.Message.AsText())
}

func TestInterpretRawJSONToolCalls(t *testing.T) {
	resp := LlmResponse{Text: `{"tool_calls":[{"name":"write_todos","input":{"todos":[]}}]}`}
	d := Interpret(resp)
	require.Equal(t, DecisionCallTool, d.Kind)
	assert.Equal(t, "write_todos", d.ToolName)
}

func TestInterpretPlainTextRespond(t *testing.T) {
	resp := LlmResponse{Text: "just some text"}
	d := Interpret(resp)
	require.Equal(t, DecisionRespond, d.Kind)
	assert.Equal(t, "just some text", d.Message.AsText())
}

func TestTranslateToolRoleMessages(t *testing.T) {
	history := []message.AgentMessage{
		message.New(message.RoleUser, "hi"),
		message.New(message.RoleTool, "42"),
	}
	out := translateToolRoleMessages(history)
	assert.Equal(t, message.RoleUser, out[1].Role)
	assert.Equal(t, "[TOOL RESULT] 42", out[1].AsText())
}

type stubProvider struct {
	resp LlmResponse
	err  error
}

func (s *stubProvider) Generate(ctx context.Context, req LlmRequest) (LlmResponse, error) {
	return s.resp, s.err
}

func TestReferenceDecideEcho(t *testing.T) {
	p := NewReference(&stubProvider{resp: LlmResponse{Text: "hello"}})
	d, err := p.Decide(context.Background(), Context{})
	require.NoError(t, err)
	assert.Equal(t, "hello", d.Message.AsText())
}
