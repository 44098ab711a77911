package core

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepagent-run/deepagent/internal/hitl"
	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/middleware"
	"github.com/deepagent-run/deepagent/internal/planner"
	"github.com/deepagent-run/deepagent/internal/tool"
)

// echoPlanner copies the last user message's text into a Respond decision,
// matching S1's stub planner.
type echoPlanner struct{}

func (echoPlanner) Decide(ctx context.Context, pc planner.Context) (planner.Decision, error) {
	last := pc.History[len(pc.History)-1]
	return planner.Respond(message.New(message.RoleAgent, last.AsText())), nil
}

func newTestAgent(t *testing.T, p planner.Planner, gate *hitl.Gate) *Agent {
	t.Helper()
	registry := tool.NewRegistry(nil)
	require.NoError(t, registry.Register(&tool.Func{
		FName:   "ls",
		FSchema: tool.Schema{Name: "ls"},
		FExec: func(ctx context.Context, args json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
			return tc.TextResponse("listing"), nil
		},
	}))
	require.NoError(t, registry.Register(&tool.Func{
		FName:   "write_todos",
		FSchema: tool.Schema{Name: "write_todos"},
		FExec: func(ctx context.Context, args json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
			return tc.TextResponse("todos written"), nil
		},
	}))
	require.NoError(t, registry.Register(&tool.Func{
		FName:   "sensitive",
		FSchema: tool.Schema{Name: "sensitive"},
		FExec: func(ctx context.Context, args json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
			return tc.TextResponse("sensitive done"), nil
		},
	}))

	cfg := DefaultConfig()
	return New(cfg, registry, middleware.NewPipeline(), p, gate, nil)
}

// S1: Echo.
func TestS1Echo(t *testing.T) {
	a := newTestAgent(t, echoPlanner{}, nil)
	msg, err := a.Turn(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, message.RoleAgent, msg.Role)
	assert.Equal(t, "hello", msg.AsText())
	assert.Equal(t, 2, a.History.Len())
}

type fixedToolPlanner struct {
	name string
}

func (p fixedToolPlanner) Decide(ctx context.Context, pc planner.Context) (planner.Decision, error) {
	return planner.CallTool(p.name, json.RawMessage(`{}`), ""), nil
}

// S2: Built-in filter.
func TestS2BuiltinFilter(t *testing.T) {
	a := newTestAgent(t, fixedToolPlanner{name: "ls"}, nil)
	a.cfg.BuiltinFilter = map[string]struct{}{"write_todos": {}}

	msg, err := a.Turn(context.Background(), "do it")
	require.NoError(t, err)
	assert.Equal(t, "Tool 'ls' not available", msg.AsText())
}

// S4: HITL gate.
func TestS4HITLGate(t *testing.T) {
	gate := hitl.NewGate()
	gate.RegisterPolicy("sensitive", false, "Needs approval")

	a := newTestAgent(t, fixedToolPlanner{name: "sensitive"}, gate)
	msg, err := a.Turn(context.Background(), "go")
	require.NoError(t, err)
	assert.Contains(t, msg.AsText(), "HITL_REQUIRED: Tool 'sensitive'")
	assert.Contains(t, msg.AsText(), "Needs approval")

	interrupt := a.CurrentInterrupt()
	require.NotNil(t, interrupt)
	assert.Equal(t, "sensitive", interrupt.ToolName)

	resumed, err := a.ResumeApproval(context.Background(), hitl.Resume{Kind: hitl.ResumeApprove})
	require.NoError(t, err)
	assert.Equal(t, "sensitive done", resumed.AsText())
	assert.Nil(t, a.CurrentInterrupt())
}

func TestContinueDispatchesToolNotFound(t *testing.T) {
	a := newTestAgent(t, fixedToolPlanner{name: "nonexistent"}, nil)
	msg, err := a.Turn(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "Tool 'nonexistent' not available", msg.AsText())
}
