package hitl

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/tool"
)

func TestScheduleBuildsApprovalMessage(t *testing.T) {
	g := NewGate()
	g.RegisterPolicy("sensitive", false, "Needs approval")

	_, gated := g.RequiresApproval("sensitive")
	require.True(t, gated)

	m, err := g.Schedule("sensitive", json.RawMessage(`{}`), nil, "call-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m.AsText(), "HITL_REQUIRED: Tool 'sensitive'"))
	assert.Contains(t, m.AsText(), "Needs approval")

	interrupt := g.CurrentInterrupt()
	require.NotNil(t, interrupt)
	assert.Equal(t, "sensitive", interrupt.ToolName)
}

func TestScheduleRejectsDoublePending(t *testing.T) {
	g := NewGate()
	g.RegisterPolicy("sensitive", false, "")
	_, err := g.Schedule("sensitive", nil, nil, "")
	require.NoError(t, err)
	_, err = g.Schedule("sensitive", nil, nil, "")
	assert.ErrorIs(t, err, ErrAlreadyPending)
}

func TestResumeApproveExecutesTool(t *testing.T) {
	g := NewGate()
	g.RegisterPolicy("sensitive", false, "")
	stub := &tool.Func{FName: "sensitive"}
	_, err := g.Schedule("sensitive", json.RawMessage(`{"x":1}`), stub, "")
	require.NoError(t, err)

	var gotArgs json.RawMessage
	outcome, err := g.Resume(Resume{Kind: ResumeApprove}, func(toolRef tool.Tool, args json.RawMessage) (message.ToolResult, error) {
		gotArgs = args
		return message.ResultMessage(message.New(message.RoleTool, "done")), nil
	}, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Executed)
	assert.Equal(t, "done", outcome.Command.Messages[0].AsText())
	assert.JSONEq(t, `{"x":1}`, string(gotArgs))
	assert.Nil(t, g.CurrentInterrupt())
}

func TestResumeRejectDefaultReason(t *testing.T) {
	g := NewGate()
	g.RegisterPolicy("sensitive", false, "")
	_, err := g.Schedule("sensitive", nil, nil, "")
	require.NoError(t, err)

	outcome, err := g.Resume(Resume{Kind: ResumeReject}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Tool execution rejected by human reviewer.", outcome.Command.Messages[0].AsText())
}

func TestResumeEditToolNotFound(t *testing.T) {
	g := NewGate()
	g.RegisterPolicy("sensitive", false, "")
	_, err := g.Schedule("sensitive", nil, nil, "")
	require.NoError(t, err)

	outcome, err := g.Resume(Resume{Kind: ResumeEdit, Action: "missing"}, nil, func(name string) (tool.Tool, bool) {
		return nil, false
	})
	require.NoError(t, err)
	assert.Equal(t, "Edited tool 'missing' not available", outcome.Command.Messages[0].AsText())
}

func TestResumeWithoutPendingErrors(t *testing.T) {
	g := NewGate()
	_, err := g.Resume(Resume{Kind: ResumeApprove}, nil, nil)
	assert.ErrorIs(t, err, ErrNoPending)
}
