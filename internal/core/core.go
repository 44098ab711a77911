// Package core implements the plan-act loop: assembling the planner
// request, consulting the planner, dispatching the resulting decision, and
// applying its effect to state and history.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/deepagent-run/deepagent/internal/event"
	"github.com/deepagent-run/deepagent/internal/hitl"
	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/middleware"
	"github.com/deepagent-run/deepagent/internal/planner"
	"github.com/deepagent-run/deepagent/internal/state"
	"github.com/deepagent-run/deepagent/internal/tool"
)

// DefaultIterationCap is the default bound on recursive planner
// consultations within a single user turn.
const DefaultIterationCap = 10

// Config configures an Agent, following the Default*Config /
// sanitize*Config pattern used throughout this codebase's ambient stack.
type Config struct {
	ThreadID      string
	Instructions  string
	IterationCap  int
	BuiltinFilter map[string]struct{} // nil disables filtering
	Logger        *slog.Logger
}

// DefaultConfig returns sane defaults; ThreadID and Instructions are
// caller-supplied and left zero here.
func DefaultConfig() Config {
	return Config{IterationCap: DefaultIterationCap}
}

func sanitizeConfig(c Config) Config {
	if c.IterationCap <= 0 {
		c.IterationCap = DefaultIterationCap
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Agent owns one conversation's state, history, tool registry, HITL gate,
// and planner, and drives the plan-act loop against them.
type Agent struct {
	cfg Config

	Handle   *state.Handle
	History  *message.History
	Tools    *tool.Registry
	Pipeline *middleware.Pipeline
	Planner  planner.Planner
	Gate     *hitl.Gate
	Emitter  *event.Emitter
}

// New constructs an Agent. started is an empty state unless the caller
// loads a checkpoint into Handle afterward.
func New(cfg Config, tools *tool.Registry, pipeline *middleware.Pipeline, p planner.Planner, gate *hitl.Gate, emitter *event.Emitter) *Agent {
	cfg = sanitizeConfig(cfg)
	return &Agent{
		cfg:      cfg,
		Handle:   state.NewHandle(state.New()),
		History:  message.NewHistory(),
		Tools:    tools,
		Pipeline: pipeline,
		Planner:  p,
		Gate:     gate,
		Emitter:  emitter,
	}
}

// CurrentInterrupt surfaces the HITL gate's pending approval, if any.
func (a *Agent) CurrentInterrupt() *hitl.PendingApproval {
	if a.Gate == nil {
		return nil
	}
	return a.Gate.CurrentInterrupt()
}

// buildRequest assembles the ModelRequest for one planner call: the
// filtered tool set, run through the middleware pipeline in fixed order.
func (a *Agent) buildRequest(ctx context.Context) (*middleware.ModelRequest, error) {
	var tools []tool.Tool
	if a.cfg.BuiltinFilter != nil {
		tools = a.Tools.Filtered(middleware.BuiltinToolNames, a.cfg.BuiltinFilter)
	} else {
		tools = a.Tools.All()
	}

	req := &middleware.ModelRequest{
		SystemPrompt: a.cfg.Instructions,
		Messages:     a.History.Snapshot(),
		Tools:        tools,
	}
	if a.Pipeline != nil {
		if err := a.Pipeline.Run(ctx, req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func schemasFor(tools []tool.Tool) []tool.Schema {
	out := make([]tool.Schema, len(tools))
	for i, t := range tools {
		out[i] = t.Schema()
	}
	return out
}

// Turn appends the user's message and performs exactly one planner call
// and one dispatch step, returning the resulting message. Further
// progress within the same turn (e.g. after a tool call) is caller-driven
// via Continue, which keeps HITL integration natural (§4.10, §9).
func (a *Agent) Turn(ctx context.Context, userText string) (message.AgentMessage, error) {
	if a.Emitter != nil {
		a.Emitter.AgentStarted(ctx)
	}
	a.History.Append(message.New(message.RoleUser, userText))
	return a.Continue(ctx)
}

// Continue runs one planner call and one dispatch step against the
// current history, without appending a new user message. It is the
// caller-driven "next step" referenced in §4.10 and §9 for resuming after
// a tool result or a non-terminal decision.
func (a *Agent) Continue(ctx context.Context) (message.AgentMessage, error) {
	req, err := a.buildRequest(ctx)
	if err != nil {
		return message.AgentMessage{}, err
	}

	decision, err := a.Planner.Decide(ctx, planner.Context{
		SystemPrompt: req.SystemPrompt,
		History:      req.Messages,
		Tools:        schemasFor(req.Tools),
		State:        a.Handle.Read(),
	})
	if err != nil {
		return message.AgentMessage{}, fmt.Errorf("core: planner: %w", err)
	}

	return a.dispatch(ctx, decision, req.Tools)
}

// Run drives the loop automatically, calling Continue repeatedly until a
// terminal decision, a HITL gate transition to Pending, or the iteration
// cap is reached. This is the internal auto-loop decision recorded in
// DESIGN.md: exposed for callers that don't need to drive iteration
// themselves, while Turn/Continue remain available for HITL-aware
// callers that must stop after exactly one step.
func (a *Agent) Run(ctx context.Context, userText string) (message.AgentMessage, error) {
	msg, err := a.Turn(ctx, userText)
	if err != nil {
		return msg, err
	}
	for i := 1; i < a.cfg.IterationCap; i++ {
		if a.CurrentInterrupt() != nil {
			return msg, nil
		}
		if !isToolDispatch(msg) {
			return msg, nil
		}
		msg, err = a.Continue(ctx)
		if err != nil {
			return msg, err
		}
	}
	return msg, nil
}

// isToolDispatch reports whether msg was produced by a tool dispatch (and
// hence the loop should keep iterating), as opposed to a terminal Respond
// or Terminate message. The reference interpreter tags tool-path messages
// with role Tool; Respond/Terminate always produce role Agent or System.
func isToolDispatch(msg message.AgentMessage) bool {
	return msg.Role == message.RoleTool
}

func (a *Agent) dispatch(ctx context.Context, d planner.Decision, tools []tool.Tool) (message.AgentMessage, error) {
	switch d.Kind {
	case planner.DecisionRespond:
		a.History.Append(d.Message)
		if a.Emitter != nil {
			a.Emitter.PlanningComplete(ctx)
			a.Emitter.AgentCompleted(ctx, event.TruncatePreview(d.Message.AsText()))
		}
		return d.Message, nil

	case planner.DecisionTerminate:
		m := message.New(message.RoleSystem, "Terminating conversation.")
		a.History.Append(m)
		return m, nil

	case planner.DecisionCallTool:
		return a.dispatchToolCall(ctx, d, tools)

	default:
		return message.AgentMessage{}, fmt.Errorf("core: unknown decision kind %q", d.Kind)
	}
}

func (a *Agent) dispatchToolCall(ctx context.Context, d planner.Decision, tools []tool.Tool) (message.AgentMessage, error) {
	var toolRef tool.Tool
	for _, t := range tools {
		if t.Name() == d.ToolName {
			toolRef = t
			break
		}
	}
	if toolRef == nil {
		m := message.New(message.RoleTool, fmt.Sprintf("Tool '%s' not available", d.ToolName))
		a.History.Append(m)
		return m, nil
	}

	if a.Gate != nil {
		if _, gated := a.Gate.RequiresApproval(d.ToolName); gated {
			approvalMsg, err := a.Gate.Schedule(d.ToolName, d.Payload, toolRef, d.ToolCallID)
			if err != nil {
				return message.AgentMessage{}, fmt.Errorf("core: hitl schedule: %w", err)
			}
			a.History.Append(approvalMsg)
			return approvalMsg, nil
		}
	}

	return a.executeTool(ctx, toolRef, d.Payload, d.ToolCallID)
}

func (a *Agent) executeTool(ctx context.Context, toolRef tool.Tool, payload json.RawMessage, toolCallID string) (message.AgentMessage, error) {
	if a.Emitter != nil {
		a.Emitter.ToolStarted(ctx, toolRef.Name(), payload)
	}

	tc := &tool.Context{
		State:      a.Handle.Read(),
		Handle:     a.Handle,
		ToolCallID: toolCallID,
		Logger:     a.cfg.Logger,
	}
	result, err := toolRef.Execute(ctx, payload, tc)
	if err != nil {
		if a.Emitter != nil {
			a.Emitter.ToolFailed(ctx, toolRef.Name(), err.Error())
		}
		m := message.New(message.RoleTool, fmt.Sprintf("tool %q failed: %v", toolRef.Name(), err))
		a.History.Append(m)
		return m, nil
	}

	cmd := message.CommandFromToolResult(result)
	message.Apply(a.Handle, a.History, cmd)

	if a.Emitter != nil {
		a.Emitter.ToolCompleted(ctx, toolRef.Name(), event.TruncatePreview(result.Message.AsText()))
	}

	return result.Message, nil
}

// ResumeApproval applies a human HITL decision and appends its effect to
// history, mirroring the tool-dispatch apply path.
func (a *Agent) ResumeApproval(ctx context.Context, decision hitl.Resume) (message.AgentMessage, error) {
	if a.Gate == nil {
		return message.AgentMessage{}, fmt.Errorf("core: no HITL gate configured")
	}
	outcome, err := a.Gate.Resume(decision, func(toolRef tool.Tool, args json.RawMessage) (message.ToolResult, error) {
		tc := &tool.Context{State: a.Handle.Read(), Handle: a.Handle, Logger: a.cfg.Logger}
		return toolRef.Execute(ctx, args, tc)
	}, func(name string) (tool.Tool, bool) {
		return a.Tools.Get(name)
	})
	if err != nil {
		return message.AgentMessage{}, err
	}
	message.Apply(a.Handle, a.History, outcome.Command)
	if len(outcome.Command.Messages) == 0 {
		return message.AgentMessage{}, nil
	}
	return outcome.Command.Messages[len(outcome.Command.Messages)-1], nil
}
