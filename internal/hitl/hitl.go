// Package hitl implements the human-in-the-loop approval gate: a per-agent
// state machine (Idle <-> Pending) that suspends gated tool calls pending a
// human resume decision.
package hitl

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/tool"
)

// Policy is the approval policy attached to a tool name.
type Policy struct {
	AllowAuto bool
	Note      string
}

// PendingApproval is the single pending slot's contents, present from the
// moment the gate triggers until a human resumes.
type PendingApproval struct {
	ToolName        string
	Payload         json.RawMessage
	ToolRef         tool.Tool
	ApprovalMessage string
	ToolCallID      string
}

// ErrAlreadyPending is returned when a gated call is scheduled while the
// single pending slot is already occupied; per §4.7 this is a logic error
// (planners should not be consulted until resume completes).
var ErrAlreadyPending = fmt.Errorf("hitl: a gated call is already pending")

// ErrNoPending is returned by Resume when there is nothing to resume.
var ErrNoPending = fmt.Errorf("hitl: no pending approval to resume")

// ResumeKind tags which resume variant the caller chose.
type ResumeKind string

const (
	ResumeApprove ResumeKind = "approve"
	ResumeReject  ResumeKind = "reject"
	ResumeRespond ResumeKind = "respond"
	ResumeEdit    ResumeKind = "edit"
)

// Resume is the human decision that transitions Pending back to Idle.
type Resume struct {
	Kind ResumeKind

	// Reject
	Reason string

	// Respond
	Message message.AgentMessage

	// Edit
	Action string
	Args   json.RawMessage
}

// ResumeOutcome is the result of applying a Resume decision: a command to
// apply to state/history, and whether the underlying tool was actually
// executed (Approve/Edit-found only — used by the core loop to decide
// whether to emit tool lifecycle events).
type ResumeOutcome struct {
	Command  message.Command
	Executed bool
}

// ToolExecutor executes a resolved tool reference, mirroring the core
// loop's own tool dispatch so the gate doesn't need to know about the
// full registry.
type ToolExecutor func(toolRef tool.Tool, args json.RawMessage) (message.ToolResult, error)

// ToolLookup resolves an Edit resume's action name against the current
// tool map.
type ToolLookup func(name string) (tool.Tool, bool)

// Gate is the per-agent HITL state machine. At most one pending slot;
// transitions are atomic under a single-writer guard.
type Gate struct {
	mu       sync.Mutex
	policies map[string]Policy
	pending  *PendingApproval
}

// NewGate returns a gate in the Idle state with no registered policies.
func NewGate() *Gate {
	return &Gate{policies: make(map[string]Policy)}
}

// RegisterPolicy associates a tool name with its approval policy. Called
// by HITLMiddleware during pipeline setup; satisfies
// middleware.HITLRegistrar.
func (g *Gate) RegisterPolicy(toolName string, allowAuto bool, note string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policies[toolName] = Policy{AllowAuto: allowAuto, Note: note}
}

// RequiresApproval reports whether toolName has a registered policy with
// allow_auto=false. Unregistered tools are never gated.
func (g *Gate) RequiresApproval(toolName string) (Policy, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.policies[toolName]
	return p, ok && !p.AllowAuto
}

// Schedule transitions Idle -> Pending for a gated CallTool decision. It
// builds the approval message, stores the pending slot, and returns the
// message to append to history. Returns ErrAlreadyPending if a slot is
// already occupied.
func (g *Gate) Schedule(toolName string, payload json.RawMessage, toolRef tool.Tool, toolCallID string) (message.AgentMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		return message.AgentMessage{}, ErrAlreadyPending
	}
	note := g.policies[toolName].Note
	text := fmt.Sprintf("HITL_REQUIRED: Tool '%s' requires approval: %s", toolName, note)
	g.pending = &PendingApproval{
		ToolName:        toolName,
		Payload:         payload,
		ToolRef:         toolRef,
		ApprovalMessage: text,
		ToolCallID:      toolCallID,
	}
	return message.New(message.RoleSystem, text), nil
}

// CurrentInterrupt non-mutatingly surfaces the pending interrupt, for
// polling UIs. Returns nil if Idle.
func (g *Gate) CurrentInterrupt() *PendingApproval {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return nil
	}
	cp := *g.pending
	return &cp
}

// Resume applies a human decision, transitioning Pending -> Idle.
func (g *Gate) Resume(decision Resume, exec ToolExecutor, lookup ToolLookup) (ResumeOutcome, error) {
	g.mu.Lock()
	pending := g.pending
	g.mu.Unlock()
	if pending == nil {
		return ResumeOutcome{}, ErrNoPending
	}

	defer func() {
		g.mu.Lock()
		g.pending = nil
		g.mu.Unlock()
	}()

	switch decision.Kind {
	case ResumeApprove:
		result, err := exec(pending.ToolRef, pending.Payload)
		if err != nil {
			return ResumeOutcome{}, fmt.Errorf("hitl: approve: execute %q: %w", pending.ToolName, err)
		}
		return ResumeOutcome{Command: message.CommandFromToolResult(result), Executed: true}, nil

	case ResumeReject:
		reason := decision.Reason
		if reason == "" {
			reason = "Tool execution rejected by human reviewer."
		}
		m := message.New(message.RoleSystem, reason)
		return ResumeOutcome{Command: message.Command{Messages: []message.AgentMessage{m}}}, nil

	case ResumeRespond:
		return ResumeOutcome{Command: message.Command{Messages: []message.AgentMessage{decision.Message}}}, nil

	case ResumeEdit:
		toolRef, ok := lookup(decision.Action)
		if !ok {
			m := message.New(message.RoleSystem, fmt.Sprintf("Edited tool '%s' not available", decision.Action))
			return ResumeOutcome{Command: message.Command{Messages: []message.AgentMessage{m}}}, nil
		}
		result, err := exec(toolRef, decision.Args)
		if err != nil {
			return ResumeOutcome{}, fmt.Errorf("hitl: edit: execute %q: %w", decision.Action, err)
		}
		return ResumeOutcome{Command: message.CommandFromToolResult(result), Executed: true}, nil

	default:
		return ResumeOutcome{}, fmt.Errorf("hitl: unknown resume kind %q", decision.Kind)
	}
}
