// Package planner defines the decision contract consumed by the core loop
// and a reference LLM-backed planner that interprets provider responses
// into PlannerDecision values.
package planner

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/state"
	"github.com/deepagent-run/deepagent/internal/tool"
)

// DecisionKind tags which PlannerDecision variant is populated.
type DecisionKind string

const (
	DecisionRespond  DecisionKind = "respond"
	DecisionCallTool DecisionKind = "call_tool"
	DecisionTerminate DecisionKind = "terminate"
)

// Decision is exactly one of Respond(message), CallTool{name, payload}, or
// Terminate.
type Decision struct {
	Kind     DecisionKind
	Message  message.AgentMessage // set when Kind == DecisionRespond
	ToolName string                // set when Kind == DecisionCallTool
	Payload  json.RawMessage       // set when Kind == DecisionCallTool
	ToolCallID string              // optional correlation id for CallTool
}

// Respond builds a Respond decision.
func Respond(m message.AgentMessage) Decision {
	return Decision{Kind: DecisionRespond, Message: m}
}

// CallTool builds a CallTool decision.
func CallTool(name string, payload json.RawMessage, toolCallID string) Decision {
	return Decision{Kind: DecisionCallTool, ToolName: name, Payload: payload, ToolCallID: toolCallID}
}

// Terminate builds a Terminate decision.
func Terminate() Decision {
	return Decision{Kind: DecisionTerminate}
}

// Context is the read-only input to a planner call.
type Context struct {
	SystemPrompt string
	History      []message.AgentMessage
	Tools        []tool.Schema
	State        *state.AgentState
}

// Planner is the decision function mapping context+state to a decision.
// The core never inspects a planner's internals; any implementation
// honoring this contract is pluggable.
type Planner interface {
	Decide(ctx context.Context, pc Context) (Decision, error)
}

// LlmRequest is the provider-neutral request a reference planner builds
// from a Context.
type LlmRequest struct {
	SystemPrompt string
	Messages     []message.AgentMessage
	Tools        []tool.Schema
}

// LlmToolCall is a structured tool invocation surfaced by a provider
// response, either via native tool-use blocks or an explicit JSON
// tool_calls array.
type LlmToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// LlmResponse is the provider-neutral response a Provider returns.
type LlmResponse struct {
	Text      string
	ToolCalls []LlmToolCall
}

// Provider implements generate(LlmRequest) -> LlmResponse. Concrete
// provider adapters (Anthropic, OpenAI, ...) are external collaborators;
// the core only depends on this interface.
type Provider interface {
	Generate(ctx context.Context, req LlmRequest) (LlmResponse, error)
}

// fencedJSON matches a fenced code block, optionally language-tagged, that
// contains a single JSON object.
var fencedJSON = regexp.MustCompile("(?s)```(?:[\\w-]+)?\\s*(\\{.*?\\})\\s*```")

// textDecision is the shape recognized when a response's text itself
// carries an explicit tool_calls array.
type textDecision struct {
	ToolCalls []struct {
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"tool_calls"`
	Response string `json:"response"`
}

// Reference is the reference LLM-backed planner. It translates a Context
// to an LlmRequest, calls Provider.Generate, and interprets the response
// per the layered precedence: structured tool_calls > fenced/raw JSON in
// text > plain text respond.
type Reference struct {
	Provider Provider
}

// NewReference constructs a reference planner around the given provider.
func NewReference(p Provider) *Reference {
	return &Reference{Provider: p}
}

// Decide implements Planner.
func (r *Reference) Decide(ctx context.Context, pc Context) (Decision, error) {
	req := LlmRequest{
		SystemPrompt: pc.SystemPrompt,
		Messages:     translateToolRoleMessages(pc.History),
		Tools:        pc.Tools,
	}
	resp, err := r.Provider.Generate(ctx, req)
	if err != nil {
		// Planner failure: never crash the loop. Fall back to the raw
		// error text as a final Respond.
		return Respond(message.New(message.RoleAgent, err.Error())), nil
	}
	return Interpret(resp), nil
}

// Interpret applies the layered interpretation precedence to a provider
// response.
func Interpret(resp LlmResponse) Decision {
	if len(resp.ToolCalls) > 0 {
		first := resp.ToolCalls[0]
		return CallTool(first.Name, first.Input, first.ID)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Respond(message.New(message.RoleAgent, resp.Text))
	}

	if d, ok := tryParseTextDecision(text); ok {
		return d
	}
	if m := fencedJSON.FindStringSubmatch(text); len(m) == 2 {
		if d, ok := tryParseTextDecision(m[1]); ok {
			return d
		}
	}

	return Respond(message.New(message.RoleAgent, resp.Text))
}

func tryParseTextDecision(candidate string) (Decision, bool) {
	trimmed := strings.TrimSpace(candidate)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return Decision{}, false
	}
	var td textDecision
	if err := json.Unmarshal([]byte(trimmed), &td); err != nil {
		return Decision{}, false
	}
	if len(td.ToolCalls) > 0 {
		tc := td.ToolCalls[0]
		return CallTool(tc.Name, tc.Input, tc.ID), true
	}
	if td.Response != "" {
		return Respond(message.New(message.RoleAgent, td.Response)), true
	}
	return Decision{}, false
}

// translateToolRoleMessages downgrades Tool-role messages to User-role
// messages prefixed with "[TOOL RESULT]", for providers that do not accept
// a tool role.
func translateToolRoleMessages(history []message.AgentMessage) []message.AgentMessage {
	out := make([]message.AgentMessage, len(history))
	for i, m := range history {
		if m.Role != message.RoleTool {
			out[i] = m
			continue
		}
		translated := m
		translated.Role = message.RoleUser
		translated.Content = message.TextContent("[TOOL RESULT] " + m.AsText())
		out[i] = translated
	}
	return out
}
