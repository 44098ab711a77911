// Package message defines the role-tagged message, content-variant, and
// tool-call metadata shapes shared across the planner, middleware, and core
// loop, plus the Command type tools return to mutate state and history.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/deepagent-run/deepagent/internal/state"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleTool   Role = "tool"
	RoleSystem Role = "system"
)

// Content is the payload of a message: exactly one of Text or Json is set.
type Content struct {
	Text string          `json:"text,omitempty"`
	Json json.RawMessage `json:"json,omitempty"`
}

// TextContent wraps a plain string as message Content.
func TextContent(s string) Content { return Content{Text: s} }

// JsonContent wraps an arbitrary structured value as message Content.
func JsonContent(v any) Content {
	raw, err := json.Marshal(v)
	if err != nil {
		return Content{Text: fmt.Sprintf("%v", v)}
	}
	return Content{Json: raw}
}

// Metadata carries correlation and transport hints attached to a message.
type Metadata struct {
	ToolCallID   string `json:"tool_call_id,omitempty"`
	CacheControl string `json:"cache_control,omitempty"`
}

// AgentMessage is a single role-tagged turn in the conversation history.
type AgentMessage struct {
	Role     Role      `json:"role"`
	Content  Content   `json:"content"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// New builds a text AgentMessage with no metadata.
func New(role Role, text string) AgentMessage {
	return AgentMessage{Role: role, Content: TextContent(text)}
}

// NewJSON builds a structured AgentMessage with no metadata.
func NewJSON(role Role, v any) AgentMessage {
	return AgentMessage{Role: role, Content: JsonContent(v)}
}

// WithToolCallID returns a copy of m stamped with the given correlation ID.
func (m AgentMessage) WithToolCallID(id string) AgentMessage {
	md := Metadata{}
	if m.Metadata != nil {
		md = *m.Metadata
	}
	md.ToolCallID = id
	m.Metadata = &md
	return m
}

// WithCacheControl returns a copy of m tagged for prompt caching.
func (m AgentMessage) WithCacheControl(marker string) AgentMessage {
	md := Metadata{}
	if m.Metadata != nil {
		md = *m.Metadata
	}
	md.CacheControl = marker
	m.Metadata = &md
	return m
}

// AsText projects the message content to a string. Json content is
// rendered as its compact JSON encoding.
func (m AgentMessage) AsText() string {
	if m.Content.Text != "" {
		return m.Content.Text
	}
	if len(m.Content.Json) > 0 {
		return string(m.Content.Json)
	}
	return ""
}

// AsJSON decodes the Json content into v. If the message carries Text
// content instead, v must accept a JSON string.
func (m AgentMessage) AsJSON(v any) error {
	if len(m.Content.Json) > 0 {
		return json.Unmarshal(m.Content.Json, v)
	}
	return json.Unmarshal([]byte(fmt.Sprintf("%q", m.Content.Text)), v)
}

// ToolCallID returns the message's correlation ID, if any.
func (m AgentMessage) ToolCallID() string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata.ToolCallID
}

// ToolInvocation is a resolved request to run a named tool.
type ToolInvocation struct {
	ToolName   string          `json:"tool_name"`
	Args       json.RawMessage `json:"args"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// ToolResult is a tool's return value: either a bare message, or a message
// paired with a state diff to merge.
type ToolResult struct {
	Message AgentMessage     `json:"message"`
	Diff    *state.StateDiff `json:"diff,omitempty"`
}

// ResultMessage builds a ToolResult carrying no state update.
func ResultMessage(m AgentMessage) ToolResult {
	return ToolResult{Message: m}
}

// ResultWithStateUpdate builds a ToolResult carrying both a message and a diff.
func ResultWithStateUpdate(m AgentMessage, diff state.StateDiff) ToolResult {
	return ToolResult{Message: m, Diff: &diff}
}

// Command is a tool's or middleware's effect on the running agent: a state
// diff to apply and messages to append to history, in that order.
type Command struct {
	State    state.StateDiff `json:"state"`
	Messages []AgentMessage  `json:"messages"`
}

// CommandFromToolResult converts a ToolResult into the equivalent single-message
// Command.
func CommandFromToolResult(r ToolResult) Command {
	c := Command{Messages: []AgentMessage{r.Message}}
	if r.Diff != nil {
		c.State = *r.Diff
	}
	return c
}
