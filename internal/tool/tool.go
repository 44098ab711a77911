// Package tool defines the tool contract: schema description, registry, and
// the context object passed to an executing tool.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/state"
	"github.com/deepagent-run/deepagent/internal/toon"
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ParamType is the JSON-Schema-compatible type tag for a ParameterSchema
// node.
type ParamType string

const (
	TypeObject  ParamType = "object"
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeNull    ParamType = "null"
)

// ParameterSchema is a tagged JSON-Schema subset node.
type ParameterSchema struct {
	Type        ParamType                  `json:"type"`
	Description string                     `json:"description,omitempty"`
	Properties  map[string]*ParameterSchema `json:"properties,omitempty"`
	Required    []string                   `json:"required,omitempty"`
	Items       *ParameterSchema           `json:"items,omitempty"`
	Enum        []any                      `json:"enum,omitempty"`
	Default     any                        `json:"default,omitempty"`
	Additional  map[string]any             `json:"-"`
}

// MarshalJSON flattens Additional alongside the named fields, matching the
// "free-form additional map for extensions" requirement.
func (p *ParameterSchema) MarshalJSON() ([]byte, error) {
	type alias ParameterSchema
	base, err := json.Marshal((*alias)(p))
	if err != nil {
		return nil, err
	}
	if len(p.Additional) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Additional {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if _, exists := merged[k]; !exists {
			merged[k] = raw
		}
	}
	return json.Marshal(merged)
}

// Schema describes a tool for both registry bookkeeping and LLM tool
// payloads.
type Schema struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  *ParameterSchema `json:"parameters"`
}

// Context is passed to every tool execution.
type Context struct {
	// State is a read-only snapshot taken at dispatch time.
	State *state.AgentState
	// Handle is an optional shared mutable reference for tools that write
	// state directly instead of returning a diff.
	Handle *state.Handle
	// ToolCallID correlates the tool's response message to the invoking
	// planner-emitted call, if any.
	ToolCallID string
	// Logger is scoped to this invocation; falls back to slog.Default().
	Logger *slog.Logger
}

func (c *Context) logger() *slog.Logger {
	if c != nil && c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// TextResponse builds an agent ToolResult from plain text, stamping the
// context's ToolCallID into metadata.
func (c *Context) TextResponse(text string) message.ToolResult {
	m := message.New(message.RoleTool, text)
	if c != nil && c.ToolCallID != "" {
		m = m.WithToolCallID(c.ToolCallID)
	}
	return message.ResultMessage(m)
}

// JSONResponse is TextResponse's structured analogue.
func (c *Context) JSONResponse(v any) message.ToolResult {
	m := message.NewJSON(message.RoleTool, v)
	if c != nil && c.ToolCallID != "" {
		m = m.WithToolCallID(c.ToolCallID)
	}
	return message.ResultMessage(m)
}

// ToonResponse encodes v in TOON instead of JSON, for tools whose results
// are large uniform collections where TOON's tabular encoding meaningfully
// cuts token usage. It falls back to JSONResponse if encoding fails.
func (c *Context) ToonResponse(v any) message.ToolResult {
	encoded, err := toon.EncodeDefault(v)
	if err != nil {
		c.logger().Warn("toon encode failed, falling back to JSON", "error", err)
		return c.JSONResponse(v)
	}
	return c.TextResponse(encoded)
}

// Tool is a named, schema-described, invocable capability.
type Tool interface {
	Name() string
	Schema() Schema
	Execute(ctx context.Context, args json.RawMessage, tc *Context) (message.ToolResult, error)
}

// Func adapts a plain function into a Tool, for built-ins and tests.
type Func struct {
	FName   string
	FSchema Schema
	FExec   func(ctx context.Context, args json.RawMessage, tc *Context) (message.ToolResult, error)
}

func (f *Func) Name() string     { return f.FName }
func (f *Func) Schema() Schema   { return f.FSchema }
func (f *Func) Execute(ctx context.Context, args json.RawMessage, tc *Context) (message.ToolResult, error) {
	return f.FExec(ctx, args, tc)
}

// Registry is a thread-safe mapping from tool name to Tool.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	log   *slog.Logger
}

// NewRegistry returns an empty registry. A nil logger falls back to
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{tools: make(map[string]Tool), log: logger}
}

// Register adds a tool. A colliding name replaces the prior entry
// (last-writer-wins), logged as a warning.
func (r *Registry) Register(t Tool) error {
	if !nameRe.MatchString(t.Name()) {
		return fmt.Errorf("tool: invalid name %q, must match %s", t.Name(), nameRe.String())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		r.log.Warn("tool registration replaces existing entry", "tool_name", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Unregister removes a tool by name; absent names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns the schemas of all registered tools, for LLM tool-use
// payloads.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Schema())
	}
	return out
}

// All returns every registered tool.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Filtered returns the subset of r's built-in tools whose names are in
// allowed, plus every tool not in the fixed built-in set (user-supplied
// tools are never filtered). A nil allowed set disables filtering.
func (r *Registry) Filtered(builtins map[string]struct{}, allowed map[string]struct{}) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for name, t := range r.tools {
		if _, isBuiltin := builtins[name]; isBuiltin && allowed != nil {
			if _, ok := allowed[name]; !ok {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}
