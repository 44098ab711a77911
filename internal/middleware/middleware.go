// Package middleware implements the ordered pipeline of contributors that
// add tools and mutate the planner request before each planner call.
package middleware

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/tool"
)

// ModelRequest is the mutable request middleware operate on, one instance
// per planner call.
type ModelRequest struct {
	SystemPrompt string
	Messages     []message.AgentMessage
	Tools        []tool.Tool
}

// AppendPrompt appends a guidance block to the system prompt, separated by
// a blank line.
func (r *ModelRequest) AppendPrompt(block string) {
	if block == "" {
		return
	}
	if r.SystemPrompt == "" {
		r.SystemPrompt = block
		return
	}
	r.SystemPrompt = r.SystemPrompt + "\n\n" + block
}

// AddTools appends tools to the request's tool set.
func (r *ModelRequest) AddTools(tools ...tool.Tool) {
	r.Tools = append(r.Tools, tools...)
}

// Middleware contributes tools and/or mutates the pending ModelRequest. Run
// runs after the middleware's tools (if any) have already been registered
// into the agent's tool registry; Run mutates req in place.
type Middleware interface {
	// Name identifies the middleware for logging and pipeline ordering
	// diagnostics.
	Name() string
	// Tools returns the tools this middleware contributes. Called once at
	// agent construction.
	Tools() []tool.Tool
	// Run mutates req before the planner call. Middlewares run
	// sequentially in pipeline order; each sees prior mutations.
	Run(ctx context.Context, req *ModelRequest) error
}

// BuiltinToolNames is the fixed set of filterable built-in tool names.
var BuiltinToolNames = map[string]struct{}{
	"write_todos": {},
	"read_todos":  {},
	"ls":          {},
	"read_file":   {},
	"write_file":  {},
	"edit_file":   {},
}

// Pipeline runs an ordered, fixed sequence of middlewares against a
// ModelRequest: base, planning, filesystem, sub-agent, [summarization],
// [prompt caching], [HITL]. The order here is load-bearing; callers append
// middlewares already in spec order via NewPipeline.
type Pipeline struct {
	stages []Middleware
}

// NewPipeline constructs a pipeline from stages already in the required
// fixed order. It does not reorder; callers are responsible for passing
// base, planning, filesystem, sub-agent, then the optional stages in that
// sequence.
func NewPipeline(stages ...Middleware) *Pipeline {
	filtered := make([]Middleware, 0, len(stages))
	for _, s := range stages {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &Pipeline{stages: filtered}
}

// Tools collects every tool contributed across all stages, in stage order.
func (p *Pipeline) Tools() []tool.Tool {
	var out []tool.Tool
	for _, s := range p.stages {
		out = append(out, s.Tools()...)
	}
	return out
}

// Run executes each stage in order against req, a stage's mutations
// visible to the next.
func (p *Pipeline) Run(ctx context.Context, req *ModelRequest) error {
	for _, s := range p.stages {
		if err := s.Run(ctx, req); err != nil {
			return fmt.Errorf("middleware %q: %w", s.Name(), err)
		}
	}
	return nil
}

// BaseMiddleware appends the agent's base instruction block. It
// contributes no tools.
type BaseMiddleware struct {
	Instructions string
}

func (m *BaseMiddleware) Name() string       { return "base" }
func (m *BaseMiddleware) Tools() []tool.Tool { return nil }
func (m *BaseMiddleware) Run(ctx context.Context, req *ModelRequest) error {
	req.AppendPrompt(m.Instructions)
	return nil
}

// PlanningGuidance is the default guidance block appended by
// PlanningMiddleware.
const PlanningGuidance = "You can track multi-step work with the write_todos tool. Keep todos short and update their status as you progress."

// PlanningMiddleware contributes write_todos/read_todos and appends
// planning guidance.
type PlanningMiddleware struct {
	WriteTodos tool.Tool
	ReadTodos  tool.Tool
}

func (m *PlanningMiddleware) Name() string { return "planning" }
func (m *PlanningMiddleware) Tools() []tool.Tool {
	var out []tool.Tool
	for _, t := range []tool.Tool{m.WriteTodos, m.ReadTodos} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}
func (m *PlanningMiddleware) Run(ctx context.Context, req *ModelRequest) error {
	req.AppendPrompt(PlanningGuidance)
	return nil
}

// FilesystemGuidance is the default guidance block appended by
// FilesystemMiddleware.
const FilesystemGuidance = "You have access to a virtual filesystem (ls, read_file, write_file, edit_file) scoped to this conversation's state."

// FilesystemMiddleware contributes ls/read_file/write_file/edit_file and
// appends filesystem guidance.
type FilesystemMiddleware struct {
	LS, ReadFile, WriteFile, EditFile tool.Tool
}

func (m *FilesystemMiddleware) Name() string { return "filesystem" }
func (m *FilesystemMiddleware) Tools() []tool.Tool {
	var out []tool.Tool
	for _, t := range []tool.Tool{m.LS, m.ReadFile, m.WriteFile, m.EditFile} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}
func (m *FilesystemMiddleware) Run(ctx context.Context, req *ModelRequest) error {
	req.AppendPrompt(FilesystemGuidance)
	return nil
}

// SubAgentDescriptor describes one registered sub-agent for delegation
// guidance.
type SubAgentDescriptor struct {
	Name        string
	Description string
}

// SubAgentMiddleware contributes the task tool and enumerates registered
// sub-agents in the prompt.
type SubAgentMiddleware struct {
	Task        tool.Tool
	Descriptors []SubAgentDescriptor
}

func (m *SubAgentMiddleware) Name() string { return "sub_agent" }
func (m *SubAgentMiddleware) Tools() []tool.Tool {
	if m.Task == nil {
		return nil
	}
	return []tool.Tool{m.Task}
}
func (m *SubAgentMiddleware) Run(ctx context.Context, req *ModelRequest) error {
	sorted := append([]SubAgentDescriptor{}, m.Descriptors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var b strings.Builder
	b.WriteString("You can delegate focused sub-tasks to other agents via the task tool. Available subagent_type values:\n")
	for _, d := range sorted {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	req.AppendPrompt(strings.TrimRight(b.String(), "\n"))
	return nil
}

// SummarizationMiddleware replaces a history prefix with a synthesized
// summary once the history exceeds Keep messages, retaining the last Keep
// verbatim.
type SummarizationMiddleware struct {
	History     *message.History
	Keep        int
	SummaryNote string
	Summarize   func(ctx context.Context, prefix []message.AgentMessage) (string, error)
}

func (m *SummarizationMiddleware) Name() string       { return "summarization" }
func (m *SummarizationMiddleware) Tools() []tool.Tool { return nil }
func (m *SummarizationMiddleware) Run(ctx context.Context, req *ModelRequest) error {
	if m.History == nil || m.Keep < 0 {
		return nil
	}
	msgs := req.Messages
	if len(msgs) <= m.Keep {
		return nil
	}
	prefix := msgs[:len(msgs)-m.Keep]
	summaryText := "Summary of earlier conversation."
	if m.Summarize != nil {
		text, err := m.Summarize(ctx, prefix)
		if err != nil {
			return fmt.Errorf("summarize: %w", err)
		}
		summaryText = text
	}
	summary := message.New(message.RoleSystem, summaryText)
	kept := append([]message.AgentMessage{summary}, msgs[len(msgs)-m.Keep:]...)

	m.History.ReplacePrefix(len(prefix), []message.AgentMessage{summary})
	req.Messages = kept

	note := m.SummaryNote
	if note == "" {
		note = "Summary"
	}
	req.AppendPrompt(fmt.Sprintf("Earlier conversation was condensed. %s", note))
	return nil
}

// PromptCachingMiddleware tags selected trailing messages with an
// ephemeral cache_control marker.
type PromptCachingMiddleware struct {
	// TagLast is how many trailing messages receive the cache marker.
	TagLast int
}

func (m *PromptCachingMiddleware) Name() string       { return "prompt_caching" }
func (m *PromptCachingMiddleware) Tools() []tool.Tool { return nil }
func (m *PromptCachingMiddleware) Run(ctx context.Context, req *ModelRequest) error {
	n := m.TagLast
	if n <= 0 {
		n = 1
	}
	if n > len(req.Messages) {
		n = len(req.Messages)
	}
	start := len(req.Messages) - n
	for i := start; i < len(req.Messages); i++ {
		req.Messages[i] = req.Messages[i].WithCacheControl("ephemeral")
	}
	return nil
}

// HITLRegistrar is satisfied by the HITL gate: RegisterPolicy associates a
// tool name with its approval policy.
type HITLRegistrar interface {
	RegisterPolicy(toolName string, allowAuto bool, note string)
}

// HITLPolicyEntry binds a tool name to its approval policy for
// registration by HITLMiddleware.
type HITLPolicyEntry struct {
	ToolName  string
	AllowAuto bool
	Note      string
}

// HITLMiddleware registers gated tool names with the HITL gate. It
// contributes no tools and makes no prompt mutation.
type HITLMiddleware struct {
	Gate     HITLRegistrar
	Policies []HITLPolicyEntry
}

func (m *HITLMiddleware) Name() string       { return "hitl" }
func (m *HITLMiddleware) Tools() []tool.Tool { return nil }
func (m *HITLMiddleware) Run(ctx context.Context, req *ModelRequest) error {
	if m.Gate == nil {
		return nil
	}
	for _, p := range m.Policies {
		m.Gate.RegisterPolicy(p.ToolName, p.AllowAuto, p.Note)
	}
	return nil
}
