// Package subagent implements delegation: a local lookup table of
// sub-agent entry points and the `task` tool that reenters the core loop
// on a sub-agent's behalf.
//
// This is deliberately simpler than a persistent, disk-backed run registry
// (runs are not tracked across process restarts, there is no sweep/TTL
// machinery) because the contract this component must satisfy is just
// "look up subagent_type, run the sub-agent's entry point, return its
// final message" plus a depth counter for telemetry.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/state"
	"github.com/deepagent-run/deepagent/internal/tool"
)

// Entry is a sub-agent's core entry point: it reenters the identical core
// loop with a User message and a starting state snapshot, returning the
// sub-agent's final message.
type Entry func(ctx context.Context, userMessage string, startState *state.AgentState) (message.AgentMessage, error)

// Descriptor pairs a sub-agent's entry point with the description surfaced
// to the planner by SubAgentMiddleware.
type Descriptor struct {
	Name        string
	Description string
	Run         Entry
}

// Table is the local sub-agent lookup table, owned by the middleware
// instance that constructs it (not shared across agents).
type Table struct {
	entries map[string]Descriptor
	depth   *int32 // shared delegation-depth counter for telemetry
}

// NewTable returns an empty table. depth, if non-nil, is shared with
// nested tables constructed for recursive delegation so telemetry can
// report how deep a delegation chain has gone.
func NewTable(depth *int32) *Table {
	if depth == nil {
		var d int32
		depth = &d
	}
	return &Table{entries: make(map[string]Descriptor), depth: depth}
}

// Register adds or replaces a sub-agent descriptor.
func (t *Table) Register(d Descriptor) {
	t.entries[d.Name] = d
}

// RegisterAutoGeneralPurpose registers the default "general-purpose"
// sub-agent that inherits the parent's planner and tool set, unless the
// caller has opted out by never calling this.
func (t *Table) RegisterAutoGeneralPurpose(run Entry) {
	t.Register(Descriptor{
		Name:        "general-purpose",
		Description: "A general-purpose sub-agent with the same instructions and tools as the parent.",
		Run:         run,
	})
}

// Descriptors returns all registered sub-agents sorted by name, for
// SubAgentMiddleware's prompt enumeration.
func (t *Table) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(t.entries))
	for _, d := range t.entries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *Table) availableNames() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Depth returns the current delegation depth, for telemetry.
func (t *Table) Depth() int32 {
	return atomic.LoadInt32(t.depth)
}

const taskToolName = "task"

type taskArgs struct {
	Description   string `json:"description"`
	SubagentType  string `json:"subagent_type"`
}

// Tool builds the `task` tool bound to this table. Recursion depth is
// tracked transitively via the shared counter; the loop's own iteration
// cap bounds recursion in practice (§4.8).
func (t *Table) Tool() tool.Tool {
	return &tool.Func{
		FName: taskToolName,
		FSchema: tool.Schema{
			Name:        taskToolName,
			Description: "Delegate a focused sub-task to a registered sub-agent.",
			Parameters: &tool.ParameterSchema{
				Type: tool.TypeObject,
				Properties: map[string]*tool.ParameterSchema{
					"description":    {Type: tool.TypeString, Description: "The task to delegate"},
					"subagent_type": {Type: tool.TypeString, Description: "Which registered sub-agent should handle it"},
				},
				Required: []string{"description", "subagent_type"},
			},
		},
		FExec: func(ctx context.Context, args json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
			var a taskArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return tc.TextResponse(fmt.Sprintf("invalid task arguments: %v", err)), nil
			}

			d, ok := t.entries[a.SubagentType]
			if !ok {
				names := t.availableNames()
				return tc.TextResponse(fmt.Sprintf(
					"unknown subagent_type %q; available: %s", a.SubagentType, strings.Join(names, ", "),
				)), nil
			}

			atomic.AddInt32(t.depth, 1)
			defer atomic.AddInt32(t.depth, -1)

			var startState *state.AgentState
			if tc != nil {
				startState = tc.State
			}

			final, err := d.Run(ctx, a.Description, startState)
			if err != nil {
				return tc.TextResponse(fmt.Sprintf("sub-agent %q failed: %v", a.SubagentType, err)), nil
			}

			final.Role = message.RoleTool
			if tc != nil && tc.ToolCallID != "" {
				final = final.WithToolCallID(tc.ToolCallID)
			}
			return message.ResultMessage(final), nil
		},
	}
}
