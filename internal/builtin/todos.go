package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/state"
	"github.com/deepagent-run/deepagent/internal/tool"
)

type writeTodosArgs struct {
	Todos []state.TodoItem `json:"todos"`
}

// WriteTodos replaces the agent's todo list wholesale.
var WriteTodos tool.Tool = &tool.Func{
	FName: "write_todos",
	FSchema: tool.Schema{
		Name:        "write_todos",
		Description: "Update the agent's todo list to track task progress",
		Parameters: objectSchema("Write todos parameters", map[string]*tool.ParameterSchema{
			"todos": {
				Type:        tool.TypeArray,
				Description: "List of todo items",
				Items: objectSchema("A single todo item", map[string]*tool.ParameterSchema{
					"content": {Type: tool.TypeString, Description: "The todo item description"},
					"status": {
						Type:        tool.TypeString,
						Description: "Status of the todo (pending, in_progress, completed)",
						Enum:        []any{"pending", "in_progress", "completed"},
					},
				}, "content", "status"),
			},
		}, "todos"),
	},
	FExec: func(ctx context.Context, raw json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
		var args writeTodosArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return message.ToolResult{}, fmt.Errorf("write_todos: %w", err)
		}

		diff := state.StateDiff{Todos: args.Todos}
		if tc != nil && tc.Handle != nil {
			tc.Handle.Apply(diff)
		}
		summary := fmt.Sprintf("Updated todo list with %d items", len(args.Todos))
		return message.ResultWithStateUpdate(toolMessage(tc, summary), diff), nil
	},
}

// ReadTodos renders the current todo list as a human-readable checklist.
var ReadTodos tool.Tool = &tool.Func{
	FName: "read_todos",
	FSchema: tool.Schema{
		Name:        "read_todos",
		Description: "Read the current todo list to check task progress",
		Parameters:  objectSchema("No parameters needed", map[string]*tool.ParameterSchema{}),
	},
	FExec: func(ctx context.Context, args json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
		var todos []state.TodoItem
		if tc != nil && tc.Handle != nil {
			todos = tc.Handle.Read().Todos
		} else if tc != nil && tc.State != nil {
			todos = tc.State.Todos
		}

		if len(todos) == 0 {
			return tc.TextResponse("No todos found."), nil
		}

		var b strings.Builder
		for i, t := range todos {
			status := strings.ToUpper(string(t.Status))
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, status, t.Content)
		}
		response := fmt.Sprintf("Current TODO list (%d items):\n%s", len(todos), strings.TrimRight(b.String(), "\n"))
		return tc.TextResponse(response), nil
	},
}

// Todos returns write_todos and read_todos, for PlanningMiddleware.
func Todos() []tool.Tool {
	return []tool.Tool{WriteTodos, ReadTodos}
}
