// Package builtin implements the agent's mock virtual filesystem and todo
// tracker as concrete tools over state.AgentState, adapted from the
// original SDK's agents-toolkit filesystem/todo bundles.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/state"
	"github.com/deepagent-run/deepagent/internal/tool"
)

// filesSnapshot reads the files map off the shared handle when one is
// present, falling back to the dispatch-time state snapshot.
func filesSnapshot(tc *tool.Context) map[string]string {
	if tc != nil && tc.Handle != nil {
		return tc.Handle.Read().Files
	}
	if tc != nil && tc.State != nil {
		return tc.State.Files
	}
	return nil
}

func objectSchema(description string, properties map[string]*tool.ParameterSchema, required ...string) *tool.ParameterSchema {
	return &tool.ParameterSchema{
		Type:        tool.TypeObject,
		Description: description,
		Properties:  properties,
		Required:    required,
	}
}

// LS lists every file path currently in the virtual filesystem.
var LS tool.Tool = &tool.Func{
	FName: "ls",
	FSchema: tool.Schema{
		Name:        "ls",
		Description: "List all files in the filesystem",
		Parameters:  objectSchema("No parameters", map[string]*tool.ParameterSchema{}),
	},
	FExec: func(ctx context.Context, args json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
		files := filesSnapshot(tc)
		names := make([]string, 0, len(files))
		for name := range files {
			names = append(names, name)
		}
		sort.Strings(names)
		return tc.ToonResponse(names), nil
	},
}

type readFileArgs struct {
	Path   string `json:"file_path"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// ReadFile returns a line-numbered slice of a file's contents, mirroring
// the offset/limit pagination of the original read_file tool.
var ReadFile tool.Tool = &tool.Func{
	FName: "read_file",
	FSchema: tool.Schema{
		Name:        "read_file",
		Description: "Read the contents of a file with optional line offset and limit",
		Parameters: objectSchema("Read file parameters", map[string]*tool.ParameterSchema{
			"file_path": {Type: tool.TypeString, Description: "Path to the file to read"},
			"offset":    {Type: tool.TypeInteger, Description: "Line number to start reading from (default: 0)"},
			"limit":     {Type: tool.TypeInteger, Description: "Maximum number of lines to read (default: 2000)"},
		}, "file_path"),
	},
	FExec: func(ctx context.Context, raw json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
		var args readFileArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return message.ToolResult{}, fmt.Errorf("read_file: %w", err)
		}
		if args.Limit <= 0 {
			args.Limit = 2000
		}

		contents, ok := filesSnapshot(tc)[args.Path]
		if !ok {
			return tc.TextResponse(fmt.Sprintf("Error: File '%s' not found", args.Path)), nil
		}
		if strings.TrimSpace(contents) == "" {
			return tc.TextResponse("System reminder: File exists but has empty contents"), nil
		}

		lines := strings.Split(contents, "\n")
		if args.Offset >= len(lines) {
			return tc.TextResponse(fmt.Sprintf("Error: Line offset %d exceeds file length (%d lines)", args.Offset, len(lines))), nil
		}

		end := args.Offset + args.Limit
		if end > len(lines) {
			end = len(lines)
		}

		// maxLineLength caps each returned line in bytes; Limit counts lines.
		const maxLineLength = 2000
		var b strings.Builder
		for i, line := range lines[args.Offset:end] {
			lineNumber := args.Offset + i + 1
			if len(line) > maxLineLength {
				line = line[:maxLineLength]
			}
			fmt.Fprintf(&b, "%6d\t%s\n", lineNumber, line)
		}
		return tc.TextResponse(strings.TrimRight(b.String(), "\n")), nil
	},
}

type writeFileArgs struct {
	Path    string `json:"file_path"`
	Content string `json:"content"`
}

// WriteFile creates or overwrites a file, returning a diff that merges the
// new content into state.Files.
var WriteFile tool.Tool = &tool.Func{
	FName: "write_file",
	FSchema: tool.Schema{
		Name:        "write_file",
		Description: "Write content to a file (creates new or overwrites existing)",
		Parameters: objectSchema("Write file parameters", map[string]*tool.ParameterSchema{
			"file_path": {Type: tool.TypeString, Description: "Path to the file to write"},
			"content":   {Type: tool.TypeString, Description: "Content to write to the file"},
		}, "file_path", "content"),
	},
	FExec: func(ctx context.Context, raw json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
		var args writeFileArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return message.ToolResult{}, fmt.Errorf("write_file: %w", err)
		}

		diff := state.StateDiff{Files: map[string]string{args.Path: args.Content}}
		if tc != nil && tc.Handle != nil {
			tc.Handle.Apply(diff)
		}
		return message.ResultWithStateUpdate(
			toolMessage(tc, fmt.Sprintf("Updated file %s", args.Path)),
			diff,
		), nil
	},
}

type editFileArgs struct {
	Path       string `json:"file_path"`
	Old        string `json:"old_string"`
	New        string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all"`
}

// EditFile performs a string replacement against an existing file,
// requiring a unique match unless ReplaceAll is set.
var EditFile tool.Tool = &tool.Func{
	FName: "edit_file",
	FSchema: tool.Schema{
		Name:        "edit_file",
		Description: "Edit a file by replacing old_string with new_string",
		Parameters: objectSchema("Edit file parameters", map[string]*tool.ParameterSchema{
			"file_path":   {Type: tool.TypeString, Description: "Path to the file to edit"},
			"old_string":  {Type: tool.TypeString, Description: "String to find and replace"},
			"new_string":  {Type: tool.TypeString, Description: "Replacement string"},
			"replace_all": {Type: tool.TypeBoolean, Description: "Replace all occurrences (default: false, requires unique match)"},
		}, "file_path", "old_string", "new_string"),
	},
	FExec: func(ctx context.Context, raw json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
		var args editFileArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return message.ToolResult{}, fmt.Errorf("edit_file: %w", err)
		}

		existing, ok := filesSnapshot(tc)[args.Path]
		if !ok {
			return tc.TextResponse(fmt.Sprintf("Error: File '%s' not found", args.Path)), nil
		}
		if !strings.Contains(existing, args.Old) {
			return tc.TextResponse(fmt.Sprintf("Error: String not found in file: '%s'", args.Old)), nil
		}

		occurrences := strings.Count(existing, args.Old)
		if !args.ReplaceAll && occurrences > 1 {
			return tc.TextResponse(fmt.Sprintf(
				"Error: String '%s' appears %d times in file. Use replace_all=true to replace all instances, or provide a more specific string with surrounding context.",
				args.Old, occurrences,
			)), nil
		}

		var updated string
		var summary string
		if args.ReplaceAll {
			updated = strings.ReplaceAll(existing, args.Old, args.New)
			summary = fmt.Sprintf("Successfully replaced %d instance(s) of the string in '%s'", occurrences, args.Path)
		} else {
			updated = strings.Replace(existing, args.Old, args.New, 1)
			summary = fmt.Sprintf("Successfully replaced string in '%s'", args.Path)
		}

		diff := state.StateDiff{Files: map[string]string{args.Path: updated}}
		if tc != nil && tc.Handle != nil {
			tc.Handle.Apply(diff)
		}
		return message.ResultWithStateUpdate(toolMessage(tc, summary), diff), nil
	},
}

// Filesystem returns ls/read_file/write_file/edit_file in registration
// order, for FilesystemMiddleware.
func Filesystem() []tool.Tool {
	return []tool.Tool{LS, ReadFile, WriteFile, EditFile}
}

func toolMessage(tc *tool.Context, text string) message.AgentMessage {
	m := message.New(message.RoleTool, text)
	if tc != nil && tc.ToolCallID != "" {
		m = m.WithToolCallID(tc.ToolCallID)
	}
	return m
}
