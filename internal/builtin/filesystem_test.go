package builtin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepagent-run/deepagent/internal/state"
	"github.com/deepagent-run/deepagent/internal/tool"
)

func newCtxWithFiles(files map[string]string) *tool.Context {
	s := state.New()
	for k, v := range files {
		s.Files[k] = v
	}
	return &tool.Context{Handle: state.NewHandle(s)}
}

func TestLSListsFileNamesSorted(t *testing.T) {
	tc := newCtxWithFiles(map[string]string{"b.txt": "2", "a.txt": "1"})
	result, err := LS.Execute(context.Background(), nil, tc)
	require.NoError(t, err)
	assert.Contains(t, result.Message.AsText(), "a.txt")
	assert.Contains(t, result.Message.AsText(), "b.txt")
}

func TestReadFileReturnsNotFound(t *testing.T) {
	tc := newCtxWithFiles(nil)
	result, err := ReadFile.Execute(context.Background(), json.RawMessage(`{"file_path":"missing.txt"}`), tc)
	require.NoError(t, err)
	assert.Contains(t, result.Message.AsText(), "not found")
}

func TestReadFileAppliesOffsetAndLimit(t *testing.T) {
	tc := newCtxWithFiles(map[string]string{"f.txt": "line1\nline2\nline3"})
	result, err := ReadFile.Execute(context.Background(), json.RawMessage(`{"file_path":"f.txt","offset":1,"limit":1}`), tc)
	require.NoError(t, err)
	text := result.Message.AsText()
	assert.Contains(t, text, "line2")
	assert.NotContains(t, text, "line1")
	assert.NotContains(t, text, "line3")
}

func TestWriteFileAppliesStateDiff(t *testing.T) {
	tc := newCtxWithFiles(nil)
	result, err := WriteFile.Execute(context.Background(), json.RawMessage(`{"file_path":"new.txt","content":"hi"}`), tc)
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Diff.Files["new.txt"])
	assert.Equal(t, "hi", tc.Handle.Read().Files["new.txt"])
}

func TestEditFileRequiresUniqueMatchWithoutReplaceAll(t *testing.T) {
	tc := newCtxWithFiles(map[string]string{"f.txt": "foo foo"})
	result, err := EditFile.Execute(context.Background(), json.RawMessage(`{"file_path":"f.txt","old_string":"foo","new_string":"bar"}`), tc)
	require.NoError(t, err)
	assert.Contains(t, result.Message.AsText(), "appears 2 times")
}

func TestEditFileReplaceAll(t *testing.T) {
	tc := newCtxWithFiles(map[string]string{"f.txt": "foo foo"})
	result, err := EditFile.Execute(context.Background(), json.RawMessage(`{"file_path":"f.txt","old_string":"foo","new_string":"bar","replace_all":true}`), tc)
	require.NoError(t, err)
	assert.Equal(t, "bar bar", result.Diff.Files["f.txt"])
}

func TestWriteTodosReplacesListAndReadTodosRendersIt(t *testing.T) {
	tc := newCtxWithFiles(nil)
	_, err := WriteTodos.Execute(context.Background(), json.RawMessage(`{"todos":[{"content":"ship it","status":"pending"}]}`), tc)
	require.NoError(t, err)

	result, err := ReadTodos.Execute(context.Background(), nil, tc)
	require.NoError(t, err)
	assert.Contains(t, result.Message.AsText(), "ship it")
	assert.Contains(t, result.Message.AsText(), "PENDING")
}

func TestReadTodosWhenEmpty(t *testing.T) {
	tc := newCtxWithFiles(nil)
	result, err := ReadTodos.Execute(context.Background(), nil, tc)
	require.NoError(t, err)
	assert.Equal(t, "No todos found.", result.Message.AsText())
}
