package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepagent-run/deepagent/internal/builtin"
	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/tool"
)

func TestPipelineRunsInFixedOrder(t *testing.T) {
	var order []string
	record := func(name string) *recorderMiddleware {
		return &recorderMiddleware{name: name, order: &order}
	}
	p := NewPipeline(record("base"), record("planning"), record("filesystem"), record("sub_agent"))

	req := &ModelRequest{}
	require.NoError(t, p.Run(context.Background(), req))
	assert.Equal(t, []string{"base", "planning", "filesystem", "sub_agent"}, order)
}

type recorderMiddleware struct {
	name  string
	order *[]string
}

func (r *recorderMiddleware) Name() string       { return r.name }
func (r *recorderMiddleware) Tools() []tool.Tool { return nil }
func (r *recorderMiddleware) Run(ctx context.Context, req *ModelRequest) error {
	*r.order = append(*r.order, r.name)
	return nil
}

func TestSummarizationReplacesPrefix(t *testing.T) {
	h := message.NewHistory()
	h.Append(
		message.New(message.RoleUser, "one"),
		message.New(message.RoleAgent, "two"),
		message.New(message.RoleUser, "three"),
	)
	mw := &SummarizationMiddleware{History: h, Keep: 1, SummaryNote: "Summary"}
	req := &ModelRequest{Messages: h.Snapshot()}

	require.NoError(t, mw.Run(context.Background(), req))

	assert.Len(t, req.Messages, 2)
	assert.Equal(t, message.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "three", req.Messages[1].AsText())
	assert.Contains(t, req.SystemPrompt, "Summary")
}

func TestPromptCachingTagsTrailingMessages(t *testing.T) {
	req := &ModelRequest{Messages: []message.AgentMessage{
		message.New(message.RoleUser, "a"),
		message.New(message.RoleUser, "b"),
		message.New(message.RoleUser, "c"),
	}}
	mw := &PromptCachingMiddleware{TagLast: 2}
	require.NoError(t, mw.Run(context.Background(), req))

	assert.Empty(t, req.Messages[0].Metadata)
	assert.Equal(t, "ephemeral", req.Messages[1].Metadata.CacheControl)
	assert.Equal(t, "ephemeral", req.Messages[2].Metadata.CacheControl)
}

func TestPlanningAndFilesystemMiddlewareContributeRealBuiltinTools(t *testing.T) {
	todos := builtin.Todos()
	files := builtin.Filesystem()

	planning := &PlanningMiddleware{WriteTodos: todos[0], ReadTodos: todos[1]}
	filesystem := &FilesystemMiddleware{LS: files[0], ReadFile: files[1], WriteFile: files[2], EditFile: files[3]}
	p := NewPipeline(planning, filesystem)

	names := make(map[string]struct{})
	for _, tl := range p.Tools() {
		names[tl.Name()] = struct{}{}
	}
	for name := range BuiltinToolNames {
		_, ok := names[name]
		assert.True(t, ok, "expected built-in tool %q to be contributed by the pipeline", name)
	}
}
