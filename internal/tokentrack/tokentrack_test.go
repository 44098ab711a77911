package tokentrack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepagent-run/deepagent/internal/event"
	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/planner"
)

type fakeProvider struct {
	resp planner.LlmResponse
	err  error
}

func (f *fakeProvider) Generate(ctx context.Context, req planner.LlmRequest) (planner.LlmResponse, error) {
	return f.resp, f.err
}

func TestGenerateRecordsUsageAndCost(t *testing.T) {
	inner := &fakeProvider{resp: planner.LlmResponse{Text: "0123456789"}} // 10 chars -> 3 tokens
	mw := Wrap(inner, Config{Enabled: true, Costs: AnthropicClaudeSonnet()}, nil, nil)

	req := planner.LlmRequest{
		SystemPrompt: "01234567", // 8 chars -> 2 tokens
		Messages:     []message.AgentMessage{message.New(message.RoleUser, "0123")}, // 4 chars -> 1 token
	}
	resp, err := mw.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", resp.Text)

	summary := mw.Summary()
	assert.Equal(t, 1, summary.RequestCount)
	assert.Equal(t, 3, summary.TotalPromptTokens)
	assert.Equal(t, 3, summary.TotalCompletionTokens)
	assert.Equal(t, 6, summary.TotalTokens)
	assert.Greater(t, summary.TotalCost, 0.0)
}

func TestGenerateDisabledSkipsAccounting(t *testing.T) {
	inner := &fakeProvider{resp: planner.LlmResponse{Text: "hello"}}
	mw := Wrap(inner, Config{Enabled: false}, nil, nil)

	_, err := mw.Generate(context.Background(), planner.LlmRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, mw.Summary().RequestCount)
}

func TestGenerateEmitsTokenUsageEvent(t *testing.T) {
	dispatcher := event.NewDispatcher(nil)
	emitter := event.NewEmitter("thread-1", "corr-1", "", dispatcher, nil)

	inner := &fakeProvider{resp: planner.LlmResponse{Text: "hi"}}
	mw := Wrap(inner, DefaultConfig(), emitter, nil)

	_, err := mw.Generate(context.Background(), planner.LlmRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, mw.Summary().RequestCount)
}

func TestGeneratePropagatesProviderError(t *testing.T) {
	inner := &fakeProvider{err: assertError{"boom"}}
	mw := Wrap(inner, DefaultConfig(), nil, nil)

	_, err := mw.Generate(context.Background(), planner.LlmRequest{})
	assert.Error(t, err)
	assert.Equal(t, 0, mw.Summary().RequestCount)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func TestSummaryAverages(t *testing.T) {
	s := Summary{RequestCount: 2, TotalTokens: 10, TotalCost: 1.0}
	assert.Equal(t, 5.0, s.AverageTokensPerRequest())
	assert.Equal(t, 0.5, s.AverageCostPerRequest())
}
