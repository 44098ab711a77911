// Package tokentrack wraps a planner.Provider with per-request token and
// cost accounting, adapted from the original SDK's
// agents-runtime middleware::token_tracking module. It estimates token
// counts from text length rather than a tokenizer, matching the original's
// character-based approximation, and emits a token_usage lifecycle event
// per request.
package tokentrack

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/deepagent-run/deepagent/internal/event"
	"github.com/deepagent-run/deepagent/internal/planner"
)

// charsPerToken is the character-per-token approximation used when no
// tokenizer is available, matching the original's text.len() / 4.0.
const charsPerToken = 4.0

// Costs is a per-token cost table for one provider/model pair. Zero-value
// Costs prices every request at 0.0.
type Costs struct {
	Provider           string
	Model              string
	InputCostPerToken  float64
	OutputCostPerToken float64
}

// OpenAIGPT4oMini returns published per-token pricing for gpt-4o-mini.
func OpenAIGPT4oMini() Costs {
	return Costs{Provider: "openai", Model: "gpt-4o-mini", InputCostPerToken: 0.00000015, OutputCostPerToken: 0.0000006}
}

// OpenAIGPT4o returns published per-token pricing for gpt-4o.
func OpenAIGPT4o() Costs {
	return Costs{Provider: "openai", Model: "gpt-4o", InputCostPerToken: 0.0000025, OutputCostPerToken: 0.00001}
}

// AnthropicClaudeSonnet returns published per-token pricing for Claude
// Sonnet.
func AnthropicClaudeSonnet() Costs {
	return Costs{Provider: "anthropic", Model: "claude-sonnet", InputCostPerToken: 0.000003, OutputCostPerToken: 0.000015}
}

// GeminiFlash returns published per-token pricing for Gemini Flash.
func GeminiFlash() Costs {
	return Costs{Provider: "google", Model: "gemini-flash", InputCostPerToken: 0.000000075, OutputCostPerToken: 0.0000003}
}

// Config controls a Middleware's behavior.
type Config struct {
	// Enabled gates accounting entirely; disabled middlewares pass
	// through to the wrapped provider untouched.
	Enabled bool
	// EmitEvents gates dispatch of the token_usage lifecycle event.
	EmitEvents bool
	// LogUsage gates a structured log line per request.
	LogUsage bool
	// Costs prices tokens for the wrapped provider/model. A zero value
	// prices every request at 0.0 cost.
	Costs Costs
}

// DefaultConfig enables tracking and event emission, with logging and no
// cost model (cost is reported as 0 until Costs is set).
func DefaultConfig() Config {
	return Config{Enabled: true, EmitEvents: true, LogUsage: true}
}

// Usage is the accounting for a single Generate call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
	Duration         time.Duration
}

// Summary aggregates Usage across every tracked request.
type Summary struct {
	RequestCount          int
	TotalPromptTokens     int
	TotalCompletionTokens int
	TotalTokens           int
	TotalCost             float64
	TotalDuration         time.Duration
}

// AverageTokensPerRequest returns TotalTokens / RequestCount, or 0 if no
// requests have been tracked yet.
func (s Summary) AverageTokensPerRequest() float64 {
	if s.RequestCount == 0 {
		return 0
	}
	return float64(s.TotalTokens) / float64(s.RequestCount)
}

// AverageCostPerRequest returns TotalCost / RequestCount, or 0 if no
// requests have been tracked yet.
func (s Summary) AverageCostPerRequest() float64 {
	if s.RequestCount == 0 {
		return 0
	}
	return s.TotalCost / float64(s.RequestCount)
}

// Middleware wraps a planner.Provider, recording Usage for every Generate
// call and exposing a running Summary. It implements planner.Provider
// itself, so it can be dropped in wherever a Provider is expected.
type Middleware struct {
	inner   planner.Provider
	cfg     Config
	emitter *event.Emitter
	log     *slog.Logger

	mu    sync.Mutex
	usage []Usage
}

// Wrap constructs a Middleware around inner. emitter may be nil, which
// disables event emission regardless of cfg; a nil logger falls back to
// slog.Default().
func Wrap(inner planner.Provider, cfg Config, emitter *event.Emitter, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{inner: inner, cfg: cfg, emitter: emitter, log: logger}
}

// Generate implements planner.Provider: it calls through to the wrapped
// provider, then estimates and records token usage from the request and
// response text.
func (m *Middleware) Generate(ctx context.Context, req planner.LlmRequest) (planner.LlmResponse, error) {
	start := time.Now()
	resp, err := m.inner.Generate(ctx, req)
	duration := time.Since(start)
	if err != nil || !m.cfg.Enabled {
		return resp, err
	}

	promptTokens := estimateTokens(req.SystemPrompt)
	for _, msg := range req.Messages {
		promptTokens += estimateTokens(msg.AsText())
	}
	completionTokens := estimateTokens(resp.Text)
	total := promptTokens + completionTokens

	usage := Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      total,
		Cost:             m.cfg.Costs.InputCostPerToken*float64(promptTokens) + m.cfg.Costs.OutputCostPerToken*float64(completionTokens),
		Duration:         duration,
	}

	m.mu.Lock()
	m.usage = append(m.usage, usage)
	m.mu.Unlock()

	if m.cfg.LogUsage {
		m.log.Info("token usage",
			"prompt_tokens", usage.PromptTokens,
			"completion_tokens", usage.CompletionTokens,
			"total_tokens", usage.TotalTokens,
			"cost_usd", usage.Cost,
			"duration", usage.Duration,
		)
	}
	if m.cfg.EmitEvents && m.emitter != nil {
		m.emitter.TokenUsage(ctx, usage.PromptTokens, usage.CompletionTokens)
	}

	return resp, nil
}

// Summary returns the running aggregate across every Generate call so far.
func (m *Middleware) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Summary
	for _, u := range m.usage {
		s.RequestCount++
		s.TotalPromptTokens += u.PromptTokens
		s.TotalCompletionTokens += u.CompletionTokens
		s.TotalTokens += u.TotalTokens
		s.TotalCost += u.Cost
		s.TotalDuration += u.Duration
	}
	return s
}

// estimateTokens approximates a token count from UTF-8 byte length,
// matching the original's character-based heuristic rather than a real
// tokenizer.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / charsPerToken))
}
