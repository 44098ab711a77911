// Package anthropic implements planner.Provider against Anthropic's Claude
// API via the official anthropic-sdk-go client.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/planner"
	"github.com/deepagent-run/deepagent/internal/tool"
)

// Config configures a Provider, following the Default*Config pattern.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration
}

// DefaultConfig returns defaults for everything except APIKey.
func DefaultConfig() Config {
	return Config{
		DefaultModel: "claude-sonnet-4-20250514",
		MaxTokens:    4096,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

func sanitizeConfig(c Config) Config {
	if c.DefaultModel == "" {
		c.DefaultModel = "claude-sonnet-4-20250514"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// Provider implements planner.Provider against Anthropic's Messages API.
type Provider struct {
	client anthropic.Client
	cfg    Config
}

// New constructs a Provider. Unlike the streaming reference this is
// adapted from, Generate is a single non-streaming call, matching the
// planner's synchronous contract.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	cfg = sanitizeConfig(cfg)

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{client: anthropic.NewClient(opts...), cfg: cfg}, nil
}

// Generate implements planner.Provider.
func (p *Provider) Generate(ctx context.Context, req planner.LlmRequest) (planner.LlmResponse, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return planner.LlmResponse{}, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.DefaultModel),
		Messages:  messages,
		MaxTokens: int64(p.cfg.MaxTokens),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return planner.LlmResponse{}, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}

	var resp *anthropic.Message
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return planner.LlmResponse{}, ctx.Err()
			case <-time.After(p.cfg.RetryDelay * time.Duration(attempt)):
			}
		}
		resp, lastErr = p.client.Messages.New(ctx, params)
		if lastErr == nil {
			break
		}
		if !isRetryable(lastErr) {
			return planner.LlmResponse{}, fmt.Errorf("anthropic: %w", lastErr)
		}
	}
	if lastErr != nil {
		return planner.LlmResponse{}, fmt.Errorf("anthropic: max retries exceeded: %w", lastErr)
	}

	return convertResponse(resp), nil
}

func convertMessages(messages []message.AgentMessage) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == message.RoleSystem {
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion
		if text := msg.AsText(); text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(text))
		}

		if msg.Role == message.RoleTool {
			blocks = append(blocks, anthropic.NewToolResultBlock(msg.ToolCallID(), msg.AsText(), false))
		}

		if len(blocks) == 0 {
			continue
		}

		if msg.Role == message.RoleAgent {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result, nil
}

func convertTools(schemas []tool.Schema) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		payload, err := json.Marshal(s.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", s.Name, err)
		}
		var inputSchema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(payload, &inputSchema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", s.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(inputSchema, s.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool definition for %s", s.Name)
		}
		toolParam.OfTool.Description = anthropic.String(s.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func convertResponse(resp *anthropic.Message) planner.LlmResponse {
	out := planner.LlmResponse{}
	var text strings.Builder
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, planner.LlmToolCall{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: json.RawMessage(variant.Input),
			})
		}
	}
	out.Text = text.String()
	return out
}

func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
