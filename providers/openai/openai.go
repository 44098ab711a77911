// Package openai implements planner.Provider against OpenAI's chat
// completions API via github.com/sashabaranov/go-openai.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/planner"
	"github.com/deepagent-run/deepagent/internal/tool"
)

// Config configures a Provider.
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
		DefaultModel: "gpt-4o",
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

func sanitizeConfig(c Config) Config {
	if c.DefaultModel == "" {
		c.DefaultModel = "gpt-4o"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// Provider implements planner.Provider against OpenAI's chat completions
// API.
type Provider struct {
	client *openai.Client
	cfg    Config
}

// New constructs a Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	cfg = sanitizeConfig(cfg)

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// Generate implements planner.Provider.
func (p *Provider) Generate(ctx context.Context, req planner.LlmRequest) (planner.LlmResponse, error) {
	messages := convertMessages(req.Messages, req.SystemPrompt)

	chatReq := openai.ChatCompletionRequest{
		Model:    p.cfg.DefaultModel,
		Messages: messages,
	}
	if p.cfg.MaxTokens > 0 {
		chatReq.MaxTokens = p.cfg.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	var resp openai.ChatCompletionResponse
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return planner.LlmResponse{}, ctx.Err()
			case <-time.After(p.cfg.RetryDelay * time.Duration(attempt)):
			}
		}
		resp, lastErr = p.client.CreateChatCompletion(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !isRetryable(lastErr) {
			return planner.LlmResponse{}, fmt.Errorf("openai: %w", lastErr)
		}
	}
	if lastErr != nil {
		return planner.LlmResponse{}, fmt.Errorf("openai: max retries exceeded: %w", lastErr)
	}
	if len(resp.Choices) == 0 {
		return planner.LlmResponse{}, errors.New("openai: empty response")
	}

	return convertResponse(resp.Choices[0].Message), nil
}

func convertMessages(messages []message.AgentMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case message.RoleUser, message.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.AsText(),
			})
		case message.RoleAgent:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.AsText(),
			})
		case message.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.AsText(),
				ToolCallID: msg.ToolCallID(),
			})
		}
	}
	return result
}

func convertTools(schemas []tool.Schema) []openai.Tool {
	result := make([]openai.Tool, len(schemas))
	for i, s := range schemas {
		var schemaMap map[string]any
		if payload, err := json.Marshal(s.Parameters); err == nil {
			_ = json.Unmarshal(payload, &schemaMap)
		}
		if schemaMap == nil {
			schemaMap = map[string]any{"type": "object", "properties": map[string]any{}}
		}

		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

func convertResponse(msg openai.ChatCompletionMessage) planner.LlmResponse {
	out := planner.LlmResponse{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, planner.LlmToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset")
}
