// LLMClient - provider wrapper that accounts for token usage.

package llm

import (
	"context"

	"github.com/richinex/musicbi/internal/metrics"
)

// Client wraps a Provider and records token usage per call.
type Client struct {
	provider Provider
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Chat sends a chat completion request without tools.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	resp, err := c.provider.Chat(ctx, messages)
	if err != nil {
		return LLMResponse{}, err
	}
	c.record(resp.Usage)
	return resp, nil
}

// ChatWithTools sends a chat completion request with tool definitions.
// With no tools it degrades to Chat, since some providers reject an empty tool list.
func (c *Client) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	if len(tools) == 0 {
		return c.Chat(ctx, messages)
	}
	resp, err := c.provider.ChatWithTools(ctx, messages, tools)
	if err != nil {
		return LLMResponse{}, err
	}
	c.record(resp.Usage)
	return resp, nil
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

func (c *Client) record(usage *TokenUsage) {
	if usage == nil {
		return
	}
	metrics.RecordTokens(c.provider.Name(), c.provider.Model(), usage.PromptTokens, usage.CompletionTokens)
}
