// Package llm provides LLM provider abstractions.
//
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion, including native tool calling
// - Provider-specific error handling

package llm

import (
	"context"
)

// Provider is the black-box model capability: generate a response for a
// conversation, optionally with a set of callable tools.
type Provider interface {
	// Name returns the provider name (for logging/metrics).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a chat completion request without tools.
	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// ChatWithTools sends a chat completion request with tool definitions.
	// The model may answer with tool calls in LLMResponse.ToolCalls.
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error)
}
