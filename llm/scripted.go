package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned when a ScriptedProvider runs out of steps.
var ErrScriptExhausted = errors.New("scripted provider: no more responses")

// StepFunc computes one scripted response from the request it answers.
type StepFunc func(messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error)

// ScriptedCall is one request seen by a ScriptedProvider.
type ScriptedCall struct {
	Messages []ChatMessage
	Tools    []ToolDefinition
}

// ScriptedProvider replays a fixed sequence of responses. It stands in for a
// real model in tests and offline runs, and records every request it gets.
// Safe for concurrent use; steps are consumed in arrival order.
type ScriptedProvider struct {
	mu    sync.Mutex
	name  string
	steps []StepFunc
	calls []ScriptedCall
}

// NewScriptedProvider creates a provider that answers with responses in order.
func NewScriptedProvider(name string, responses ...LLMResponse) *ScriptedProvider {
	p := &ScriptedProvider{name: name}
	for _, r := range responses {
		p.Then(r)
	}
	return p
}

// Then appends a fixed response.
func (p *ScriptedProvider) Then(resp LLMResponse) *ScriptedProvider {
	return p.ThenFunc(func([]ChatMessage, []ToolDefinition) (LLMResponse, error) {
		return resp, nil
	})
}

// ThenFunc appends a computed response.
func (p *ScriptedProvider) ThenFunc(fn StepFunc) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, fn)
	return p
}

// Name returns the provider name.
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// Model returns the script name.
func (p *ScriptedProvider) Model() string {
	return p.name
}

// Chat answers with the next scripted step.
func (p *ScriptedProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithTools(ctx, messages, nil)
}

// ChatWithTools answers with the next scripted step.
func (p *ScriptedProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return LLMResponse{}, err
	}

	p.mu.Lock()
	p.calls = append(p.calls, ScriptedCall{
		Messages: append([]ChatMessage(nil), messages...),
		Tools:    append([]ToolDefinition(nil), tools...),
	})
	if len(p.steps) == 0 {
		p.mu.Unlock()
		return LLMResponse{}, ErrScriptExhausted
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	p.mu.Unlock()

	return step(messages, tools)
}

// Calls returns a copy of the requests received so far.
func (p *ScriptedProvider) Calls() []ScriptedCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ScriptedCall(nil), p.calls...)
}

// Remaining returns the number of unconsumed steps.
func (p *ScriptedProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.steps)
}

// TextResponse is a final answer with no tool calls.
func TextResponse(content string) LLMResponse {
	return LLMResponse{Content: content}
}

// ToolCallResponse is a turn that only requests tools.
func ToolCallResponse(calls ...ToolCall) LLMResponse {
	return LLMResponse{ToolCalls: calls}
}

// NewToolCall builds a ToolCall with args marshaled to JSON.
func NewToolCall(id, name string, args any) ToolCall {
	raw, err := json.Marshal(args)
	if err != nil || args == nil {
		raw = json.RawMessage("{}")
	}
	return ToolCall{ID: id, Name: name, Arguments: raw}
}

var _ Provider = (*ScriptedProvider)(nil)
