package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"google.golang.org/genai"
)

func TestConvertToOpenAIMessagesToolRoundTrip(t *testing.T) {
	call := ToolCall{ID: "call_1", Name: "list_databases"}
	msgs := []ChatMessage{
		SystemMessage("sys"),
		UserMessage("q"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{call}},
		ToolResultMessage(call, `["chinook sqlite"]`),
	}

	out := convertToOpenAIMessages(msgs)
	if len(out) != 4 {
		t.Fatalf("got %d messages, want 4", len(out))
	}
	if got := out[2].ToolCalls[0].Function.Arguments; got != "{}" {
		t.Errorf("empty arguments = %q, want {}", got)
	}
	if out[3].ToolCallID != "call_1" {
		t.Errorf("tool_call_id = %q", out[3].ToolCallID)
	}
	if convertToOpenAITools(nil) != nil {
		t.Error("no tools should convert to nil")
	}
}

func TestConvertToAnthropicMessagesGroupsToolResults(t *testing.T) {
	a := ToolCall{ID: "a", Name: "sql_assistant", Arguments: json.RawMessage(`{"query":"x"}`)}
	b := ToolCall{ID: "b", Name: "knowledge_assistant", Arguments: json.RawMessage(`{"query":"y"}`)}
	msgs := []ChatMessage{
		SystemMessage("route"),
		UserMessage("q"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{a, b}},
		ToolResultMessage(a, "rows"),
		ToolResultMessage(b, "docs"),
	}

	out, system := convertToAnthropicMessages(msgs)
	if system != "route" {
		t.Errorf("system = %q", system)
	}
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3 (user, assistant, grouped tool results)", len(out))
	}
	if n := len(out[2].Content); n != 2 {
		t.Errorf("grouped tool results = %d blocks, want 2", n)
	}
}

func TestConvertToGeminiSchema(t *testing.T) {
	schema := convertToGeminiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"database_identifier": map[string]any{"type": "string"},
			"limit":               map[string]any{"type": "integer"},
			"params":              map[string]any{"type": "object", "description": "named parameters"},
		},
		"required": []string{"database_identifier"},
	})

	tests := []struct {
		prop string
		want genai.Type
	}{
		{"database_identifier", genai.TypeString},
		{"limit", genai.TypeInteger},
		{"params", genai.TypeString},
	}
	for _, tt := range tests {
		t.Run(tt.prop, func(t *testing.T) {
			got, ok := schema.Properties[tt.prop]
			if !ok {
				t.Fatalf("missing property %s", tt.prop)
			}
			if got.Type != tt.want {
				t.Errorf("type = %v, want %v", got.Type, tt.want)
			}
		})
	}
	if len(schema.Required) != 1 || schema.Required[0] != "database_identifier" {
		t.Errorf("required = %v", schema.Required)
	}
}

func TestScriptedProvider(t *testing.T) {
	p := NewScriptedProvider("test",
		ToolCallResponse(NewToolCall("1", "list_databases", nil)),
		TextResponse("done"),
	)
	ctx := context.Background()

	first, err := p.ChatWithTools(ctx, []ChatMessage{UserMessage("hi")}, []ToolDefinition{{Name: "list_databases"}})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if !first.HasToolCalls() || string(first.ToolCalls[0].Arguments) != "{}" {
		t.Errorf("unexpected first response: %+v", first)
	}

	second, err := p.Chat(ctx, []ChatMessage{UserMessage("again")})
	if err != nil || second.Content != "done" {
		t.Fatalf("second call = %+v, %v", second, err)
	}

	if _, err := p.Chat(ctx, nil); !errors.Is(err, ErrScriptExhausted) {
		t.Errorf("exhausted script error = %v", err)
	}

	calls := p.Calls()
	if len(calls) != 3 {
		t.Fatalf("recorded %d calls, want 3", len(calls))
	}
	if len(calls[0].Tools) != 1 || calls[1].Messages[0].Content != "again" {
		t.Errorf("calls not recorded faithfully: %+v", calls)
	}
}

func TestParseProviderTypeAliases(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderType
		wantErr bool
	}{
		{"openai", ProviderOpenAI, false},
		{"Claude", ProviderAnthropic, false},
		{"deepseek", ProviderDeepSeek, false},
		{"google", ProviderGemini, false},
		{"llama", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProviderType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenUsageAdd(t *testing.T) {
	var total TokenUsage
	total.Add(&TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5})
	total.Add(nil)
	total.Add(&TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2})
	if total.TotalTokens != 7 || total.PromptTokens != 4 {
		t.Errorf("total = %+v", total)
	}
}
