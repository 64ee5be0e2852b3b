// Package tools holds everything an agent can call: the read-only SQL
// tools, knowledge retrieval, and specialists wrapped as tools.
//
// Information Hiding:
// - Data access hidden behind SQLAccess and KnowledgeRetriever
// - Argument decoding and coercion hidden per tool
// - Failures surface as ToolResult text the model can act on
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/musicbi/internal/apperror"
	"github.com/richinex/musicbi/llm"
)

// ToolParameter is one argument in a tool's schema. ParamType is a JSON
// Schema type name: string, integer, number, boolean or object.
type ToolParameter struct {
	Name        string
	ParamType   string
	Description string
	Required    bool
}

// ToolMetadata is the descriptor the model sees.
type ToolMetadata struct {
	Name        string
	Description string
	Parameters  []ToolParameter
}

func (m ToolMetadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, firstLine(m.Description))
}

// Definition renders the parameters as a JSON Schema object.
func (m ToolMetadata) Definition() llm.ToolDefinition {
	props := make(map[string]any, len(m.Parameters))
	required := []string{}
	for _, p := range m.Parameters {
		prop := map[string]any{
			"type":        p.ParamType,
			"description": p.Description,
		}
		if p.ParamType == "object" {
			prop["additionalProperties"] = true
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return llm.ToolDefinition{
		Name:        m.Name,
		Description: m.Description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// Definitions converts tools to provider tool definitions, in order.
func Definitions(tools []Tool) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = t.Metadata().Definition()
	}
	return defs
}

// ToolResult is the outcome of one call. A nil Error means success.
type ToolResult struct {
	Output string
	Error  error
}

func (t ToolResult) Success() bool {
	return t.Error == nil
}

// Code is the apperror code of a failure, or "" on success.
func (t ToolResult) Code() string {
	if t.Error == nil {
		return ""
	}
	return apperror.CodeOf(t.Error)
}

// Text is what the model sees: the output, or "ERROR: ..." on failure.
func (t ToolResult) Text() string {
	if t.Error != nil {
		return "ERROR: " + t.Error.Error()
	}
	if strings.TrimSpace(t.Output) == "" {
		return "(empty result)"
	}
	return t.Output
}

func SuccessResult(output string) ToolResult {
	return ToolResult{Output: output}
}

func FailureResult(err error) ToolResult {
	return ToolResult{Error: err}
}

func FailureResultf(format string, args ...any) ToolResult {
	return ToolResult{Error: fmt.Errorf(format, args...)}
}

// Tool is anything an agent can call.
type Tool interface {
	Metadata() ToolMetadata

	// Execute runs the tool. Domain failures (a rejected statement, an
	// unknown database) come back as a failed ToolResult so the model can
	// correct itself; the error return is for broken invariants.
	Execute(ctx context.Context, args json.RawMessage) (ToolResult, error)

	// Validate checks arguments before the executor spends an attempt.
	Validate(args json.RawMessage) error
}

// BaseTool gives argument-free tools a no-op Validate.
type BaseTool struct{}

func (BaseTool) Validate(json.RawMessage) error {
	return nil
}

// ToolConfig bounds tool execution. The zero value is usable: 60s per
// attempt and 3 attempts.
type ToolConfig struct {
	TimeoutSecs uint64
	MaxRetries  uint32
}

// Timeout is the per-attempt deadline in seconds.
func (c *ToolConfig) Timeout() uint64 {
	if c == nil || c.TimeoutSecs == 0 {
		return 60
	}
	return c.TimeoutSecs
}

// Retries is the total number of attempts, counting the first.
func (c *ToolConfig) Retries() uint32 {
	if c == nil || c.MaxRetries == 0 {
		return 3
	}
	return c.MaxRetries
}

func DefaultToolConfig() ToolConfig {
	return ToolConfig{TimeoutSecs: 60, MaxRetries: 3}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
