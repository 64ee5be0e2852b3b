package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/richinex/musicbi/internal/apperror"
)

type stubTool struct {
	BaseTool
	name, description string
}

func (s stubTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        s.name,
		Description: s.description,
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "q", Required: true},
			{Name: "limit", ParamType: "integer", Description: "l"},
		},
	}
}

func (s stubTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	return SuccessResult(s.name), nil
}

func TestRegistryRegister(t *testing.T) {
	tests := []struct {
		name    string
		tools   []Tool
		wantErr bool
	}{
		{"distinct names", []Tool{stubTool{name: "a", description: "A"}, stubTool{name: "b", description: "B"}}, false},
		{"duplicate name", []Tool{stubTool{name: "a", description: "A"}, stubTool{name: "a", description: "other"}}, true},
		{"empty description", []Tool{stubTool{name: "a", description: "  "}}, true},
		{"empty name", []Tool{stubTool{description: "A"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistryWith(tt.tools...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRegistryWith() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperror.HasCode(err, apperror.CodeConfig) {
				t.Errorf("error code = %q, want CONFIG", apperror.CodeOf(err))
			}
		})
	}
}

func TestRegistryKeepsOrder(t *testing.T) {
	r, err := NewRegistryWith(
		stubTool{name: "zeta", description: "Z"},
		stubTool{name: "alpha", description: "A"},
		stubTool{name: "mid", description: "M"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := r.Names(), []string{"zeta", "alpha", "mid"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	defs := r.Definitions()
	if len(defs) != 3 || defs[1].Name != "alpha" {
		t.Fatalf("Definitions() = %+v", defs)
	}
	if !r.Has("mid") || r.Has("missing") || r.Len() != 3 {
		t.Error("Has/Len mismatch")
	}
}

func TestDefinitionSchema(t *testing.T) {
	def := stubTool{name: "s", description: "S"}.Metadata().Definition()
	if def.Parameters["type"] != "object" {
		t.Errorf("type = %v", def.Parameters["type"])
	}
	props := def.Parameters["properties"].(map[string]any)
	if _, ok := props["limit"]; !ok {
		t.Errorf("properties = %v", props)
	}
	if got := def.Parameters["required"].([]string); !reflect.DeepEqual(got, []string{"query"}) {
		t.Errorf("required = %v", got)
	}
}

func TestToolResultText(t *testing.T) {
	tests := []struct {
		name     string
		result   ToolResult
		wantText string
		wantCode string
	}{
		{"output", SuccessResult("| a |"), "| a |", ""},
		{"blank output", SuccessResult("  "), "(empty result)", ""},
		{"validation", FailureResult(apperror.Validation("only SELECT statements are allowed")),
			"ERROR: [VALIDATION] only SELECT statements are allowed", apperror.CodeValidation},
		{"plain", FailureResultf("boom %d", 1), "ERROR: boom 1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Text(); got != tt.wantText {
				t.Errorf("Text() = %q, want %q", got, tt.wantText)
			}
			if got := tt.result.Code(); got != tt.wantCode {
				t.Errorf("Code() = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestObjectParameterSchema(t *testing.T) {
	meta := ToolMetadata{
		Name:        "execute_select_statement",
		Description: "Run one SELECT.\nMore detail.",
		Parameters:  []ToolParameter{{Name: "params", ParamType: "object", Description: "named values"}},
	}
	props := meta.Definition().Parameters["properties"].(map[string]any)
	params := props["params"].(map[string]any)
	if params["type"] != "object" || params["additionalProperties"] != true {
		t.Errorf("params schema = %v", params)
	}
	if meta.String() != "execute_select_statement: Run one SELECT." {
		t.Errorf("String() = %q", meta.String())
	}
}
