// Package tools provides tool management and registration.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Registration and discovery mechanisms abstracted

package tools

import (
	"fmt"
	"strings"
	"sync"

	"github.com/richinex/musicbi/internal/apperror"
	"github.com/richinex/musicbi/llm"
)

// Registry holds tools by name and remembers registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// NewRegistryWith registers tools in order, failing on the first bad one.
func NewRegistryWith(tools ...Tool) (*Registry, error) {
	r := NewRegistry()
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a new tool to the registry.
// A duplicate name or a missing description is a CONFIG error.
func (r *Registry) Register(tool Tool) error {
	meta := tool.Metadata()
	if strings.TrimSpace(meta.Name) == "" {
		return apperror.Config("tool has no name")
	}
	if strings.TrimSpace(meta.Description) == "" {
		return apperror.Config("tool '%s' has no description", meta.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[meta.Name]; exists {
		return apperror.Config("tool '%s' already registered", meta.Name)
	}
	r.tools[meta.Name] = tool
	r.order = append(r.order, meta.Name)
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// Has checks if a tool exists in the registry.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, len(r.order))
	for i, name := range r.order {
		out[i] = r.tools[name]
	}
	return out
}

// List returns metadata for all registered tools in registration order.
func (r *Registry) List() []ToolMetadata {
	tools := r.Tools()
	metadata := make([]ToolMetadata, len(tools))
	for i, t := range tools {
		metadata[i] = t.Metadata()
	}
	return metadata
}

// Definitions returns provider tool definitions in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	return Definitions(r.Tools())
}

// Description returns a formatted description of all tools.
func (r *Registry) Description() string {
	var descriptions []string
	for _, meta := range r.List() {
		var params []string
		for _, p := range meta.Parameters {
			required := "optional"
			if p.Required {
				required = "required"
			}
			params = append(params, fmt.Sprintf("  - %s (%s): %s [%s]",
				p.Name, p.ParamType, p.Description, required))
		}

		paramStr := strings.Join(params, "\n")
		if paramStr == "" {
			paramStr = "  (none)"
		}
		descriptions = append(descriptions, fmt.Sprintf(
			"Tool: %s\nDescription: %s\nParameters:\n%s",
			meta.Name, meta.Description, paramStr))
	}

	return strings.Join(descriptions, "\n\n")
}
