// Package model provides domain types shared across packages.
package model

import (
	"encoding/json"
	"time"
)

// Invocation records one tool call made during an agent run.
// Used for assembling results and for audit; never persisted.
type Invocation struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Output    string          `json:"output"`
	Error     string          `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// Succeeded reports whether the tool returned without error.
func (i Invocation) Succeeded() bool {
	return i.Error == ""
}

// ToolCallStats contains metrics about a tool invocation.
type ToolCallStats struct {
	Name       string `json:"name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs uint64 `json:"duration_ms"`
	Success    bool   `json:"success"`
}

// Stats summarizes the invocation for logs and API responses.
func (i Invocation) Stats() ToolCallStats {
	return ToolCallStats{
		Name:       i.Tool,
		InputSize:  len(i.Arguments),
		OutputSize: len(i.Output),
		DurationMs: uint64(i.Duration.Milliseconds()),
		Success:    i.Succeeded(),
	}
}

// Names returns the tool names of invocations in call order.
func Names(invocations []Invocation) []string {
	names := make([]string, len(invocations))
	for i, inv := range invocations {
		names[i] = inv.Tool
	}
	return names
}
