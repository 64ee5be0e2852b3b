// Package json recovers JSON objects from model-produced text.
//
// Models sometimes send a nested tool argument as a string instead of an
// object, occasionally fenced in markdown or surrounded by commentary.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON returns the JSON object contained in text.
// It accepts bare JSON, fenced ```json blocks, and an object embedded in
// prose (first '{' to last '}').
func ExtractJSON(text string) (string, error) {
	text = stripFence(text)
	if json.Valid([]byte(text)) {
		return text, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	preview := text
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no JSON object in %q", preview)
}

// Object decodes the JSON object in text into a map.
// Empty or whitespace-only text yields a nil map and no error.
func Object(text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("expected a JSON object: %w", err)
	}
	return out, nil
}

func stripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(trimmed, "```json"):
		trimmed = strings.TrimPrefix(trimmed, "```json")
	case strings.HasPrefix(trimmed, "```"):
		trimmed = strings.TrimPrefix(trimmed, "```")
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
