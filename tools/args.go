package tools

import (
	"encoding/json"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/richinex/musicbi/internal/apperror"
	jsonutil "github.com/richinex/musicbi/internal/json"
)

// decodeArgs decodes tool arguments into out (a pointer to a struct with
// json tags). Models are loose with types, so numbers sent as strings and
// similar are coerced. Empty args decode as {}. An object sent as a
// JSON-encoded string is unwrapped first.
func decodeArgs(raw json.RawMessage, out any) error {
	input := map[string]any{}
	if trimmed := strings.TrimSpace(string(raw)); trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal(raw, &input); err != nil {
			var s string
			if json.Unmarshal(raw, &s) != nil {
				return apperror.Validation("arguments must be a JSON object: %v", err)
			}
			obj, err := jsonutil.Object(s)
			if err != nil {
				return apperror.Validation("arguments must be a JSON object: %v", err)
			}
			if obj != nil {
				input = obj
			}
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return apperror.Internal("build argument decoder", err)
	}
	if err := decoder.Decode(input); err != nil {
		return apperror.Validation("invalid arguments: %v", err)
	}
	return nil
}

// objectArg accepts an object, a JSON-encoded object string, or nothing.
func objectArg(v any) (map[string]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return x, nil
	case string:
		obj, err := jsonutil.Object(x)
		if err != nil {
			return nil, apperror.Validation("params must be a JSON object: %v", err)
		}
		return obj, nil
	default:
		return nil, apperror.Validation("params must be a JSON object, got %T", v)
	}
}

func requireString(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperror.Validation("%s cannot be empty", field)
	}
	return nil
}
