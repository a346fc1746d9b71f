package tools

import (
	"fmt"
	"strings"
)

// validateInput checks input against a JSON-schema style descriptor
// schema: required properties must be present and declared top-level
// property types must match.
func validateInput(schema map[string]any, input map[string]any) error {
	if schema == nil {
		return nil
	}
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			name, ok := r.(string)
			if !ok {
				continue
			}
			if _, present := input[name]; !present {
				return fmt.Errorf("required property missing: %s", name)
			}
		}
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	for name, raw := range props {
		v, present := input[name]
		if !present {
			continue
		}
		decl, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		typ, ok := decl["type"].(string)
		if !ok {
			continue
		}
		if !typeMatches(v, typ) {
			return fmt.Errorf("type mismatch at %s: expected %s", name, typ)
		}
	}
	return nil
}

func typeMatches(v any, t string) bool {
	switch strings.ToLower(t) {
	case "string":
		_, ok := v.(string)
		return ok
	case "number", "integer":
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}
