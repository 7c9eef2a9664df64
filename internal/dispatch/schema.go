package dispatch

import (
	"fmt"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
)

// validate checks args against a tool input schema: required arguments
// must be present and non-null, and every declared argument must have the
// declared JSON kind (and, for enums, one of the allowed values).
// Undeclared arguments are ignored.
func validate(schema mcp.ToolInputSchema, args map[string]any) error {
	for _, name := range schema.Required {
		if v, ok := args[name]; !ok || v == nil {
			return fmt.Errorf("%w: missing required argument %q", ErrInvalidArgument, name)
		}
	}
	for name, v := range args {
		prop, ok := schema.Properties[name].(map[string]any)
		if !ok || v == nil {
			continue
		}
		typ, _ := prop["type"].(string)
		if !kindMatches(typ, v) {
			return fmt.Errorf("%w: argument %q must be a %s, got %T", ErrInvalidArgument, name, typ, v)
		}
		if enum := enumValues(prop["enum"]); len(enum) > 0 {
			s, _ := v.(string)
			if s != "" && !slices.Contains(enum, s) {
				return fmt.Errorf("%w: argument %q must be one of %v, got %q", ErrInvalidArgument, name, enum, s)
			}
		}
	}
	return nil
}

func kindMatches(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number", "integer":
		switch v.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

func enumValues(v any) []string {
	switch e := v.(type) {
	case []string:
		return e
	case []any:
		out := make([]string, 0, len(e))
		for _, x := range e {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
