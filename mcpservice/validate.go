package mcpservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
)

// ArgumentError reports tool arguments that do not satisfy the tool's input
// schema. The engine answers it with an Invalid params error.
type ArgumentError struct {
	// Field is the offending property, empty when the arguments as a whole
	// are malformed.
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Field == "" {
		return "invalid arguments: " + e.Reason
	}
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

// validateArguments checks raw against schema and returns the arguments with
// defaults filled in. Explicit nulls count as absent.
func validateArguments(schema mcp.ToolInputSchema, raw json.RawMessage) (json.RawMessage, error) {
	args := map[string]any{}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, &ArgumentError{Reason: err.Error()}
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, &ArgumentError{Reason: "arguments must be an object"}
		}
		args = obj
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		v := args[k]
		prop, known := schema.Property(k)
		if !known {
			if !schema.AdditionalProperties {
				return nil, &ArgumentError{Field: k, Reason: "unknown property"}
			}
			continue
		}
		if v == nil {
			delete(args, k)
			continue
		}
		if err := checkValue(prop, v); err != nil {
			return nil, &ArgumentError{Field: k, Reason: err.Error()}
		}
	}

	for _, k := range schema.Required {
		if _, ok := args[k]; !ok {
			return nil, &ArgumentError{Field: k, Reason: "required property missing"}
		}
	}

	for el := schema.Properties.Oldest(); el != nil; el = el.Next() {
		if _, ok := args[el.Key]; !ok && el.Value.Default != nil {
			args[el.Key] = el.Value.Default
		}
	}

	out, err := json.Marshal(args)
	if err != nil {
		return nil, &ArgumentError{Reason: err.Error()}
	}
	return out, nil
}

func checkValue(prop mcp.SchemaProperty, v any) error {
	switch prop.Type {
	case "string":
		if _, ok := v.(string); !ok {
			return typeErr("string", v)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return typeErr("boolean", v)
		}
	case "integer", "number":
		n, ok := v.(json.Number)
		if !ok {
			return typeErr(prop.Type, v)
		}
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return typeErr(prop.Type, v)
		}
		if prop.Type == "integer" && f != math.Trunc(f) {
			return fmt.Errorf("expected integer got %s", n)
		}
		if prop.Minimum != nil && f < *prop.Minimum {
			return fmt.Errorf("must be >= %g", *prop.Minimum)
		}
		if prop.Maximum != nil && f > *prop.Maximum {
			return fmt.Errorf("must be <= %g", *prop.Maximum)
		}
	case "array":
		items, ok := v.([]any)
		if !ok {
			return typeErr("array", v)
		}
		if prop.Items != nil {
			for i, it := range items {
				if err := checkValue(*prop.Items, it); err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
			}
		}
	case "object":
		if _, ok := v.(map[string]any); !ok {
			return typeErr("object", v)
		}
	}
	if len(prop.Enum) > 0 && !slices.ContainsFunc(prop.Enum, func(e any) bool { return fmt.Sprint(e) == fmt.Sprint(v) }) {
		return fmt.Errorf("value %v not in enum", v)
	}
	return nil
}

func typeErr(expected string, got any) error {
	return fmt.Errorf("expected %s got %s", expected, jsonKind(got))
}

func jsonKind(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "null"
	}
}
