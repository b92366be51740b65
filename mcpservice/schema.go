package mcpservice

import (
	"encoding/json"

	"github.com/fastmcp-me/slack-mcp-server-zencoderai/mcp"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// reflectToMCPInputSchema reflects A into a jsonschema.Schema and converts it
// to the simplified mcp.ToolInputSchema, keeping struct field order. Unknown
// properties are rejected. Non-object types become an empty object schema.
func reflectToMCPInputSchema[A any]() mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))

	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{Type: "object"}
	}

	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: toMCPProperties(s.Properties),
		Required:   required,
	}
}

// toMCPProperties converts reflected properties in order. It returns nil
// when there are none so the field is omitted.
func toMCPProperties(in *orderedmap.OrderedMap[string, *jsonschema.Schema]) *mcp.SchemaProperties {
	if in.Len() == 0 {
		return nil
	}
	out := mcp.NewSchemaProperties()
	for el := in.Oldest(); el != nil; el = el.Next() {
		out.Set(el.Key, toMCPProperty(el.Value))
	}
	return out
}

// toMCPProperty recursively maps a jsonschema.Schema to the simplified MCP SchemaProperty.
func toMCPProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
		Default:     s.Default,
		Minimum:     numberPtr(s.Minimum),
		Maximum:     numberPtr(s.Maximum),
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toMCPProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" {
		p.Properties = toMCPProperties(s.Properties)
	}
	return p
}

func numberPtr(n json.Number) *float64 {
	if n == "" {
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	return &f
}
