package mcp

import (
	"sort"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"abbas/tools"
)

// ConvertDefinitions converts registered tools to MCP tool definitions.
// Every parameter becomes a property; a parameter's kind annotation sets
// the JSON type when it maps to one.
func ConvertDefinitions(defs []tools.Definition) []mcptypes.Tool {
	result := make([]mcptypes.Tool, 0, len(defs))

	for _, def := range defs {
		schema := mcptypes.ToolInputSchema{
			Type:       "object",
			Properties: make(map[string]any, len(def.Params)),
			Required:   []string{},
		}
		for _, p := range def.Params {
			prop := map[string]any{}
			if jsonType := jsonTypeOf(p.Kind); jsonType != "" {
				prop["type"] = jsonType
			}
			schema.Properties[p.Name] = prop
			if !p.Optional {
				schema.Required = append(schema.Required, p.Name)
			}
		}

		result = append(result, mcptypes.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		})
	}

	return result
}

// ConvertSchemaToParams is the inverse of ConvertDefinitions: required
// properties come first in their declared order, the rest sorted by name.
func ConvertSchemaToParams(schema mcptypes.ToolInputSchema) []tools.Param {
	required := make(map[string]bool, len(schema.Required))
	params := make([]tools.Param, 0, len(schema.Properties))

	for _, name := range schema.Required {
		if _, ok := schema.Properties[name]; !ok || required[name] {
			continue
		}
		required[name] = true
		params = append(params, tools.Param{Name: name, Kind: kindOf(schema.Properties[name])})
	}

	optional := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		if !required[name] {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)
	for _, name := range optional {
		kind := kindOf(schema.Properties[name])
		if kind != "" {
			kind = "Optional[" + kind + "]"
		}
		params = append(params, tools.Param{Name: name, Kind: kind, Optional: true})
	}

	return params
}

var kindToJSON = map[string]string{
	"str":   "string",
	"int":   "integer",
	"float": "number",
	"bool":  "boolean",
}

func jsonTypeOf(kind string) string {
	kind = strings.TrimSpace(kind)
	if inner, ok := strings.CutPrefix(kind, "Optional["); ok {
		kind = strings.TrimSuffix(inner, "]")
	}
	return kindToJSON[kind]
}

func kindOf(prop any) string {
	propMap, ok := prop.(map[string]any)
	if !ok {
		return ""
	}
	jsonType, _ := propMap["type"].(string)
	for kind, t := range kindToJSON {
		if t == jsonType {
			return kind
		}
	}
	return ""
}
