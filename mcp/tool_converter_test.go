package mcp

import (
	"context"
	"reflect"
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"abbas/model"
	"abbas/tools"
)

func noop(context.Context, model.Arguments) (any, error) { return nil, nil }

func TestConvertDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		input    []tools.Definition
		validate func(t *testing.T, result []mcptypes.Tool)
	}{
		{
			name:  "empty registry",
			input: nil,
			validate: func(t *testing.T, result []mcptypes.Tool) {
				if len(result) != 0 {
					t.Errorf("expected empty slice, got %d tools", len(result))
				}
			},
		},
		{
			name: "tool without params",
			input: []tools.Definition{
				{Name: "ping", Invoke: noop},
			},
			validate: func(t *testing.T, result []mcptypes.Tool) {
				schema := result[0].InputSchema
				if schema.Type != "object" {
					t.Errorf("expected type 'object', got %q", schema.Type)
				}
				if len(schema.Properties) != 0 || len(schema.Required) != 0 {
					t.Errorf("expected no properties, got %v / %v", schema.Properties, schema.Required)
				}
			},
		},
		{
			name: "typed and optional params",
			input: []tools.Definition{
				{
					Name:        "load_url",
					Description: "Load a page",
					Params: []tools.Param{
						{Name: "url", Kind: "str"},
						{Name: "question", Kind: "Optional[str]", Optional: true},
						{Name: "depth", Kind: "int", Optional: true},
						{Name: "query"},
					},
					Invoke: noop,
				},
			},
			validate: func(t *testing.T, result []mcptypes.Tool) {
				tool := result[0]
				if tool.Name != "load_url" || tool.Description != "Load a page" {
					t.Errorf("unexpected tool header: %q %q", tool.Name, tool.Description)
				}
				schema := tool.InputSchema
				if want := []string{"url", "query"}; !reflect.DeepEqual(schema.Required, want) {
					t.Errorf("required = %v, want %v", schema.Required, want)
				}
				wantProps := map[string]any{
					"url":      map[string]any{"type": "string"},
					"question": map[string]any{"type": "string"},
					"depth":    map[string]any{"type": "integer"},
					"query":    map[string]any{},
				}
				if !reflect.DeepEqual(schema.Properties, wantProps) {
					t.Errorf("properties = %v, want %v", schema.Properties, wantProps)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, ConvertDefinitions(tt.input))
		})
	}
}

func TestConvertSchemaToParams(t *testing.T) {
	schema := mcptypes.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"path":    map[string]any{"type": "string"},
			"limit":   map[string]any{"type": "integer"},
			"verbose": map[string]any{"type": "boolean"},
			"extra":   map[string]any{"type": "object"},
		},
		Required: []string{"path", "missing", "path"},
	}

	got := ConvertSchemaToParams(schema)
	want := []tools.Param{
		{Name: "path", Kind: "str"},
		{Name: "extra", Optional: true},
		{Name: "limit", Kind: "Optional[int]", Optional: true},
		{Name: "verbose", Kind: "Optional[bool]", Optional: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ConvertSchemaToParams() = %+v, want %+v", got, want)
	}
}

func TestIdentifier(t *testing.T) {
	tests := map[string]string{
		"fs_read_file":      "fs_read_file",
		"server-fs_read":    "server_fs_read",
		"9lives":            "_9lives",
		"web.search v2":     "web_search_v2",
		"already_Valid_123": "already_Valid_123",
	}
	for in, want := range tests {
		if got := identifier(in); got != want {
			t.Errorf("identifier(%q) = %q, want %q", in, got, want)
		}
	}
}
