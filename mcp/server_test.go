package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"abbas/tools"
)

func newCalculatorExecutor(t *testing.T) *tools.Executor {
	t.Helper()
	registry := tools.NewRegistry()
	calculator, err := tools.Builtins()["calculator"](tools.Deps{}, nil)
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	if err := registry.Register(calculator); err != nil {
		t.Fatalf("Register: %v", err)
	}
	pool := tools.NewWorkerPool(1, 1)
	t.Cleanup(pool.Close)
	return tools.NewExecutor(registry, pool)
}

func TestToolHandler(t *testing.T) {
	handler := toolHandler(newCalculatorExecutor(t), "calculator", nil)

	tests := []struct {
		name    string
		args    map[string]any
		want    string
		isError bool
	}{
		{"result", map[string]any{"query": "6*7"}, "42", false},
		{"tool error", map[string]any{"query": "1/"}, "invalid syntax", true},
		{"bad argument", map[string]any{"expr": "1"}, "calculator() got an unexpected keyword argument 'expr'", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req mcptypes.CallToolRequest
			req.Params.Name = "calculator"
			req.Params.Arguments = tt.args

			res, err := handler(context.Background(), req)
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if res.IsError != tt.isError {
				t.Errorf("IsError = %v, want %v", res.IsError, tt.isError)
			}
			if got := resultText(res); !strings.HasPrefix(got, tt.want) {
				t.Errorf("text = %q, want prefix %q", got, tt.want)
			}
		})
	}
}

// TestPluginRoundTrip serves the calculator over MCP in-process and calls
// it back through a plugin-backed registry.
func TestPluginRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := NewServer(newCalculatorExecutor(t), "test", nil)

	c, err := client.NewInProcessClient(srv)
	if err != nil {
		t.Fatalf("NewInProcessClient: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	plugin, err := Connect(ctx, "remote", c)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer plugin.Close()

	defs := plugin.Definitions()
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	def := defs[0]
	if def.Name != "remote_calculator" {
		t.Errorf("Name = %q, want remote_calculator", def.Name)
	}
	if def.Mode != tools.Async {
		t.Errorf("Mode = %v, want Async", def.Mode)
	}
	if len(def.Params) != 1 || def.Params[0].Name != "query" || def.Params[0].Optional {
		t.Errorf("Params = %+v", def.Params)
	}

	registry := tools.NewRegistry()
	if err := registry.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}
	executor := tools.NewExecutor(registry, nil)

	tc := executor.ParseAndRun(ctx, `<|start_tool|>remote_calculator("2+3")<|end_tool|>`, nil)
	if tc == nil || tc.Result != "5" {
		t.Fatalf("ParseAndRun() = %+v, want result 5", tc)
	}

	tc = executor.ParseAndRun(ctx, `<|start_tool|>remote_calculator("1/")<|end_tool|>`, nil)
	if tc == nil || !strings.HasPrefix(tc.Result, "Error: ") {
		t.Fatalf("ParseAndRun() = %+v, want an error result", tc)
	}
}

func TestStartPluginRequiresCommand(t *testing.T) {
	if _, err := StartPlugin(context.Background(), PluginConfig{ID: "empty"}); err == nil {
		t.Error("expected error for plugin without command")
	}
}
