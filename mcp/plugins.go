package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"

	"abbas/config"
	"abbas/model"
	"abbas/tools"
)

// PluginConfig describes an external MCP server started over stdio whose
// tools are offered to the model.
type PluginConfig struct {
	ID      string
	Command string
	Args    []string
	Env     map[string]string
}

// Plugin is a connected MCP server.
type Plugin struct {
	ID    string
	Tools []mcptypes.Tool

	client *client.Client
}

// StartPlugin launches the plugin process and connects to it.
func StartPlugin(ctx context.Context, cfg PluginConfig) (*Plugin, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("plugin %s has no command", cfg.ID)
	}

	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	c, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start plugin %s: %w", cfg.ID, err)
	}

	p, err := Connect(ctx, cfg.ID, c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return p, nil
}

// Connect initializes an already started client and lists its tools.
func Connect(ctx context.Context, id string, c *client.Client) (*Plugin, error) {
	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: mcptypes.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    serverName,
				Version: "1.0.0",
			},
		},
	}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("failed to initialize plugin %s: %w", id, err)
	}

	toolsResult, err := c.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools for %s: %w", id, err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Connected to plugin '%s' (%d tools)", id, len(toolsResult.Tools))
	}

	return &Plugin{
		ID:     id,
		Tools:  toolsResult.Tools,
		client: c,
	}, nil
}

// Definitions returns one registry definition per plugin tool, named
// <id>_<tool> so the name stays a valid identifier in tool calls.
func (p *Plugin) Definitions() []tools.Definition {
	defs := make([]tools.Definition, 0, len(p.Tools))
	for _, tool := range p.Tools {
		remote := tool.Name
		defs = append(defs, tools.Definition{
			Name:        p.toolName(remote),
			Params:      ConvertSchemaToParams(tool.InputSchema),
			Description: tool.Description,
			Mode:        tools.Async,
			Invoke: func(ctx context.Context, args model.Arguments) (any, error) {
				return p.call(ctx, remote, args)
			},
		})
	}
	return defs
}

func (p *Plugin) toolName(remote string) string {
	name := remote
	if p.ID != "" {
		name = p.ID + "_" + remote
	}
	return identifier(name)
}

func (p *Plugin) call(ctx context.Context, name string, args model.Arguments) (any, error) {
	res, err := p.client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      name,
			Arguments: args.Map(),
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "plugin %s", p.ID)
	}

	text := resultText(res)
	if res.IsError {
		return nil, errors.New(text)
	}
	return text, nil
}

// Close stops the plugin, giving it a second to exit.
func (p *Plugin) Close() error {
	done := make(chan error, 1)
	go func() {
		done <- p.client.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		return fmt.Errorf("plugin %s did not stop in time", p.ID)
	}
}

// RegisterPlugins starts every configured plugin and registers its tools.
// Plugins that fail to start or register are logged and skipped.
func RegisterPlugins(ctx context.Context, registry *tools.Registry, configs []PluginConfig) []*Plugin {
	var started []*Plugin
	for _, cfg := range configs {
		p, err := StartPlugin(ctx, cfg)
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Warning: %v", err)
			}
			continue
		}
		for _, def := range p.Definitions() {
			if err := registry.Register(def); err != nil && config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Warning: plugin %s: %v", p.ID, err)
			}
		}
		started = append(started, p)
	}
	return started
}

func resultText(res *mcptypes.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		switch c := content.(type) {
		case mcptypes.TextContent:
			parts = append(parts, c.Text)
		case *mcptypes.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func identifier(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
