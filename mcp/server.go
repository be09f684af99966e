package mcp

import (
	"context"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"abbas/config"
	"abbas/tools"
)

const serverName = "abbas"

// NewServer exposes every tool of the executor's registry over MCP. Async
// tools run on sched when it is running.
func NewServer(executor *tools.Executor, version string, sched tools.Scheduler) *server.MCPServer {
	s := server.NewMCPServer(serverName, version, server.WithToolCapabilities(false))

	for _, tool := range ConvertDefinitions(executor.Registry().List()) {
		s.AddTool(tool, toolHandler(executor, tool.Name, sched))
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Serving %d tools", executor.Registry().Len())
	}
	return s
}

func toolHandler(executor *tools.Executor, name string, sched tools.Scheduler) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
		tc := executor.Run(ctx, name, request.GetArguments(), sched)
		if msg, failed := strings.CutPrefix(tc.Result, "Error: "); failed {
			return mcptypes.NewToolResultError(msg), nil
		}
		return mcptypes.NewToolResultText(tc.Result), nil
	}
}

// ServeStdio serves s on stdin/stdout until the input is closed.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
