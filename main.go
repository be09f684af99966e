package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"abbas/config"
	"abbas/mcp"
	"abbas/storage"
	"abbas/ui"
)

const Version = "v0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configDir  = pflag.String("config-dir", "", "directory holding settings.toml (default ~/.config/abbas)")
		debug      = pflag.Bool("debug", false, "write a debug log to <data_dir>/debug.log")
		once       = pflag.String("once", "", "answer a single message and exit")
		serveTools = pflag.Bool("serve-tools", false, "serve the loaded tools over MCP on stdio")
		version    = pflag.Bool("version", false, "print the version and exit")
	)
	pflag.Parse()

	if *version {
		fmt.Println("abbas " + Version)
		return 0
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if *configDir != "" {
		config.SetConfigDir(*configDir)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return 1
	}

	config.InitDebugLog(cfg.DataDir(), *debug)
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Main] Effective configuration:\n%s", cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serveTools {
		if err := serveToolsStdio(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error serving tools: %v\n", err)
			return 1
		}
		return 0
	}

	lock, err := storage.AcquireInstanceLock(cfg.DataDir())
	if err != nil {
		fmt.Printf("Failed to lock data directory: %v\n", err)
		return 1
	}
	defer func() {
		if err := lock.Release(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("Warning: failed to release instance lock: %v", err)
		}
	}()

	e, err := newEngine(ctx, cfg)
	if err != nil {
		fmt.Printf("Failed to start: %v\n", err)
		return 1
	}
	defer e.Close()

	names := e.tools.registry.Names()
	fmt.Printf("Loaded %d tools: %s\n", len(names), strings.Join(names, ", "))

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := e.metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: metrics server: %v\n", err)
			}
		}()
	}

	if *once != "" {
		if err := answerOnce(ctx, e, *once); err != nil {
			fmt.Printf("Error: %v\n", err)
			return 1
		}
		return 0
	}

	first, ok := e.source.FirstMessage()
	if err := ui.Run(ctx, e.session, first, ok); err != nil {
		fmt.Printf("Error running abbas: %v\n", err)
		return 1
	}
	return 0
}

func answerOnce(ctx context.Context, e *engine, text string) error {
	if first, ok := e.source.FirstMessage(); ok {
		if _, err := e.session.Seed(ctx, first); err != nil {
			return err
		}
		fmt.Println(ui.AssistantName + ": " + first)
	}
	reply, err := e.session.Send(ctx, text)
	if err != nil {
		return err
	}
	fmt.Println(ui.AssistantName + ": " + reply.Message.Text)
	return nil
}

// serveToolsStdio exposes the tool registry to MCP clients. Stdout carries
// the protocol, so nothing else may be printed there.
func serveToolsStdio(ctx context.Context, cfg *config.Config) error {
	kit, err := newToolkit(ctx, cfg, nil, nil)
	if err != nil {
		return err
	}
	defer kit.Close()

	fmt.Fprintf(os.Stderr, "Serving %d tools: %s\n", kit.registry.Len(), strings.Join(kit.registry.Names(), ", "))
	return mcp.ServeStdio(mcp.NewServer(kit.executor, Version, kit.loop))
}
