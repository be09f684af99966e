package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"abbas/config"
	"abbas/conversation"
	"abbas/mcp"
	"abbas/metrics"
	"abbas/model"
	"abbas/prompt"
	"abbas/provider"
	"abbas/responder"
	"abbas/storage"
	"abbas/tokenizer"
	"abbas/tools"
	"abbas/ui"
)

const toolHTTPTimeout = 30 * time.Second

// toolkit is the tool side of the engine, shared by the console and the
// MCP server mode.
type toolkit struct {
	registry *tools.Registry
	executor *tools.Executor
	pool     *tools.WorkerPool
	loop     *tools.Loop
	plugins  []*mcp.Plugin

	stopLoop context.CancelFunc
	loopDone chan struct{}
}

func newToolkit(ctx context.Context, cfg *config.Config, summarizer model.InferenceClient, observer tools.Observer) (*toolkit, error) {
	deps := tools.Deps{
		HTTPClient: &http.Client{Timeout: toolHTTPTimeout},
		Summarizer: summarizer,
	}
	if cfg.Tools.RequestsPerSecond > 0 {
		deps.Limiter = rate.NewLimiter(rate.Limit(cfg.Tools.RequestsPerSecond), max(cfg.Tools.Burst, 1))
	}

	registry, err := tools.LoadDir(cfg.Resolve(cfg.Tools.Directory), tools.Builtins(), deps)
	if err != nil {
		return nil, fmt.Errorf("failed to load tools: %w", err)
	}

	var pluginConfigs []mcp.PluginConfig
	for _, id := range cfg.EnabledPluginIDs() {
		p := cfg.Plugins[id]
		pluginConfigs = append(pluginConfigs, mcp.PluginConfig{ID: id, Command: p.Command, Args: p.Args, Env: p.Env})
	}
	plugins := mcp.RegisterPlugins(ctx, registry, pluginConfigs)

	var opts []tools.Option
	if observer != nil {
		opts = append(opts, tools.WithObserver(observer))
	}
	pool := tools.NewWorkerPool(cfg.Tools.Workers, cfg.Tools.QueueSize)

	loopCtx, stopLoop := context.WithCancel(ctx)
	loop := tools.NewLoop(cfg.Tools.Workers)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) && config.DebugLog != nil {
			config.DebugLog.Printf("[Tools] Loop stopped: %v", err)
		}
	}()

	return &toolkit{
		registry: registry,
		executor: tools.NewExecutor(registry, pool, opts...),
		pool:     pool,
		loop:     loop,
		plugins:  plugins,
		stopLoop: stopLoop,
		loopDone: loopDone,
	}, nil
}

func (t *toolkit) Close() {
	t.stopLoop()
	<-t.loopDone
	t.pool.Close()
	for _, p := range t.plugins {
		if err := p.Close(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[MCP] Warning: %v", err)
		}
	}
}

// engine is everything the console needs.
type engine struct {
	store   *storage.MessageStorage
	tools   *toolkit
	metrics *metrics.Metrics
	source  prompt.FileSource
	session *ui.Session
}

func newEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	client, err := provider.NewProvider(provider.Config{
		Type:    provider.MapProviderIDToType(cfg.Model.Provider),
		BaseURL: cfg.Model.Host,
		Model:   cfg.Model.Name,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		// the console still starts; replies will report the failure
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Main] Provider %s unreachable: %v", cfg.Model.Provider, err)
		}
	}

	store, err := storage.NewMessageStorage(cfg.DataDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open message storage: %w", err)
	}
	maxID, err := store.MaxID(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	ids := model.NewIDGenerator()
	ids.Observe(maxID)

	m := metrics.New()
	kit, err := newToolkit(ctx, cfg, client, m)
	if err != nil {
		store.Close()
		return nil, err
	}

	triggers := cfg.Context.SpecialTriggers
	if len(triggers) == 0 {
		triggers = nil
	}
	tok := tokenizer.NewWithFallback(tokenizer.DefaultEncoding)
	builder := prompt.NewBuilder(tok, kit.registry, prompt.Options{
		ContextLength:   cfg.Context.Length,
		Heating:         cfg.Context.Heating,
		SpecialTriggers: triggers,
	})
	source := prompt.FileSource{
		SystemPromptFile: cfg.Resolve(cfg.Prompting.SystemPromptFile),
		ContextsFile:     cfg.Resolve(cfg.Prompting.AdditionalContextsFile),
		FirstMessageFile: cfg.Resolve(cfg.Prompting.FirstMessageFile),
	}

	r := responder.New(responder.Config{
		Client:    client,
		Builder:   builder,
		Source:    source,
		Executor:  kit.executor,
		Tokenizer: tok,
		Scheduler: kit.loop,
		IDs:       ids,
		Metrics:   m,
	})

	session := ui.NewSession(ui.Deps{
		Conversation:  conversation.New(store, r, ids),
		Registry:      kit.registry,
		Search:        store,
		Tokenizer:     tok,
		ContextLength: cfg.Context.Length,
	})

	return &engine{store: store, tools: kit, metrics: m, source: source, session: session}, nil
}

func (e *engine) Close() {
	e.tools.Close()
	if err := e.store.Close(); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Main] Warning: failed to close storage: %v", err)
	}
}
