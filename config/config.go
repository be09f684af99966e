package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type ModelConfig struct {
	Provider  string `toml:"provider"`
	Host      string `toml:"host"`
	Name      string `toml:"name"`
	APIKeyEnv string `toml:"api_key_env"`
}

type ContextConfig struct {
	Length          int      `toml:"length"`
	Heating         bool     `toml:"heating"`
	SpecialTriggers []string `toml:"special_triggers"`
}

type ToolsConfig struct {
	Directory         string  `toml:"directory"`
	Workers           int     `toml:"workers"`
	QueueSize         int     `toml:"queue_size"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

type PromptingConfig struct {
	SystemPromptFile       string `toml:"system_prompt_file"`
	AdditionalContextsFile string `toml:"additional_contexts_file"`
	FirstMessageFile       string `toml:"first_message_file"`
}

type MetricsConfig struct {
	Listen string `toml:"listen"`
}

type UserConfig struct {
	Model     ModelConfig     `toml:"model"`
	Context   ContextConfig   `toml:"context"`
	Tools     ToolsConfig     `toml:"tools"`
	Prompting PromptingConfig `toml:"prompting"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

type Config struct {
	DataDirectory string
	Model         ModelConfig
	Context       ContextConfig
	Tools         ToolsConfig
	Prompting     PromptingConfig
	Metrics       MetricsConfig
	Plugins       map[string]PluginConfigEntry

	// APIKey is read from the environment variable named by Model.APIKeyEnv.
	APIKey string
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// Resolve turns a configured path into an absolute one; relative paths
// are taken from the data directory.
func (c *Config) Resolve(path string) string {
	if path == "" {
		return ""
	}
	path = ExpandPath(path)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir(), path)
}

func (c *Config) applyEnvOverrides() error {
	if provider := os.Getenv("ABBAS_PROVIDER"); provider != "" {
		c.Model.Provider = provider
	}
	if host := os.Getenv("ABBAS_HOST"); host != "" {
		c.Model.Host = host
	}
	if model := os.Getenv("ABBAS_MODEL"); model != "" {
		c.Model.Name = model
	}
	if dataDir := os.Getenv("ABBAS_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if length := os.Getenv("ABBAS_CONTEXT_LENGTH"); length != "" {
		n, err := strconv.Atoi(length)
		if err != nil {
			return fmt.Errorf("invalid ABBAS_CONTEXT_LENGTH %q: %w", length, err)
		}
		c.Context.Length = n
	}
	return nil
}

// Validate reports settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Context.Length <= 0 {
		return fmt.Errorf("context length must be positive, got %d", c.Context.Length)
	}
	if c.Tools.Workers <= 0 {
		return fmt.Errorf("tools workers must be positive, got %d", c.Tools.Workers)
	}
	if c.Tools.QueueSize < 0 {
		return fmt.Errorf("tools queue_size must not be negative, got %d", c.Tools.QueueSize)
	}
	if c.Tools.RequestsPerSecond < 0 {
		return fmt.Errorf("tools requests_per_second must not be negative")
	}
	return nil
}

// String prints the effective configuration with secrets redacted.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "data_directory = %q\n", c.DataDirectory)
	fmt.Fprintf(&b, "[model] provider=%q host=%q name=%q api_key_env=%q api_key=%q\n",
		c.Model.Provider, c.Model.Host, c.Model.Name, c.Model.APIKeyEnv, redact(c.APIKey))
	fmt.Fprintf(&b, "[context] length=%d heating=%t special_triggers=%q\n",
		c.Context.Length, c.Context.Heating, c.Context.SpecialTriggers)
	fmt.Fprintf(&b, "[tools] directory=%q workers=%d queue_size=%d requests_per_second=%g burst=%d\n",
		c.Tools.Directory, c.Tools.Workers, c.Tools.QueueSize, c.Tools.RequestsPerSecond, c.Tools.Burst)
	fmt.Fprintf(&b, "[prompting] system_prompt_file=%q additional_contexts_file=%q first_message_file=%q\n",
		c.Prompting.SystemPromptFile, c.Prompting.AdditionalContextsFile, c.Prompting.FirstMessageFile)
	fmt.Fprintf(&b, "[metrics] listen=%q\n", c.Metrics.Listen)

	ids := make([]string, 0, len(c.Plugins))
	for id := range c.Plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := c.Plugins[id]
		fmt.Fprintf(&b, "[plugins.%s] enabled=%t command=%q args=%q env=%v\n",
			id, p.Enabled, p.Command, p.Args, redactEnv(p.Env))
	}
	return b.String()
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func redactEnv(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		v := env[k]
		if isSensitiveKey(k) {
			v = redact(v)
		}
		parts[i] = k + "=" + v
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func CheckDebug() bool {
	debug := os.Getenv("ABBAS_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog opens <dataDir>/debug.log when force is set or ABBAS_DEBUG
// asks for it.
func InitDebugLog(dataDir string, force bool) {
	if !force && !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600: prompts and tool output may be sensitive
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (ABBAS_DEBUG=%s) ===", os.Getenv("ABBAS_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// LoadDotEnv loads .env from the working directory. Variables already set
// in the environment win.
func LoadDotEnv() error {
	if !FileExists(".env") {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func Load() (*Config, error) {
	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}

	cfg := &Config{DataDirectory: systemCfg.DataDirectory}
	if dataDir := os.Getenv("ABBAS_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.Model = userCfg.Model
	cfg.Context = userCfg.Context
	cfg.Tools = userCfg.Tools
	cfg.Prompting = userCfg.Prompting
	cfg.Metrics = userCfg.Metrics

	plugins, err := LoadPluginsConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load plugins config: %w", err)
	}
	cfg.Plugins = plugins.Plugins

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if cfg.Model.APIKeyEnv == "" {
		cfg.Model.APIKeyEnv = defaultAPIKeyEnv(cfg.Model.Provider)
	}
	if cfg.Model.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(cfg.Model.APIKeyEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaultAPIKeyEnv(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "openrouter":
		return "OPENROUTER_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	}
	return ""
}
