package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolate points HOME at a temp dir and clears every override.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"ABBAS_PROVIDER", "ABBAS_HOST", "ABBAS_MODEL", "ABBAS_DATA_DIR", "ABBAS_CONTEXT_LENGTH", "ABBAS_DEBUG", "OPENAI_API_KEY"} {
		t.Setenv(key, "")
	}
	configDirOverride = ""
	t.Cleanup(func() { configDirOverride = "" })
	return home
}

func TestLoadCreatesDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	wantData := filepath.Join(home, ".local", "share", "abbas")
	if cfg.DataDir() != wantData {
		t.Errorf("DataDir() = %q, want %q", cfg.DataDir(), wantData)
	}
	if cfg.Model.Provider != "ollama" || cfg.Model.Name != "llama3:latest" {
		t.Errorf("Model = %+v, want ollama llama3:latest", cfg.Model)
	}
	if cfg.Context.Length != 2000 || !cfg.Context.Heating {
		t.Errorf("Context = %+v, want length 2000 with heating", cfg.Context)
	}

	for _, path := range []string{
		filepath.Join(home, ".config", "abbas", "settings.toml"),
		filepath.Join(wantData, "config.toml"),
	} {
		if !FileExists(path) {
			t.Errorf("expected %s to be created", path)
		}
	}

	info, err := os.Stat(wantData)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("data dir perms = %v, want 0700", info.Mode().Perm())
	}

	// the generated template must load back to the same values
	again, err := Load()
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if again.String() != cfg.String() {
		t.Errorf("reloaded config differs:\n%s\nvs\n%s", again, cfg)
	}
}

func TestLoadUserConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, cfg *Config)
		wantErr string
	}{
		{
			name: "overrides",
			content: `
[model]
provider = "openai"
name = "gpt-4o-mini"

[context]
length = 512
heating = false
special_triggers = ["poem"]

[tools]
workers = 2
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Model.Provider != "openai" || cfg.Model.Name != "gpt-4o-mini" {
					t.Errorf("Model = %+v", cfg.Model)
				}
				if cfg.Model.APIKeyEnv != "OPENAI_API_KEY" {
					t.Errorf("APIKeyEnv = %q, want OPENAI_API_KEY", cfg.Model.APIKeyEnv)
				}
				if cfg.Context.Length != 512 || cfg.Context.Heating {
					t.Errorf("Context = %+v", cfg.Context)
				}
				if len(cfg.Context.SpecialTriggers) != 1 || cfg.Context.SpecialTriggers[0] != "poem" {
					t.Errorf("SpecialTriggers = %v", cfg.Context.SpecialTriggers)
				}
				// untouched keys keep their defaults
				if cfg.Tools.Workers != 2 || cfg.Tools.QueueSize != 16 {
					t.Errorf("Tools = %+v", cfg.Tools)
				}
			},
		},
		{
			name:    "unknown key",
			content: "[model]\nprovdier = \"ollama\"\n",
			wantErr: "unknown key",
		},
		{
			name:    "invalid length",
			content: "[context]\nlength = 0\n",
			wantErr: "context length must be positive",
		},
		{
			name:    "malformed",
			content: "[model\n",
			wantErr: "failed to parse user config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			dataDir := t.TempDir()
			t.Setenv("ABBAS_DATA_DIR", dataDir)
			if err := os.WriteFile(filepath.Join(dataDir, "config.toml"), []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	dataDir := t.TempDir()
	t.Setenv("ABBAS_DATA_DIR", dataDir)
	t.Setenv("ABBAS_PROVIDER", "openrouter")
	t.Setenv("ABBAS_HOST", "http://example.test")
	t.Setenv("ABBAS_MODEL", "meta-llama/llama-3-8b-instruct")
	t.Setenv("ABBAS_CONTEXT_LENGTH", "1024")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir() != dataDir {
		t.Errorf("DataDir() = %q, want %q", cfg.DataDir(), dataDir)
	}
	if cfg.Model.Provider != "openrouter" || cfg.Model.Host != "http://example.test" || cfg.Model.Name != "meta-llama/llama-3-8b-instruct" {
		t.Errorf("Model = %+v", cfg.Model)
	}
	if cfg.Context.Length != 1024 {
		t.Errorf("Context.Length = %d, want 1024", cfg.Context.Length)
	}
	if cfg.APIKey != "sk-or-secret" {
		t.Errorf("APIKey = %q, want sk-or-secret", cfg.APIKey)
	}
	if strings.Contains(cfg.String(), "sk-or-secret") {
		t.Error("String() leaks the API key")
	}

	t.Setenv("ABBAS_CONTEXT_LENGTH", "lots")
	if _, err := Load(); err == nil {
		t.Error("expected an error for a non-numeric context length")
	}
}

func TestSetConfigDir(t *testing.T) {
	isolate(t)
	dir := filepath.Join(t.TempDir(), "custom")
	SetConfigDir(dir)

	if GetSettingsFilePath() != filepath.Join(dir, "settings.toml") {
		t.Errorf("GetSettingsFilePath() = %q", GetSettingsFilePath())
	}
	if _, err := LoadSystemConfig(); err != nil {
		t.Fatalf("LoadSystemConfig() error = %v", err)
	}
	if !FileExists(filepath.Join(dir, "settings.toml")) {
		t.Error("settings.toml not created in the override directory")
	}
}

func TestLoadSystemConfig(t *testing.T) {
	home := isolate(t)

	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"explicit directory", "data_directory = '/srv/abbas'\n", "/srv/abbas", false},
		{"empty directory", "data_directory = ''\n", filepath.Join(home, ".local", "share", "abbas"), false},
		{"malformed", "data_directory = \n", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			SetConfigDir(dir)
			path := filepath.Join(dir, "settings.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			got, err := LoadSystemConfig()
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadSystemConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.DataDirectory != tt.want {
				t.Errorf("DataDirectory = %q, want %q", got.DataDirectory, tt.want)
			}

			// an existing file is never overwritten by the template
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.content {
				t.Errorf("settings.toml rewritten to %q", data)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	home := isolate(t)
	cfg := &Config{DataDirectory: "/data"}

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"tools", "/data/tools"},
		{"/etc/abbas/tools", "/etc/abbas/tools"},
		{"~/prompts/system.txt", filepath.Join(home, "prompts", "system.txt")},
	}
	for _, tt := range tests {
		if got := cfg.Resolve(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		user := DefaultUserConfig()
		return &Config{Context: user.Context, Tools: user.Tools}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero workers", func(c *Config) { c.Tools.Workers = 0 }, false},
		{"negative queue", func(c *Config) { c.Tools.QueueSize = -1 }, false},
		{"negative rate", func(c *Config) { c.Tools.RequestsPerSecond = -2 }, false},
		{"negative length", func(c *Config) { c.Context.Length = -5 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestPluginsConfig(t *testing.T) {
	dataDir := t.TempDir()

	empty, err := LoadPluginsConfig(dataDir)
	if err != nil {
		t.Fatalf("LoadPluginsConfig() on missing file error = %v", err)
	}
	if len(empty.Plugins) != 0 {
		t.Errorf("Plugins = %v, want none", empty.Plugins)
	}

	saved := &PluginsConfig{Plugins: map[string]PluginConfigEntry{
		"weather": {Enabled: true, Command: "weather-mcp", Args: []string{"--stdio"}, Env: map[string]string{"WEATHER_API_KEY": "abc123", "UNITS": "metric"}},
		"notes":   {Enabled: false, Command: "notes-mcp"},
		"files":   {Enabled: true, Command: "files-mcp"},
	}}
	if err := SavePluginsConfig(dataDir, saved); err != nil {
		t.Fatalf("SavePluginsConfig() error = %v", err)
	}

	loaded, err := LoadPluginsConfig(dataDir)
	if err != nil {
		t.Fatalf("LoadPluginsConfig() error = %v", err)
	}
	cfg := &Config{Plugins: loaded.Plugins}

	ids := cfg.EnabledPluginIDs()
	if strings.Join(ids, ",") != "files,weather" {
		t.Errorf("EnabledPluginIDs() = %v, want [files weather]", ids)
	}
	if got := cfg.Plugins["weather"].Args; len(got) != 1 || got[0] != "--stdio" {
		t.Errorf("weather args = %v", got)
	}

	out := cfg.String()
	if strings.Contains(out, "abc123") {
		t.Error("String() leaks a sensitive plugin env value")
	}
	if !strings.Contains(out, "UNITS=metric") {
		t.Errorf("String() hides a plain env value:\n%s", out)
	}
}

func TestPluginWithoutCommand(t *testing.T) {
	dataDir := t.TempDir()
	content := "[plugins.broken]\nenabled = true\n"
	if err := os.WriteFile(filepath.Join(dataDir, "plugins.toml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPluginsConfig(dataDir); err == nil {
		t.Error("expected an error for an enabled plugin without a command")
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := map[string]bool{
		"OPENAI_API_KEY": true,
		"github_token":   true,
		"DB_PASSWORD":    true,
		"UNITS":          false,
		"LANG":           false,
	}
	for key, want := range tests {
		if got := isSensitiveKey(key); got != want {
			t.Errorf("isSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestInitDebugLog(t *testing.T) {
	t.Cleanup(func() {
		Debug = false
		DebugLog = nil
	})
	dir := t.TempDir()

	t.Setenv("ABBAS_DEBUG", "")
	InitDebugLog(dir, false)
	if DebugLog != nil {
		t.Fatal("debug log opened without being asked for")
	}

	InitDebugLog(dir, true)
	if DebugLog == nil || !Debug {
		t.Fatal("debug log not opened with force")
	}
	DebugLog.Printf("[Test] hello")

	data, err := os.ReadFile(filepath.Join(dir, "debug.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[Test] hello") {
		t.Errorf("debug.log = %q", data)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	if err := LoadDotEnv(); err != nil {
		t.Fatalf("LoadDotEnv() without .env error = %v", err)
	}

	t.Setenv("ABBAS_DOTENV_SET", "")
	os.Unsetenv("ABBAS_DOTENV_SET")
	t.Setenv("ABBAS_DOTENV_KEEP", "shell")
	if err := os.WriteFile(".env", []byte("ABBAS_DOTENV_SET=file\nABBAS_DOTENV_KEEP=file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := LoadDotEnv(); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("ABBAS_DOTENV_SET"); got != "file" {
		t.Errorf("ABBAS_DOTENV_SET = %q, want file", got)
	}
	if got := os.Getenv("ABBAS_DOTENV_KEEP"); got != "shell" {
		t.Errorf("ABBAS_DOTENV_KEEP = %q, want shell", got)
	}
}
