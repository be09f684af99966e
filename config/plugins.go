package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// PluginConfigEntry describes an MCP server launched over stdio whose tools
// are registered alongside the built-in ones.
type PluginConfigEntry struct {
	Enabled bool              `toml:"enabled"`
	Command string            `toml:"command"`
	Args    []string          `toml:"args,omitempty"`
	Env     map[string]string `toml:"env,omitempty"`
}

type PluginsConfig struct {
	Plugins map[string]PluginConfigEntry `toml:"plugins"`
}

func LoadPluginsConfig(dataDir string) (*PluginsConfig, error) {
	pluginsConfigPath := filepath.Join(dataDir, "plugins.toml")

	if _, err := os.Stat(pluginsConfigPath); os.IsNotExist(err) {
		return &PluginsConfig{
			Plugins: make(map[string]PluginConfigEntry),
		}, nil
	}

	var config PluginsConfig
	if _, err := toml.DecodeFile(pluginsConfigPath, &config); err != nil {
		return nil, fmt.Errorf("failed to decode plugins config: %w", err)
	}

	if config.Plugins == nil {
		config.Plugins = make(map[string]PluginConfigEntry)
	}
	for id, entry := range config.Plugins {
		if entry.Enabled && entry.Command == "" {
			return nil, fmt.Errorf("plugin %q is enabled but has no command", id)
		}
	}

	return &config, nil
}

func SavePluginsConfig(dataDir string, config *PluginsConfig) error {
	pluginsConfigPath := filepath.Join(dataDir, "plugins.toml")

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: plugin env may carry API keys
	f, err := os.OpenFile(pluginsConfigPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create plugins config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode plugins config: %w", err)
	}
	return nil
}

// EnabledPluginIDs returns the ids of enabled plugins in sorted order.
func (c *Config) EnabledPluginIDs() []string {
	var ids []string
	for id, entry := range c.Plugins {
		if entry.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// isSensitiveKey determines if a key contains sensitive data
func isSensitiveKey(key string) bool {
	upperKey := strings.ToUpper(key)
	sensitiveWords := []string{"KEY", "TOKEN", "SECRET", "PASSWORD", "AUTH", "CREDENTIAL", "BEARER"}
	for _, word := range sensitiveWords {
		if strings.Contains(upperKey, word) {
			return true
		}
	}
	return false
}
