package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const userConfigFile = "config.toml"

// LoadSystemConfig reads settings.toml, writing the commented template on
// first run. An empty data_directory means the platform default.
func LoadSystemConfig() (*SystemConfig, error) {
	cfg := DefaultSystemConfig()
	path := GetSettingsFilePath()

	created, err := writeTemplate(path, GenerateSystemConfigTemplate())
	if err != nil {
		return nil, fmt.Errorf("failed to create system config: %w", err)
	}
	if !created {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse system config %s: %w", path, err)
		}
	}
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = GetDefaultDataDir()
	}
	return cfg, nil
}

// LoadUserConfig reads <dataDir>/config.toml over the defaults. Keys the
// config does not know are an error so typos do not go unnoticed.
func LoadUserConfig(dataDir string) (*UserConfig, error) {
	cfg := DefaultUserConfig()
	path := filepath.Join(dataDir, userConfigFile)

	created, err := writeTemplate(path, GenerateUserConfigTemplate())
	if err != nil {
		return nil, fmt.Errorf("failed to create user config: %w", err)
	}
	if created {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}
	return cfg, nil
}

// writeTemplate writes content to path unless the file is already there.
// It reports whether the file was created.
func writeTemplate(path, content string) (bool, error) {
	if FileExists(path) {
		return false, nil
	}
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return false, err
	}
	if DebugLog != nil {
		DebugLog.Printf("[Config] Wrote default %s", path)
	}
	return true, nil
}
