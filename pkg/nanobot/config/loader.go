// Package config – loader.go
// Locating, loading, and saving the configuration, plus the ~/.nanobot
// state directory layout.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Dir returns the nanobot state directory (~/.nanobot), creating nothing.
func Dir() string {
	if v := os.Getenv("NANOBOT_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nanobot"
	}
	return filepath.Join(home, ".nanobot")
}

// Path returns the config file location inside Dir.
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// Load reads the config file, applies defaults for missing sections, and
// overlays secrets from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			loadEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	loadEnv(cfg)
	return cfg, nil
}

// Save writes the config as indented JSON, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, path)
}

// WorkspacePath resolves the agent workspace, defaulting to
// ~/.nanobot/workspace.
func (c *Config) WorkspacePath() string {
	if c.Workspace != "" {
		return expandHome(c.Workspace)
	}
	return filepath.Join(Dir(), "workspace")
}

// loadEnv overlays secrets from ~/.nanobot/.env, a CWD .env, and the
// process environment. Environment wins over the config file so tokens
// can stay out of config.json.
func loadEnv(cfg *Config) {
	_ = godotenv.Load(filepath.Join(Dir(), ".env"))
	_ = godotenv.Load()

	if v := os.Getenv("BRIDGE_TOKEN"); v != "" {
		cfg.Channels.WhatsApp.BridgeToken = v
	}
	if v := os.Getenv("NANOBOT_BRIDGE_TOKEN"); v != "" {
		cfg.Channels.WhatsApp.BridgeToken = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Channels.Telegram.Token = v
	}
	if v := os.Getenv("NANOBOT_WORKSPACE"); v != "" {
		cfg.Workspace = v
	}
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
