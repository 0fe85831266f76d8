// Package config – config.go
// Runtime configuration for the nanobot gateway, persisted as JSON at
// ~/.nanobot/config.json.
package config

import (
	"time"
)

// Config is the root configuration document.
type Config struct {
	Workspace string          `json:"workspace,omitempty"`
	Agents    AgentsConfig    `json:"agents"`
	Providers ProvidersConfig `json:"providers"`
	Channels  ChannelsConfig  `json:"channels"`
	Tools     ToolsConfig     `json:"tools"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Logging   LoggingConfig   `json:"logging"`
}

type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

type AgentDefaults struct {
	Model             string `json:"model"`
	MaxToolIterations int    `json:"max_tool_iterations"`
	MemoryWindow      int    `json:"memory_window"`
}

type ProvidersConfig struct {
	Antigravity AntigravityConfig `json:"antigravity"`
}

type AntigravityConfig struct {
	Enabled bool `json:"enabled"`
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Telegram TelegramConfig `json:"telegram"`
}

type WhatsAppConfig struct {
	Enabled     bool   `json:"enabled"`
	BridgeURL   string `json:"bridge_url"`
	BridgeToken string `json:"bridge_token,omitempty"`
}

type TelegramConfig struct {
	Enabled      bool     `json:"enabled"`
	Token        string   `json:"token,omitempty"`
	AllowedChats []string `json:"allowed_chats,omitempty"`
}

type ToolsConfig struct {
	Exec ExecConfig `json:"exec"`
	Web  WebConfig  `json:"web"`
}

type ExecConfig struct {
	TimeoutS            int  `json:"timeout_s"`
	RestrictToWorkspace bool `json:"restrict_to_workspace"`
}

type WebConfig struct {
	Search SearchConfig `json:"search"`
}

type SearchConfig struct {
	APIKey string `json:"api_key,omitempty"`
}

type HeartbeatConfig struct {
	Enabled   bool `json:"enabled"`
	IntervalS int  `json:"interval_s"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// Default returns the configuration written by `nanobot onboard`.
func Default() *Config {
	return &Config{
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Model:             "claude-sonnet-4-5",
				MaxToolIterations: 20,
				MemoryWindow:      100,
			},
		},
		Providers: ProvidersConfig{
			Antigravity: AntigravityConfig{Enabled: true},
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Enabled:   false,
				BridgeURL: "ws://localhost:3001/ws",
			},
			Telegram: TelegramConfig{Enabled: false},
		},
		Tools: ToolsConfig{
			Exec: ExecConfig{
				TimeoutS:            60,
				RestrictToWorkspace: true,
			},
		},
		Heartbeat: HeartbeatConfig{
			Enabled:   true,
			IntervalS: int(30 * time.Minute / time.Second),
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// ExecTimeout returns the exec tool timeout as a duration.
func (c *Config) ExecTimeout() time.Duration {
	if c.Tools.Exec.TimeoutS <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Tools.Exec.TimeoutS) * time.Second
}

// HeartbeatInterval returns the heartbeat cadence, defaulting to 30 minutes.
func (c *Config) HeartbeatInterval() time.Duration {
	if c.Heartbeat.IntervalS <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Heartbeat.IntervalS) * time.Second
}
