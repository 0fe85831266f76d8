package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agents.Defaults.Model != "claude-sonnet-4-5" {
		t.Errorf("model = %q", cfg.Agents.Defaults.Model)
	}
	if cfg.Agents.Defaults.MaxToolIterations != 20 {
		t.Errorf("max iterations = %d", cfg.Agents.Defaults.MaxToolIterations)
	}
	if !cfg.Tools.Exec.RestrictToWorkspace {
		t.Error("exec restriction should default on")
	}
	if cfg.Channels.WhatsApp.BridgeURL != "ws://localhost:3001/ws" {
		t.Errorf("bridge url = %q", cfg.Channels.WhatsApp.BridgeURL)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Agents.Defaults.Model = "gemini-3-flash"
	cfg.Channels.Telegram.Enabled = true
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Agents.Defaults.Model != "gemini-3-flash" {
		t.Errorf("model = %q", loaded.Agents.Defaults.Model)
	}
	if !loaded.Channels.Telegram.Enabled {
		t.Error("telegram flag lost")
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("corrupt config accepted")
	}
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("NANOBOT_HOME", t.TempDir())
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-secret")
	t.Setenv("NANOBOT_BRIDGE_TOKEN", "bridge-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channels.Telegram.Token != "tg-secret" {
		t.Errorf("telegram token = %q", cfg.Channels.Telegram.Token)
	}
	if cfg.Channels.WhatsApp.BridgeToken != "bridge-secret" {
		t.Errorf("bridge token = %q", cfg.Channels.WhatsApp.BridgeToken)
	}
}

func TestBridgeTokenEnvNames(t *testing.T) {
	t.Setenv("NANOBOT_HOME", t.TempDir())

	t.Setenv("BRIDGE_TOKEN", "plain")
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channels.WhatsApp.BridgeToken != "plain" {
		t.Errorf("bridge token = %q", cfg.Channels.WhatsApp.BridgeToken)
	}

	// The prefixed name wins when both are set.
	t.Setenv("NANOBOT_BRIDGE_TOKEN", "prefixed")
	cfg, err = Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channels.WhatsApp.BridgeToken != "prefixed" {
		t.Errorf("bridge token = %q", cfg.Channels.WhatsApp.BridgeToken)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if cfg.ExecTimeout() != 60*time.Second {
		t.Errorf("exec timeout = %s", cfg.ExecTimeout())
	}
	if cfg.HeartbeatInterval() != 30*time.Minute {
		t.Errorf("heartbeat interval = %s", cfg.HeartbeatInterval())
	}

	cfg.Tools.Exec.TimeoutS = 0
	if cfg.ExecTimeout() != 60*time.Second {
		t.Errorf("zero timeout should fall back: %s", cfg.ExecTimeout())
	}
	cfg.Heartbeat.IntervalS = 120
	if cfg.HeartbeatInterval() != 2*time.Minute {
		t.Errorf("interval = %s", cfg.HeartbeatInterval())
	}
}

func TestWorkspacePath(t *testing.T) {
	t.Setenv("NANOBOT_HOME", "/tmp/nanobot-test-home")
	cfg := Default()
	if got := cfg.WorkspacePath(); got != "/tmp/nanobot-test-home/workspace" {
		t.Errorf("workspace = %q", got)
	}

	cfg.Workspace = "/data/agent"
	if got := cfg.WorkspacePath(); got != "/data/agent" {
		t.Errorf("workspace = %q", got)
	}
}
