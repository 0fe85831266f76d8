// Package commands – root.go
// Root command and shared wiring helpers for the nanobot CLI.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hkuds/nanobot/pkg/nanobot/agent"
	"github.com/hkuds/nanobot/pkg/nanobot/bus"
	"github.com/hkuds/nanobot/pkg/nanobot/config"
	"github.com/hkuds/nanobot/pkg/nanobot/cron"
	"github.com/hkuds/nanobot/pkg/nanobot/metrics"
	"github.com/hkuds/nanobot/pkg/nanobot/providers"
	"github.com/hkuds/nanobot/pkg/nanobot/providers/antigravity"
	"github.com/hkuds/nanobot/pkg/nanobot/session"
	"github.com/hkuds/nanobot/pkg/nanobot/tools"
)

const logo = "🐜"

// NewRootCmd builds the nanobot command tree.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "nanobot",
		Short:   "nanobot — personal AI assistant",
		Version: version,
		Long: `nanobot is a personal AI assistant gateway: it connects chat channels
(WhatsApp, Telegram, CLI) to an LLM agent with tools, scheduled jobs,
and persistent memory.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "config file path (default ~/.nanobot/config.json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(
		newOnboardCmd(),
		newStatusCmd(),
		newAgentCmd(),
		newGatewayCmd(),
		newAuthCmd(),
		newChannelsCmd(),
		newCronCmd(),
		newMetricsCmd(),
	)
	return rootCmd
}

// resolveConfig loads the config named by --config or the default path.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// setupLogging installs the process-wide slog handler per config.
func setupLogging(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// buildProvider creates the LLM provider. Antigravity is the only backend;
// it needs a logged-in account.
func buildProvider(cfg *config.Config) (providers.LLMProvider, *antigravity.AuthManager, error) {
	if !cfg.Providers.Antigravity.Enabled {
		return nil, nil, fmt.Errorf("antigravity provider is disabled in config; run 'nanobot auth login'")
	}
	auth := antigravity.NewAuthManager(antigravityDir())
	if !auth.Authenticated() {
		return nil, nil, fmt.Errorf("not authenticated; run 'nanobot auth login'")
	}
	provider := antigravity.New(auth, antigravity.WithDefaultModel(cfg.Agents.Defaults.Model))
	return provider, auth, nil
}

// buildLoop wires the agent loop with sessions, tools, and metrics.
// cronSvc may be nil (no cron tool registered then).
func buildLoop(cfg *config.Config, b *bus.MessageBus, provider providers.LLMProvider, cronSvc *cron.Service) *agent.Loop {
	workspace := cfg.WorkspacePath()

	registry := tools.NewRegistry()
	restrict := cfg.Tools.Exec.RestrictToWorkspace
	registry.Register(&tools.ReadFileTool{Workspace: workspace, Restrict: restrict})
	registry.Register(&tools.WriteFileTool{Workspace: workspace, Restrict: restrict})
	registry.Register(&tools.ListDirTool{Workspace: workspace, Restrict: restrict})
	registry.Register(tools.NewExecTool(workspace, cfg.ExecTimeout()))
	registry.Register(tools.NewMessageTool(b))
	if cronSvc != nil {
		registry.Register(tools.NewCronTool(cronSvc))
	}

	return agent.NewLoop(agent.Options{
		Bus:           b,
		Provider:      provider,
		Sessions:      session.NewManager(sessionsDir(), cfg.Agents.Defaults.MemoryWindow),
		Registry:      registry,
		Workspace:     workspace,
		Collector:     metrics.NewCollector(metricsDir(), true),
		Model:         cfg.Agents.Defaults.Model,
		MaxIterations: cfg.Agents.Defaults.MaxToolIterations,
	})
}

func antigravityDir() string {
	return filepath.Join(config.Dir(), "antigravity")
}

func sessionsDir() string {
	return filepath.Join(config.Dir(), "sessions")
}

func cronStorePath() string {
	return filepath.Join(config.Dir(), "cron", "jobs.json")
}

func metricsDir() string {
	return filepath.Join(config.Dir(), "metrics")
}

func historyFile() string {
	return filepath.Join(config.Dir(), "history", "cli_history")
}
