// Package commands – status.go
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hkuds/nanobot/pkg/nanobot/config"
	"github.com/hkuds/nanobot/pkg/nanobot/cron"
	"github.com/hkuds/nanobot/pkg/nanobot/metrics"
	"github.com/hkuds/nanobot/pkg/nanobot/providers/antigravity"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show nanobot status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("%s nanobot Status\n\n", logo)
	fmt.Printf("Config:    %s %s\n", config.Path(), checkmark(fileExists(config.Path())))
	fmt.Printf("Workspace: %s %s\n", cfg.WorkspacePath(), checkmark(fileExists(cfg.WorkspacePath())))
	fmt.Printf("Model:     %s\n", cfg.Agents.Defaults.Model)

	auth := antigravity.NewAuthManager(antigravityDir())
	switch {
	case !cfg.Providers.Antigravity.Enabled:
		fmt.Println("Antigravity: not enabled")
	case auth.Authenticated():
		fmt.Printf("Antigravity: ✓ %s\n", auth.Email())
	default:
		fmt.Println("Antigravity: enabled but not authenticated (run 'nanobot auth login')")
	}

	fmt.Printf("Channels:  whatsapp=%s telegram=%s\n",
		enabledStr(cfg.Channels.WhatsApp.Enabled),
		enabledStr(cfg.Channels.Telegram.Enabled))

	if jobs, err := cron.NewStore(cronStorePath()).Load(); err == nil {
		fmt.Printf("Cron:      %d jobs\n", len(jobs))
	}

	collector := metrics.NewCollector(metricsDir(), true)
	report := metrics.Summary(collector, 24)
	fmt.Printf("Metrics:   %d sessions in the last 24h (%d tool calls)\n",
		report.TotalSessions, report.TotalToolCalls)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func checkmark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func enabledStr(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
