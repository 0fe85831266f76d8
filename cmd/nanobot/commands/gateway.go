// Package commands – gateway.go
// The long-running daemon: agent loop, channels, scheduler, heartbeat.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hkuds/nanobot/pkg/nanobot/bus"
	"github.com/hkuds/nanobot/pkg/nanobot/channels"
	"github.com/hkuds/nanobot/pkg/nanobot/cron"
	"github.com/hkuds/nanobot/pkg/nanobot/heartbeat"
)

func newGatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the nanobot gateway",
		Long: `Start nanobot as a daemon: connects the enabled channels, runs the
agent loop, the cron scheduler, and the heartbeat.

Examples:
  nanobot gateway
  nanobot gateway -v`,
		RunE: runGateway,
	}
}

// newCronHandler runs a due job through the agent and, when the job asks
// for delivery, publishes the reply to its target conversation.
func newCronHandler(runner agentRunner, b *bus.MessageBus) cron.Handler {
	return func(ctx context.Context, job *cron.Job) (string, error) {
		channel := job.Payload.Channel
		if channel == "" {
			channel = "cli"
		}
		chatID := job.Payload.To
		if chatID == "" {
			chatID = "direct"
		}
		response, err := runner.ProcessDirect(ctx, job.Payload.Message,
			fmt.Sprintf("cron:%s", job.ID), channel, chatID)
		if err != nil {
			return "", err
		}
		if job.Payload.Deliver && job.Payload.To != "" {
			b.PublishOutbound(bus.OutboundMessage{
				Channel: channel,
				ChatID:  job.Payload.To,
				Content: response,
			})
		}
		return response, nil
	}
}

func runGateway(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogging(cmd, cfg)

	fmt.Printf("%s Starting nanobot gateway...\n", logo)

	provider, _, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.New()

	// ── Step 1: scheduler (handler attached after the loop exists) ──
	cronSvc, err := cron.NewService(cron.NewStore(cronStorePath()), nil)
	if err != nil {
		return fmt.Errorf("loading cron jobs: %w", err)
	}

	// ── Step 2: agent loop ──
	loop := buildLoop(cfg, b, provider, cronSvc)
	cronSvc.SetHandler(newCronHandler(loop, b))

	// ── Step 3: heartbeat ──
	var hb *heartbeat.Service
	if cfg.Heartbeat.Enabled {
		hb = heartbeat.NewService(loop.ProcessDirect, cfg.WorkspacePath(), cfg.HeartbeatInterval())
	}

	// ── Step 4: channels ──
	channelMgr := channels.NewManager(b)
	if cfg.Channels.WhatsApp.Enabled {
		channelMgr.Register(channels.NewWhatsAppChannel(b,
			cfg.Channels.WhatsApp.BridgeURL, cfg.Channels.WhatsApp.BridgeToken))
	}
	if cfg.Channels.Telegram.Enabled {
		channelMgr.Register(channels.NewTelegramChannel(b,
			cfg.Channels.Telegram.Token, cfg.Channels.Telegram.AllowedChats))
	}

	if names := channelMgr.Names(); len(names) > 0 {
		fmt.Printf("✓ Channels enabled: %v\n", names)
	} else {
		fmt.Println("Warning: no channels enabled")
	}
	if jobs := cronSvc.List(false); len(jobs) > 0 {
		fmt.Printf("✓ Cron: %d scheduled jobs\n", len(jobs))
	}
	if hb != nil {
		fmt.Printf("✓ Heartbeat: every %s\n", cfg.HeartbeatInterval())
	}

	// ── Step 5: start everything ──
	cronSvc.Start(ctx)
	if hb != nil {
		hb.Start(ctx)
	}
	go loop.Run(ctx)
	channelMgr.StartAll(ctx)

	logger.Info("nanobot gateway running. Press Ctrl+C to stop.",
		"model", cfg.Agents.Defaults.Model)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")
	if hb != nil {
		hb.Stop()
	}
	cronSvc.Stop()
	loop.Stop()
	if err := channelMgr.StopAll(); err != nil {
		logger.Error("channel shutdown", "error", err)
	}
	b.Close()
	return nil
}
