// Package commands – channels.go
// Channel status and WhatsApp bridge pairing.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/hkuds/nanobot/pkg/nanobot/bus"
	"github.com/hkuds/nanobot/pkg/nanobot/channels"
)

func newChannelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Manage channels",
	}
	cmd.AddCommand(newChannelsStatusCmd(), newChannelsLoginCmd())
	return cmd
}

func newChannelsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show channel status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			fmt.Println("Channel   Enabled  Configuration")
			fmt.Printf("WhatsApp  %s        %s\n",
				checkmark(cfg.Channels.WhatsApp.Enabled), cfg.Channels.WhatsApp.BridgeURL)

			tgConfig := "not configured"
			if cfg.Channels.Telegram.Token != "" {
				token := cfg.Channels.Telegram.Token
				if len(token) > 10 {
					token = token[:10] + "..."
				}
				tgConfig = "token: " + token
			}
			fmt.Printf("Telegram  %s        %s\n",
				checkmark(cfg.Channels.Telegram.Enabled), tgConfig)
			return nil
		},
	}
}

func newChannelsLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Link WhatsApp by scanning a QR code",
		Long: `Connect to the WhatsApp bridge and wait for a pairing QR code.
The bridge must be running (see bridge_url in config).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cmd, cfg)

			b := bus.New()
			defer b.Close()

			wa := channels.NewWhatsAppChannel(b,
				cfg.Channels.WhatsApp.BridgeURL, cfg.Channels.WhatsApp.BridgeToken)
			wa.OnQR = func(data string) {
				fmt.Println("\nScan this QR code with WhatsApp:")
				qrterminal.GenerateHalfBlock(data, qrterminal.L, os.Stdout)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := wa.Start(ctx); err != nil {
				return err
			}
			defer wa.Stop()

			fmt.Printf("%s Connected to bridge, waiting for pairing... (Ctrl+C to stop)\n", logo)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan
			return nil
		},
	}
}
