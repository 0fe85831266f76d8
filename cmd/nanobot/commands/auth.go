// Package commands – auth.go
// Antigravity OAuth account management.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hkuds/nanobot/pkg/nanobot/config"
	"github.com/hkuds/nanobot/pkg/nanobot/providers/antigravity"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage Antigravity OAuth authentication",
	}
	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthStatusCmd(),
		newAuthListCmd(),
		newAuthSwitchCmd(),
		newAuthLogoutCmd(),
	)
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with Google via Antigravity OAuth",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Printf("%s Antigravity OAuth Login\n", logo)
			fmt.Println("Opening browser for Google sign-in...")

			auth := antigravity.NewAuthManager(antigravityDir())
			creds, err := auth.Login(cmd.Context())
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Printf("✓ Authenticated as %s\n", creds.Email)
			if accounts := auth.Accounts(); len(accounts) > 1 {
				fmt.Printf("  (%d accounts stored, active: %s)\n", len(accounts), creds.Email)
			}

			// Auto-enable the provider so the next gateway start uses it.
			cfg, err := resolveConfig(cmd)
			if err == nil && !cfg.Providers.Antigravity.Enabled {
				cfg.Providers.Antigravity.Enabled = true
				if err := cfg.Save(config.Path()); err == nil {
					fmt.Println("✓ Antigravity provider enabled in config")
				}
			}

			fmt.Println("\nAvailable models:")
			for _, model := range antigravity.Models {
				fmt.Printf("  • %s\n", model)
			}
			return nil
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(_ *cobra.Command, _ []string) error {
			auth := antigravity.NewAuthManager(antigravityDir())
			accounts := auth.Accounts()
			if len(accounts) == 0 {
				fmt.Println("Not authenticated. Run: nanobot auth login")
				return nil
			}
			for _, email := range accounts {
				marker := ""
				if email == auth.Email() {
					marker = " (active)"
				}
				fmt.Printf("  %s%s\n", email, marker)
			}
			return nil
		},
	}
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored accounts",
		RunE: func(_ *cobra.Command, _ []string) error {
			auth := antigravity.NewAuthManager(antigravityDir())
			accounts := auth.Accounts()
			if len(accounts) == 0 {
				fmt.Println("No accounts stored. Run: nanobot auth login")
				return nil
			}
			for _, email := range accounts {
				active := " "
				if email == auth.Email() {
					active = "✓"
				}
				fmt.Printf("  %s %s\n", active, email)
			}
			return nil
		},
	}
}

func newAuthSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <email>",
		Short: "Switch the active account",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			auth := antigravity.NewAuthManager(antigravityDir())
			if err := auth.Switch(args[0]); err != nil {
				if accounts := auth.Accounts(); len(accounts) > 0 {
					fmt.Println("Available accounts:")
					for _, email := range accounts {
						fmt.Printf("  • %s\n", email)
					}
				}
				return err
			}
			fmt.Printf("✓ Switched to %s\n", args[0])
			return nil
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout [email]",
		Short: "Remove stored credentials",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth := antigravity.NewAuthManager(antigravityDir())
			all, _ := cmd.Flags().GetBool("all")

			target := ""
			switch {
			case all:
				target = "*"
			case len(args) == 1:
				target = args[0]
			default:
				target = "" // active account
			}

			removed := auth.Email()
			if target != "" && target != "*" {
				removed = target
			}
			if err := auth.Logout(target); err != nil {
				return err
			}
			if target == "*" {
				fmt.Println("✓ All credentials removed")
			} else {
				fmt.Printf("✓ Credentials for %s removed\n", removed)
				if auth.Authenticated() {
					fmt.Printf("  Active account: %s\n", auth.Email())
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolP("all", "a", false, "remove all accounts")
	return cmd
}
