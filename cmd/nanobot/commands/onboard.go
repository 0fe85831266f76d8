// Package commands – onboard.go
// First-run setup: config file, workspace, and bootstrap templates.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/hkuds/nanobot/pkg/nanobot/config"
)

func newOnboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Initialize nanobot configuration and workspace",
		RunE:  runOnboard,
	}
}

func runOnboard(cmd *cobra.Command, _ []string) error {
	configPath := config.Path()

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		prompt := huh.NewConfirm().
			Title(fmt.Sprintf("Config already exists at %s. Overwrite?", configPath)).
			Value(&overwrite)
		if err := prompt.Run(); err != nil {
			return err
		}
		if !overwrite {
			return nil
		}
	}

	cfg := config.Default()
	if err := cfg.Save(configPath); err != nil {
		return err
	}
	fmt.Printf("✓ Created config at %s\n", configPath)

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	fmt.Printf("✓ Created workspace at %s\n", workspace)

	if err := createWorkspaceTemplates(workspace); err != nil {
		return err
	}

	fmt.Printf("\n%s nanobot is ready!\n", logo)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Sign in: nanobot auth login")
	fmt.Println("  2. Chat:    nanobot agent -m \"Hello!\"")
	fmt.Println("  3. Serve:   nanobot gateway")
	return nil
}

var workspaceTemplates = map[string]string{
	"AGENTS.md": `# Agent Instructions

You are a helpful AI assistant. Be concise, accurate, and friendly.

## Guidelines

- Always explain what you're doing before taking actions
- Ask for clarification when the request is ambiguous
- Use tools to help accomplish tasks
- Remember important information in memory/MEMORY.md; past events are logged in memory/HISTORY.md
`,
	"SOUL.md": `# Soul

I am nanobot, a lightweight AI assistant.

## Personality

- Helpful and friendly
- Concise and to the point
- Curious and eager to learn

## Values

- Accuracy over speed
- User privacy and safety
- Transparency in actions
`,
	"USER.md": `# User

Information about the user goes here.

## Preferences

- Communication style: (casual/formal)
- Timezone: (your timezone)
- Language: (your preferred language)
`,
	filepath.Join("memory", "MEMORY.md"): `# Long-term Memory

This file stores important information that should persist across sessions.

## User Information

(Important facts about the user)

## Preferences

(User preferences learned over time)

## Important Notes

(Things to remember)
`,
	filepath.Join("memory", "HISTORY.md"): "",
}

// createWorkspaceTemplates writes the bootstrap files, never overwriting
// ones the user already edited.
func createWorkspaceTemplates(workspace string) error {
	for name, content := range workspaceTemplates {
		path := filepath.Join(workspace, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		fmt.Printf("  Created %s\n", name)
	}
	return os.MkdirAll(filepath.Join(workspace, "skills"), 0o755)
}
