// Package agent – context.go
// System prompt assembly from the workspace bootstrap files.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hkuds/nanobot/pkg/nanobot/providers"
	"github.com/hkuds/nanobot/pkg/nanobot/session"
)

// bootstrapFiles are loaded into the system prompt in order. Missing
// files are skipped silently.
var bootstrapFiles = []string{
	"AGENTS.md",
	"SOUL.md",
	"USER.md",
	filepath.Join("memory", "MEMORY.md"),
}

// ContextBuilder turns workspace state plus history into provider messages.
type ContextBuilder struct {
	workspace string
}

func NewContextBuilder(workspace string) *ContextBuilder {
	return &ContextBuilder{workspace: workspace}
}

// SystemPrompt concatenates the bootstrap files, prefixed with the
// current time and a skills listing.
func (b *ContextBuilder) SystemPrompt() string {
	var sections []string
	sections = append(sections, fmt.Sprintf("Current time: %s", time.Now().Format("Mon, 2 Jan 2006 15:04 MST")))
	sections = append(sections, fmt.Sprintf("Workspace: %s", b.workspace))

	for _, name := range bootstrapFiles {
		data, err := os.ReadFile(filepath.Join(b.workspace, name))
		if err != nil {
			continue
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("## %s\n\n%s", name, content))
	}

	if skills := b.listSkills(); len(skills) > 0 {
		sections = append(sections, "## Skills\n\nAvailable skills (read the skill file for instructions):\n"+strings.Join(skills, "\n"))
	}

	return strings.Join(sections, "\n\n")
}

// listSkills finds skills/<name>/SKILL.md entries.
func (b *ContextBuilder) listSkills() []string {
	entries, err := os.ReadDir(filepath.Join(b.workspace, "skills"))
	if err != nil {
		return nil
	}
	var skills []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillFile := filepath.Join("skills", entry.Name(), "SKILL.md")
		if _, err := os.Stat(filepath.Join(b.workspace, skillFile)); err == nil {
			skills = append(skills, "- "+skillFile)
		}
	}
	return skills
}

// BuildMessages assembles the provider message list: system prompt,
// windowed history, then the new user content.
func (b *ContextBuilder) BuildMessages(history []session.Turn, content string) []providers.Message {
	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{Role: "system", Content: b.SystemPrompt()})
	for _, turn := range history {
		messages = append(messages, providers.Message{
			Role:       turn.Role,
			Content:    turn.Content,
			ToolCalls:  turn.ToolCalls,
			ToolCallID: turn.ToolCallID,
			Name:       turn.Name,
		})
	}
	messages = append(messages, providers.Message{Role: "user", Content: content})
	return messages
}
