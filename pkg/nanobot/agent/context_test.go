package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hkuds/nanobot/pkg/nanobot/session"
)

func TestSystemPromptIncludesBootstrapFiles(t *testing.T) {
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, "AGENTS.md"), []byte("# Agent rules"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(workspace, "memory"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "memory", "MEMORY.md"), []byte("remembered fact"), 0o644); err != nil {
		t.Fatal(err)
	}

	prompt := NewContextBuilder(workspace).SystemPrompt()
	if !strings.Contains(prompt, "Current time:") {
		t.Error("missing time header")
	}
	if !strings.Contains(prompt, "## AGENTS.md") || !strings.Contains(prompt, "# Agent rules") {
		t.Error("AGENTS.md not included")
	}
	if !strings.Contains(prompt, "remembered fact") {
		t.Error("memory file not included")
	}
	if strings.Contains(prompt, "SOUL.md") {
		t.Error("missing bootstrap file should be skipped, not referenced")
	}
}

func TestSystemPromptListsSkills(t *testing.T) {
	workspace := t.TempDir()
	skillDir := filepath.Join(workspace, "skills", "weather")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte("check the forecast"), 0o644); err != nil {
		t.Fatal(err)
	}
	// A skill dir without SKILL.md is ignored.
	if err := os.MkdirAll(filepath.Join(workspace, "skills", "broken"), 0o755); err != nil {
		t.Fatal(err)
	}

	prompt := NewContextBuilder(workspace).SystemPrompt()
	if !strings.Contains(prompt, filepath.Join("skills", "weather", "SKILL.md")) {
		t.Error("skill not listed")
	}
	if strings.Contains(prompt, "broken") {
		t.Error("skill without SKILL.md listed")
	}
}

func TestBuildMessagesShape(t *testing.T) {
	builder := NewContextBuilder(t.TempDir())
	history := []session.Turn{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}

	messages := builder.BuildMessages(history, "new question")
	if len(messages) != 4 {
		t.Fatalf("messages = %d", len(messages))
	}
	if messages[0].Role != "system" {
		t.Errorf("first role = %q", messages[0].Role)
	}
	if messages[1].Content != "earlier question" || messages[2].Content != "earlier answer" {
		t.Errorf("history out of order: %+v", messages[1:3])
	}
	last := messages[len(messages)-1]
	if last.Role != "user" || last.Content != "new question" {
		t.Errorf("last message = %+v", last)
	}
}
