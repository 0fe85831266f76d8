package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolvePathRestriction(t *testing.T) {
	workspace := t.TempDir()

	if _, err := resolvePath(workspace, "notes.md", true); err != nil {
		t.Errorf("relative path rejected: %v", err)
	}
	if _, err := resolvePath(workspace, "sub/dir/file.txt", true); err != nil {
		t.Errorf("nested path rejected: %v", err)
	}
	if _, err := resolvePath(workspace, "../outside.txt", true); err == nil {
		t.Error("parent escape accepted")
	}
	if _, err := resolvePath(workspace, "/etc/passwd", true); err == nil {
		t.Error("absolute path outside workspace accepted")
	}
	if _, err := resolvePath(workspace, "/etc/passwd", false); err != nil {
		t.Errorf("unrestricted absolute path rejected: %v", err)
	}
}

func TestWriteThenRead(t *testing.T) {
	workspace := t.TempDir()
	ctx := context.Background()

	write := &WriteFileTool{Workspace: workspace, Restrict: true}
	out, err := write.Execute(ctx, map[string]any{"path": "memo/today.md", "content": "remember this"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "today.md") {
		t.Errorf("write result = %q", out)
	}

	read := &ReadFileTool{Workspace: workspace, Restrict: true}
	got, err := read.Execute(ctx, map[string]any{"path": "memo/today.md"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "remember this" {
		t.Errorf("read = %q", got)
	}
}

func TestReadMissingFile(t *testing.T) {
	read := &ReadFileTool{Workspace: t.TempDir(), Restrict: true}
	if _, err := read.Execute(context.Background(), map[string]any{"path": "nope.txt"}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestReadMissingArgument(t *testing.T) {
	read := &ReadFileTool{Workspace: t.TempDir(), Restrict: true}
	if _, err := read.Execute(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error for missing path argument")
	}
}

func TestListDir(t *testing.T) {
	workspace := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workspace, "memory"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "AGENTS.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	list := &ListDirTool{Workspace: workspace, Restrict: true}
	out, err := list.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "AGENTS.md") || !strings.Contains(out, "memory/") {
		t.Errorf("listing = %q", out)
	}
}

func TestListDirEmpty(t *testing.T) {
	list := &ListDirTool{Workspace: t.TempDir(), Restrict: true}
	out, err := list.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "(empty)" {
		t.Errorf("listing = %q", out)
	}
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	workspace := t.TempDir()
	r.Register(&WriteFileTool{Workspace: workspace})
	r.Register(&ReadFileTool{Workspace: workspace})
	r.Register(&ListDirTool{Workspace: workspace})

	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("defs = %d", len(defs))
	}
	want := []string{"list_dir", "read_file", "write_file"}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("defs[%d] = %q, want %q", i, defs[i].Name, name)
		}
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), "nope", nil); err == nil {
		t.Error("expected error for unknown tool")
	}
}
